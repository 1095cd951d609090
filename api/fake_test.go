package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"taskboard/board"
	"taskboard/domain"
	"taskboard/feed"
	"taskboard/gateway"
)

type fakeService struct {
	mu           sync.Mutex
	tasks        []domain.Task
	comments     map[string][]domain.Comment
	updateErr    error
	discardLimit int
}

func newFakeService() *fakeService {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeService{comments: map[string][]domain.Comment{}}
	add := func(id, category string, status domain.Status, i int) {
		svc.tasks = append(svc.tasks, domain.Task{
			ID:        id,
			Title:     "task " + id,
			Category:  category,
			Status:    status,
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		})
	}
	add("t1", "Web", domain.StatusToDo, 1)
	add("t2", "Data", domain.StatusToDo, 2)
	add("p1", "Web", domain.StatusInProgress, 3)
	add("d1", "Data", domain.StatusDone, 4)
	add("x1", "Web", domain.StatusDiscarded, 5)
	return svc
}

func (f *fakeService) match(t domain.Task, status domain.Status, filters domain.FilterSet) bool {
	return t.Status == status && (filters.Category == "" || t.Category == filters.Category)
}

func (f *fakeService) FetchPage(ctx context.Context, status domain.Status, filters domain.FilterSet, page gateway.PageSpec) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Task
	for _, t := range f.tasks {
		if !f.match(t, status, filters) {
			continue
		}
		if m := page.After; m != nil && !t.CreatedAt.Before(m.CreatedAt) {
			continue
		}
		out = append(out, t)
	}
	if page.After == nil {
		out = out[min(page.Offset, len(out)):]
	}
	return out[:min(page.Limit, len(out))], nil
}

func (f *fakeService) CountByStatus(ctx context.Context, status domain.Status, filters domain.FilterSet) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tasks {
		if f.match(t, status, filters) {
			n++
		}
	}
	return n, nil
}

func (f *fakeService) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].Status = status
			return nil
		}
	}
	return gateway.ErrNotFound
}

func (f *fakeService) ListDistinctValues(ctx context.Context, col gateway.LookupColumn) ([]string, error) {
	switch col {
	case gateway.LookupCategory:
		return []string{"Data", "Web"}, nil
	case gateway.LookupCountry:
		return []string{"Chile"}, nil
	}
	return nil, fmt.Errorf("unexpected column %s", col)
}

func (f *fakeService) SubcategoryMap(ctx context.Context) (map[string][]string, error) {
	return map[string][]string{"Web": {"Frontend"}}, nil
}

func (f *fakeService) Discarded(ctx context.Context, limit int) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discardLimit = limit
	var out []domain.Task
	for _, t := range f.tasks {
		if t.Status == domain.StatusDiscarded {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeService) TaskDetails(ctx context.Context, id string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Task{}, gateway.ErrNotFound
}

func (f *fakeService) Comments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comments[taskID], nil
}

func (f *fakeService) AddComment(ctx context.Context, taskID, content, email string) (domain.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Comment{}, gateway.ErrEmptyComment
	}
	if email == "" {
		email = domain.AnonymousAuthor
	}
	c := domain.Comment{ID: "c1", TaskID: taskID, Content: strings.TrimSpace(content), UserEmail: email, CreatedAt: time.Now().UTC()}
	f.mu.Lock()
	f.comments[taskID] = append([]domain.Comment{c}, f.comments[taskID]...)
	f.mu.Unlock()
	return c, nil
}

// fakeAuth accepts "Bearer <user>" and signs users out by name.
type fakeAuth struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (a *fakeAuth) UserFromAuthHeader(_ context.Context, h string) (domain.User, error) {
	name, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || name == "" {
		return domain.User{}, errors.New("missing authorization header")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.revoked[name] {
		return domain.User{}, errors.New("token revoked")
	}
	email := name + "@example.com"
	if name == "anon" {
		email = ""
	}
	return domain.User{ID: name, Email: email}, nil
}

func (a *fakeAuth) SignOut(ctx context.Context, h string) error {
	if _, err := a.UserFromAuthHeader(ctx, h); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.revoked == nil {
		a.revoked = map[string]bool{}
	}
	a.revoked[strings.TrimPrefix(h, "Bearer ")] = true
	return nil
}

type testServer struct {
	e        *echo.Echo
	svc      *fakeService
	broker   *feed.Broker
	sessions *Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc := newFakeService()
	broker := feed.NewBroker(nil)
	sessions := NewRegistry(context.Background(), svc, broker, board.SessionConfig{
		PageSize:         10,
		SearchDebounce:   10 * time.Millisecond,
		RealtimeDebounce: time.Hour,
	}, time.Minute, nil)
	t.Cleanup(sessions.CloseAll)

	e := echo.New()
	e.JSONSerializer = SonicSerializer{}
	e.Use(RequestID(), GzipRequestMiddleware())
	Register(e, svc, sessions, &fakeAuth{}, Options{}, nil)
	return &testServer{e: e, svc: svc, broker: broker, sessions: sessions}
}

func (s *testServer) do(method, target, user, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if user != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+user)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}
