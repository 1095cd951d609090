package board

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"taskboard/domain"
	"taskboard/gateway"
)

type fetchCall struct {
	status  domain.Status
	filters domain.FilterSet
	page    gateway.PageSpec
}

type fakeGateway struct {
	mu        sync.Mutex
	tasks     []domain.Task
	fetches   []fetchCall
	counts    int
	updates   []string
	failFetch map[domain.Status]error
	updateErr error
	// beforeFetch runs outside the lock and may block.
	beforeFetch func(fetchCall)
}

func newFakeGateway(tasks ...domain.Task) *fakeGateway {
	g := &fakeGateway{tasks: slices.Clone(tasks)}
	g.sort()
	return g
}

func (g *fakeGateway) sort() {
	slices.SortFunc(g.tasks, func(a, b domain.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

func matches(t domain.Task, status domain.Status, f domain.FilterSet) bool {
	if t.Status != status {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

func (g *fakeGateway) FetchPage(ctx context.Context, status domain.Status, f domain.FilterSet, page gateway.PageSpec) ([]domain.Task, error) {
	call := fetchCall{status: status, filters: f, page: page}
	g.mu.Lock()
	g.fetches = append(g.fetches, call)
	hook := g.beforeFetch
	g.mu.Unlock()
	if hook != nil {
		hook(call)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failFetch[status]; err != nil {
		return nil, err
	}
	var rows []domain.Task
	for _, t := range g.tasks {
		if !matches(t, status, f) {
			continue
		}
		if m := page.After; m != nil {
			if t.CreatedAt.After(m.CreatedAt) || (t.CreatedAt.Equal(m.CreatedAt) && t.ID >= m.ID) {
				continue
			}
		}
		rows = append(rows, t)
	}
	if page.After == nil {
		rows = rows[min(page.Offset, len(rows)):]
	}
	return slices.Clone(rows[:min(page.Limit, len(rows))]), nil
}

func (g *fakeGateway) CountByStatus(ctx context.Context, status domain.Status, f domain.FilterSet) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts++
	n := 0
	for _, t := range g.tasks {
		if matches(t, status, f) {
			n++
		}
	}
	return n, nil
}

func (g *fakeGateway) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updates = append(g.updates, id+"="+string(status))
	if g.updateErr != nil {
		return g.updateErr
	}
	for i := range g.tasks {
		if g.tasks[i].ID == id {
			g.tasks[i].Status = status
		}
	}
	return nil
}

func (g *fakeGateway) ListDistinctValues(ctx context.Context, col gateway.LookupColumn) ([]string, error) {
	return nil, nil
}

func (g *fakeGateway) fetchesFor(status domain.Status) []fetchCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []fetchCall
	for _, c := range g.fetches {
		if c.status == status {
			out = append(out, c)
		}
	}
	return out
}

func (g *fakeGateway) countCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts
}

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// makeTasks returns n tasks in status, newest first, named prefix01..prefixNN.
func makeTasks(prefix string, status domain.Status, n int) []domain.Task {
	tasks := make([]domain.Task, n)
	for i := range tasks {
		tasks[i] = domain.Task{
			ID:        fmt.Sprintf("%s%02d", prefix, i+1),
			Title:     fmt.Sprintf("%s task %d", prefix, i+1),
			Status:    status,
			CreatedAt: baseTime.Add(-time.Duration(i) * time.Minute),
		}
	}
	return tasks
}

func ids(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func assertPartition(t *testing.T, snap Snapshot) {
	t.Helper()
	seen := map[string]domain.StatusKey{}
	for _, k := range domain.StatusKeys {
		for _, task := range snap.Columns[k] {
			if prev, ok := seen[task.ID]; ok {
				t.Fatalf("task %s in both %s and %s", task.ID, prev, k)
			}
			seen[task.ID] = k
		}
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
