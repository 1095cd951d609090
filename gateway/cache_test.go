package gateway

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"taskboard/domain"
)

type stubService struct {
	fetchPageFn     func(ctx context.Context, status domain.Status, f domain.FilterSet, page PageSpec) ([]domain.Task, error)
	countFn         func(ctx context.Context, status domain.Status, f domain.FilterSet) (int, error)
	updateStatusFn  func(ctx context.Context, id string, status domain.Status) error
	distinctFn      func(ctx context.Context, col LookupColumn) ([]string, error)
	subcategoriesFn func(ctx context.Context) (map[string][]string, error)
	commentsFn      func(ctx context.Context, taskID string) ([]domain.Comment, error)
	addCommentFn    func(ctx context.Context, taskID, content, email string) (domain.Comment, error)
}

func (s *stubService) FetchPage(ctx context.Context, status domain.Status, f domain.FilterSet, page PageSpec) ([]domain.Task, error) {
	if s.fetchPageFn == nil {
		return nil, errors.New("unexpected FetchPage call")
	}
	return s.fetchPageFn(ctx, status, f, page)
}

func (s *stubService) CountByStatus(ctx context.Context, status domain.Status, f domain.FilterSet) (int, error) {
	if s.countFn == nil {
		return 0, errors.New("unexpected CountByStatus call")
	}
	return s.countFn(ctx, status, f)
}

func (s *stubService) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	if s.updateStatusFn == nil {
		return errors.New("unexpected UpdateStatus call")
	}
	return s.updateStatusFn(ctx, id, status)
}

func (s *stubService) ListDistinctValues(ctx context.Context, col LookupColumn) ([]string, error) {
	if s.distinctFn == nil {
		return nil, errors.New("unexpected ListDistinctValues call")
	}
	return s.distinctFn(ctx, col)
}

func (s *stubService) SubcategoryMap(ctx context.Context) (map[string][]string, error) {
	if s.subcategoriesFn == nil {
		return nil, errors.New("unexpected SubcategoryMap call")
	}
	return s.subcategoriesFn(ctx)
}

func (s *stubService) Discarded(ctx context.Context, limit int) ([]domain.Task, error) {
	return nil, errors.New("unexpected Discarded call")
}

func (s *stubService) TaskDetails(ctx context.Context, taskID string) (domain.Task, error) {
	return domain.Task{}, errors.New("unexpected TaskDetails call")
}

func (s *stubService) Comments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	if s.commentsFn == nil {
		return nil, errors.New("unexpected Comments call")
	}
	return s.commentsFn(ctx, taskID)
}

func (s *stubService) AddComment(ctx context.Context, taskID, content, email string) (domain.Comment, error) {
	if s.addCommentFn == nil {
		return domain.Comment{}, errors.New("unexpected AddComment call")
	}
	return s.addCommentFn(ctx, taskID, content, email)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheCountMissThenHit(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()

	var calls int
	cache := NewCache(&stubService{
		countFn: func(ctx context.Context, status domain.Status, f domain.FilterSet) (int, error) {
			calls++
			return 7, nil
		},
	}, client, time.Minute)

	f := domain.FilterSet{Category: "Web"}
	for i := 0; i < 2; i++ {
		n, err := cache.CountByStatus(ctx, domain.StatusToDo, f)
		if err != nil || n != 7 {
			t.Fatalf("count: %d %v", n, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", calls)
	}

	if _, err := cache.CountByStatus(ctx, domain.StatusToDo, domain.FilterSet{Category: "Data"}); err != nil {
		t.Fatalf("count: %v", err)
	}
	if calls != 2 {
		t.Fatalf("different filters should miss, calls=%d", calls)
	}
}

func TestCacheUpdateStatusInvalidatesCounts(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()

	var calls int
	cache := NewCache(&stubService{
		countFn: func(ctx context.Context, status domain.Status, f domain.FilterSet) (int, error) {
			calls++
			return calls, nil
		},
		updateStatusFn: func(ctx context.Context, id string, status domain.Status) error { return nil },
	}, client, time.Minute)

	if n, _ := cache.CountByStatus(ctx, domain.StatusDone, domain.FilterSet{}); n != 1 {
		t.Fatalf("unexpected first count %d", n)
	}
	if err := cache.UpdateStatus(ctx, "p1", domain.StatusDone); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if n, _ := cache.CountByStatus(ctx, domain.StatusDone, domain.FilterSet{}); n != 2 {
		t.Fatalf("expected fresh count after update, got %d", n)
	}
}

func TestCacheUpdateStatusFailureKeepsCounts(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var calls int
	cache := NewCache(&stubService{
		countFn: func(ctx context.Context, status domain.Status, f domain.FilterSet) (int, error) {
			calls++
			return 3, nil
		},
		updateStatusFn: func(ctx context.Context, id string, status domain.Status) error { return boom },
	}, client, time.Minute)

	_, _ = cache.CountByStatus(ctx, domain.StatusDone, domain.FilterSet{})
	if err := cache.UpdateStatus(ctx, "p1", domain.StatusDone); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	_, _ = cache.CountByStatus(ctx, domain.StatusDone, domain.FilterSet{})
	if calls != 1 {
		t.Fatalf("expected cached count to survive failed update, calls=%d", calls)
	}
}

func TestCacheLookupsStoredWithTTL(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	expected := []string{"Data", "Web"}
	cache := NewCache(&stubService{
		distinctFn: func(ctx context.Context, col LookupColumn) ([]string, error) {
			if col != LookupCategory {
				t.Fatalf("unexpected column %s", col)
			}
			return expected, nil
		},
	}, client, time.Second).WithLookupTTL(time.Minute)

	values, err := cache.ListDistinctValues(ctx, LookupCategory)
	if err != nil || !reflect.DeepEqual(values, expected) {
		t.Fatalf("lookup: %#v %v", values, err)
	}
	if ttl := mr.TTL(lookupCacheKey("category")); ttl <= time.Second || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}

func TestCacheAddCommentEvictsThread(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	cache := NewCache(&stubService{
		commentsFn: func(ctx context.Context, taskID string) ([]domain.Comment, error) {
			return []domain.Comment{{ID: "c1", TaskID: taskID}}, nil
		},
		addCommentFn: func(ctx context.Context, taskID, content, email string) (domain.Comment, error) {
			return domain.Comment{ID: "c2", TaskID: taskID, Content: content}, nil
		},
	}, client, time.Minute)

	if _, err := cache.Comments(ctx, "p1"); err != nil {
		t.Fatalf("comments: %v", err)
	}
	if !mr.Exists(commentsCacheKey("p1")) {
		t.Fatal("expected comment thread cached")
	}
	if _, err := cache.AddComment(ctx, "p1", "hi", ""); err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if mr.Exists(commentsCacheKey("p1")) {
		t.Fatal("expected comment thread evicted")
	}
}

func TestCacheWithoutRedisPassesThrough(t *testing.T) {
	var calls int
	cache := NewCache(&stubService{
		countFn: func(ctx context.Context, status domain.Status, f domain.FilterSet) (int, error) {
			calls++
			return 1, nil
		},
	}, nil, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.CountByStatus(context.Background(), domain.StatusToDo, domain.FilterSet{}); err != nil {
			t.Fatalf("count: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected every call to reach backend, got %d", calls)
	}
}
