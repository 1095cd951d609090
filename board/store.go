// Package board keeps the in-memory Kanban board in step with the remote
// task store, local drag moves and the realtime change feed.
package board

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"taskboard/domain"
	"taskboard/gateway"
)

const DefaultPageSize = 10

// Store is the sole owner of the column lists, pagination and totals.
// Every change goes through dispatch so observers see whole steps only.
type Store struct {
	gw       gateway.Gateway
	logger   log.FieldLogger
	strategy CursorStrategy
	pageSize int

	mu    sync.Mutex
	state state

	changes chan struct{}
}

// Option configures a Store.
type Option func(*Store)

func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithCursorStrategy(strategy CursorStrategy) Option {
	return func(s *Store) { s.strategy = strategy }
}

func WithLogger(logger log.FieldLogger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStore(gw gateway.Gateway, opts ...Option) *Store {
	s := &Store{
		gw:       gw,
		logger:   log.StandardLogger(),
		strategy: CursorWatermark,
		pageSize: DefaultPageSize,
		changes:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = newState(s.strategy)
	return s
}

func (s *Store) dispatch(a action) bool {
	s.mu.Lock()
	changed := a.apply(&s.state, s)
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return changed
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Changes signals after state changes. Bursts coalesce into one signal.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// Snapshot returns a copy of the current board.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.snapshot()
}

// Filters returns the current predicate.
func (s *Store) Filters() domain.FilterSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.filters.Clone()
}

// PageSize is the per-column page limit.
func (s *Store) PageSize() int {
	return s.pageSize
}

// SetFilters replaces the predicate and reloads when it changed.
func (s *Store) SetFilters(ctx context.Context, f domain.FilterSet) {
	s.replaceFilters(ctx, &filtersReplaced{filters: f})
}

// ApplyFilters is SetFilters for a FilterState commit. Commits may arrive
// out of order from different goroutines; one older than the installed
// version is ignored.
func (s *Store) ApplyFilters(ctx context.Context, version uint64, f domain.FilterSet) {
	s.replaceFilters(ctx, &filtersReplaced{filters: f, version: version, versioned: true})
}

func (s *Store) replaceFilters(ctx context.Context, a *filtersReplaced) {
	s.dispatch(a)
	if a.changed {
		s.Reload(ctx)
	}
}

// Reload fetches the first page of every column, plus the totals, in one
// concurrent round and swaps them in as a whole. Until then the previous
// columns remain visible. The round is installed only if no newer reload
// started meanwhile.
func (s *Store) Reload(ctx context.Context) {
	start := &reloadStarted{}
	s.dispatch(start)

	var (
		mu     sync.Mutex
		pages  = make(map[domain.StatusKey][]domain.Task, len(domain.StatusKeys))
		totals = make(map[domain.StatusKey]int, len(domain.StatusKeys))
		g      errgroup.Group
	)
	for _, k := range domain.StatusKeys {
		k := k
		g.Go(func() error {
			page := s.fetch(ctx, start.gen, k, start.filters, s.strategy.Start())
			mu.Lock()
			pages[k] = page
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			if n, ok := s.count(ctx, start.gen, k, start.filters); ok {
				mu.Lock()
				totals[k] = n
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if !s.dispatch(&reloadCompleted{gen: start.gen, pages: pages, totals: totals}) {
		s.logger.WithField("generation", start.gen).Debug("discarding superseded reload")
	}
}

// LoadMore fetches the next page of the given columns, or of every column
// when none is named. Exhausted columns are skipped; the call is a no-op
// while another load or reload is in flight.
func (s *Store) LoadMore(ctx context.Context, keys ...domain.StatusKey) {
	start := &loadStarted{keys: keys}
	s.dispatch(start)
	if !start.ok {
		return
	}

	var (
		mu    sync.Mutex
		pages = make(map[domain.StatusKey][]domain.Task, len(start.targets))
		g     errgroup.Group
	)
	for k, cursor := range start.targets {
		k, cursor := k, cursor
		g.Go(func() error {
			page := s.fetch(ctx, start.gen, k, start.filters, cursor)
			mu.Lock()
			pages[k] = page
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.dispatch(&pagesAppended{gen: start.gen, pages: pages})
}

// RefreshCounts re-reads the per-column totals under the current filters.
func (s *Store) RefreshCounts(ctx context.Context) {
	s.mu.Lock()
	gen, filters := s.state.generation, s.state.filters.Clone()
	s.mu.Unlock()

	var (
		mu     sync.Mutex
		totals = make(map[domain.StatusKey]int, len(domain.StatusKeys))
		g      errgroup.Group
	)
	for _, k := range domain.StatusKeys {
		k := k
		g.Go(func() error {
			if n, ok := s.count(ctx, gen, k, filters); ok {
				mu.Lock()
				totals[k] = n
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.dispatch(&countsRefreshed{gen: gen, totals: totals})
}

// ApplyRealtimeEvent folds a change into the columns without touching the
// totals. Duplicate and older deliveries are ignored.
func (s *Store) ApplyRealtimeEvent(ev domain.ChangeEvent) bool {
	return s.dispatch(&realtimeApplied{ev: ev})
}

// MoveTaskOptimistic moves a task between (or within) columns locally and
// returns it with its new status. Nothing is sent to the remote store.
func (s *Store) MoveTaskOptimistic(taskID string, src, dst domain.StatusKey, index int) (domain.Task, bool) {
	moved, _, ok := s.moveTask(taskID, src, dst, index)
	return moved, ok
}

// moveTask also reports the index the task landed at after clamping.
func (s *Store) moveTask(taskID string, src, dst domain.StatusKey, index int) (domain.Task, int, bool) {
	a := &taskMoved{id: taskID, src: src, dst: dst, index: index}
	s.dispatch(a)
	return a.moved, a.landed, a.ok
}

// FindColumn reports which column holds the task.
func (s *Store) FindColumn(taskID string) (domain.StatusKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, _, ok := s.state.locate(taskID)
	return k, ok
}

// Position reports the column and index of a task.
func (s *Store) Position(taskID string) (domain.StatusKey, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.locate(taskID)
}

// ColumnLen is the number of loaded tasks in a column.
func (s *Store) ColumnLen(k domain.StatusKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.columns[k])
}

func (s *Store) fetch(ctx context.Context, gen uint64, k domain.StatusKey, filters domain.FilterSet, cursor Cursor) []domain.Task {
	page, err := s.gw.FetchPage(ctx, k.Label(), filters.ForColumn(k), cursor.Page(s.pageSize))
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"column":     k,
			"status":     k.Label(),
			"generation": gen,
		}).Warn("page fetch failed, treating column as exhausted")
		return []domain.Task{}
	}
	if len(page) > s.pageSize {
		page = page[:s.pageSize]
	}
	return page
}

func (s *Store) count(ctx context.Context, gen uint64, k domain.StatusKey, filters domain.FilterSet) (int, bool) {
	n, err := s.gw.CountByStatus(ctx, k.Label(), filters.ForColumn(k))
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"column":     k,
			"status":     k.Label(),
			"generation": gen,
		}).Warn("count failed, keeping previous total")
		return 0, false
	}
	return n, true
}
