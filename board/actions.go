package board

import (
	"taskboard/domain"
)

// action is one enumerated mutation of the board state. apply runs under
// the store lock and reports whether observers should be told.
type action interface {
	apply(st *state, s *Store) bool
}

// reloadStarted opens a new generation. The previous round's columns stay
// on display until reloadCompleted replaces them.
type reloadStarted struct {
	gen     uint64
	filters domain.FilterSet
}

func (a *reloadStarted) apply(st *state, s *Store) bool {
	st.generation++
	st.loading = true
	a.gen = st.generation
	a.filters = st.filters.Clone()
	return true
}

// reloadCompleted installs a whole fetch round at once.
type reloadCompleted struct {
	gen    uint64
	pages  map[domain.StatusKey][]domain.Task
	totals map[domain.StatusKey]int
}

func (a *reloadCompleted) apply(st *state, s *Store) bool {
	if a.gen != st.generation {
		return false
	}
	st.resetColumns(s.strategy)
	for _, k := range domain.StatusKeys {
		appendPage(st, k, a.pages[k], s.pageSize)
	}
	for k, n := range a.totals {
		st.totals[k] = n
	}
	st.loading = false
	clear(st.seen)
	return true
}

// loadStarted claims the loading flag for a page append.
type loadStarted struct {
	keys []domain.StatusKey

	ok      bool
	gen     uint64
	filters domain.FilterSet
	targets map[domain.StatusKey]Cursor
}

func (a *loadStarted) apply(st *state, s *Store) bool {
	if st.loading {
		return false
	}
	keys := a.keys
	if len(keys) == 0 {
		keys = domain.StatusKeys[:]
	}
	a.targets = make(map[domain.StatusKey]Cursor, len(keys))
	for _, k := range keys {
		if p, ok := st.pagination[k]; ok && p.HasMore {
			a.targets[k] = p.Cursor
		}
	}
	if len(a.targets) == 0 {
		return false
	}
	st.loading = true
	a.ok = true
	a.gen = st.generation
	a.filters = st.filters.Clone()
	return true
}

// pagesAppended lands the result of a loadStarted round.
type pagesAppended struct {
	gen   uint64
	pages map[domain.StatusKey][]domain.Task
}

func (a *pagesAppended) apply(st *state, s *Store) bool {
	// A newer reload owns the loading flag.
	if a.gen != st.generation {
		return false
	}
	for k, page := range a.pages {
		appendPage(st, k, page, s.pageSize)
	}
	st.loading = false
	return true
}

// appendPage adds the rows of page not already on the board and advances
// the column cursor. A short or empty page exhausts the column.
func appendPage(st *state, k domain.StatusKey, page []domain.Task, limit int) {
	col := st.columns[k]
	for _, t := range page {
		if _, _, found := st.locate(t.ID); found {
			continue
		}
		col = append(col, t)
		st.columns[k] = col
	}
	p := st.pagination[k]
	st.pagination[k] = Pagination{Cursor: p.Cursor.Advance(page), HasMore: len(page) == limit}
}

// countsRefreshed replaces the totals that were fetched successfully.
type countsRefreshed struct {
	gen    uint64
	totals map[domain.StatusKey]int
}

func (a *countsRefreshed) apply(st *state, s *Store) bool {
	if a.gen != st.generation || len(a.totals) == 0 {
		return false
	}
	for k, n := range a.totals {
		st.totals[k] = n
	}
	return true
}

// filtersReplaced swaps the predicate and retires in-flight rounds that
// were issued under the old one. The caller reloads. A versioned set older
// than the one installed arrived late and is dropped.
type filtersReplaced struct {
	filters   domain.FilterSet
	version   uint64
	versioned bool

	changed bool
}

func (a *filtersReplaced) apply(st *state, s *Store) bool {
	if a.versioned {
		if a.version < st.filterVersion {
			return false
		}
		st.filterVersion = a.version
	}
	if st.filters.Equal(a.filters) {
		return false
	}
	st.filters = a.filters.Clone()
	st.generation++
	a.changed = true
	return true
}

// realtimeApplied folds one change event into the columns.
type realtimeApplied struct {
	ev domain.ChangeEvent
}

func (a *realtimeApplied) apply(st *state, s *Store) bool {
	ev := a.ev
	id := ev.TaskID()
	if id == "" {
		return false
	}
	if !ev.CommitAt.IsZero() {
		if last, ok := st.seen[id]; ok && ev.CommitAt.Before(last) {
			return false
		}
		st.seen[id] = ev.CommitAt
	}

	switch ev.Kind {
	case domain.ChangeInsert:
		if ev.After == nil {
			return false
		}
		k, ok := ev.After.Status.Key()
		if !ok {
			return false
		}
		if _, _, found := st.locate(id); found {
			return false
		}
		st.prepend(k, *ev.After)
		return true

	case domain.ChangeUpdate:
		if ev.After == nil {
			return false
		}
		cur, i, found := st.locate(id)
		if !found {
			return false
		}
		next, ok := ev.After.Status.Key()
		if !ok {
			st.removeAt(cur, i)
			return true
		}
		if next == cur {
			col := append([]domain.Task(nil), st.columns[cur]...)
			col[i] = *ev.After
			st.columns[cur] = col
			return true
		}
		st.removeAt(cur, i)
		st.prepend(next, *ev.After)
		return true

	case domain.ChangeDelete:
		cur, i, found := st.locate(id)
		if !found {
			return false
		}
		st.removeAt(cur, i)
		return true
	}
	return false
}

// taskMoved is the optimistic local move.
type taskMoved struct {
	id       string
	src, dst domain.StatusKey
	index    int

	moved  domain.Task
	landed int
	ok     bool
}

func (a *taskMoved) apply(st *state, s *Store) bool {
	if !a.src.Valid() || !a.dst.Valid() {
		return false
	}
	i := indexOf(st.columns[a.src], a.id)
	if i < 0 {
		return false
	}
	t := st.removeAt(a.src, i).WithStatus(a.dst.Label())

	dest := make([]domain.Task, 0, len(st.columns[a.dst])+1)
	for _, existing := range st.columns[a.dst] {
		if existing.ID != a.id {
			dest = append(dest, existing)
		}
	}
	idx := min(max(a.index, 0), len(dest))
	dest = append(dest[:idx], append([]domain.Task{t}, dest[idx:]...)...)
	st.columns[a.dst] = dest

	a.moved, a.landed, a.ok = t, idx, true
	return true
}
