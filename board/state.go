package board

import (
	"slices"
	"time"

	"taskboard/domain"
)

// Pagination is the per-column cursor bookkeeping.
type Pagination struct {
	Cursor  Cursor
	HasMore bool
}

// state is owned by Store and only changed by actions.
type state struct {
	columns    map[domain.StatusKey][]domain.Task
	pagination map[domain.StatusKey]Pagination
	totals     map[domain.StatusKey]int
	loading    bool
	filters    domain.FilterSet
	// filterVersion is the FilterState commit the filters came from.
	filterVersion uint64
	generation    uint64
	// seen holds the newest commit time applied per task id.
	seen map[string]time.Time
}

func newState(strategy CursorStrategy) state {
	st := state{
		columns:    make(map[domain.StatusKey][]domain.Task, len(domain.StatusKeys)),
		pagination: make(map[domain.StatusKey]Pagination, len(domain.StatusKeys)),
		totals:     make(map[domain.StatusKey]int, len(domain.StatusKeys)),
		seen:       make(map[string]time.Time),
	}
	st.resetColumns(strategy)
	return st
}

func (st *state) resetColumns(strategy CursorStrategy) {
	for _, k := range domain.StatusKeys {
		st.columns[k] = []domain.Task{}
		st.pagination[k] = Pagination{Cursor: strategy.Start(), HasMore: true}
	}
}

// locate returns the column and index holding id.
func (st *state) locate(id string) (domain.StatusKey, int, bool) {
	for _, k := range domain.StatusKeys {
		if i := indexOf(st.columns[k], id); i >= 0 {
			return k, i, true
		}
	}
	return "", -1, false
}

func (st *state) removeAt(k domain.StatusKey, i int) domain.Task {
	t := st.columns[k][i]
	st.columns[k] = slices.Delete(slices.Clone(st.columns[k]), i, i+1)
	return t
}

func (st *state) prepend(k domain.StatusKey, t domain.Task) {
	col := make([]domain.Task, 0, len(st.columns[k])+1)
	col = append(col, t)
	st.columns[k] = append(col, st.columns[k]...)
}

func indexOf(tasks []domain.Task, id string) int {
	return slices.IndexFunc(tasks, func(t domain.Task) bool { return t.ID == id })
}

// Snapshot is a copy of the board state safe to hand to other goroutines.
type Snapshot struct {
	Generation uint64                              `json:"generation"`
	Columns    map[domain.StatusKey][]domain.Task `json:"columns"`
	HasMore    map[domain.StatusKey]bool          `json:"hasMore"`
	Totals     map[domain.StatusKey]int           `json:"totals"`
	Loading    bool                                `json:"loading"`
	Filters    domain.FilterSet                    `json:"filters"`
}

func (st *state) snapshot() Snapshot {
	snap := Snapshot{
		Generation: st.generation,
		Columns:    make(map[domain.StatusKey][]domain.Task, len(domain.StatusKeys)),
		HasMore:    make(map[domain.StatusKey]bool, len(domain.StatusKeys)),
		Totals:     make(map[domain.StatusKey]int, len(domain.StatusKeys)),
		Loading:    st.loading,
		Filters:    st.filters.Clone(),
	}
	for _, k := range domain.StatusKeys {
		snap.Columns[k] = slices.Clone(st.columns[k])
		snap.HasMore[k] = st.pagination[k].HasMore
		snap.Totals[k] = st.totals[k]
	}
	return snap
}
