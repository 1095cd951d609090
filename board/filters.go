package board

import (
	"slices"
	"strings"
	"sync"
	"time"

	"taskboard/domain"
)

// FilterChange edits one field of a filter set.
type FilterChange func(*domain.FilterSet)

func SetStatus(s domain.Status) FilterChange {
	return func(f *domain.FilterSet) { f.Status = s }
}

// SetCategory also clears the subcategory when the category changes.
func SetCategory(c string) FilterChange {
	return func(f *domain.FilterSet) {
		if f.Category != c {
			f.Subcategory = ""
		}
		f.Category = c
	}
}

func SetSubcategory(c string) FilterChange {
	return func(f *domain.FilterSet) { f.Subcategory = c }
}

func SetDateRange(from, to *time.Time) FilterChange {
	return func(f *domain.FilterSet) { f.CreatedFrom, f.CreatedTo = from, to }
}

func SetSearch(q string) FilterChange {
	return func(f *domain.FilterSet) { f.Search = strings.TrimSpace(q) }
}

func SetCountries(countries ...string) FilterChange {
	return func(f *domain.FilterSet) {
		cs := slices.Clone(countries)
		slices.Sort(cs)
		f.Countries = slices.Compact(cs)
	}
}

func SetBudgetType(b domain.BudgetType) FilterChange {
	return func(f *domain.FilterSet) { f.BudgetType = b }
}

func SetPriceRange(low, high *float64) FilterChange {
	return func(f *domain.FilterSet) { f.PriceMin, f.PriceMax = low, high }
}

// ReplaceFilters swaps the whole set.
func ReplaceFilters(next domain.FilterSet) FilterChange {
	return func(f *domain.FilterSet) { *f = next.Clone() }
}

// ReplaceKeepingSearch swaps every predicate except the search text, which
// belongs to the search box.
func ReplaceKeepingSearch(next domain.FilterSet) FilterChange {
	return func(f *domain.FilterSet) {
		search := f.Search
		*f = next.Clone()
		f.Search = search
	}
}

// ClearFilters drops every predicate.
func ClearFilters() FilterChange {
	return func(f *domain.FilterSet) { *f = domain.FilterSet{} }
}

// FilterState is the single choke point for filter edits. A batch of
// changes produces at most one onChange call, and none when the batch
// leaves the set as it was. Every commit carries a version, increasing in
// commit order, so a receiver can drop deliveries overtaken by a newer one.
type FilterState struct {
	mu       sync.Mutex
	current  domain.FilterSet
	version  uint64
	pageSize int
	onChange func(version uint64, f domain.FilterSet)
}

func NewFilterState(initial domain.FilterSet, pageSize int, onChange func(version uint64, f domain.FilterSet)) *FilterState {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &FilterState{current: initial.Clone(), pageSize: pageSize, onChange: onChange}
}

// Apply runs the changes against a copy and validates the result. Invalid
// batches are rejected whole.
func (fs *FilterState) Apply(changes ...FilterChange) (bool, error) {
	fs.mu.Lock()
	next := fs.current.Clone()
	for _, change := range changes {
		change(&next)
	}
	if err := next.Validate(); err != nil {
		fs.mu.Unlock()
		return false, err
	}
	if next.Equal(fs.current) {
		fs.mu.Unlock()
		return false, nil
	}
	fs.current = next
	fs.version++
	version := fs.version
	fs.mu.Unlock()

	if fs.onChange != nil {
		fs.onChange(version, next.Clone())
	}
	return true, nil
}

// Current returns a copy of the committed filter set.
func (fs *FilterState) Current() domain.FilterSet {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.current.Clone()
}

// Versioned returns the committed filter set with its version.
func (fs *FilterState) Versioned() (uint64, domain.FilterSet) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.version, fs.current.Clone()
}

// PageSize is the requested number of tasks per column page.
func (fs *FilterState) PageSize() int {
	return fs.pageSize
}
