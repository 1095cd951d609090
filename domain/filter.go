package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// BudgetType narrows tasks by how they are paid.
type BudgetType string

const (
	BudgetFixed  BudgetType = "fixed"
	BudgetHourly BudgetType = "hourly"
)

// Valid reports whether b is empty or a known budget type.
func (b BudgetType) Valid() bool {
	return b == "" || b == BudgetFixed || b == BudgetHourly
}

// FilterSet is a conjunction of optional predicates. Zero values mean
// "no constraint".
type FilterSet struct {
	Status      Status     `json:"status,omitempty" yaml:"status"`
	Category    string     `json:"category,omitempty" yaml:"category"`
	Subcategory string     `json:"subcategory,omitempty" yaml:"subcategory"`
	CreatedFrom *time.Time `json:"dateFrom,omitempty" yaml:"dateFrom"`
	CreatedTo   *time.Time `json:"dateTo,omitempty" yaml:"dateTo"`
	Search      string     `json:"search,omitempty" yaml:"search"`
	Countries   []string   `json:"countries,omitempty" yaml:"countries"`
	BudgetType  BudgetType `json:"budgetType,omitempty" yaml:"budgetType"`
	PriceMin    *float64   `json:"priceFrom,omitempty" yaml:"priceFrom"`
	PriceMax    *float64   `json:"priceTo,omitempty" yaml:"priceTo"`
}

// ForColumn returns the predicates a column query receives. When a status
// filter selects another column, that column is queried unfiltered so it
// does not empty out. The status predicate itself is never forwarded; the
// column's own label is.
func (f FilterSet) ForColumn(k StatusKey) FilterSet {
	if f.Status != "" && f.Status != k.Label() {
		return FilterSet{}
	}
	scoped := f.Clone()
	scoped.Status = ""
	return scoped
}

// Validate rejects predicates no query can express.
func (f FilterSet) Validate() error {
	if f.Status != "" {
		if _, ok := f.Status.Key(); !ok {
			return fmt.Errorf("status filter %q: %w", f.Status, ErrUnknownStatus)
		}
	}
	if !f.BudgetType.Valid() {
		return fmt.Errorf("unknown budget type %q", f.BudgetType)
	}
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedTo.Before(*f.CreatedFrom) {
		return errors.New("date range ends before it starts")
	}
	if f.PriceMin != nil && f.PriceMax != nil && *f.PriceMax < *f.PriceMin {
		return errors.New("price range ends before it starts")
	}
	return nil
}

// IsZero reports whether no predicate is set.
func (f FilterSet) IsZero() bool {
	return f.Equal(FilterSet{})
}

// Clone returns a deep copy.
func (f FilterSet) Clone() FilterSet {
	out := f
	if f.CreatedFrom != nil {
		v := *f.CreatedFrom
		out.CreatedFrom = &v
	}
	if f.CreatedTo != nil {
		v := *f.CreatedTo
		out.CreatedTo = &v
	}
	if f.PriceMin != nil {
		v := *f.PriceMin
		out.PriceMin = &v
	}
	if f.PriceMax != nil {
		v := *f.PriceMax
		out.PriceMax = &v
	}
	if len(f.Countries) > 0 {
		out.Countries = slices.Clone(f.Countries)
	} else {
		out.Countries = nil
	}
	return out
}

// Equal compares predicate values, not pointer identity.
func (f FilterSet) Equal(o FilterSet) bool {
	return f.Status == o.Status &&
		f.Category == o.Category &&
		f.Subcategory == o.Subcategory &&
		timePtrEqual(f.CreatedFrom, o.CreatedFrom) &&
		timePtrEqual(f.CreatedTo, o.CreatedTo) &&
		f.Search == o.Search &&
		slices.Equal(f.Countries, o.Countries) &&
		f.BudgetType == o.BudgetType &&
		floatPtrEqual(f.PriceMin, o.PriceMin) &&
		floatPtrEqual(f.PriceMax, o.PriceMax)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
