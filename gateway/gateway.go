package gateway

import (
	"context"
	"errors"
	"time"

	"taskboard/domain"
)

// ErrNotFound is returned when a single row lookup has no match.
var ErrNotFound = errors.New("not found")

// Watermark is the keyset position of the last row of a page.
type Watermark struct {
	CreatedAt time.Time
	ID        string
}

// PageSpec selects one page of a status query. When After is set the page
// starts strictly after the watermark and Offset is ignored.
type PageSpec struct {
	Limit  int
	Offset int
	After  *Watermark
}

// LookupColumn names a column whose distinct values feed a filter list.
type LookupColumn string

const (
	LookupCategory    LookupColumn = "category"
	LookupSubcategory LookupColumn = "subcategory"
	LookupCountry     LookupColumn = "prospect_location_country"
)

// Valid reports whether c is a column lookups may be run against.
func (c LookupColumn) Valid() bool {
	switch c {
	case LookupCategory, LookupSubcategory, LookupCountry:
		return true
	}
	return false
}

// Gateway is the remote task store as seen by the board. Rows come back
// ordered newest first (created_at, then id, descending).
type Gateway interface {
	FetchPage(ctx context.Context, status domain.Status, filters domain.FilterSet, page PageSpec) ([]domain.Task, error)
	CountByStatus(ctx context.Context, status domain.Status, filters domain.FilterSet) (int, error)
	UpdateStatus(ctx context.Context, taskID string, status domain.Status) error
	ListDistinctValues(ctx context.Context, column LookupColumn) ([]string, error)
}

// Catalog holds the read/write paths outside the board itself.
type Catalog interface {
	SubcategoryMap(ctx context.Context) (map[string][]string, error)
	Discarded(ctx context.Context, limit int) ([]domain.Task, error)
	TaskDetails(ctx context.Context, taskID string) (domain.Task, error)
	Comments(ctx context.Context, taskID string) ([]domain.Comment, error)
	AddComment(ctx context.Context, taskID, content, userEmail string) (domain.Comment, error)
}

// Service is everything the HTTP surface needs from the data service.
type Service interface {
	Gateway
	Catalog
}

// LoadLookups gathers the filter bar option lists.
func LoadLookups(ctx context.Context, svc Service) (domain.Lookups, error) {
	categories, err := svc.ListDistinctValues(ctx, LookupCategory)
	if err != nil {
		return domain.Lookups{}, err
	}
	countries, err := svc.ListDistinctValues(ctx, LookupCountry)
	if err != nil {
		return domain.Lookups{}, err
	}
	subcategories, err := svc.SubcategoryMap(ctx)
	if err != nil {
		return domain.Lookups{}, err
	}
	return domain.Lookups{Categories: categories, Subcategories: subcategories, Countries: countries}, nil
}
