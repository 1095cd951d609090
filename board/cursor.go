package board

import (
	"fmt"

	"taskboard/domain"
	"taskboard/gateway"
)

// Cursor is a column's position in its paginated query. Advance is given the
// raw page returned by the gateway, before de-duplication.
type Cursor interface {
	Page(limit int) gateway.PageSpec
	Advance(page []domain.Task) Cursor
}

// OffsetCursor pages by row offset. Rows inserted ahead of the offset while
// paging shift later pages, so a row may be skipped or repeated; repeats are
// absorbed by the append de-duplication.
type OffsetCursor struct {
	Offset int
}

func (c OffsetCursor) Page(limit int) gateway.PageSpec {
	return gateway.PageSpec{Limit: limit, Offset: c.Offset}
}

func (c OffsetCursor) Advance(page []domain.Task) Cursor {
	return OffsetCursor{Offset: c.Offset + len(page)}
}

// WatermarkCursor pages by the (created_at, id) key of the last row seen.
type WatermarkCursor struct {
	Mark *gateway.Watermark
}

func (c WatermarkCursor) Page(limit int) gateway.PageSpec {
	return gateway.PageSpec{Limit: limit, After: c.Mark}
}

func (c WatermarkCursor) Advance(page []domain.Task) Cursor {
	if len(page) == 0 {
		return c
	}
	last := page[len(page)-1]
	return WatermarkCursor{Mark: &gateway.Watermark{CreatedAt: last.CreatedAt, ID: last.ID}}
}

// CursorStrategy selects the Cursor implementation for a store.
type CursorStrategy string

const (
	CursorOffset    CursorStrategy = "offset"
	CursorWatermark CursorStrategy = "watermark"
)

// ParseCursorStrategy accepts "offset" or "watermark"; empty means watermark.
func ParseCursorStrategy(raw string) (CursorStrategy, error) {
	switch CursorStrategy(raw) {
	case "", CursorWatermark:
		return CursorWatermark, nil
	case CursorOffset:
		return CursorOffset, nil
	}
	return "", fmt.Errorf("unknown cursor strategy %q", raw)
}

// Start returns the cursor for a column's first page.
func (s CursorStrategy) Start() Cursor {
	if s == CursorOffset {
		return OffsetCursor{}
	}
	return WatermarkCursor{}
}
