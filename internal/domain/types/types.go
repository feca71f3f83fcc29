// Package types contains common types used across the application
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSort is returned for sort expressions naming unknown fields.
var ErrInvalidSort = errors.New("invalid sort")

// Sortable round fields, as they appear on the wire.
const (
	SortStart      = "start"
	SortEnd        = "end"
	SortTaps       = "taps"
	SortTotalScore = "totalScore"
	SortBestScore  = "bestScore"
	SortCreatedAt  = "createdAt"
)

var sortable = map[string]bool{
	SortStart:      true,
	SortEnd:        true,
	SortTaps:       true,
	SortTotalScore: true,
	SortBestScore:  true,
	SortCreatedAt:  true,
}

// SortField is one element of a sort expression.
type SortField struct {
	Field string
	Desc  bool
}

// ParseSort parses "-start,taps" into fields. A leading "-" means descending.
func ParseSort(expr string) ([]SortField, error) {
	var out []SortField
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f := SortField{Field: strings.TrimPrefix(part, "-"), Desc: strings.HasPrefix(part, "-")}
		if !sortable[f.Field] {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSort, f.Field)
		}
		out = append(out, f)
	}
	return out, nil
}

// ListQuery selects one page of a sorted listing.
type ListQuery struct {
	Page     int
	PageSize int
	Sort     []SortField
}

// Offset returns the number of rows to skip.
func (q ListQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// Page is one slice of a listing.
type Page[T any] struct {
	Rows       []T `json:"rows"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// NewPage fills in paging metadata for rows.
func NewPage[T any](rows []T, total int, q ListQuery) Page[T] {
	if rows == nil {
		rows = []T{}
	}
	pages := 0
	if q.PageSize > 0 {
		pages = (total + q.PageSize - 1) / q.PageSize
	}
	return Page[T]{Rows: rows, Total: total, Page: q.Page, PageSize: q.PageSize, TotalPages: pages}
}

// MapPage converts the rows of a page.
func MapPage[T, U any](p Page[T], fn func(T) U) Page[U] {
	rows := make([]U, len(p.Rows))
	for i, r := range p.Rows {
		rows[i] = fn(r)
	}
	return Page[U]{Rows: rows, Total: p.Total, Page: p.Page, PageSize: p.PageSize, TotalPages: p.TotalPages}
}
