package repository

import (
	"time"

	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/internal/domain/types"
)

// lessRound orders rounds by the given fields, falling back to id so the
// order is total.
func lessRound(a, b model.Round, fields []types.SortField) bool {
	for _, f := range fields {
		c := compareRound(a, b, f.Field)
		if c == 0 {
			continue
		}
		if f.Desc {
			return c > 0
		}
		return c < 0
	}
	return a.ID < b.ID
}

func compareRound(a, b model.Round, field string) int {
	switch field {
	case types.SortStart:
		return compareTime(a.Start, b.Start)
	case types.SortEnd:
		return compareTime(a.End, b.End)
	case types.SortCreatedAt:
		return compareTime(a.CreatedAt, b.CreatedAt)
	case types.SortTaps:
		return compareInt(a.Taps, b.Taps)
	case types.SortTotalScore:
		return compareInt(a.TotalScore, b.TotalScore)
	case types.SortBestScore:
		return compareInt(a.BestScore, b.BestScore)
	}
	return 0
}

func compareTime(a, b time.Time) int { return a.Compare(b) }

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// sortColumns maps sortable fields to SQL columns.
var sortColumns = map[string]string{
	types.SortStart:      "start_at",
	types.SortEnd:        "end_at",
	types.SortCreatedAt:  "created_at",
	types.SortTaps:       "taps",
	types.SortTotalScore: "total_score",
	types.SortBestScore:  "best_score",
}
