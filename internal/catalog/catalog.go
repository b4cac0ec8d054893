// Package catalog supplies show seat maps to the lease manager.  Two sources
// exist: a static grid for development and tests, and the MySQL tables of
// the cinema back office.
package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// Source is what the lease manager and the layout endpoint read.
type Source interface {
	Seats(ctx context.Context, showID int64) ([]model.Seat, error)
}

// Row is one row of a seat layout.
type Row struct {
	Label string       `json:"row"`
	Seats []model.Seat `json:"seats"`
}

// Layout groups a show's seats by row for rendering clients.
type Layout struct {
	ShowID int64 `json:"showId"`
	Rows   []Row `json:"rows"`
}

// BuildLayout groups seats by row label.  Rows are ordered A..Z, AA..;
// seats within a row by number.
func BuildLayout(showID int64, seats []model.Seat) Layout {
	byRow := map[string][]model.Seat{}
	for _, s := range seats {
		label, _ := SplitSeatID(s.ID)
		byRow[label] = append(byRow[label], s)
	}
	out := Layout{ShowID: showID, Rows: make([]Row, 0, len(byRow))}
	for label, rs := range byRow {
		sort.Slice(rs, func(i, j int) bool {
			_, a := SplitSeatID(rs[i].ID)
			_, b := SplitSeatID(rs[j].ID)
			return a < b
		})
		out.Rows = append(out.Rows, Row{Label: label, Seats: rs})
	}
	sort.Slice(out.Rows, func(i, j int) bool {
		a, _ := RowLabelToIndex(out.Rows[i].Label)
		b, _ := RowLabelToIndex(out.Rows[j].Label)
		return a < b
	})
	return out
}

// IndexToRowLabel converts a zero-based row index to its label: 0 -> A,
// 25 -> Z, 26 -> AA.
func IndexToRowLabel(i int) string {
	if i < 0 {
		return ""
	}
	res := []rune{}
	for {
		rem := i % 26
		res = append(res, rune('A'+rem))
		i = i/26 - 1 // bijective base 26
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}

// RowLabelToIndex is the inverse of IndexToRowLabel.
func RowLabelToIndex(label string) (int, bool) {
	s := strings.ToUpper(strings.TrimSpace(label))
	if s == "" {
		return -1, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < 'A' || ch > 'Z' {
			return -1, false
		}
		n = n*26 + int(ch-'A'+1)
	}
	return n - 1, true
}

// SplitSeatID splits "AB12" into ("AB", 12).  A missing or malformed number
// yields 0.
func SplitSeatID(id string) (string, int) {
	i := 0
	for i < len(id) && (id[i] < '0' || id[i] > '9') {
		i++
	}
	n := 0
	for _, ch := range id[i:] {
		if ch < '0' || ch > '9' {
			return id[:i], 0
		}
		n = n*10 + int(ch-'0')
	}
	return id[:i], n
}
