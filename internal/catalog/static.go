package catalog

import (
	"context"
	"strconv"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// Static serves the same rows x cols grid for a fixed set of shows.  The
// last row is VIP, everything else STANDARD.
type Static struct {
	shows map[int64]bool
	seats []model.Seat
}

// NewStatic builds a static catalog.
func NewStatic(showIDs []int64, rows, cols int) *Static {
	s := &Static{shows: make(map[int64]bool, len(showIDs))}
	for _, id := range showIDs {
		s.shows[id] = true
	}
	for r := 0; r < rows; r++ {
		tier := "STANDARD"
		if r == rows-1 && rows > 1 {
			tier = "VIP"
		}
		label := IndexToRowLabel(r)
		for c := 1; c <= cols; c++ {
			s.seats = append(s.seats, model.Seat{ID: label + strconv.Itoa(c), Tier: tier})
		}
	}
	return s
}

// Seats implements Source.
func (s *Static) Seats(_ context.Context, showID int64) ([]model.Seat, error) {
	if !s.shows[showID] {
		return nil, &model.NotFoundError{ShowID: showID}
	}
	out := make([]model.Seat, len(s.seats))
	copy(out, s.seats)
	return out, nil
}
