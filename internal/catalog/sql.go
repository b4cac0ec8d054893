package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
	"github.com/iliyamo/cinema-seat-sync/internal/repository"
)

// SeatLister is the slice of repository.ShowSeatRepo the catalog needs.
type SeatLister interface {
	ListByShow(ctx context.Context, showID int64) ([]repository.ShowSeat, error)
}

// SQL reads seat maps from the back office tables.
type SQL struct {
	repo SeatLister
}

// NewSQL wraps a show seat repository.
func NewSQL(repo SeatLister) *SQL { return &SQL{repo: repo} }

// Seats implements Source.
func (c *SQL) Seats(ctx context.Context, showID int64) ([]model.Seat, error) {
	rows, err := c.repo.ListByShow(ctx, showID)
	if errors.Is(err, repository.ErrShowNotFound) {
		return nil, &model.NotFoundError{ShowID: showID}
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: list seats of show %d: %w", showID, err)
	}
	seats := make([]model.Seat, 0, len(rows))
	for _, r := range rows {
		seats = append(seats, model.Seat{ID: r.Label(), Tier: r.SeatType})
	}
	return seats, nil
}
