// Package registry holds the durable per-show map of seat identity to
// current status.  A Registry performs every check-and-mutate as a single
// indivisible step; the lease manager is its only writer.
package registry

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// Registry is the seat store used by the lease manager.  Every mutating
// method assigns the next show-wide sequence number to the seats it changes
// and returns the committed states.  Errors are *model.ConflictError or
// *model.NotFoundError for domain failures; anything else is a storage error.
type Registry interface {
	// Provision adds seats missing from the show as AVAILABLE.  Seats that
	// already exist keep their status.  Provisioning is idempotent.
	Provision(ctx context.Context, showID int64, seats []model.Seat) error

	// Shows lists every provisioned show.
	Shows(ctx context.Context) ([]int64, error)

	// Snapshot reads the whole seat map and the show's sequence high-water mark.
	Snapshot(ctx context.Context, showID int64) (model.Snapshot, error)

	// Hold transitions an AVAILABLE seat to HELD{userID, expiresAt}.
	Hold(ctx context.Context, showID int64, seatID, userID string, expiresAt time.Time) (model.SeatState, error)

	// Release transitions a seat HELD by userID back to AVAILABLE.
	Release(ctx context.Context, showID int64, seatID, userID string) (model.SeatState, error)

	// Book transitions every seat to BOOKED{userID} if and only if each one
	// is HELD by userID with a deadline after now.  Nothing changes otherwise.
	Book(ctx context.Context, showID int64, seatIDs []string, userID string, now time.Time) ([]model.SeatState, error)

	// Expire transitions a HELD seat back to AVAILABLE when its lease
	// generation still equals seq and its deadline is not after now.  The
	// boolean is false when the lease was superseded or is not due yet.
	Expire(ctx context.Context, showID int64, seatID string, seq uint64, now time.Time) (model.SeatState, bool, error)
}
