package service

import (
    "context"
    "errors"
    "fmt"

    "github.com/iliyamo/cinema-seat-sync/internal/model"
    "github.com/iliyamo/cinema-seat-sync/internal/queue"
    "github.com/iliyamo/cinema-seat-sync/internal/repository"
)

// BookingStore persists a booking and its seats.
type BookingStore interface {
    Save(ctx context.Context, b repository.BookingRecord, seatNumbers []string) error
}

// EventPublisher announces a booking.
type EventPublisher interface {
    Publish(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// BookingRecorder is the lease manager's booking sink.  Either collaborator
// may be nil.  Both are attempted even when the first fails.
type BookingRecorder struct {
    Store     BookingStore
    Publisher EventPublisher
}

// Booked implements lease.BookingSink.
func (r *BookingRecorder) Booked(ctx context.Context, rec model.BookingRecord) error {
    var errs []error
    if r.Store != nil {
        row := repository.BookingRecord{ID: rec.ID, ShowID: rec.ShowID, UserID: rec.UserID, BookedAt: rec.BookedAt}
        if err := r.Store.Save(ctx, row, rec.SeatIDs); err != nil {
            errs = append(errs, fmt.Errorf("store booking: %w", err))
        }
    }
    if r.Publisher != nil {
        if err := r.Publisher.Publish(ctx, queue.NewBookingConfirmedEvent(rec)); err != nil {
            errs = append(errs, fmt.Errorf("publish booking: %w", err))
        }
    }
    return errors.Join(errs...)
}
