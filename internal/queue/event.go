// Package queue defines the booking.confirmed message and the background
// consumer that records it.
package queue

import (
    "time"

    "github.com/iliyamo/cinema-seat-sync/internal/model"
)

// BookingQueue is the durable queue booking events are published to.
const BookingQueue = "booking.confirmed"

// BookingConfirmedEvent is published once per successful book.  It carries
// enough for downstream consumers (tickets, notifications, analytics) to act
// without reading the registry.
type BookingConfirmedEvent struct {
    BookingID   string   `json:"booking_id"`
    UserID      string   `json:"user_id"`
    ShowID      int64    `json:"show_id"`
    SeatNumbers []string `json:"seats"`
    BookedAt    string   `json:"booked_at"` // RFC 3339, UTC
}

// NewBookingConfirmedEvent converts a committed booking into its message.
func NewBookingConfirmedEvent(rec model.BookingRecord) BookingConfirmedEvent {
    return BookingConfirmedEvent{
        BookingID:   rec.ID,
        UserID:      rec.UserID,
        ShowID:      rec.ShowID,
        SeatNumbers: rec.SeatIDs,
        BookedAt:    rec.BookedAt.UTC().Format(time.RFC3339Nano),
    }
}
