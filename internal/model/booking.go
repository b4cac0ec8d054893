package model

import "time"

// BookingRecord is the terminal record of one successful atomic book
// operation.  The lease manager never expires booked seats.
//
// Fields:
//  ID       – opaque booking identifier.
//  ShowID   – show the seats belong to.
//  UserID   – buyer.
//  SeatIDs  – seats booked together.
//  BookedAt – commit time (UTC).
//  Seq      – show sequence number of the booking commit.
type BookingRecord struct {
	ID       string    `json:"bookingId"`
	ShowID   int64     `json:"showId"`
	UserID   string    `json:"userId"`
	SeatIDs  []string  `json:"seatNumbers"`
	BookedAt time.Time `json:"bookedAt"`
	Seq      uint64    `json:"seq"`
}
