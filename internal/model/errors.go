package model

import (
	"errors"
	"fmt"
)

// ErrConflict is returned when a seat is not in the state a transition
// requires.  Handlers translate it into HTTP 409.  Clients roll back their
// optimistic state and never retry automatically.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned for an unknown show or seat.  It usually means the
// caller's view is stale and should be refetched.
var ErrNotFound = errors.New("not found")

// Conflict reasons carried by ConflictError.
const (
	ReasonHeld      = "held"       // seat already held (by anyone, including the caller)
	ReasonBooked    = "booked"     // seat already booked
	ReasonNotHolder = "not_holder" // seat held by a different user
	ReasonNotHeld   = "not_held"   // seat is AVAILABLE where a lease was required
	ReasonExpired   = "expired"    // caller's lease passed its deadline before book
)

// ConflictError describes which seat blocked a transition and why.
type ConflictError struct {
	SeatID string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("seat %s: %s", e.SeatID, e.Message())
}

// Is makes errors.Is(err, ErrConflict) hold for every ConflictError.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Message is the user-facing notice for the conflict.
func (e *ConflictError) Message() string {
	switch e.Reason {
	case ReasonHeld:
		return "seat is already held"
	case ReasonBooked:
		return "seat is already booked"
	case ReasonNotHolder:
		return "seat is held by another user"
	case ReasonNotHeld:
		return "seat is not held"
	case ReasonExpired:
		return "seat hold has expired"
	}
	return "seat is unavailable"
}

// NotFoundError names the missing show or seat.
type NotFoundError struct {
	ShowID int64
	SeatID string
}

func (e *NotFoundError) Error() string {
	if e.SeatID == "" {
		return fmt.Sprintf("show %d not found", e.ShowID)
	}
	return fmt.Sprintf("seat %s not found in show %d", e.SeatID, e.ShowID)
}

// Is makes errors.Is(err, ErrNotFound) hold for every NotFoundError.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
