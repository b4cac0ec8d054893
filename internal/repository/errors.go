// Package repository holds the MySQL data access used around the seat
// engine: the catalog's show seat map and the booking records written after
// a successful book.  Sentinel values let higher layers tell failure
// scenarios apart without inspecting driver errors.
package repository

import "errors"

// ErrShowNotFound is returned when a show has no seats in show_seats.
// Catalog callers translate it into model.NotFoundError.
var ErrShowNotFound = errors.New("show not found")

// ErrConflict is returned when a booking row collides with an existing one
// for the same show seat.  The registry prevents this in normal operation;
// seeing it means two engines booked against one database.
var ErrConflict = errors.New("conflict")
