package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"
    "time"

    "github.com/go-sql-driver/mysql"
)

// BookingRepo persists finished bookings.  A booking groups one or more
// seats of one show bought together by one user; its seats are stored in
// seat_booking_seats.  All timestamps are stored in UTC.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// BookingRecord mirrors the seat_bookings table.
type BookingRecord struct {
    ID       string
    ShowID   int64
    UserID   string
    BookedAt time.Time
}

// BookingSeatRecord mirrors seat_booking_seats.  (show_id, seat_number) is
// unique, so a seat can only ever be booked once per show.
type BookingSeatRecord struct {
    BookingID  string
    ShowID     int64
    SeatNumber string
}

// Save writes a booking and its seats in one transaction.
func (r *BookingRepo) Save(ctx context.Context, b BookingRecord, seatNumbers []string) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    defer tx.Rollback() // no-op after commit

    if err := r.CreateTx(ctx, tx, b); err != nil {
        return err
    }
    seats := make([]BookingSeatRecord, 0, len(seatNumbers))
    for _, sn := range seatNumbers {
        seats = append(seats, BookingSeatRecord{BookingID: b.ID, ShowID: b.ShowID, SeatNumber: sn})
    }
    if err := r.CreateSeatsBulkTx(ctx, tx, seats); err != nil {
        return err
    }
    return tx.Commit()
}

// CreateTx inserts the booking row within an existing transaction.  The
// caller must commit or rollback.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b BookingRecord) error {
    const q = `INSERT INTO seat_bookings (id, show_id, user_id, booked_at) VALUES (?, ?, ?, ?)`
    _, err := tx.ExecContext(ctx, q, b.ID, b.ShowID, b.UserID, b.BookedAt.UTC())
    return mapDuplicate(err)
}

// CreateSeatsBulkTx inserts multiple seat_booking_seats rows in a single
// statement.  Passing an empty slice has no effect and returns nil.
func (r *BookingRepo) CreateSeatsBulkTx(ctx context.Context, tx *sql.Tx, seats []BookingSeatRecord) error {
    if len(seats) == 0 {
        return nil
    }
    var query strings.Builder
    query.WriteString(`INSERT INTO seat_booking_seats (booking_id, show_id, seat_number) VALUES `)
    args := make([]interface{}, 0, len(seats)*3)
    for i, s := range seats {
        if i > 0 {
            query.WriteString(",")
        }
        query.WriteString("(?, ?, ?)")
        args = append(args, s.BookingID, s.ShowID, s.SeatNumber)
    }
    _, err := tx.ExecContext(ctx, query.String(), args...)
    return mapDuplicate(err)
}

// mapDuplicate turns MySQL's duplicate key error (1062) into ErrConflict.
func mapDuplicate(err error) error {
    var me *mysql.MySQLError
    if errors.As(err, &me) && me.Number == 1062 {
        return ErrConflict
    }
    return err
}
