package repository // repository for the per-show seat map

import (
    "context"      // context for managing deadlines
    "database/sql" // sql provides DB interfaces
    "strconv"      // strconv formats seat numbers
)

// ShowSeat is one seat of a show's map as the catalog stores it.  The seat
// itself lives in seats (row label, number, type per hall); show_seats
// links it to a show.
type ShowSeat struct {
    ShowID     int64  // FK -> shows.id
    RowLabel   string // e.g. A, B, AA
    SeatNumber uint32 // position in the row (1-based)
    SeatType   string // STANDARD | VIP | ACCESSIBLE
}

// Label is the seat identity used across the engine, e.g. "A5".
func (s ShowSeat) Label() string {
    return s.RowLabel + strconv.FormatUint(uint64(s.SeatNumber), 10)
}

// ShowSeatRepo reads the seat map of shows.
type ShowSeatRepo struct {
    db *sql.DB
}

// NewShowSeatRepo constructs a ShowSeatRepo given a DB handle.
func NewShowSeatRepo(db *sql.DB) *ShowSeatRepo {
    return &ShowSeatRepo{db: db}
}

// ListByShow returns the active seats of a show ordered by row and number.
// A show without seats yields ErrShowNotFound.
func (r *ShowSeatRepo) ListByShow(ctx context.Context, showID int64) ([]ShowSeat, error) {
    const q = `SELECT ss.show_id, s.row_label, s.seat_number, s.seat_type
               FROM show_seats ss
               JOIN seats s ON s.id = ss.seat_id
               WHERE ss.show_id = ? AND s.is_active = 1
               ORDER BY LENGTH(s.row_label), s.row_label, s.seat_number`
    rows, err := r.db.QueryContext(ctx, q, showID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []ShowSeat
    for rows.Next() {
        var s ShowSeat
        if err := rows.Scan(&s.ShowID, &s.RowLabel, &s.SeatNumber, &s.SeatType); err != nil {
            return nil, err
        }
        out = append(out, s)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    if len(out) == 0 {
        return nil, ErrShowNotFound
    }
    return out, nil
}
