package database

import (
	"context"
	"database/sql"
	"fmt"
)

// bookingSchema creates the tables the engine writes.  The catalog tables
// (shows, seats, show_seats) are owned elsewhere and only read.
var bookingSchema = []string{
	`CREATE TABLE IF NOT EXISTS seat_bookings (
		id         CHAR(36)    NOT NULL PRIMARY KEY,
		show_id    BIGINT      NOT NULL,
		user_id    VARCHAR(64) NOT NULL,
		booked_at  DATETIME(3) NOT NULL,
		created_at TIMESTAMP   NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_seat_bookings_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seat_booking_seats (
		booking_id  CHAR(36)    NOT NULL,
		show_id     BIGINT      NOT NULL,
		seat_number VARCHAR(16) NOT NULL,
		PRIMARY KEY (show_id, seat_number),
		KEY idx_seat_booking_seats_booking (booking_id),
		CONSTRAINT fk_seat_booking_seats_booking FOREIGN KEY (booking_id)
			REFERENCES seat_bookings (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the booking tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range bookingSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
