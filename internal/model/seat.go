package model

import "time"

// SeatStatus is the reservation state of a seat within one show.
type SeatStatus string

const (
	StatusAvailable SeatStatus = "AVAILABLE" // free to hold
	StatusHeld      SeatStatus = "HELD"      // leased to one user until ExpiresAt
	StatusBooked    SeatStatus = "BOOKED"    // terminal, never expires
)

// Valid reports whether s is one of the three known statuses.
func (s SeatStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusHeld, StatusBooked:
		return true
	}
	return false
}

// Seat is a seat of a show's seat map as provisioned by the catalog.  The
// tier is carried for grouping and pricing only and plays no part in
// reservation logic.
//
// Fields:
//  ID   – row label plus column, e.g. "A5"; unique within a show.
//  Tier – STANDARD, VIP, ACCESSIBLE or whatever the catalog uses.
type Seat struct {
	ID   string `json:"seatNumber"`
	Tier string `json:"tier,omitempty"`
}

// UnixMillis is an absolute instant encoded on the wire as milliseconds
// since the Unix epoch.  Zero means "no instant".
type UnixMillis int64

// At converts t to UnixMillis.  The zero time maps to zero.
func At(t time.Time) UnixMillis {
	if t.IsZero() {
		return 0
	}
	return UnixMillis(t.UnixMilli())
}

// Time converts m back to a UTC time.  Zero maps to the zero time.
func (m UnixMillis) Time() time.Time {
	if m == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(m)).UTC()
}

// SeatState is the current status of one seat in a show's registry.
//
// Fields:
//  SeatID    – seat identity within the show.
//  Tier      – static tier copied from the catalog.
//  Status    – AVAILABLE, HELD or BOOKED.
//  UserID    – owner; set for HELD and BOOKED, empty for AVAILABLE.
//  ExpiresAt – lease deadline; set only for HELD.
//  Seq       – show-wide commit sequence of the seat's last transition.
//              It doubles as the lease generation stamp.
type SeatState struct {
	SeatID    string     `json:"seatNumber"`
	Tier      string     `json:"tier,omitempty"`
	Status    SeatStatus `json:"status"`
	UserID    string     `json:"userId,omitempty"`
	ExpiresAt UnixMillis `json:"expiresAt,omitempty"`
	Seq       uint64     `json:"seq"`
}

// Consistent reports whether the state satisfies the ownership invariant:
// AVAILABLE has no owner and no deadline, HELD has both, BOOKED has an owner
// and no deadline.
func (s SeatState) Consistent() bool {
	switch s.Status {
	case StatusAvailable:
		return s.UserID == "" && s.ExpiresAt == 0
	case StatusHeld:
		return s.UserID != "" && s.ExpiresAt != 0
	case StatusBooked:
		return s.UserID != "" && s.ExpiresAt == 0
	}
	return false
}

// HeldBy reports whether the seat is currently leased to userID.
func (s SeatState) HeldBy(userID string) bool {
	return s.Status == StatusHeld && s.UserID == userID
}

// Lease is the HELD record handed back to a successful hold request.
type Lease struct {
	ShowID    int64      `json:"showId"`
	SeatID    string     `json:"seatNumber"`
	UserID    string     `json:"userId"`
	ExpiresAt UnixMillis `json:"expiresAt"`
	Seq       uint64     `json:"seq"`
}

// Snapshot is a point-in-time read of a show's registry.  Seq is the show's
// commit high-water mark at the time of the read; every event with a lower or
// equal seq is already reflected in Seats.
type Snapshot struct {
	ShowID int64       `json:"showId"`
	Seq    uint64      `json:"seq"`
	Seats  []SeatState `json:"seats"`
}

// Occupied returns only the non-AVAILABLE seats of the snapshot.
func (s Snapshot) Occupied() []SeatState {
	out := make([]SeatState, 0, len(s.Seats))
	for _, st := range s.Seats {
		if st.Status != StatusAvailable {
			out = append(out, st)
		}
	}
	return out
}
