package model

import "fmt"

// SeatEvent is a committed seat transition fanned out on a show's topic.
// Two shapes exist: single-seat events carry SeatID (and ExpiresAt for HELD),
// batched booking events carry SeatIDs with status BOOKED.  Expiry and
// explicit release produce the same AVAILABLE shape.
type SeatEvent struct {
	ShowID    int64      `json:"showId"`
	SeatID    string     `json:"seatNumber,omitempty"`
	SeatIDs   []string   `json:"seatNumbers,omitempty"`
	Status    SeatStatus `json:"status"`
	UserID    string     `json:"userId,omitempty"`
	ExpiresAt UnixMillis `json:"expiresAt,omitempty"`
	Seq       uint64     `json:"seq"`
	// Origin identifies the server node that committed the transition.  Relays
	// use it to drop their own echoes.
	Origin string `json:"origin,omitempty"`
}

// Topic returns the broadcast topic name for a show.
func Topic(showID int64) string {
	return fmt.Sprintf("show/%d", showID)
}

// Seats lists the seats the event touches regardless of its shape.
func (e SeatEvent) Seats() []string {
	if len(e.SeatIDs) > 0 {
		return e.SeatIDs
	}
	if e.SeatID == "" {
		return nil
	}
	return []string{e.SeatID}
}

// Batched reports whether the event is a multi-seat booking event.
func (e SeatEvent) Batched() bool { return len(e.SeatIDs) > 0 }

// StateFor returns the state the event implies for one of its seats.
func (e SeatEvent) StateFor(seatID string) SeatState {
	st := SeatState{SeatID: seatID, Status: e.Status, Seq: e.Seq}
	if e.Status != StatusAvailable {
		st.UserID = e.UserID
	}
	if e.Status == StatusHeld {
		st.ExpiresAt = e.ExpiresAt
	}
	return st
}

// EventFor builds a single-seat event from a committed state.
func EventFor(showID int64, st SeatState) SeatEvent {
	ev := SeatEvent{ShowID: showID, SeatID: st.SeatID, Status: st.Status, Seq: st.Seq}
	if st.Status != StatusAvailable {
		ev.UserID = st.UserID
	}
	if st.Status == StatusHeld {
		ev.ExpiresAt = st.ExpiresAt
	}
	return ev
}

// Push channel frame types.
const (
	FrameSnapshot = "seat.snapshot" // full seat map, always the first frame
	FrameUpdate   = "seat.update"   // one committed transition
	FrameStale    = "seat.stale"    // events were dropped; resnapshot
)

// Frame is one server-to-client push channel message.
type Frame struct {
	Type     string     `json:"type"`
	Snapshot *Snapshot  `json:"snapshot,omitempty"`
	Event    *SeatEvent `json:"event,omitempty"`
}
