package client

import (
	"sort"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// PendingOp marks a seat with a request in flight.
type PendingOp string

const (
	PendingHold    PendingOp = "hold"
	PendingRelease PendingOp = "release"
	PendingBook    PendingOp = "book"
)

// SeatView is a mirrored seat plus the local overlay.
type SeatView struct {
	model.SeatState
	Pending   PendingOp `json:"pending,omitempty"`
	Remaining int       `json:"remaining,omitempty"` // countdown seconds, HELD only
}

// Mirror is a viewer's local, non-authoritative copy of one show's seats.
// Authoritative facts arrive as events or direct responses; each is applied
// only when its sequence number is newer than what the mirror already
// reflects, so duplicates and stragglers from before the last snapshot are
// ignored.  A Mirror is owned by one goroutine.
type Mirror struct {
	showID  int64
	floor   uint64
	seats   map[string]model.SeatState
	pending map[string]PendingOp
}

// NewMirror returns an empty mirror for a show.
func NewMirror(showID int64) *Mirror {
	return &Mirror{
		showID:  showID,
		seats:   make(map[string]model.SeatState),
		pending: make(map[string]PendingOp),
	}
}

// Reset replaces the mirror content with a snapshot.  Requests still in
// flight stay pending.
func (m *Mirror) Reset(snap model.Snapshot) {
	m.floor = snap.Seq
	m.seats = make(map[string]model.SeatState, len(snap.Seats))
	for _, st := range snap.Seats {
		m.seats[st.SeatID] = st
	}
}

// Ready reports whether a snapshot has been loaded.
func (m *Mirror) Ready() bool { return len(m.seats) > 0 }

// Refresh merges a fresh read of the show's occupied seats taken at seq.
// Known seats missing from occupied are AVAILABLE as of seq.  Unlike Reset
// it never rolls back a seat the mirror already knows at a newer seq, so a
// read that raced with later events is harmless.  It reports whether any
// seat changed.
func (m *Mirror) Refresh(occupied []model.SeatState, seq uint64) bool {
	busy := make(map[string]model.SeatState, len(occupied))
	for _, st := range occupied {
		busy[st.SeatID] = st
	}
	changed := false
	for id := range m.seats {
		st, ok := busy[id]
		if !ok {
			st = model.SeatState{SeatID: id, Status: model.StatusAvailable, Seq: seq}
		}
		if st.Tier == "" {
			st.Tier = m.seats[id].Tier
		}
		if m.merge(st) {
			changed = true
		}
	}
	if seq > m.floor {
		m.floor = seq
	}
	return changed
}

// Apply merges an event.  It reports whether any seat changed.
func (m *Mirror) Apply(ev model.SeatEvent) bool {
	if ev.ShowID != m.showID {
		return false
	}
	changed := false
	for _, id := range ev.Seats() {
		if m.merge(ev.StateFor(id)) {
			changed = true
		}
	}
	return changed
}

// Confirm merges the state returned by a direct response and clears the
// seat's pending mark.
func (m *Mirror) Confirm(st model.SeatState) bool {
	delete(m.pending, st.SeatID)
	return m.merge(st)
}

func (m *Mirror) merge(st model.SeatState) bool {
	cur, ok := m.seats[st.SeatID]
	if !ok || st.Seq <= m.floor || st.Seq <= cur.Seq {
		return false
	}
	if st.Tier == "" {
		st.Tier = cur.Tier
	}
	m.seats[st.SeatID] = st
	delete(m.pending, st.SeatID)
	return true
}

// BeginHold marks seats with an optimistic pending request.
func (m *Mirror) BeginHold(seatID string)    { m.pending[seatID] = PendingHold }
func (m *Mirror) BeginRelease(seatID string) { m.pending[seatID] = PendingRelease }

func (m *Mirror) BeginBook(seatIDs ...string) {
	for _, id := range seatIDs {
		m.pending[id] = PendingBook
	}
}

// Rollback drops the optimistic marks after a rejected request.  The seats
// keep their last authoritative state.
func (m *Mirror) Rollback(seatIDs ...string) {
	for _, id := range seatIDs {
		delete(m.pending, id)
	}
}

// Seat returns one seat.
func (m *Mirror) Seat(seatID string) (SeatView, bool) {
	st, ok := m.seats[seatID]
	if !ok {
		return SeatView{}, false
	}
	return SeatView{SeatState: st, Pending: m.pending[seatID]}, true
}

// View returns every seat ordered by row then number.
func (m *Mirror) View() []SeatView {
	out := make([]SeatView, 0, len(m.seats))
	for id, st := range m.seats {
		out = append(out, SeatView{SeatState: st, Pending: m.pending[id]})
	}
	sort.Slice(out, func(i, j int) bool { return seatLess(out[i].SeatID, out[j].SeatID) })
	return out
}

// HeldBy returns the seats the mirror believes userID holds.
func (m *Mirror) HeldBy(userID string) []model.SeatState {
	var out []model.SeatState
	for _, st := range m.seats {
		if st.HeldBy(userID) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return seatLess(out[i].SeatID, out[j].SeatID) })
	return out
}
