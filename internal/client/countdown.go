package client

import (
	"time"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// Remaining is the whole seconds left until expiresAt, never negative.  It
// is recomputed from the absolute deadline on every tick so it cannot drift.
func Remaining(expiresAt model.UnixMillis, now time.Time) int {
	ms := int64(expiresAt) - now.UnixMilli()
	if ms <= 0 {
		return 0
	}
	return int(ms / 1000)
}

type generation struct {
	seat string
	seq  uint64
}

// Countdown tracks the viewer's own holds.  When one reaches zero it asks
// for exactly one courtesy release per lease generation; the seat itself
// stays HELD locally until the server says otherwise.
type Countdown struct {
	released map[generation]bool
}

// NewCountdown returns an empty scheduler.
func NewCountdown() *Countdown {
	return &Countdown{released: make(map[generation]bool)}
}

// Tick evaluates the given holds at now.  It returns the remaining seconds
// per seat and the holds that just reached zero.
func (c *Countdown) Tick(held []model.SeatState, now time.Time) (map[string]int, []model.SeatState) {
	remaining := make(map[string]int, len(held))
	live := make(map[generation]bool, len(held))
	var due []model.SeatState
	for _, st := range held {
		g := generation{st.SeatID, st.Seq}
		live[g] = true
		r := Remaining(st.ExpiresAt, now)
		remaining[st.SeatID] = r
		if r == 0 && !c.released[g] {
			c.released[g] = true
			due = append(due, st)
		}
	}
	// Forget generations that are no longer held.
	for g := range c.released {
		if !live[g] {
			delete(c.released, g)
		}
	}
	return remaining, due
}
