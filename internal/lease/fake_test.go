package lease

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// fakeClock only moves when Advance or Set is called.  Advance fires due
// timers in deadline order on the calling goroutine.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, firing every timer that falls due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if next.at.After(c.now) {
			c.now = next.at
		}
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

// Set jumps to t without firing anything, simulating a lost timer.
func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type recorder struct {
	mu     sync.Mutex
	events []model.SeatEvent
}

func (r *recorder) Publish(_ int64, ev model.SeatEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []model.SeatEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SeatEvent(nil), r.events...)
}

func (r *recorder) count(status model.SeatStatus) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Status == status {
			n++
		}
	}
	return n
}

type mapCatalog map[int64][]model.Seat

func (c mapCatalog) Seats(_ context.Context, showID int64) ([]model.Seat, error) {
	seats, ok := c[showID]
	if !ok {
		return nil, &model.NotFoundError{ShowID: showID}
	}
	return seats, nil
}

type sinkStub struct {
	mu   sync.Mutex
	recs []model.BookingRecord
	err  error
}

func (s *sinkStub) Booked(_ context.Context, rec model.BookingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return s.err
}

func (s *sinkStub) records() []model.BookingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.BookingRecord(nil), s.recs...)
}
