// Package lease implements the seat lease manager: the only component that
// mutates seat status.  It issues time-bounded holds, arbitrates concurrent
// requests per seat, books held seats atomically, expires abandoned holds on
// its own timers and publishes every committed transition.
package lease

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
	"github.com/iliyamo/cinema-seat-sync/internal/registry"
)

// DefaultTTL is how long a hold lasts when Options.TTL is zero.
const DefaultTTL = 300 * time.Second

const (
	defaultSweepInterval = 5 * time.Second
	expiryRetry          = 250 * time.Millisecond
	timerOpTimeout       = 5 * time.Second
)

// ErrNoSeats is returned by Book when the batch is empty.
var ErrNoSeats = errors.New("no seats requested")

// ErrMissingUser is returned when a request carries no user identity.
var ErrMissingUser = errors.New("missing user id")

// Publisher receives every committed transition.  Implementations must not
// block: Publish is called while the seat lock is held so that per-seat
// event order matches commit order.
type Publisher interface {
	Publish(showID int64, ev model.SeatEvent)
}

// Catalog supplies the seat map of a show.  It returns a
// *model.NotFoundError for shows it does not know.
type Catalog interface {
	Seats(ctx context.Context, showID int64) ([]model.Seat, error)
}

// BookingSink is told about every successful booking after the seats are
// committed.  A sink error is logged; it never undoes the booking.
type BookingSink interface {
	Booked(ctx context.Context, rec model.BookingRecord) error
}

// Options tunes a Manager.  Zero values select defaults.
type Options struct {
	TTL           time.Duration // hold lifetime, DefaultTTL when zero
	SweepInterval time.Duration // backstop sweep period used by Run
	Clock         Clock         // SystemClock when nil
	Sink          BookingSink   // optional
	Stripes       int           // number of seat lock stripes
}

// Manager is the lease manager.  It is safe for concurrent use.
type Manager struct {
	reg     registry.Registry
	pub     Publisher
	catalog Catalog
	sink    BookingSink
	clock   Clock
	ttl     time.Duration
	sweep   time.Duration
	locks   *arbiter

	mu     sync.Mutex
	timers map[seatKey]armed
	ready  map[int64]bool
}

type seatKey struct {
	show int64
	seat string
}

type armed struct {
	seq   uint64
	timer Timer
}

// NewManager wires a Manager.  pub and catalog may be nil: without a catalog
// only shows already provisioned in the registry are served.
func NewManager(reg registry.Registry, pub Publisher, catalog Catalog, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	return &Manager{
		reg:     reg,
		pub:     pub,
		catalog: catalog,
		sink:    opts.Sink,
		clock:   opts.Clock,
		ttl:     opts.TTL,
		sweep:   opts.SweepInterval,
		locks:   newArbiter(opts.Stripes),
		timers:  make(map[seatKey]armed),
		ready:   make(map[int64]bool),
	}
}

// TTL returns the hold lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// ensureShow provisions the show's seat map from the catalog the first time
// the show is touched.
func (m *Manager) ensureShow(ctx context.Context, showID int64) error {
	m.mu.Lock()
	ok := m.ready[showID]
	m.mu.Unlock()
	if ok || m.catalog == nil {
		return nil
	}
	seats, err := m.catalog.Seats(ctx, showID)
	if err != nil {
		return err
	}
	if err := m.reg.Provision(ctx, showID, seats); err != nil {
		return err
	}
	m.mu.Lock()
	m.ready[showID] = true
	m.mu.Unlock()
	return nil
}

// Hold leases an AVAILABLE seat to userID for the TTL.  A seat that is HELD
// (by anyone, the caller included) or BOOKED yields a *model.ConflictError
// and no change; an existing hold is never extended.
func (m *Manager) Hold(ctx context.Context, showID int64, seatID, userID string) (model.Lease, error) {
	if userID == "" {
		return model.Lease{}, ErrMissingUser
	}
	if err := m.ensureShow(ctx, showID); err != nil {
		return model.Lease{}, err
	}
	unlock := m.locks.lock(showID, seatID)
	defer unlock()

	now := m.clock.Now()
	expiresAt := now.Add(m.ttl).Truncate(time.Millisecond)
	st, err := m.reg.Hold(ctx, showID, seatID, userID, expiresAt)
	if err != nil {
		return model.Lease{}, err
	}
	m.arm(showID, seatID, st.Seq, expiresAt.Sub(now))
	m.publish(showID, model.EventFor(showID, st))
	return model.Lease{ShowID: showID, SeatID: seatID, UserID: userID, ExpiresAt: st.ExpiresAt, Seq: st.Seq}, nil
}

// Release frees a seat held by userID and cancels its expiry timer.
func (m *Manager) Release(ctx context.Context, showID int64, seatID, userID string) (model.SeatState, error) {
	if userID == "" {
		return model.SeatState{}, ErrMissingUser
	}
	if err := m.ensureShow(ctx, showID); err != nil {
		return model.SeatState{}, err
	}
	unlock := m.locks.lock(showID, seatID)
	defer unlock()

	st, err := m.reg.Release(ctx, showID, seatID, userID)
	if err != nil {
		return model.SeatState{}, err
	}
	m.disarm(seatKey{showID, seatID})
	m.publish(showID, model.EventFor(showID, st))
	return st, nil
}

// ReleaseAll frees every seat userID currently holds on the show, for
// example after an abandoned checkout.  Seats that change hands between the
// read and the release are skipped.
func (m *Manager) ReleaseAll(ctx context.Context, showID int64, userID string) ([]string, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	snap, err := m.Snapshot(ctx, showID)
	if err != nil {
		return nil, err
	}
	released := []string{}
	for _, st := range snap.Seats {
		if !st.HeldBy(userID) {
			continue
		}
		if _, err := m.Release(ctx, showID, st.SeatID, userID); err != nil {
			if errors.Is(err, model.ErrConflict) {
				continue
			}
			return released, err
		}
		released = append(released, st.SeatID)
	}
	return released, nil
}

// Book promotes every seat in the batch from HELD{userID} to BOOKED{userID}.
// Either all seats change or none do.  A lease past its deadline counts as a
// conflict even if its expiry timer has not fired yet.  The requester's other
// holds are left untouched when the batch is rejected.
func (m *Manager) Book(ctx context.Context, showID int64, seatIDs []string, userID string) (model.BookingRecord, error) {
	if userID == "" {
		return model.BookingRecord{}, ErrMissingUser
	}
	seats := dedupe(seatIDs)
	if len(seats) == 0 {
		return model.BookingRecord{}, ErrNoSeats
	}
	if err := m.ensureShow(ctx, showID); err != nil {
		return model.BookingRecord{}, err
	}

	unlock := m.locks.lock(showID, seats...)
	now := m.clock.Now()
	states, err := m.reg.Book(ctx, showID, seats, userID, now)
	if err != nil {
		unlock()
		return model.BookingRecord{}, err
	}
	for _, id := range seats {
		m.disarm(seatKey{showID, id})
	}
	m.publish(showID, model.SeatEvent{
		ShowID:  showID,
		SeatIDs: seats,
		Status:  model.StatusBooked,
		UserID:  userID,
		Seq:     states[0].Seq,
	})
	unlock()

	rec := model.BookingRecord{ID: uuid.NewString(), ShowID: showID, UserID: userID, SeatIDs: seats, BookedAt: now, Seq: states[0].Seq}
	if m.sink != nil {
		if err := m.sink.Booked(ctx, rec); err != nil {
			log.Printf("lease: booking sink failed for show=%d booking=%s: %v", showID, rec.ID, err)
		}
	}
	return rec, nil
}

// Snapshot returns the full seat map of a show.
func (m *Manager) Snapshot(ctx context.Context, showID int64) (model.Snapshot, error) {
	if err := m.ensureShow(ctx, showID); err != nil {
		return model.Snapshot{}, err
	}
	return m.reg.Snapshot(ctx, showID)
}

// Occupied returns the HELD and BOOKED seats of a show together with the
// snapshot's high-water mark.
func (m *Manager) Occupied(ctx context.Context, showID int64) ([]model.SeatState, uint64, error) {
	snap, err := m.Snapshot(ctx, showID)
	if err != nil {
		return nil, 0, err
	}
	return snap.Occupied(), snap.Seq, nil
}

// arm (re)schedules the expiry of the lease generation seq.  Callers hold
// the seat lock.
func (m *Manager) arm(showID int64, seatID string, seq uint64, d time.Duration) {
	if d < 0 {
		d = 0
	}
	key := seatKey{showID, seatID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.timers[key]; ok {
		prev.timer.Stop()
	}
	m.timers[key] = armed{seq: seq, timer: m.clock.AfterFunc(d, func() { m.fire(showID, seatID, seq) })}
}

// disarm cancels the pending expiry of a seat.  Callers hold the seat lock,
// so a timer that already fired and waits for the lock finds its generation
// superseded in the registry.
func (m *Manager) disarm(key seatKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.timers[key]; ok {
		a.timer.Stop()
		delete(m.timers, key)
	}
}

func (m *Manager) fire(showID int64, seatID string, seq uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), timerOpTimeout)
	defer cancel()
	m.expire(ctx, showID, seatID, seq)
}

// expire frees the lease generation seq if it is still current and due.
func (m *Manager) expire(ctx context.Context, showID int64, seatID string, seq uint64) bool {
	unlock := m.locks.lock(showID, seatID)
	defer unlock()

	key := seatKey{showID, seatID}
	st, ok, err := m.reg.Expire(ctx, showID, seatID, seq, m.clock.Now())
	if err != nil {
		log.Printf("lease: expire show=%d seat=%s failed: %v", showID, seatID, err)
	}
	if !ok {
		// Either superseded, or the timer ran marginally ahead of the
		// deadline.  Only a still-armed generation is retried.
		m.mu.Lock()
		a, current := m.timers[key]
		m.mu.Unlock()
		if current && a.seq == seq {
			m.arm(showID, seatID, seq, expiryRetry)
		}
		return false
	}
	m.mu.Lock()
	if a, current := m.timers[key]; current && a.seq == seq {
		a.timer.Stop()
		delete(m.timers, key)
	}
	m.mu.Unlock()
	m.publish(showID, model.EventFor(showID, st))
	return true
}

func (m *Manager) publish(showID int64, ev model.SeatEvent) {
	if m.pub != nil {
		m.pub.Publish(showID, ev)
	}
}

// Recover arms expiry timers for every HELD seat already present in the
// registry, e.g. a Redis registry after a restart.  Overdue leases expire
// right away.
func (m *Manager) Recover(ctx context.Context) error {
	shows, err := m.reg.Shows(ctx)
	if err != nil {
		return err
	}
	armedCount := 0
	for _, showID := range shows {
		snap, err := m.reg.Snapshot(ctx, showID)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.ready[showID] = true
		m.mu.Unlock()
		now := m.clock.Now()
		for _, st := range snap.Seats {
			if st.Status != model.StatusHeld {
				continue
			}
			unlock := m.locks.lock(showID, st.SeatID)
			m.arm(showID, st.SeatID, st.Seq, st.ExpiresAt.Time().Sub(now))
			unlock()
			armedCount++
		}
	}
	log.Printf("lease: recovered %d held seats across %d shows", armedCount, len(shows))
	return nil
}

// Run sweeps provisioned shows for overdue holds until ctx is done, then
// cancels all pending timers.  Timers remain the primary expiry path; the
// sweep only catches leases whose timer was lost.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.stopTimers()
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep expires every overdue HELD seat of the provisioned shows and
// returns how many it freed.
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.Lock()
	shows := make([]int64, 0, len(m.ready))
	for id := range m.ready {
		shows = append(shows, id)
	}
	m.mu.Unlock()

	freed := 0
	for _, showID := range shows {
		snap, err := m.reg.Snapshot(ctx, showID)
		if err != nil {
			log.Printf("lease: sweep show=%d failed: %v", showID, err)
			continue
		}
		now := m.clock.Now()
		for _, st := range snap.Seats {
			if st.Status == model.StatusHeld && !now.Before(st.ExpiresAt.Time()) {
				if m.expire(ctx, showID, st.SeatID, st.Seq) {
					freed++
				}
			}
		}
	}
	return freed
}

func (m *Manager) stopTimers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, a := range m.timers {
		a.timer.Stop()
		delete(m.timers, key)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
