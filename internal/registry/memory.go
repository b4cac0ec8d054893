package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// Memory is an in-process Registry.  Each show has its own mutex; the lease
// manager's per-seat locks provide the arbitration, the show mutex only
// keeps the maps memory-safe.
type Memory struct {
	mu    sync.RWMutex
	shows map[int64]*memShow
}

type memShow struct {
	mu    sync.Mutex
	seq   uint64
	seats map[string]*model.SeatState
}

// NewMemory returns an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{shows: make(map[int64]*memShow)}
}

func (m *Memory) show(showID int64) (*memShow, error) {
	m.mu.RLock()
	sh, ok := m.shows[showID]
	m.mu.RUnlock()
	if !ok {
		return nil, &model.NotFoundError{ShowID: showID}
	}
	return sh, nil
}

func (sh *memShow) seat(showID int64, seatID string) (*model.SeatState, error) {
	st, ok := sh.seats[seatID]
	if !ok {
		return nil, &model.NotFoundError{ShowID: showID, SeatID: seatID}
	}
	return st, nil
}

// Provision implements Registry.
func (m *Memory) Provision(_ context.Context, showID int64, seats []model.Seat) error {
	m.mu.Lock()
	sh, ok := m.shows[showID]
	if !ok {
		sh = &memShow{seats: make(map[string]*model.SeatState, len(seats))}
		m.shows[showID] = sh
	}
	m.mu.Unlock()

	sh.mu.Lock()
	defer sh.mu.Unlock()
	for _, s := range seats {
		if _, exists := sh.seats[s.ID]; exists {
			continue
		}
		sh.seats[s.ID] = &model.SeatState{SeatID: s.ID, Tier: s.Tier, Status: model.StatusAvailable}
	}
	return nil
}

// Shows implements Registry.
func (m *Memory) Shows(context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.shows))
	for id := range m.shows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Snapshot implements Registry.  Seats are ordered by seat ID.
func (m *Memory) Snapshot(_ context.Context, showID int64) (model.Snapshot, error) {
	sh, err := m.show(showID)
	if err != nil {
		return model.Snapshot{}, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	out := model.Snapshot{ShowID: showID, Seq: sh.seq, Seats: make([]model.SeatState, 0, len(sh.seats))}
	for _, st := range sh.seats {
		out.Seats = append(out.Seats, *st)
	}
	sort.Slice(out.Seats, func(i, j int) bool { return out.Seats[i].SeatID < out.Seats[j].SeatID })
	return out, nil
}

// Hold implements Registry.
func (m *Memory) Hold(_ context.Context, showID int64, seatID, userID string, expiresAt time.Time) (model.SeatState, error) {
	sh, err := m.show(showID)
	if err != nil {
		return model.SeatState{}, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, err := sh.seat(showID, seatID)
	if err != nil {
		return model.SeatState{}, err
	}
	switch st.Status {
	case model.StatusHeld:
		return model.SeatState{}, &model.ConflictError{SeatID: seatID, Reason: model.ReasonHeld}
	case model.StatusBooked:
		return model.SeatState{}, &model.ConflictError{SeatID: seatID, Reason: model.ReasonBooked}
	}
	sh.seq++
	st.Status = model.StatusHeld
	st.UserID = userID
	st.ExpiresAt = model.At(expiresAt)
	st.Seq = sh.seq
	return *st, nil
}

// Release implements Registry.
func (m *Memory) Release(_ context.Context, showID int64, seatID, userID string) (model.SeatState, error) {
	sh, err := m.show(showID)
	if err != nil {
		return model.SeatState{}, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, err := sh.seat(showID, seatID)
	if err != nil {
		return model.SeatState{}, err
	}
	if err := leaseCheck(*st, userID, time.Time{}); err != nil {
		return model.SeatState{}, err
	}
	sh.seq++
	free(st, sh.seq)
	return *st, nil
}

// Book implements Registry.
func (m *Memory) Book(_ context.Context, showID int64, seatIDs []string, userID string, now time.Time) ([]model.SeatState, error) {
	sh, err := m.show(showID)
	if err != nil {
		return nil, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	// Validate the whole batch before touching anything.
	targets := make([]*model.SeatState, 0, len(seatIDs))
	for _, id := range seatIDs {
		st, err := sh.seat(showID, id)
		if err != nil {
			return nil, err
		}
		if err := leaseCheck(*st, userID, now); err != nil {
			return nil, err
		}
		targets = append(targets, st)
	}
	sh.seq++
	out := make([]model.SeatState, 0, len(targets))
	for _, st := range targets {
		st.Status = model.StatusBooked
		st.ExpiresAt = 0
		st.Seq = sh.seq
		out = append(out, *st)
	}
	return out, nil
}

// Expire implements Registry.
func (m *Memory) Expire(_ context.Context, showID int64, seatID string, seq uint64, now time.Time) (model.SeatState, bool, error) {
	sh, err := m.show(showID)
	if err != nil {
		return model.SeatState{}, false, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, err := sh.seat(showID, seatID)
	if err != nil {
		return model.SeatState{}, false, err
	}
	if st.Status != model.StatusHeld || st.Seq != seq || now.Before(st.ExpiresAt.Time()) {
		return *st, false, nil
	}
	sh.seq++
	free(st, sh.seq)
	return *st, true, nil
}

// leaseCheck verifies st is HELD by userID.  A non-zero now additionally
// requires the lease deadline to be in the future.
func leaseCheck(st model.SeatState, userID string, now time.Time) error {
	switch {
	case st.Status == model.StatusAvailable:
		return &model.ConflictError{SeatID: st.SeatID, Reason: model.ReasonNotHeld}
	case st.Status == model.StatusBooked:
		return &model.ConflictError{SeatID: st.SeatID, Reason: model.ReasonBooked}
	case st.UserID != userID:
		return &model.ConflictError{SeatID: st.SeatID, Reason: model.ReasonNotHolder}
	case !now.IsZero() && !now.Before(st.ExpiresAt.Time()):
		return &model.ConflictError{SeatID: st.SeatID, Reason: model.ReasonExpired}
	}
	return nil
}

func free(st *model.SeatState, seq uint64) {
	st.Status = model.StatusAvailable
	st.UserID = ""
	st.ExpiresAt = 0
	st.Seq = seq
}
