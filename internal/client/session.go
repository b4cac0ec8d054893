package client

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// SeatAPI is the subset of API a Session uses.
type SeatAPI interface {
	Hold(ctx context.Context, showID int64, seatID string) (model.Lease, error)
	Release(ctx context.Context, showID int64, seatID string) (model.SeatState, error)
	Book(ctx context.Context, showID int64, seatIDs []string) (model.BookingRecord, error)
	ReleaseAll(ctx context.Context, showID int64) ([]string, error)
	Occupied(ctx context.Context, showID int64) ([]model.SeatState, uint64, error)
	Beaconer
}

// Streamer delivers push channel messages until ctx ends.
type Streamer interface {
	Run(ctx context.Context, out chan<- StreamMsg)
}

// NoticeKind classifies a Notice.
type NoticeKind string

const (
	NoticeReady    NoticeKind = "ready"    // snapshot loaded or seat map refreshed
	NoticeStale    NoticeKind = "stale"    // push channel lost; seat map may be outdated
	NoticeHeld     NoticeKind = "held"     // hold confirmed
	NoticeReleased NoticeKind = "released" // release confirmed
	NoticeBooked   NoticeKind = "booked"   // booking confirmed
	NoticeConflict NoticeKind = "conflict" // request rejected; optimistic state rolled back
	NoticeExpired  NoticeKind = "expired"  // countdown reached zero; courtesy release sent
	NoticeError    NoticeKind = "error"    // transport or unexpected failure
)

// Notice is a user-facing message produced by a Session.
type Notice struct {
	Kind    NoticeKind
	SeatIDs []string
	Message string
	Booking *model.BookingRecord
	Err     error
}

// SessionOptions tunes a Session.
type SessionOptions struct {
	Tick    time.Duration    // countdown period, default 1s
	Now     func() time.Time // default time.Now
	Reaper  *Reaper          // nil disables disconnect cleanup
	Notices int              // notice buffer, default 64
}

type opKind int

const (
	opHold opKind = iota
	opRelease
	opBook
	opReleaseAll
	opCourtesy
	opRefresh
)

type command struct {
	op    opKind
	seats []string
	view  chan []SeatView
}

type result struct {
	op       opKind
	seats    []string
	lease    model.Lease
	state    model.SeatState
	booking  model.BookingRecord
	released []string
	occupied []model.SeatState
	seq      uint64
	err      error
}

// Session is one viewer attached to one show.  A single goroutine (Run) owns
// the mirror and the countdown; everything else talks to it through
// channels.  Requests never touch the mirror directly: they mark seats
// pending, and the authoritative state arrives either as the direct response
// or as an event, whichever comes first.
type Session struct {
	ShowID int64
	UserID string

	api       SeatAPI
	stream    Streamer
	opts      SessionOptions
	mirror    *Mirror
	countdown *Countdown

	cmds    chan command
	results chan result
	notices chan Notice
	done    chan struct{}
}

// NewSession wires a session.  Call Run to start it.
func NewSession(showID int64, userID string, api SeatAPI, stream Streamer, opts SessionOptions) *Session {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notices <= 0 {
		opts.Notices = 64
	}
	return &Session{
		ShowID:    showID,
		UserID:    userID,
		api:       api,
		stream:    stream,
		opts:      opts,
		mirror:    NewMirror(showID),
		countdown: NewCountdown(),
		cmds:      make(chan command),
		results:   make(chan result, 16),
		notices:   make(chan Notice, opts.Notices),
		done:      make(chan struct{}),
	}
}

// Notices is closed when Run returns.
func (s *Session) Notices() <-chan Notice { return s.notices }

// Hold asks the server for a lease on seatID.
func (s *Session) Hold(seatID string) bool { return s.submit(command{op: opHold, seats: []string{seatID}}) }

// Release gives a held seat back.
func (s *Session) Release(seatID string) bool {
	return s.submit(command{op: opRelease, seats: []string{seatID}})
}

// Book buys the given held seats in one request.
func (s *Session) Book(seatIDs ...string) bool {
	return s.submit(command{op: opBook, seats: seatIDs})
}

// ReleaseAll gives back every seat the user holds on the show.
func (s *Session) ReleaseAll() bool { return s.submit(command{op: opReleaseAll}) }

// View returns the current seat map with pending marks and countdowns.  It
// returns nil once the session has ended.
func (s *Session) View() []SeatView {
	reply := make(chan []SeatView, 1)
	if !s.submit(command{view: reply}) {
		return nil
	}
	select {
	case v := <-reply:
		return v
	case <-s.done:
		return nil
	}
}

func (s *Session) submit(c command) bool {
	select {
	case s.cmds <- c:
		return true
	case <-s.done:
		return false
	}
}

// Run drives the session until ctx ends, then reaps the user's holds.
func (s *Session) Run(ctx context.Context) {
	defer close(s.notices)
	defer close(s.done)

	streamCtx, stopStream := context.WithCancel(ctx)
	msgs := make(chan StreamMsg, 16)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		s.stream.Run(streamCtx, msgs)
	}()

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stopStream()
			<-streamDone
			s.reap()
			return
		case m := <-msgs:
			s.onStream(m)
		case c := <-s.cmds:
			s.onCommand(ctx, c)
		case r := <-s.results:
			s.onResult(ctx, r)
		case <-ticker.C:
			s.onTick(ctx)
		}
	}
}

func (s *Session) onStream(m StreamMsg) {
	switch {
	case m.Frame != nil:
		s.onFrame(*m.Frame)
	case m.Err != nil:
		s.notify(Notice{Kind: NoticeStale, Message: "live updates unavailable, reconnecting", Err: m.Err})
	}
}

func (s *Session) onFrame(f model.Frame) {
	switch f.Type {
	case model.FrameSnapshot:
		if f.Snapshot == nil {
			return
		}
		s.mirror.Reset(*f.Snapshot)
		s.notify(Notice{Kind: NoticeReady, Message: "seat map loaded"})
	case model.FrameUpdate:
		if f.Event != nil {
			s.mirror.Apply(*f.Event)
		}
	case model.FrameStale:
		s.notify(Notice{Kind: NoticeStale, Message: "fell behind live updates, reloading"})
	}
}

func (s *Session) onCommand(ctx context.Context, c command) {
	if c.view != nil {
		c.view <- s.view()
		return
	}
	switch c.op {
	case opHold:
		s.mirror.BeginHold(c.seats[0])
	case opRelease:
		s.mirror.BeginRelease(c.seats[0])
	case opBook:
		s.mirror.BeginBook(c.seats...)
	case opReleaseAll:
		for _, st := range s.mirror.HeldBy(s.UserID) {
			s.mirror.BeginRelease(st.SeatID)
			c.seats = append(c.seats, st.SeatID)
		}
	}
	s.call(ctx, c.op, c.seats)
}

// call runs a request off the actor goroutine and posts its result back.
func (s *Session) call(ctx context.Context, op opKind, seats []string) {
	go func() {
		r := result{op: op, seats: seats}
		switch op {
		case opHold:
			r.lease, r.err = s.api.Hold(ctx, s.ShowID, seats[0])
		case opRelease, opCourtesy:
			r.state, r.err = s.api.Release(ctx, s.ShowID, seats[0])
		case opBook:
			r.booking, r.err = s.api.Book(ctx, s.ShowID, seats)
		case opReleaseAll:
			r.released, r.err = s.api.ReleaseAll(ctx, s.ShowID)
		case opRefresh:
			r.occupied, r.seq, r.err = s.api.Occupied(ctx, s.ShowID)
		}
		select {
		case s.results <- r:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) onResult(ctx context.Context, r result) {
	if r.err != nil {
		s.mirror.Rollback(r.seats...)
		var ce *model.ConflictError
		switch {
		case r.op == opRefresh:
			log.Printf("session: seat map refresh for show=%d failed: %v", s.ShowID, r.err)
		case r.op == opCourtesy:
			// The server expired the lease first, which is the normal case.
			if !errors.Is(r.err, model.ErrConflict) {
				log.Printf("session: courtesy release of %v failed: %v", r.seats, r.err)
			}
		case errors.As(r.err, &ce):
			s.notify(Notice{Kind: NoticeConflict, SeatIDs: r.seats, Message: ce.Message(), Err: r.err})
		case errors.Is(r.err, model.ErrNotFound):
			// The seat map this request was based on is out of date.
			s.notify(Notice{Kind: NoticeError, SeatIDs: r.seats, Message: r.err.Error(), Err: r.err})
			s.refresh(ctx)
		default:
			s.notify(Notice{Kind: NoticeError, SeatIDs: r.seats, Message: r.err.Error(), Err: r.err})
		}
		return
	}
	switch r.op {
	case opHold:
		l := r.lease
		s.mirror.Confirm(model.SeatState{
			SeatID: l.SeatID, Status: model.StatusHeld, UserID: l.UserID, ExpiresAt: l.ExpiresAt, Seq: l.Seq,
		})
		s.notify(Notice{Kind: NoticeHeld, SeatIDs: r.seats, Message: "seat held"})
	case opRelease, opCourtesy:
		s.mirror.Confirm(r.state)
		if r.op == opRelease {
			s.notify(Notice{Kind: NoticeReleased, SeatIDs: r.seats, Message: "seat released"})
		}
	case opReleaseAll:
		// The AVAILABLE states arrive as events; only the marks are cleared.
		s.mirror.Rollback(r.seats...)
		s.notify(Notice{Kind: NoticeReleased, SeatIDs: r.released, Message: "all holds released"})
	case opRefresh:
		s.mirror.Refresh(r.occupied, r.seq)
		s.notify(Notice{Kind: NoticeReady, Message: "seat map refreshed"})
	case opBook:
		b := r.booking
		for _, id := range b.SeatIDs {
			s.mirror.Confirm(model.SeatState{SeatID: id, Status: model.StatusBooked, UserID: b.UserID, Seq: b.Seq})
		}
		s.notify(Notice{Kind: NoticeBooked, SeatIDs: b.SeatIDs, Message: "booking confirmed", Booking: &b})
	}
}

// refresh rereads the occupied seats.  Without a loaded seat map there is
// nothing to merge into and the next snapshot frame does the job.
func (s *Session) refresh(ctx context.Context) {
	if !s.mirror.Ready() {
		return
	}
	s.call(ctx, opRefresh, nil)
}

func (s *Session) onTick(ctx context.Context) {
	_, due := s.countdown.Tick(s.mirror.HeldBy(s.UserID), s.opts.Now())
	for _, st := range due {
		s.notify(Notice{Kind: NoticeExpired, SeatIDs: []string{st.SeatID}, Message: "hold expired"})
		s.call(ctx, opCourtesy, []string{st.SeatID})
	}
}

func (s *Session) view() []SeatView {
	now := s.opts.Now()
	v := s.mirror.View()
	for i := range v {
		if v[i].Status == model.StatusHeld {
			v[i].Remaining = Remaining(v[i].ExpiresAt, now)
		}
	}
	return v
}

func (s *Session) reap() {
	if s.opts.Reaper == nil {
		return
	}
	held := s.mirror.HeldBy(s.UserID)
	ids := make([]string, 0, len(held))
	for _, st := range held {
		ids = append(ids, st.SeatID)
	}
	s.opts.Reaper.Reap(s.ShowID, ids)
}

// notify never blocks the actor; a full buffer drops the notice.
func (s *Session) notify(n Notice) {
	select {
	case s.notices <- n:
	default:
		log.Printf("session: notice buffer full, dropping %s", n.Kind)
	}
}
