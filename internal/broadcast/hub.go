// Package broadcast fans committed seat transitions out to the subscribers
// of a show's topic.  Delivery is at-most-once: a subscriber that cannot keep
// up is cut off rather than allowed to slow down the publisher.
package broadcast

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// ErrLagging is reported by a subscription whose buffer overflowed.  The
// subscriber has missed events and must resnapshot.
var ErrLagging = errors.New("subscriber lagging")

// ErrClosed is returned once the hub has shut down.
var ErrClosed = errors.New("broadcast hub closed")

const (
	defaultBuffer = 64
	outboxSize    = 1024
	// A Listen that ran at least this long counts as healthy and resets
	// the retry backoff.
	healthyListen = time.Minute
)

// Options configures a Hub.
type Options struct {
	Buffer int    // per-subscriber channel capacity
	Origin string // node id stamped on local events; random when empty
	Relay  Relay  // optional cross-node transport
}

// Hub is an in-process topic router.  One topic exists per show.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscription
	closed bool

	buffer int
	origin string
	relay  Relay
	outbox chan model.SeatEvent

	newBackOff func() backoff.BackOff
}

// NewHub returns a ready hub.  When a relay is set, Run must be started to
// move events between nodes.
func NewHub(opts Options) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}
	h := &Hub{
		topics: make(map[string]map[string]*Subscription),
		buffer: opts.Buffer,
		origin: opts.Origin,
		relay:  opts.Relay,

		newBackOff: relayBackOff,
	}
	if h.relay != nil {
		h.outbox = make(chan model.SeatEvent, outboxSize)
	}
	return h
}

// Origin returns the node id of this hub.
func (h *Hub) Origin() string { return h.origin }

// Publish delivers ev to every current subscriber of the show's topic and
// queues it for the relay.  It never blocks.
func (h *Hub) Publish(showID int64, ev model.SeatEvent) {
	ev.ShowID = showID
	if ev.Origin == "" {
		ev.Origin = h.origin
	}
	h.deliver(ev)
	if h.outbox != nil {
		select {
		case h.outbox <- ev:
		default:
			log.Printf("broadcast: relay outbox full, dropping show=%d seq=%d", showID, ev.Seq)
		}
	}
}

func (h *Hub) deliver(ev model.SeatEvent) {
	topic := model.Topic(ev.ShowID)
	var laggards []*Subscription

	h.mu.RLock()
	for _, sub := range h.topics[topic] {
		select {
		case sub.ch <- ev:
		default:
			laggards = append(laggards, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range laggards {
		log.Printf("broadcast: cutting off lagging subscriber %s on %s", sub.ID, topic)
		h.remove(sub, ErrLagging)
	}
}

// Subscribe registers a new subscriber on the show's topic.  Events
// published before the call are not delivered.
func (h *Hub) Subscribe(showID int64) (*Subscription, error) {
	ch := make(chan model.SeatEvent, h.buffer)
	sub := &Subscription{ID: uuid.NewString(), Topic: model.Topic(showID), C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	subs, ok := h.topics[sub.Topic]
	if !ok {
		subs = make(map[string]*Subscription)
		h.topics[sub.Topic] = subs
	}
	subs[sub.ID] = sub
	return sub, nil
}

// Subscribers returns the number of live subscribers of a show.
func (h *Hub) Subscribers(showID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[model.Topic(showID)])
}

// remove detaches sub and closes its channel.  It is a no-op when sub is
// already gone.
func (h *Hub) remove(sub *Subscription, cause error) {
	h.mu.Lock()
	subs := h.topics[sub.Topic]
	if _, ok := subs[sub.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(subs, sub.ID)
	if len(subs) == 0 {
		delete(h.topics, sub.Topic)
	}
	sub.setErr(cause)
	close(sub.ch)
	h.mu.Unlock()
}

// Run pumps events through the relay until ctx is done.  Without a relay it
// just waits.  Local events go out in publish order; remote events that carry
// this hub's origin are dropped.  A failed Listen is retried with exponential
// backoff for as long as ctx is live, so a node that lost its transport
// rejoins the others once it comes back.
func (h *Hub) Run(ctx context.Context) error {
	if h.relay == nil {
		<-ctx.Done()
		return nil
	}
	go h.forward(ctx)

	b := h.newBackOff()
	for {
		started := time.Now()
		err := h.relay.Listen(ctx, h.receive)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > healthyListen {
			b.Reset()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		log.Printf("broadcast: relay listen stopped: %v; retrying in %s", err, wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (h *Hub) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.outbox:
			if err := h.relay.Forward(ctx, ev); err != nil && ctx.Err() == nil {
				log.Printf("broadcast: relay forward show=%d seq=%d failed: %v", ev.ShowID, ev.Seq, err)
			}
		}
	}
}

func (h *Hub) receive(ev model.SeatEvent) {
	if ev.Origin == h.origin {
		return
	}
	h.deliver(ev)
}

func relayBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // retry forever
	return b
}

// Close cuts off every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Subscription
	for _, subs := range h.topics {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()
	for _, sub := range all {
		h.remove(sub, ErrClosed)
	}
	if h.relay != nil {
		if err := h.relay.Close(); err != nil {
			log.Printf("broadcast: relay close: %v", err)
		}
	}
}

// Subscription is one subscriber's view of a topic.  C is closed when the
// subscription ends; Err then tells why.
type Subscription struct {
	ID    string
	Topic string
	C     <-chan model.SeatEvent

	ch  chan model.SeatEvent
	hub *Hub

	mu  sync.Mutex
	err error
}

// Close unsubscribes.  It is safe to call more than once.
func (s *Subscription) Close() { s.hub.remove(s, nil) }

// Err returns ErrLagging or ErrClosed when the hub ended the subscription,
// nil otherwise.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
