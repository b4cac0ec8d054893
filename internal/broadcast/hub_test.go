package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

func recv(t *testing.T, sub *Subscription) model.SeatEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed: %v", sub.Err())
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return model.SeatEvent{}
}

func TestPublishReachesTopicSubscribersInOrder(t *testing.T) {
	h := NewHub(Options{Origin: "node-a"})
	a, err := h.Subscribe(42)
	require.NoError(t, err)
	b, err := h.Subscribe(42)
	require.NoError(t, err)
	other, err := h.Subscribe(7)
	require.NoError(t, err)

	for seq := uint64(1); seq <= 3; seq++ {
		h.Publish(42, model.SeatEvent{SeatID: "A5", Status: model.StatusHeld, UserID: "u1", Seq: seq})
	}

	for _, sub := range []*Subscription{a, b} {
		for seq := uint64(1); seq <= 3; seq++ {
			ev := recv(t, sub)
			assert.Equal(t, seq, ev.Seq)
			assert.Equal(t, int64(42), ev.ShowID)
			assert.Equal(t, "node-a", ev.Origin)
		}
	}
	assert.Empty(t, other.C)
	assert.Equal(t, "show/42", a.Topic)
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	h := NewHub(Options{})
	h.Publish(42, model.SeatEvent{SeatID: "A1", Status: model.StatusHeld, Seq: 1})

	sub, err := h.Subscribe(42)
	require.NoError(t, err)
	h.Publish(42, model.SeatEvent{SeatID: "A1", Status: model.StatusAvailable, Seq: 2})
	assert.Equal(t, uint64(2), recv(t, sub).Seq)
}

func TestLaggingSubscriberIsCutOff(t *testing.T) {
	h := NewHub(Options{Buffer: 2})
	slow, err := h.Subscribe(42)
	require.NoError(t, err)
	fast, err := h.Subscribe(42)
	require.NoError(t, err)

	for seq := uint64(1); seq <= 3; seq++ {
		h.Publish(42, model.SeatEvent{SeatID: "A1", Status: model.StatusHeld, Seq: seq})
		if seq < 3 {
			recv(t, fast)
		}
	}
	recv(t, fast)

	var got int
	for range slow.C {
		got++
	}
	assert.Equal(t, 2, got)
	assert.ErrorIs(t, slow.Err(), ErrLagging)
	assert.NoError(t, fast.Err())
	assert.Equal(t, 1, h.Subscribers(42))
}

func TestCloseSubscription(t *testing.T) {
	h := NewHub(Options{})
	sub, err := h.Subscribe(42)
	require.NoError(t, err)
	sub.Close()
	sub.Close()

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.NoError(t, sub.Err())
	assert.Equal(t, 0, h.Subscribers(42))

	// Publishing to an empty topic is fine.
	h.Publish(42, model.SeatEvent{SeatID: "A1", Status: model.StatusHeld, Seq: 1})
}

func TestHubClose(t *testing.T) {
	h := NewHub(Options{})
	sub, err := h.Subscribe(42)
	require.NoError(t, err)
	h.Close()

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.ErrorIs(t, sub.Err(), ErrClosed)

	_, err = h.Subscribe(42)
	assert.ErrorIs(t, err, ErrClosed)
}

// bus is an in-process relay network.
type bus struct {
	mu        sync.Mutex
	listeners map[int]func(model.SeatEvent)
	next      int
}

func (b *bus) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

type busRelay struct{ b *bus }

func (r busRelay) Forward(_ context.Context, ev model.SeatEvent) error {
	r.b.mu.Lock()
	ls := make([]func(model.SeatEvent), 0, len(r.b.listeners))
	for _, l := range r.b.listeners {
		ls = append(ls, l)
	}
	r.b.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
	return nil
}

func (r busRelay) Listen(ctx context.Context, deliver func(model.SeatEvent)) error {
	r.b.mu.Lock()
	id := r.b.next
	r.b.next++
	r.b.listeners[id] = deliver
	r.b.mu.Unlock()
	<-ctx.Done()
	r.b.mu.Lock()
	delete(r.b.listeners, id)
	r.b.mu.Unlock()
	return ctx.Err()
}

func (busRelay) Close() error { return nil }

func TestRelayFansOutAcrossNodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	net := &bus{listeners: make(map[int]func(model.SeatEvent))}
	a := NewHub(Options{Origin: "a", Relay: busRelay{net}})
	b := NewHub(Options{Origin: "b", Relay: busRelay{net}})
	go a.Run(ctx)
	go b.Run(ctx)
	require.Eventually(t, func() bool { return net.size() == 2 }, time.Second, 5*time.Millisecond)

	subA, err := a.Subscribe(42)
	require.NoError(t, err)
	subB, err := b.Subscribe(42)
	require.NoError(t, err)

	a.Publish(42, model.SeatEvent{SeatID: "A5", Status: model.StatusHeld, UserID: "u1", Seq: 1})

	assert.Equal(t, "a", recv(t, subA).Origin)
	ev := recv(t, subB)
	assert.Equal(t, "a", ev.Origin)
	assert.Equal(t, uint64(1), ev.Seq)

	// Node a must not see its own echo a second time.
	select {
	case dup := <-subA.C:
		t.Fatalf("unexpected echo %+v", dup)
	case <-time.After(50 * time.Millisecond):
	}
}

// flakyRelay fails its first Listen the way an unreachable broker does.
type flakyRelay struct {
	busRelay
	mu      sync.Mutex
	listens int
}

func (r *flakyRelay) Listen(ctx context.Context, deliver func(model.SeatEvent)) error {
	r.mu.Lock()
	r.listens++
	n := r.listens
	r.mu.Unlock()
	if n == 1 {
		return errors.New("dial tcp: connection refused")
	}
	return r.busRelay.Listen(ctx, deliver)
}

func (r *flakyRelay) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listens
}

func TestRunRetriesFailedListen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	net := &bus{listeners: make(map[int]func(model.SeatEvent))}
	flaky := &flakyRelay{busRelay: busRelay{net}}
	a := NewHub(Options{Origin: "a", Relay: busRelay{net}})
	b := NewHub(Options{Origin: "b", Relay: flaky})
	b.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) }

	go a.Run(ctx)
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return net.size() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, flaky.calls())

	subB, err := b.Subscribe(42)
	require.NoError(t, err)
	a.Publish(42, model.SeatEvent{SeatID: "A5", Status: model.StatusHeld, UserID: "u1", ExpiresAt: 1, Seq: 1})
	assert.Equal(t, "a", recv(t, subB).Origin)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
