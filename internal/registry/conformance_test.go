package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// runConformance exercises the Registry contract against any backend.  The
// factory must return an empty registry.
func runConformance(t *testing.T, newRegistry func(t *testing.T) Registry) {
	ctx := context.Background()
	seats := []model.Seat{{ID: "A5", Tier: "STANDARD"}, {ID: "A6", Tier: "STANDARD"}, {ID: "B1", Tier: "VIP"}}
	now := time.Now().UTC().Truncate(time.Millisecond)
	deadline := now.Add(5 * time.Minute)

	setup := func(t *testing.T) Registry {
		r := newRegistry(t)
		require.NoError(t, r.Provision(ctx, 42, seats))
		return r
	}

	t.Run("provision is idempotent", func(t *testing.T) {
		r := setup(t)
		_, err := r.Hold(ctx, 42, "A5", "alice", deadline)
		require.NoError(t, err)
		require.NoError(t, r.Provision(ctx, 42, seats))

		snap, err := r.Snapshot(ctx, 42)
		require.NoError(t, err)
		require.Len(t, snap.Seats, 3)
		assert.Equal(t, model.StatusHeld, snap.Seats[0].Status)
		assert.Equal(t, "VIP", snap.Seats[2].Tier)

		shows, err := r.Shows(ctx)
		require.NoError(t, err)
		assert.Contains(t, shows, int64(42))
	})

	t.Run("unknown show and seat", func(t *testing.T) {
		r := setup(t)
		_, err := r.Snapshot(ctx, 7)
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = r.Hold(ctx, 42, "Z9", "alice", deadline)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("hold then second hold conflicts", func(t *testing.T) {
		r := setup(t)
		st, err := r.Hold(ctx, 42, "A5", "alice", deadline)
		require.NoError(t, err)
		assert.True(t, st.Consistent())
		assert.Equal(t, model.At(deadline), st.ExpiresAt)

		_, err = r.Hold(ctx, 42, "A5", "bob", deadline)
		var ce *model.ConflictError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, model.ReasonHeld, ce.Reason)

		// Same owner does not renew.
		_, err = r.Hold(ctx, 42, "A5", "alice", deadline.Add(time.Minute))
		assert.ErrorIs(t, err, model.ErrConflict)
		snap, err := r.Snapshot(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, model.At(deadline), snap.Seats[0].ExpiresAt)
	})

	t.Run("release rules", func(t *testing.T) {
		r := setup(t)
		_, err := r.Release(ctx, 42, "A5", "alice")
		assert.ErrorIs(t, err, model.ErrConflict)

		_, err = r.Hold(ctx, 42, "A5", "alice", deadline)
		require.NoError(t, err)
		_, err = r.Release(ctx, 42, "A5", "bob")
		assert.ErrorIs(t, err, model.ErrConflict)

		st, err := r.Release(ctx, 42, "A5", "alice")
		require.NoError(t, err)
		assert.Equal(t, model.StatusAvailable, st.Status)
		assert.True(t, st.Consistent())
	})

	t.Run("book is all or nothing", func(t *testing.T) {
		r := setup(t)
		_, err := r.Hold(ctx, 42, "A5", "alice", deadline)
		require.NoError(t, err)
		before, err := r.Snapshot(ctx, 42)
		require.NoError(t, err)

		_, err = r.Book(ctx, 42, []string{"A5", "A6"}, "alice", now)
		var ce *model.ConflictError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "A6", ce.SeatID)

		after, err := r.Snapshot(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("book succeeds and is terminal", func(t *testing.T) {
		r := setup(t)
		h1, err := r.Hold(ctx, 42, "A5", "alice", deadline)
		require.NoError(t, err)
		_, err = r.Hold(ctx, 42, "A6", "alice", deadline)
		require.NoError(t, err)

		booked, err := r.Book(ctx, 42, []string{"A5", "A6"}, "alice", now)
		require.NoError(t, err)
		require.Len(t, booked, 2)
		for _, st := range booked {
			assert.Equal(t, model.StatusBooked, st.Status)
			assert.True(t, st.Consistent())
			assert.Greater(t, st.Seq, h1.Seq)
		}

		_, err = r.Release(ctx, 42, "A5", "alice")
		assert.ErrorIs(t, err, model.ErrConflict)
		_, err = r.Hold(ctx, 42, "A6", "bob", deadline)
		assert.ErrorIs(t, err, model.ErrConflict)
		_, ok, err := r.Expire(ctx, 42, "A5", booked[0].Seq, deadline.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("book after deadline is rejected", func(t *testing.T) {
		r := setup(t)
		_, err := r.Hold(ctx, 42, "A5", "alice", deadline)
		require.NoError(t, err)
		_, err = r.Book(ctx, 42, []string{"A5"}, "alice", deadline)
		var ce *model.ConflictError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, model.ReasonExpired, ce.Reason)
	})

	t.Run("expire honours generation and deadline", func(t *testing.T) {
		r := setup(t)
		held, err := r.Hold(ctx, 42, "A5", "alice", deadline)
		require.NoError(t, err)

		_, ok, err := r.Expire(ctx, 42, "A5", held.Seq, now)
		require.NoError(t, err)
		assert.False(t, ok, "not due yet")

		_, ok, err = r.Expire(ctx, 42, "A5", held.Seq+100, deadline)
		require.NoError(t, err)
		assert.False(t, ok, "stale generation")

		st, ok, err := r.Expire(ctx, 42, "A5", held.Seq, deadline)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, model.StatusAvailable, st.Status)

		_, err = r.Hold(ctx, 42, "A5", "bob", deadline.Add(time.Minute))
		assert.NoError(t, err)
	})

	t.Run("snapshot seq covers committed seats", func(t *testing.T) {
		r := setup(t)
		a, err := r.Hold(ctx, 42, "A5", "alice", deadline)
		require.NoError(t, err)
		b, err := r.Hold(ctx, 42, "B1", "bob", deadline)
		require.NoError(t, err)
		assert.Greater(t, b.Seq, a.Seq)

		snap, err := r.Snapshot(ctx, 42)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, snap.Seq, b.Seq)
		assert.Len(t, snap.Occupied(), 2)
	})

	t.Run("concurrent holds admit one winner", func(t *testing.T) {
		r := setup(t)
		const racers = 32
		var wg sync.WaitGroup
		var mu sync.Mutex
		winners := []string{}
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(user string) {
				defer wg.Done()
				if _, err := r.Hold(ctx, 42, "A6", user, deadline); err == nil {
					mu.Lock()
					winners = append(winners, user)
					mu.Unlock()
				}
			}(string(rune('a' + i)))
		}
		wg.Wait()
		require.Len(t, winners, 1)

		snap, err := r.Snapshot(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, winners[0], snap.Seats[1].UserID)
	})
}
