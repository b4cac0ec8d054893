package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeatStateConsistent(t *testing.T) {
	cases := []struct {
		name string
		st   SeatState
		want bool
	}{
		{"available", SeatState{Status: StatusAvailable}, true},
		{"available with owner", SeatState{Status: StatusAvailable, UserID: "u1"}, false},
		{"held", SeatState{Status: StatusHeld, UserID: "u1", ExpiresAt: 1}, true},
		{"held without deadline", SeatState{Status: StatusHeld, UserID: "u1"}, false},
		{"held without owner", SeatState{Status: StatusHeld, ExpiresAt: 1}, false},
		{"booked", SeatState{Status: StatusBooked, UserID: "u1"}, true},
		{"booked with deadline", SeatState{Status: StatusBooked, UserID: "u1", ExpiresAt: 1}, false},
		{"unknown", SeatState{Status: "LOST"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.st.Consistent())
		})
	}
	assert.False(t, SeatStatus("LOST").Valid())
	assert.True(t, StatusBooked.Valid())
}

func TestUnixMillis(t *testing.T) {
	assert.Equal(t, UnixMillis(0), At(time.Time{}))
	assert.True(t, UnixMillis(0).Time().IsZero())

	ts := time.Date(2026, 3, 14, 20, 5, 0, 123_000_000, time.UTC)
	assert.Equal(t, UnixMillis(ts.UnixMilli()), At(ts))
	assert.True(t, ts.Equal(At(ts).Time()))
}

func TestEventShapes(t *testing.T) {
	single := EventFor(42, SeatState{SeatID: "A5", Status: StatusHeld, UserID: "u1", ExpiresAt: 99, Seq: 3})
	assert.Equal(t, "show/42", Topic(single.ShowID))
	assert.False(t, single.Batched())
	assert.Equal(t, []string{"A5"}, single.Seats())
	assert.Equal(t, SeatState{SeatID: "A5", Status: StatusHeld, UserID: "u1", ExpiresAt: 99, Seq: 3}, single.StateFor("A5"))

	// AVAILABLE never carries an owner, whatever the source state says.
	freed := EventFor(42, SeatState{SeatID: "A5", Status: StatusAvailable, UserID: "stale", ExpiresAt: 1, Seq: 4})
	assert.Empty(t, freed.UserID)
	assert.Zero(t, freed.ExpiresAt)

	batch := SeatEvent{ShowID: 42, SeatIDs: []string{"A5", "A6"}, Status: StatusBooked, UserID: "u1", Seq: 5}
	assert.True(t, batch.Batched())
	for _, id := range batch.Seats() {
		st := batch.StateFor(id)
		assert.True(t, st.Consistent())
		assert.Equal(t, uint64(5), st.Seq)
	}
	assert.Nil(t, SeatEvent{}.Seats())
}

func TestEventWireFormat(t *testing.T) {
	data, err := json.Marshal(SeatEvent{ShowID: 42, SeatIDs: []string{"A5", "A6"}, Status: StatusBooked, UserID: "u1", Seq: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"showId":42,"seatNumbers":["A5","A6"],"status":"BOOKED","userId":"u1","seq":5}`, string(data))

	data, err = json.Marshal(EventFor(42, SeatState{SeatID: "A5", Status: StatusAvailable, Seq: 6}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"showId":42,"seatNumber":"A5","status":"AVAILABLE","seq":6}`, string(data))
}

func TestSnapshotOccupied(t *testing.T) {
	snap := Snapshot{ShowID: 42, Seq: 7, Seats: []SeatState{
		{SeatID: "A1", Status: StatusAvailable},
		{SeatID: "A2", Status: StatusHeld, UserID: "u1", ExpiresAt: 1},
		{SeatID: "A3", Status: StatusBooked, UserID: "u2"},
	}}
	occ := snap.Occupied()
	require.Len(t, occ, 2)
	assert.Equal(t, "A2", occ[0].SeatID)
	assert.Equal(t, "A3", occ[1].SeatID)
}

func TestErrors(t *testing.T) {
	var err error = fmt.Errorf("hold: %w", &ConflictError{SeatID: "A5", Reason: ReasonHeld})
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "seat is already held", ce.Message())
	assert.Equal(t, "seat A5: seat is already held", ce.Error())
	assert.Equal(t, "seat is unavailable", (&ConflictError{Reason: "other"}).Message())

	err = &NotFoundError{ShowID: 42, SeatID: "Q1"}
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "seat Q1 not found in show 42", err.Error())
	assert.Equal(t, "show 7 not found", (&NotFoundError{ShowID: 7}).Error())
}
