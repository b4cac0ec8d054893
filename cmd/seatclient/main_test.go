package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-sync/internal/client"
	"github.com/iliyamo/cinema-seat-sync/internal/model"
	"github.com/iliyamo/cinema-seat-sync/internal/utils"
)

func TestIdentity(t *testing.T) {
	_, _, err := identity("", "", "")
	assert.Error(t, err)

	user, tok, err := identity("", "s3cret", "u7")
	require.NoError(t, err)
	assert.Equal(t, "u7", user)
	id, err := utils.ParseUserID("s3cret", tok)
	require.NoError(t, err)
	assert.Equal(t, "u7", id)

	user, same, err := identity(tok, "s3cret", "")
	require.NoError(t, err)
	assert.Equal(t, "u7", user)
	assert.Equal(t, tok, same)

	_, _, err = identity(tok, "other", "")
	assert.Error(t, err)
}

func TestPrintSeats(t *testing.T) {
	view := []client.SeatView{
		{SeatState: model.SeatState{SeatID: "A1", Status: model.StatusAvailable}},
		{SeatState: model.SeatState{SeatID: "A2", Status: model.StatusHeld, UserID: "me", ExpiresAt: 1}, Remaining: 125},
		{SeatState: model.SeatState{SeatID: "A3", Status: model.StatusHeld, UserID: "you", ExpiresAt: 1}, Remaining: 30},
		{SeatState: model.SeatState{SeatID: "B1", Status: model.StatusBooked, UserID: "you"}},
		{SeatState: model.SeatState{SeatID: "B2", Status: model.StatusAvailable}, Pending: client.PendingHold},
	}
	var out bytes.Buffer
	printSeats(&out, view, "me")
	assert.Equal(t, "A   .hH\nB   x?\nheld: A2 2:05\n", out.String())

	out.Reset()
	printSeats(&out, nil, "me")
	assert.Equal(t, "no seat map yet\n", out.String())
}

func TestDispatch(t *testing.T) {
	sess := client.NewSession(42, "me", client.NewAPI("http://127.0.0.1:1", ""), client.NewStream("ws://127.0.0.1:1/ws"), client.SessionOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sess.Run(ctx)

	var out bytes.Buffer
	assert.True(t, dispatch(sess, "", &out))
	assert.True(t, dispatch(sess, "clear", &out))
	assert.Empty(t, out.String())

	assert.True(t, dispatch(sess, "clear A1", &out))
	assert.Equal(t, usage, out.String())

	out.Reset()
	assert.True(t, dispatch(sess, "seats", &out))
	assert.Equal(t, "no seat map yet\n", out.String())

	assert.False(t, dispatch(sess, "QUIT", &out))
}
