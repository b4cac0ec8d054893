package client

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// StreamMsg is what a Stream hands to its owner: a frame, or a change in
// connection state (Frame nil).
type StreamMsg struct {
	Frame     *model.Frame
	Connected bool
	Err       error
}

// Stream keeps a push channel open, reconnecting with exponential backoff.
// Every (re)connect starts with a fresh snapshot frame.
type Stream struct {
	URL    string
	Dialer *websocket.Dialer

	// newBackOff is replaceable in tests.
	newBackOff func() backoff.BackOff
}

// NewStream returns a stream for the given ws:// URL.
func NewStream(url string) *Stream {
	return &Stream{
		URL:    url,
		Dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 15 * time.Second
			b.MaxElapsedTime = 0 // retry forever
			return b
		},
	}
}

// Run delivers messages to out until ctx is done.
func (s *Stream) Run(ctx context.Context, out chan<- StreamMsg) {
	b := s.newBackOff()
	for ctx.Err() == nil {
		conn, _, err := s.Dialer.DialContext(ctx, s.URL, nil)
		if err != nil {
			if !s.send(ctx, out, StreamMsg{Err: err}) || !wait(ctx, b.NextBackOff()) {
				return
			}
			continue
		}
		b.Reset()
		if !s.send(ctx, out, StreamMsg{Connected: true}) {
			conn.Close()
			return
		}
		err = s.read(ctx, conn, out)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		if !s.send(ctx, out, StreamMsg{Err: err}) || !wait(ctx, b.NextBackOff()) {
			return
		}
	}
}

func (s *Stream) read(ctx context.Context, conn *websocket.Conn, out chan<- StreamMsg) error {
	// Unblock ReadMessage when ctx ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f model.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("stream: dropping malformed frame: %v", err)
			continue
		}
		if !s.send(ctx, out, StreamMsg{Frame: &f}) {
			return ctx.Err()
		}
	}
}

func (s *Stream) send(ctx context.Context, out chan<- StreamMsg, m StreamMsg) bool {
	select {
	case out <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
