package broadcast

import (
	"context"
	"encoding/json"
	"log"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// Relay carries events between server nodes sharing one registry.
type Relay interface {
	// Forward sends a locally committed event to the other nodes.
	Forward(ctx context.Context, ev model.SeatEvent) error
	// Listen blocks, handing every event received from the transport to
	// deliver, until ctx is done or the transport fails.
	Listen(ctx context.Context, deliver func(model.SeatEvent)) error
	Close() error
}

// DefaultChannel is the relay channel or subject name when none is given.
const DefaultChannel = "seats.events"

func encode(ev model.SeatEvent) ([]byte, error) { return json.Marshal(ev) }

func decode(data []byte) (model.SeatEvent, bool) {
	var ev model.SeatEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("broadcast: dropping malformed relay message: %v", err)
		return model.SeatEvent{}, false
	}
	return ev, true
}
