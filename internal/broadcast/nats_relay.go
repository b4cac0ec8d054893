package broadcast

import (
	"context"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// NATSRelay uses a plain NATS subject as the cross-node transport.
type NATSRelay struct {
	nc      *nats.Conn
	subject string
}

// DialNATS connects with unlimited reconnects.
func DialNATS(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("broadcast: nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("broadcast: nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
}

// NewNATSRelay returns a relay over nc.  Close closes nc.
func NewNATSRelay(nc *nats.Conn, subject string) *NATSRelay {
	if subject == "" {
		subject = DefaultChannel
	}
	return &NATSRelay{nc: nc, subject: subject}
}

func (r *NATSRelay) Forward(_ context.Context, ev model.SeatEvent) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	return r.nc.Publish(r.subject, payload)
}

func (r *NATSRelay) Listen(ctx context.Context, deliver func(model.SeatEvent)) error {
	sub, err := r.nc.Subscribe(r.subject, func(msg *nats.Msg) {
		if ev, ok := decode(msg.Data); ok {
			deliver(ev)
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	<-ctx.Done()
	return ctx.Err()
}

func (r *NATSRelay) Close() error {
	r.nc.Close()
	return nil
}
