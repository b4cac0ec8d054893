package broadcast

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// RedisRelay uses Redis pub/sub as the cross-node transport.
type RedisRelay struct {
	rdb     redis.UniversalClient
	channel string
}

// NewRedisRelay returns a relay over rdb.  The client is owned by the caller.
func NewRedisRelay(rdb redis.UniversalClient, channel string) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{rdb: rdb, channel: channel}
}

func (r *RedisRelay) Forward(ctx context.Context, ev model.SeatEvent) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, payload).Err()
}

func (r *RedisRelay) Listen(ctx context.Context, deliver func(model.SeatEvent)) error {
	ps := r.rdb.Subscribe(ctx, r.channel)
	defer ps.Close()
	// Wait for the subscription to be confirmed before reading.
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if ev, ok := decode([]byte(msg.Payload)); ok {
				deliver(ev)
			}
		}
	}
}

func (r *RedisRelay) Close() error { return nil }
