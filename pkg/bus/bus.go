package bus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/Makar0n1/art-automation/pkg/log"
	"github.com/Makar0n1/art-automation/pkg/types"
)

// Channel is the single pub/sub channel every process publishes to and
// every api process subscribes to.
const Channel = "socket:events"

// Publisher is the write side of the event bus. Publishing is
// fire-and-forget, at-most-once, best-effort.
type Publisher interface {
	Publish(ctx context.Context, room, event string, data any)
}

// Bus carries room-scoped events across the process group over one Redis
// pub/sub channel.
type Bus struct {
	rdb *redis.Client
}

// New creates a bus on the given Redis client.
func New(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

// Publish sends one event. Failures are logged and dropped; delivery is
// best-effort by contract.
func (b *Bus) Publish(ctx context.Context, room, event string, data any) {
	msg := types.Event{Room: room, Event: event, Data: data}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Logger.Error().Err(err).Str("room", room).Str("event", event).Msg("failed to marshal bus event")
		return
	}
	if err := b.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		log.Logger.Error().Err(err).Str("room", room).Str("event", event).Msg("failed to publish bus event")
	}
}

// Subscribe opens one long-lived subscription and delivers every decoded
// event on the returned channel until ctx is cancelled. Malformed messages
// are dropped.
func (b *Bus) Subscribe(ctx context.Context) <-chan types.Event {
	out := make(chan types.Event, 64)
	sub := b.rdb.Subscribe(ctx, Channel)

	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event types.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Logger.Warn().Err(err).Msg("dropping malformed bus event")
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
