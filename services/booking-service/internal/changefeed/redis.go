package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel shared by all replicas.
const DefaultChannel = "slotbook:changes:appointments"

// RedisBridge relays events between replicas. Publish writes to Redis; Run
// delivers everything received on the channel, including this node's own
// events, to the local hub.
type RedisBridge struct {
	rdb     redis.UniversalClient
	channel string
	hub     *Hub
	logger  *slog.Logger
	sub     *redis.PubSub
}

func NewRedisBridge(rdb redis.UniversalClient, channel string, hub *Hub, logger *slog.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBridge{rdb: rdb, channel: channel, hub: hub, logger: logger}
}

// Subscribe opens the subscription and waits for Redis to confirm it.
func (b *RedisBridge) Subscribe(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	b.sub = sub
	return nil
}

// Run relays messages until ctx is done. Subscribe must have succeeded.
func (b *RedisBridge) Run(ctx context.Context) error {
	if b.sub == nil {
		return errors.New("changefeed: redis bridge not subscribed")
	}
	defer b.sub.Close()

	ch := b.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				b.logger.Warn("discarding malformed change event", "err", err)
				continue
			}
			b.hub.Publish(ctx, e)
		}
	}
}

// Publish sends e to every replica. If Redis is unreachable the event is
// still delivered to local observers.
func (b *RedisBridge) Publish(ctx context.Context, e Event) {
	body, err := json.Marshal(e)
	if err == nil {
		err = b.rdb.Publish(ctx, b.channel, body).Err()
	}
	if err != nil {
		b.logger.Warn("redis publish failed, delivering locally", "err", err, "appointment_id", e.AppointmentID)
		b.hub.Publish(ctx, e)
	}
}

func (b *RedisBridge) ReadyCheck(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}
