package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay publishes through a Redis channel so every server instance sees
// every change. Versions come from INCR on a shared key, which keeps them
// monotonic across instances.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	versionKey string
	hub        *Hub
	logger     *zap.Logger
}

// NewRedisRelay builds a relay feeding hub. Call Run to start receiving.
func NewRedisRelay(client *redis.Client, channel, versionKey string, hub *Hub, logger *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = "library:events"
	}
	if versionKey == "" {
		versionKey = channel + ":version"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{client: client, channel: channel, versionKey: versionKey, hub: hub, logger: logger}
}

// Publish stamps the change with the next shared version and publishes it.
// Local subscribers receive it through Run like everyone else.
func (r *RedisRelay) Publish(ctx context.Context, kind string, data any) (Event, error) {
	raw, err := encode(data)
	if err != nil {
		return Event{}, err
	}
	v, err := r.client.Incr(ctx, r.versionKey).Result()
	if err != nil {
		return Event{}, fmt.Errorf("next event version: %w", err)
	}
	evt := Event{Version: uint64(v), Kind: kind, At: time.Now().UTC(), Data: raw}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Event{}, fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return Event{}, fmt.Errorf("publish event: %w", err)
	}
	return evt, nil
}

// Run relays channel messages into the hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	// start from the shared version so the first event is not mistaken for a gap
	if v, err := r.client.Get(ctx, r.versionKey).Uint64(); err == nil {
		r.hub.Advance(v)
	} else if !errors.Is(err, redis.Nil) {
		r.logger.Warn("read event version failed", zap.Error(err))
	}
	r.logger.Info("relaying library events from redis", zap.String("channel", r.channel))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				r.logger.Warn("bad event payload", zap.Error(err))
				continue
			}
			r.hub.Deliver(evt)
		}
	}
}
