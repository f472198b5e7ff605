//go:build integration

package broadcast

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRelay_RoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err())

	channel := "library:test:" + uuid.NewString()
	hub := NewHub(8, nil)
	relay := NewRedisRelay(client, channel, "", hub, nil)
	t.Cleanup(func() { client.Del(context.Background(), channel+":version") })

	go func() { _ = relay.Run(ctx) }()
	events := hub.Subscribe(ctx, 0)

	// give the subscription time to register before publishing
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, channel).Result()
		return err == nil && n[channel] > 0
	}, 5*time.Second, 50*time.Millisecond)

	first, err := relay.Publish(ctx, KindSignIn, map[string]string{"user_id": "1"})
	require.NoError(t, err)
	second, err := relay.Publish(ctx, KindSignOut, map[string]string{"user_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, first.Version+1, second.Version)

	assert.Equal(t, first.Version, recv(t, events).Version)
	assert.Equal(t, second.Version, recv(t, events).Version)
}
