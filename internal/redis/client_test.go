package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client, err := NewClient(&Config{Address: s.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, s
}

func TestNewClientRequiresConfig(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)
}

func TestNewClientUnreachable(t *testing.T) {
	_, err := NewClient(&Config{Address: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestClientHealth(t *testing.T) {
	client, s := testClient(t)
	assert.NoError(t, client.Health())

	s.Close()
	assert.Error(t, client.Health())
}

func TestMarkEventSeen(t *testing.T) {
	client, s := testClient(t)
	ctx := context.Background()

	fresh, err := client.MarkEventSeen(ctx, "ev-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = client.MarkEventSeen(ctx, "ev-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)

	// A different event id is independent
	fresh, err = client.MarkEventSeen(ctx, "ev-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	// Expiry makes the id fresh again
	s.FastForward(2 * time.Minute)
	fresh, err = client.MarkEventSeen(ctx, "ev-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)
}
