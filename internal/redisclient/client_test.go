package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepLockIsExclusive(t *testing.T) {
	// Integration test - requires a running Redis
	t.Skip("Integration test - requires redis")

	client, err := NewClient("localhost:6379", "", 15)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	token, err := client.AcquireLock(ctx, "test-sweep", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	other, err := client.AcquireLock(ctx, "test-sweep", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, other)

	// a stale token must not release someone else's lock
	require.NoError(t, client.ReleaseLock(ctx, "test-sweep", "stale"))
	other, err = client.AcquireLock(ctx, "test-sweep", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, client.ReleaseLock(ctx, "test-sweep", token))
	again, err := client.AcquireLock(ctx, "test-sweep", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, again)
	require.NoError(t, client.ReleaseLock(ctx, "test-sweep", again))
}

func TestIdempotencyKeys(t *testing.T) {
	// Integration test - requires a running Redis
	t.Skip("Integration test - requires redis")

	client, err := NewClient("localhost:6379", "", 15)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	exists, err := client.CheckIdempotencyKey(ctx, "event:missing")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, client.SetIdempotencyKey(ctx, "event:e1", time.Now().Unix(), time.Minute))
	exists, err = client.CheckIdempotencyKey(ctx, "event:e1")
	require.NoError(t, err)
	assert.True(t, exists)
}
