package lock_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alejandrodnm/polyledger/internal/adapters/lock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	rdb, err := lock.Dial(ctx, url)
	require.NoError(t, err)
	defer rdb.Close()

	locker := lock.NewRedisLocker(rdb, 5*time.Second)
	key := "test-" + uuid.New().String()

	unlock, ok, err := locker.TryLock(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	require.NoError(t, unlock(ctx))

	unlock2, ok, err := locker.TryLock(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, unlock2(ctx))
}

func TestDial_BadURL(t *testing.T) {
	_, err := lock.Dial(context.Background(), "://nope")
	assert.Error(t, err)
}
