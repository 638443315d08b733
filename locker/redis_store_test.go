package locker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStorePrimitives(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(LockerConfig{Address: mr.Addr(), DialTimeout: time.Second})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	ok, err := store.ConditionalSet(ctx, "k", "v1", 250*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, mr.TTL("k"))

	ok, err = store.ConditionalSet(ctx, "k", "v2", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := store.CompareAndDelete(ctx, "k", "v2")
	require.NoError(t, err)
	assert.False(t, deleted)
	mr.CheckGet(t, "k", "v1")

	deleted, err = store.CompareAndDelete(ctx, "k", "v1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, mr.Exists("k"))
}

func TestRedisStoreCompareAndDeleteOnWrongType(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(LockerConfig{Address: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client)

	_, err := mr.Lpush("list", "x")
	require.NoError(t, err)

	_, err = store.CompareAndDelete(context.Background(), "list", "x")
	assert.Error(t, err)
}
