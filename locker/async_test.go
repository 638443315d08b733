package locker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
		return Result{}
	}
}

func TestAsyncMatchesBlockingCalls(t *testing.T) {
	w, _ := newRedisWarlock(t)
	ctx := context.Background()

	first := receive(t, w.LockAsync(ctx, "future", time.Second))
	require.NoError(t, first.Err)
	require.True(t, first.Acquired)
	require.NotNil(t, first.Lease)

	second := receive(t, w.LockAsync(ctx, "future", time.Second))
	require.NoError(t, second.Err)
	assert.False(t, second.Acquired)
	assert.Nil(t, second.Lease)

	busy := receive(t, w.OptimisticAsync(ctx, "future", time.Second, 2, time.Millisecond))
	assert.ErrorIs(t, busy.Err, ErrLockUnavailable)
	assert.False(t, busy.Acquired)

	released := receive(t, w.UnlockAsync(ctx, "future", first.Lease.Token))
	require.NoError(t, released.Err)
	assert.True(t, released.Released)

	got := receive(t, w.OptimisticAsync(ctx, "future", time.Second, 2, time.Millisecond))
	require.NoError(t, got.Err)
	assert.True(t, got.Acquired)
}

func TestCallbacks(t *testing.T) {
	w, _ := newRedisWarlock(t)
	ctx := context.Background()

	leases := make(chan *Lease, 1)
	w.LockCallback(ctx, "cb", time.Second, func(lease *Lease, ok bool, err error) {
		assert.NoError(t, err)
		assert.True(t, ok)
		leases <- lease
	})
	lease := <-leases
	require.NotNil(t, lease)

	errs := make(chan error, 1)
	w.OptimisticCallback(ctx, "cb", time.Second, 1, 0, func(l *Lease, err error) {
		assert.Nil(t, l)
		errs <- err
	})
	assert.ErrorIs(t, <-errs, ErrLockUnavailable)

	released := make(chan bool, 1)
	w.UnlockCallback(ctx, "cb", lease.Token, func(deleted bool, err error) {
		assert.NoError(t, err)
		released <- deleted
	})
	assert.True(t, <-released)
}

func TestAsyncRecoversPanic(t *testing.T) {
	r := receive(t, async(func() Result { panic("boom") }))
	assert.ErrorContains(t, r.Err, "boom")
}

func TestInvalidArgumentThroughAsync(t *testing.T) {
	w, _ := newRedisWarlock(t)

	r := receive(t, w.LockAsync(context.Background(), "", time.Second))
	assert.ErrorIs(t, r.Err, ErrInvalidArgument)
}
