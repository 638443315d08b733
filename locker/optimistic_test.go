package locker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimisticExhaustsAttempts(t *testing.T) {
	hooks := newRecordingHooks()
	w, _ := newRedisWarlock(t, WithHooks(hooks))
	ctx := context.Background()

	_, ok, err := w.Lock(ctx, "busy", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	store := &countingStore{Store: w.store}
	w.store = store
	var waits []time.Duration
	w.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	lease, err := w.Optimistic(ctx, "busy", time.Second, 3, 25*time.Millisecond)
	assert.Nil(t, lease)
	require.ErrorIs(t, err, ErrLockUnavailable)

	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 3, ue.MaxAttempts)
	assert.Equal(t, "busy", ue.Name)
	assert.Equal(t, time.Second, ue.TTL)
	assert.Equal(t, 25*time.Millisecond, ue.Wait)

	assert.Equal(t, int32(3), store.sets.Load())
	assert.Equal(t, []time.Duration{25 * time.Millisecond, 25 * time.Millisecond}, waits)
	assert.Equal(t, 3, hooks.unavailable["busy"])
}

func TestOptimisticRealDelay(t *testing.T) {
	w, _ := newRedisWarlock(t)
	ctx := context.Background()

	_, ok, err := w.Lock(ctx, "slow", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	start := time.Now()
	_, err = w.Optimistic(ctx, "slow", time.Second, 3, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockUnavailable)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestOptimisticAcquiresOnFirstTry(t *testing.T) {
	w, _ := newRedisWarlock(t)
	w.wait = func(context.Context, time.Duration) error {
		t.Fatal("must not wait when the lock is free")
		return nil
	}

	lease, err := w.Optimistic(context.Background(), "free", time.Second, 5, time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, "free:lock", lease.Key)
}

func TestOptimisticAcquiresAfterRelease(t *testing.T) {
	w, _ := newRedisWarlock(t)
	ctx := context.Background()

	holder, ok, err := w.Lock(ctx, "handoff", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	waited := 0
	w.wait = func(ctx context.Context, d time.Duration) error {
		waited++
		if waited == 2 {
			_, err := holder.Release(ctx)
			return err
		}
		return nil
	}

	lease, err := w.Optimistic(ctx, "handoff", time.Second, 5, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.NotEqual(t, holder.Token, lease.Token)
	assert.Equal(t, 2, waited)
}

func TestOptimisticAcquiresAfterExpiry(t *testing.T) {
	w, mr := newRedisWarlock(t)
	ctx := context.Background()

	_, ok, err := w.Lock(ctx, "expiring", 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	w.wait = func(ctx context.Context, d time.Duration) error {
		mr.FastForward(d)
		return nil
	}

	lease, err := w.Optimistic(ctx, "expiring", time.Second, 3, 100*time.Millisecond)
	require.NoError(t, err)
	assert.NotNil(t, lease)
}

func TestOptimisticAbortsOnStoreError(t *testing.T) {
	store := &countingStore{Store: failingStore{err: errors.New("connection reset")}}
	w := NewWarlock(store)
	w.wait = func(context.Context, time.Duration) error {
		t.Fatal("store errors must not be retried")
		return nil
	}

	_, err := w.Optimistic(context.Background(), "broken", time.Second, 10, time.Millisecond)
	assert.ErrorIs(t, err, ErrStore)
	assert.NotErrorIs(t, err, ErrLockUnavailable)
	assert.Equal(t, int32(1), store.sets.Load())
}

func TestOptimisticStopsOnCancelledWait(t *testing.T) {
	w, _ := newRedisWarlock(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, ok, err := w.Lock(ctx, "cancel", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = w.Optimistic(ctx, "cancel", time.Second, 1000, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestOptimisticValidatesArguments(t *testing.T) {
	store := &countingStore{Store: failingStore{err: errors.New("unreachable")}}
	w := NewWarlock(store)
	ctx := context.Background()

	_, err := w.Optimistic(ctx, "name", time.Second, 0, time.Millisecond)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = w.Optimistic(ctx, "name", time.Second, 1, -time.Millisecond)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = w.Optimistic(ctx, "", time.Second, 3, time.Millisecond)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Zero(t, store.sets.Load())
}

func TestAcquisitionStateMachine(t *testing.T) {
	w, _ := newRedisWarlock(t)
	ctx := context.Background()

	_, ok, err := w.Lock(ctx, "fsm", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	w.wait = func(context.Context, time.Duration) error { return nil }

	a := &acquisition{name: "fsm", ttl: time.Second, maxAttempts: 2}
	var states []string
	for !a.done() {
		a.step(ctx, w)
		states = append(states, a.state.String())
	}

	assert.Equal(t, []string{"waiting", "attempting", "unavailable"}, states)
	assert.Equal(t, 2, a.attempts)
}
