package locker

import (
	"context"
	"fmt"
	"time"
)

// Result carries the outcome of an asynchronous call. Acquired is set by
// lock calls, Released by unlock calls.
type Result struct {
	Lease    *Lease
	Acquired bool
	Released bool
	Err      error
}

func async(fn func() Result) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				out <- Result{Err: fmt.Errorf("locker: panic: %v", r)}
			}
		}()
		out <- fn()
	}()
	return out
}

func (w *Warlock) LockAsync(ctx context.Context, name string, ttl time.Duration) <-chan Result {
	return async(func() Result {
		lease, ok, err := w.Lock(ctx, name, ttl)
		return Result{Lease: lease, Acquired: ok, Err: err}
	})
}

func (w *Warlock) UnlockAsync(ctx context.Context, name, token string) <-chan Result {
	return async(func() Result {
		deleted, err := w.Unlock(ctx, name, token)
		return Result{Released: deleted, Err: err}
	})
}

func (w *Warlock) OptimisticAsync(ctx context.Context, name string, ttl time.Duration, maxAttempts int, wait time.Duration) <-chan Result {
	return async(func() Result {
		lease, err := w.Optimistic(ctx, name, ttl, maxAttempts, wait)
		return Result{Lease: lease, Acquired: lease != nil, Err: err}
	})
}

// LockCallback runs Lock in the background and hands the outcome to cb.
func (w *Warlock) LockCallback(ctx context.Context, name string, ttl time.Duration, cb func(*Lease, bool, error)) {
	deliver(w.LockAsync(ctx, name, ttl), func(r Result) { cb(r.Lease, r.Acquired, r.Err) })
}

func (w *Warlock) UnlockCallback(ctx context.Context, name, token string, cb func(bool, error)) {
	deliver(w.UnlockAsync(ctx, name, token), func(r Result) { cb(r.Released, r.Err) })
}

func (w *Warlock) OptimisticCallback(ctx context.Context, name string, ttl time.Duration, maxAttempts int, wait time.Duration, cb func(*Lease, error)) {
	deliver(w.OptimisticAsync(ctx, name, ttl, maxAttempts, wait), func(r Result) { cb(r.Lease, r.Err) })
}

func deliver(ch <-chan Result, cb func(Result)) {
	if cb == nil {
		cb = func(Result) {}
	}
	go func() { cb(<-ch) }()
}
