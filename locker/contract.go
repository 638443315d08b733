package locker

import (
	"context"
	"time"
)

// Store is the pair of atomic primitives the lock protocol is built on.
// Implementations must execute each call as one indivisible operation on the
// store side.
type Store interface {
	// ConditionalSet sets key=value with the given expiry only if key is absent.
	ConditionalSet(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete deletes key only if its current value equals expected.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

type (
	Locker interface {
		Lock(ctx context.Context, name string, ttl time.Duration) (*Lease, bool, error)
		Unlock(ctx context.Context, name, token string) (bool, error)
		Optimistic(ctx context.Context, name string, ttl time.Duration, maxAttempts int, wait time.Duration) (*Lease, error)
	}

	// Hooks observes lock outcomes. Calls happen on the caller's goroutine.
	Hooks interface {
		Acquired(name string)
		Contended(name string)
		Released(name string, deleted bool)
		Unavailable(name string, attempts int)
		StoreFailed(op string)
	}

	// Releaser releases exactly one acquisition.
	Releaser func(ctx context.Context) (bool, error)
)

type nopHooks struct{}

func (nopHooks) Acquired(string)         {}
func (nopHooks) Contended(string)        {}
func (nopHooks) Released(string, bool)   {}
func (nopHooks) Unavailable(string, int) {}
func (nopHooks) StoreFailed(string)      {}
