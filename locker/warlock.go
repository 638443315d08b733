package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/PavelAgarkov/warlock/logger"
	logger "github.com/PavelAgarkov/warlock/logger/zap_engine"
	"github.com/PavelAgarkov/warlock/utils"
	"github.com/google/uuid"
)

// Lease is one successful acquisition: the record at Key holds Token until
// it is released or its TTL runs out.
type Lease struct {
	Name  string
	Key   string
	Token string
	TTL   time.Duration

	release Releaser
}

// Release deletes the lock record if it still carries this lease's token.
// Calling it again is a no-op.
func (l *Lease) Release(ctx context.Context) (bool, error) {
	return l.release(ctx)
}

func (l *Lease) Releaser() Releaser {
	return l.release
}

type Warlock struct {
	store    Store
	hooks    Hooks
	newToken func() (string, error)
	wait     func(ctx context.Context, d time.Duration) error
}

type Option func(*Warlock)

func WithHooks(h Hooks) Option {
	return func(w *Warlock) {
		if h != nil {
			w.hooks = h
		}
	}
}

func WithTokenGenerator(gen func() (string, error)) Option {
	return func(w *Warlock) {
		if gen != nil {
			w.newToken = gen
		}
	}
}

func NewWarlock(store Store, opts ...Option) *Warlock {
	w := &Warlock{
		store:    store,
		hooks:    nopHooks{},
		newToken: newToken,
		wait:     utils.WaitOrCtx,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// newToken renders a time-ordered v1 UUID.
func newToken() (string, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Lock makes a single acquisition attempt. A held lock is reported as
// ok == false with a nil error; only store faults and bad arguments are errors.
func (w *Warlock) Lock(ctx context.Context, name string, ttl time.Duration) (*Lease, bool, error) {
	if name == "" {
		return nil, false, invalidArgument("lock name must be a non-empty string")
	}
	if ttl < time.Millisecond {
		return nil, false, invalidArgument("ttl %s is below one millisecond", ttl)
	}

	token, err := w.newToken()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	key := MakeKey(name)
	ok, err := w.store.ConditionalSet(ctx, key, token, ttl)
	if err != nil {
		w.hooks.StoreFailed("conditional_set")
		logger.WriteWarnLog(ctx, &logger_wrapper.LogEntry{
			Msg:       "conditional set failed",
			Component: "locker",
			Method:    "Lock",
			Name:      name,
			Args:      ttl,
			Error:     err,
		})
		return nil, false, storeError("conditional_set", key, err)
	}
	if !ok {
		w.hooks.Contended(name)
		logger.WriteDebugLog(ctx, &logger_wrapper.LogEntry{
			Msg:       "lock is held",
			Component: "locker",
			Method:    "Lock",
			Name:      name,
		})
		return nil, false, nil
	}

	w.hooks.Acquired(name)
	return &Lease{
		Name:  name,
		Key:   key,
		Token: token,
		TTL:   ttl,
		release: func(ctx context.Context) (bool, error) {
			return w.Unlock(ctx, name, token)
		},
	}, true, nil
}

// Unlock deletes the record of name only if it still holds token. A missing
// or foreign record is a successful no-op reported as false.
func (w *Warlock) Unlock(ctx context.Context, name, token string) (bool, error) {
	if name == "" {
		return false, invalidArgument("lock name must be a non-empty string")
	}
	if token == "" {
		return false, invalidArgument("token must be non-empty")
	}

	key := MakeKey(name)
	deleted, err := w.store.CompareAndDelete(ctx, key, token)
	if err != nil {
		w.hooks.StoreFailed("compare_and_delete")
		logger.WriteWarnLog(ctx, &logger_wrapper.LogEntry{
			Msg:       "compare and delete failed",
			Component: "locker",
			Method:    "Unlock",
			Name:      name,
			Error:     err,
		})
		return false, storeError("compare_and_delete", key, err)
	}

	w.hooks.Released(name, deleted)
	return deleted, nil
}
