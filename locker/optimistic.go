package locker

import (
	"context"
	"time"

	"github.com/PavelAgarkov/warlock/logger"
	logger "github.com/PavelAgarkov/warlock/logger/zap_engine"
)

type acquireState int

const (
	stateAttempting acquireState = iota
	stateWaiting
	stateAcquired
	stateUnavailable
	stateFailed
)

func (s acquireState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateWaiting:
		return "waiting"
	case stateAcquired:
		return "acquired"
	case stateUnavailable:
		return "unavailable"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// acquisition drives one Optimistic call. The last three states are terminal.
type acquisition struct {
	name        string
	ttl         time.Duration
	maxAttempts int
	wait        time.Duration

	state    acquireState
	attempts int
	lease    *Lease
	err      error
}

func (a *acquisition) done() bool {
	return a.state >= stateAcquired
}

func (a *acquisition) step(ctx context.Context, w *Warlock) {
	switch a.state {
	case stateAttempting:
		a.attempts++
		lease, ok, err := w.Lock(ctx, a.name, a.ttl)
		switch {
		case err != nil:
			a.state, a.err = stateFailed, err
		case ok:
			a.state, a.lease = stateAcquired, lease
		case a.attempts >= a.maxAttempts:
			a.state = stateUnavailable
			a.err = &UnavailableError{
				MaxAttempts: a.maxAttempts,
				Name:        a.name,
				TTL:         a.ttl,
				Wait:        a.wait,
			}
		default:
			a.state = stateWaiting
		}
	case stateWaiting:
		if err := w.wait(ctx, a.wait); err != nil {
			a.state, a.err = stateFailed, err
			return
		}
		a.state = stateAttempting
	}
}

// Optimistic retries Lock with a fixed delay until it wins the lock or has
// made maxAttempts attempts. Store errors and context cancellation end the
// loop at once.
func (w *Warlock) Optimistic(ctx context.Context, name string, ttl time.Duration, maxAttempts int, wait time.Duration) (*Lease, error) {
	if maxAttempts < 1 {
		return nil, invalidArgument("maxAttempts must be at least 1, got %d", maxAttempts)
	}
	if wait < 0 {
		return nil, invalidArgument("wait must not be negative, got %s", wait)
	}

	a := &acquisition{
		name:        name,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		wait:        wait,
	}
	for !a.done() {
		a.step(ctx, w)
	}

	switch a.state {
	case stateUnavailable:
		w.hooks.Unavailable(name, a.attempts)
		logger.WriteInfoLog(ctx, &logger_wrapper.LogEntry{
			Msg:       "lock attempts exhausted",
			Component: "locker",
			Method:    "Optimistic",
			Name:      name,
			Args:      a.err,
		})
		return nil, a.err
	case stateFailed:
		return nil, a.err
	}
	return a.lease, nil
}
