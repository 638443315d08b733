package locker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newRedisWarlock(t *testing.T, opts ...Option) (*Warlock, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewWarlock(NewRedisStore(client), opts...), mr
}

// countingStore wraps a Store and counts calls.
type countingStore struct {
	Store
	sets    atomic.Int32
	deletes atomic.Int32
}

func (s *countingStore) ConditionalSet(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.sets.Add(1)
	return s.Store.ConditionalSet(ctx, key, value, ttl)
}

func (s *countingStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	s.deletes.Add(1)
	return s.Store.CompareAndDelete(ctx, key, expected)
}

type failingStore struct {
	err error
}

func (s failingStore) ConditionalSet(context.Context, string, string, time.Duration) (bool, error) {
	return false, s.err
}

func (s failingStore) CompareAndDelete(context.Context, string, string) (bool, error) {
	return false, s.err
}

type recordingHooks struct {
	mu          sync.Mutex
	acquired    []string
	contended   []string
	released    map[string][]bool
	unavailable map[string]int
	failures    []string
}

func newRecordingHooks() *recordingHooks {
	return &recordingHooks{
		released:    make(map[string][]bool),
		unavailable: make(map[string]int),
	}
}

func (h *recordingHooks) Acquired(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.acquired = append(h.acquired, name)
}

func (h *recordingHooks) Contended(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.contended = append(h.contended, name)
}

func (h *recordingHooks) Released(name string, deleted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released[name] = append(h.released[name], deleted)
}

func (h *recordingHooks) Unavailable(name string, attempts int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unavailable[name] = attempts
}

func (h *recordingHooks) StoreFailed(op string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, op)
}
