package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/PavelAgarkov/warlock/locker"
	"github.com/PavelAgarkov/warlock/watchdog"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsByPriority(t *testing.T) {
	app := NewApp(context.Background())
	var order []string
	app.RegisterShutdown("low", func() { order = append(order, "low") }, LowPriority)
	app.RegisterShutdown("immediate", func() { order = append(order, "immediate") }, ImmediatePriority)
	app.RegisterShutdown("medium", func() { order = append(order, "medium") }, MediumPriority)
	app.RegisterShutdown("medium-2", func() { order = append(order, "medium-2") }, MediumPriority)

	app.Stop()

	assert.Equal(t, []string{"immediate", "medium", "medium-2", "low"}, order)
}

type fakeWatchdog struct {
	events chan int
	once   sync.Once
}

func (w *fakeWatchdog) Elect(watchdog.Config) <-chan int { return w.events }

func (w *fakeWatchdog) Stop() { w.once.Do(func() { close(w.events) }) }

func TestLeaderSupervisorFollowsEvents(t *testing.T) {
	app := NewApp(context.Background())
	wd := &fakeWatchdog{events: make(chan int, 4)}

	var mu sync.Mutex
	var calls []string
	record := func(s string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, s)
		}
	}
	sup := &LeaderSupervisor{
		SupervisorName: "sweeper",
		Watchdog:       wd,
		Election:       watchdog.Config{ElectionName: "sweeper"},
		Start:          record("start"),
		Stop:           record("stop"),
	}
	require.NoError(t, app.RegisterLeaderSupervisor(sup))
	app.StartLeaderSupervisors()

	wd.events <- watchdog.TakenAcquire
	wd.events <- watchdog.TakenAcquire
	require.Eventually(t, sup.Working, time.Second, time.Millisecond)

	app.Stop()
	assert.False(t, sup.Working())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"start", "stop"}, calls)
}

func TestRegisterLeaderSupervisorValidates(t *testing.T) {
	app := NewApp(context.Background())
	assert.Error(t, app.RegisterLeaderSupervisor(nil))
	assert.Error(t, app.RegisterLeaderSupervisor(&LeaderSupervisor{SupervisorName: "x"}))
}

func TestLeaderSupervisorWithEpochLeader(t *testing.T) {
	mr := miniredis.RunT(t)
	client := locker.NewRedisClient(locker.LockerConfig{Address: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	w := locker.NewWarlock(locker.NewRedisStore(client))

	ctx := context.Background()
	app := NewApp(ctx)
	started := make(chan struct{}, 1)
	sup := &LeaderSupervisor{
		SupervisorName: "jobs",
		Watchdog:       watchdog.NewEpochLeader(ctx, w),
		Election:       watchdog.Config{ElectionName: "jobs", Expiration: time.Second},
		Start:          func() { started <- struct{}{} },
		Stop:           func() {},
	}
	require.NoError(t, app.RegisterLeaderSupervisor(sup))
	app.StartLeaderSupervisors()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor never started")
	}

	app.Stop()
	assert.False(t, mr.Exists(locker.MakeKey("jobs")), "leader lease must be released on stop")
}
