package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PavelAgarkov/warlock/config"
	"github.com/PavelAgarkov/warlock/database/postgres"
	"github.com/PavelAgarkov/warlock/locker"
	"github.com/PavelAgarkov/warlock/scheduler"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sweepCounter struct {
	sweeps atomic.Int32
}

func (c *sweepCounter) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	c.sweeps.Add(1)
	return pgconn.NewCommandTag("DELETE 2"), nil
}

func TestSweepCronRunsUnderLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := locker.NewRedisClient(locker.LockerConfig{Address: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	w := locker.NewWarlock(locker.NewRedisStore(client))

	db := &sweepCounter{}
	opened := &openedStore{sweeper: postgres.NewLockStore(db)}
	cfg := &config.Config{
		Sweep: config.SweepConfig{Interval: time.Second, Cron: "* * * * * *"},
		Lock:  config.LockDefaults{MaxAttempts: 1},
	}

	c, err := sweepCron(context.Background(), w, cfg, opened)
	require.NoError(t, err)

	sup := scheduler.NewTaskSupervisor(nil, c)
	sup.Start(context.Background())
	require.Eventually(t, func() bool { return db.sweeps.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	sup.Stop()

	// lease is released after each run
	assert.False(t, mr.Exists(locker.MakeKey(sweepJobName)))
}

func TestSweepCronSkipsWhileAnotherNodeHoldsLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := locker.NewRedisClient(locker.LockerConfig{Address: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	w := locker.NewWarlock(locker.NewRedisStore(client))
	require.NoError(t, mr.Set(locker.MakeKey(sweepJobName), "other-node"))

	db := &sweepCounter{}
	cfg := &config.Config{
		Sweep: config.SweepConfig{Interval: time.Second, Cron: "* * * * * *"},
		Lock:  config.LockDefaults{MaxAttempts: 1},
	}
	c, err := sweepCron(context.Background(), w, cfg, &openedStore{sweeper: postgres.NewLockStore(db)})
	require.NoError(t, err)

	c.Start()
	time.Sleep(1500 * time.Millisecond)
	<-c.Stop().Done()

	assert.Zero(t, db.sweeps.Load())
}

func TestSweepCronRejectsBadCalendar(t *testing.T) {
	cfg := &config.Config{Sweep: config.SweepConfig{Interval: time.Second, Cron: "whenever"}}
	_, err := sweepCron(context.Background(), nil, cfg, &openedStore{})
	assert.ErrorContains(t, err, "sweep.cron")
}
