package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PavelAgarkov/warlock/locker"
	"github.com/PavelAgarkov/warlock/logger"
	logger "github.com/PavelAgarkov/warlock/logger/zap_engine"
	"github.com/robfig/cron/v3"
)

type Cron struct {
	c *cron.Cron
}

func NewCron() *Cron {
	return &Cron{
		c: cron.New(cron.WithSeconds()),
	}
}

// Add "*/10 * * * * *" - каждые 10 секунд
func (c *Cron) Add(ctx context.Context, calendar string, fn func(ctx context.Context) error) error {
	_, err := c.c.AddFunc(calendar, func() {
		if err := fn(ctx); err != nil {
			logger.WriteErrorLog(ctx, &logger_wrapper.LogEntry{
				Msg:       "cron job failed",
				Component: "cron",
				Method:    "Add",
				Args:      calendar,
				Error:     err,
			})
		}
	})
	if err != nil {
		return fmt.Errorf("add cron job %s: %w", calendar, err)
	}
	return nil
}

type ExclusiveCronJob struct {
	Name        string
	Calendar    string
	TTL         time.Duration
	MaxAttempts int
	Wait        time.Duration
	Func        func(ctx context.Context) error
}

// AddExclusive запускает задачу только на том узле, который взял блокировку с именем задачи.
// Блокировка снимается сразу после выполнения.
func (c *Cron) AddExclusive(ctx context.Context, l locker.Locker, job ExclusiveCronJob) error {
	return c.Add(ctx, job.Calendar, func(ctx context.Context) error {
		return RunExclusive(ctx, l, job)
	})
}

// RunExclusive is a single exclusive run. Losing the lock to another node is not an error.
func RunExclusive(ctx context.Context, l locker.Locker, job ExclusiveCronJob) error {
	if job.MaxAttempts < 1 {
		job.MaxAttempts = 1
	}
	lease, err := l.Optimistic(ctx, job.Name, job.TTL, job.MaxAttempts, job.Wait)
	if err != nil {
		if errors.Is(err, locker.ErrLockUnavailable) {
			logger.WriteDebugLog(ctx, &logger_wrapper.LogEntry{
				Msg:       "cron job skipped, lock held elsewhere",
				Component: "cron",
				Method:    "RunExclusive",
				Name:      job.Name,
			})
			return nil
		}
		return fmt.Errorf("cron job %s: %w", job.Name, err)
	}
	defer func() {
		if _, err := lease.Release(context.Background()); err != nil {
			logger.WriteWarnLog(ctx, &logger_wrapper.LogEntry{
				Msg:       "cron job lock release failed",
				Component: "cron",
				Method:    "RunExclusive",
				Name:      job.Name,
				Error:     err,
			})
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, job.TTL)
	defer cancel()
	return job.Func(runCtx)
}

func (c *Cron) Stop() context.Context {
	return c.c.Stop()
}

func (c *Cron) Start() {
	c.c.Start()
}
