package watchdog

import (
	"context"
	"math/rand"
	"time"

	"github.com/PavelAgarkov/warlock/locker"
	"github.com/PavelAgarkov/warlock/logger"
	logger "github.com/PavelAgarkov/warlock/logger/zap_engine"
	"github.com/PavelAgarkov/warlock/utils"
)

const (
	DefaultLeaderExpiration = 30 * time.Second

	LostAcquire  = 1
	TakenAcquire = 2
)

type Config struct {
	ElectionName string
	Expiration   time.Duration
}

// EpochLeader elects a leader per lock epoch. Leases are never extended:
// the leader steps down shortly before its record expires, releases it and
// contends again together with everybody else.
type EpochLeader struct {
	ctx    context.Context
	cancel context.CancelFunc
	locker locker.Locker
}

func NewEpochLeader(ctx context.Context, l locker.Locker) *EpochLeader {
	ctx, cancel := context.WithCancel(ctx)
	return &EpochLeader{
		ctx:    ctx,
		cancel: cancel,
		locker: l,
	}
}

func (el *EpochLeader) Elect(cfg Config) <-chan int {
	if cfg.ElectionName == "" {
		panic("ElectionName is empty")
	}
	if cfg.Expiration < 10*time.Millisecond {
		cfg.Expiration = DefaultLeaderExpiration
	}

	watcher := make(chan int, 8) // 8 на случай моргания сети или стора, чтобы не блокировать поток сразу

	// уходим с поста за 10% до истечения записи в сторе
	hold := cfg.Expiration - cfg.Expiration/10
	retry := cfg.Expiration/3 + time.Duration(rand.Int63n(int64(cfg.Expiration/10)))

	utils.GoRecover(el.ctx, func(ctx context.Context) {
		defer close(watcher)

		send := func(event int) {
			select {
			case <-ctx.Done():
			case watcher <- event:
			}
		}

		var lease *locker.Lease
		for {
			next, ok, err := el.locker.Lock(ctx, cfg.ElectionName, cfg.Expiration)
			if err != nil && ctx.Err() == nil {
				logger.WriteWarnLog(ctx, &logger_wrapper.LogEntry{
					Msg:       "election attempt failed",
					Component: "watchdog",
					Method:    "Elect",
					Name:      cfg.ElectionName,
					Error:     err,
				})
			}

			delay := retry
			switch {
			case ok:
				if lease == nil {
					send(TakenAcquire)
				}
				lease, delay = next, hold
			case lease != nil:
				lease = nil
				send(LostAcquire)
			}

			if err := utils.WaitOrCtx(ctx, delay); err != nil {
				if lease != nil {
					_, _ = lease.Release(context.Background())
					select {
					case watcher <- LostAcquire:
					default:
					}
				}
				return
			}

			// эпоха закончилась: освобождаем запись и сразу участвуем в новых выборах
			if lease != nil {
				if _, err := lease.Release(ctx); err != nil {
					logger.WriteWarnLog(ctx, &logger_wrapper.LogEntry{
						Msg:       "epoch release failed",
						Component: "watchdog",
						Method:    "Elect",
						Name:      cfg.ElectionName,
						Error:     err,
					})
				}
			}
		}
	})

	return watcher
}

func (el *EpochLeader) Stop() {
	if el.cancel != nil {
		el.cancel()
	}
}
