package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PavelAgarkov/warlock/locker"
	"github.com/PavelAgarkov/warlock/logger"
	logger "github.com/PavelAgarkov/warlock/logger/zap_engine"
	"github.com/PavelAgarkov/warlock/utils"
)

type StopMode int

const (
	StopImmediate StopMode = iota
	StopGraceful
)

// Exclusive makes a job run on at most one node per tick: the run happens
// only if a single Lock attempt on the job name succeeds.
type Exclusive struct {
	Locker locker.Locker
	TTL    time.Duration
}

type JobConfiguration struct {
	Name      string
	Func      func(context.Context) error
	Tick      time.Duration
	Deadline  time.Duration
	StopMode  StopMode
	Exclusive *Exclusive
}

type job struct {
	name      string
	rmu       sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	fn        func(context.Context) error
	tick      time.Duration
	ticker    *time.Ticker
	deadline  time.Duration
	wg        sync.WaitGroup
	stopMode  StopMode
	exclusive *Exclusive
}

type JobScheduler struct {
	mu         sync.Mutex
	started    bool
	goroutines map[string]*job
	rate       chan struct{}
}

func NewJobScheduler(rate int64) *JobScheduler {
	if rate <= 0 {
		rate = 1
	}
	return &JobScheduler{
		rate:       make(chan struct{}, rate),
		goroutines: make(map[string]*job),
	}
}

func (s *JobScheduler) Add(cfg JobConfiguration) error {
	if cfg.Tick <= 0 {
		return fmt.Errorf("scheduler.Add(%s): tick must be positive", cfg.Name)
	}
	if cfg.Func == nil {
		return fmt.Errorf("scheduler.Add(%s): nil func", cfg.Name)
	}
	if cfg.Exclusive != nil && (cfg.Exclusive.Locker == nil || cfg.Exclusive.TTL <= 0) {
		return fmt.Errorf("scheduler.Add(%s): exclusive job needs a locker and a ttl", cfg.Name)
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = cfg.Tick
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler.Add(%s): already started", cfg.Name)
	}
	if _, exists := s.goroutines[cfg.Name]; exists {
		return fmt.Errorf("scheduler.Add(%s): job already exists", cfg.Name)
	}

	s.goroutines[cfg.Name] = &job{
		name:      cfg.Name,
		fn:        cfg.Func,
		tick:      cfg.Tick,
		deadline:  cfg.Deadline,
		stopMode:  cfg.StopMode,
		exclusive: cfg.Exclusive,
	}
	return nil
}

func (s *JobScheduler) Start(ctx context.Context) func() {
	return func() {
		s.mu.Lock()
		if s.started {
			s.mu.Unlock()
			logger.WriteWarnLog(ctx, &logger_wrapper.LogEntry{
				Msg:       "scheduler already started",
				Component: "scheduler",
				Method:    "Start",
			})
			return
		}
		s.started = true

		jobs := make(map[string]*job, len(s.goroutines))
		for name, j := range s.goroutines {
			jobs[name] = j
		}
		s.mu.Unlock()

		for name, j := range jobs {
			j.rmu.Lock()
			j.ctx, j.cancel = context.WithCancel(ctx)
			j.ticker = time.NewTicker(j.tick)
			j.wg.Add(1)
			j.rmu.Unlock()

			// run сам закрывает wg, поэтому запускается даже при отменённом ctx
			go func() {
				defer utils.Recover(ctx)
				s.run(name, j)
			}()
		}
	}
}

// Stop останавливает задачи и дожидается их завершения.
func (s *JobScheduler) Stop() func() {
	return func() {
		s.mu.Lock()
		if !s.started {
			s.mu.Unlock()
			return
		}
		s.started = false

		jobs := make([]*job, 0, len(s.goroutines))
		for _, j := range s.goroutines {
			j.rmu.Lock()
			j.cancel()
			if j.ticker != nil {
				j.ticker.Stop()
			}
			j.rmu.Unlock()
			jobs = append(jobs, j)
		}
		s.mu.Unlock()

		for _, j := range jobs {
			j.wg.Wait()
		}
	}
}

func (s *JobScheduler) run(name string, j *job) {
	defer j.wg.Done()

	j.rmu.RLock()
	ctx := j.ctx
	ticker := j.ticker
	j.rmu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			logger.WriteInfoLog(ctx, &logger_wrapper.LogEntry{
				Msg:       "Job stopped",
				Component: "scheduler",
				Method:    "run",
				Args:      name,
			})
			return

		case <-ticker.C:
			if err := s.exec(ctx, j); err != nil && !errors.Is(err, context.Canceled) {
				logger.WriteErrorLog(ctx, &logger_wrapper.LogEntry{
					Msg:       "Job execution failed",
					Component: "scheduler",
					Method:    "run",
					Args:      name,
					Error:     err,
				})
			}
		}
	}
}

func (s *JobScheduler) exec(ctx context.Context, j *job) (err error) {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.rate <- struct{}{}:
	}
	defer func() { <-s.rate }()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job %s: %v", j.name, r)
		}
	}()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if j.exclusive != nil {
		lease, ok, err := j.exclusive.Locker.Lock(ctx, j.name, j.exclusive.TTL)
		if err != nil {
			return fmt.Errorf("job %s: lock: %w", j.name, err)
		}
		if !ok {
			// другой узел уже выполняет этот тик
			return nil
		}
		defer func() {
			if _, err := lease.Release(context.Background()); err != nil {
				logger.WriteWarnLog(ctx, &logger_wrapper.LogEntry{
					Msg:       "Job lock release failed",
					Component: "scheduler",
					Method:    "exec",
					Name:      j.name,
					Error:     err,
				})
			}
		}()
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	switch j.stopMode {
	case StopGraceful:
		runCtx, cancel = context.WithTimeout(context.Background(), j.deadline)
	default:
		runCtx, cancel = context.WithTimeout(ctx, j.deadline)
	}
	defer cancel()

	return j.fn(runCtx)
}
