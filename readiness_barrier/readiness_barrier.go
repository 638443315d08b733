package readiness_barrier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/PavelAgarkov/warlock/logger"
	logger "github.com/PavelAgarkov/warlock/logger/zap_engine"
)

type toggleSignal string

const (
	ReadySignalToggle    toggleSignal = "ready"
	NotReadySignalToggle toggleSignal = "not_ready"
)

type ReadinessBarrierConfig struct {
	Name string
}

// ReadinessBarrier хранит флаг готовности, переключаемый сигналами из одной горутины.
type ReadinessBarrier struct {
	config        ReadinessBarrierConfig
	signals       chan toggleSignal // канал для сигналов готовности, явно не закрывается
	readinessFlag atomic.Bool
	parent        context.Context

	running   atomic.Bool
	mu        sync.Mutex
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	subsMu sync.Mutex
	subs   []func(ready bool)
}

func NewReadinessBarrier(parent context.Context, cfg ReadinessBarrierConfig) *ReadinessBarrier {
	r := &ReadinessBarrier{
		config:  cfg,
		signals: make(chan toggleSignal, 4),
		parent:  parent,
	}
	r.set(false)
	return r
}

// OnChange регистрирует обработчик, вызываемый при каждой смене состояния.
func (r *ReadinessBarrier) OnChange(fn func(ready bool)) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	r.subs = append(r.subs, fn)
}

func (r *ReadinessBarrier) Start() {
	// не даём запустить второй раз, пока уже запущен
	if !r.running.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(r.parent)
	r.mu.Lock()
	r.runCancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.listen(ctx)
	}()
}

func (r *ReadinessBarrier) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}

	r.mu.Lock()
	if r.runCancel != nil {
		r.runCancel()
		r.runCancel = nil
	}
	r.mu.Unlock()
	r.wg.Wait()

drop:
	for {
		select {
		case <-r.signals:
		default:
			break drop
		}
	}
	r.set(false)
}

func (r *ReadinessBarrier) IsReady() bool {
	return r.readinessFlag.Load()
}

func (r *ReadinessBarrier) SendSignalCtx(ctx context.Context, sig toggleSignal) error {
	if !r.running.Load() {
		return fmt.Errorf("readiness barrier %s: not running", r.config.Name)
	}
	select {
	case r.signals <- sig:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("readiness barrier %s: context cancelled while sending signal", r.config.Name)
	}
}

// ProbeJob возвращает задачу для планировщика: пингует стор и переключает готовность.
func (r *ReadinessBarrier) ProbeJob(p Pinger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		err := p.Ping(ctx)
		sig := ReadySignalToggle
		if err != nil {
			sig = NotReadySignalToggle
			logger.WriteWarnLog(ctx, &logger_wrapper.LogEntry{
				Msg:       "store probe failed",
				Component: "readiness_barrier",
				Method:    "ProbeJob",
				Args:      r.config.Name,
				Error:     err,
			})
		}
		return r.SendSignalCtx(ctx, sig)
	}
}

func (r *ReadinessBarrier) set(ready bool) {
	if r.readinessFlag.Swap(ready) == ready {
		return
	}
	r.subsMu.Lock()
	subs := append([]func(bool){}, r.subs...)
	r.subsMu.Unlock()
	for _, fn := range subs {
		fn(ready)
	}
}

func (r *ReadinessBarrier) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-r.signals:
			switch sig {
			case ReadySignalToggle:
				r.set(true)
			case NotReadySignalToggle:
				r.set(false)
			}
		}
	}
}
