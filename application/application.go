package application

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/PavelAgarkov/warlock/logger"
	logger "github.com/PavelAgarkov/warlock/logger/zap_engine"
	"github.com/PavelAgarkov/warlock/utils"
	"github.com/PavelAgarkov/warlock/watchdog"
)

const (
	LowestPriority    = 10000
	LowPriority       = 1000
	MediumPriority    = 500
	HighPriority      = 100
	HighestPriority   = 50
	CriticalPriority  = 20
	ImmediatePriority = 1
)

type shutdown struct {
	priority     int
	name         string
	next         *shutdown
	shutdownFunc func()
}

// LeaderSupervisor запускает Start, пока узел лидер, и Stop, когда лидерство потеряно.
type LeaderSupervisor struct {
	SupervisorName string
	Watchdog       watchdog.LeaderElectingWatchdog
	Election       watchdog.Config
	Start          func()
	Stop           func()

	mu      sync.Mutex
	working bool
}

func (s *LeaderSupervisor) handle(event int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case event == watchdog.TakenAcquire && !s.working:
		s.Start()
		s.working = true
	case event == watchdog.LostAcquire && s.working:
		s.Stop()
		s.working = false
	}
}

func (s *LeaderSupervisor) Working() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working
}

type App struct {
	ctx               context.Context
	shutdownMu        sync.Mutex
	shutdown          *shutdown
	leaderSupervisors []*LeaderSupervisor
	wg                sync.WaitGroup
	sig               chan os.Signal
}

func NewApp(ctx context.Context) *App {
	return &App{
		ctx: ctx,
		sig: make(chan os.Signal, 1),
	}
}

func (app *App) RegisterLeaderSupervisor(supervisor *LeaderSupervisor) error {
	if supervisor == nil || supervisor.Watchdog == nil || supervisor.Start == nil || supervisor.Stop == nil {
		return fmt.Errorf("application: incomplete leader supervisor")
	}
	app.leaderSupervisors = append(app.leaderSupervisors, supervisor)
	return nil
}

// StartLeaderSupervisors запускает выборы для каждого зарегистрированного супервизора.
func (app *App) StartLeaderSupervisors() {
	for _, supervisor := range app.leaderSupervisors {
		events := supervisor.Watchdog.Elect(supervisor.Election)
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			defer utils.Recover(app.ctx)
			for event := range events {
				supervisor.handle(event)
				logger.WriteInfoLog(app.ctx, &logger_wrapper.LogEntry{
					Msg:       "leadership event",
					Component: "application",
					Method:    "StartLeaderSupervisors",
					Name:      supervisor.Election.ElectionName,
					Args:      supervisor.SupervisorName,
					Result:    event,
				})
			}
		}()
	}
}

func (app *App) RegisterShutdown(name string, fn func(), priority int) {
	app.shutdownMu.Lock()
	defer app.shutdownMu.Unlock()

	node := &shutdown{
		name:         name,
		priority:     priority,
		shutdownFunc: fn,
	}
	if app.shutdown == nil || app.shutdown.priority > priority {
		node.next = app.shutdown
		app.shutdown = node
		return
	}
	current := app.shutdown
	for current.next != nil && current.next.priority <= priority {
		current = current.next
	}
	node.next = current.next
	current.next = node
}

func (app *App) runShutdowns() {
	app.shutdownMu.Lock()
	defer app.shutdownMu.Unlock()
	for app.shutdown != nil {
		app.shutdown.shutdownFunc()
		logger.WriteInfoLog(app.ctx, &logger_wrapper.LogEntry{
			Msg:       fmt.Sprintf("Shutdown func %s executed with priority %d", app.shutdown.name, app.shutdown.priority),
			Component: "application",
			Method:    "runShutdowns",
		})
		app.shutdown = app.shutdown.next
	}
}

// Stop гасит выборы лидера, дожидается остановки супервизоров и выполняет shutdown-функции по приоритету.
func (app *App) Stop() {
	for _, supervisor := range app.leaderSupervisors {
		supervisor.Watchdog.Stop()
	}
	app.wg.Wait()
	for _, supervisor := range app.leaderSupervisors {
		supervisor.handle(watchdog.LostAcquire)
	}
	logger.WriteInfoLog(app.ctx, &logger_wrapper.LogEntry{
		Msg:       "Stopping application",
		Component: "application",
		Method:    "Stop",
	})
	app.runShutdowns()
}

func (app *App) Start(cancel context.CancelFunc) {
	signal.Notify(app.sig, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	utils.GoRecover(app.ctx, func(ctx context.Context) {
		defer signal.Stop(app.sig)
		select {
		case <-app.sig:
			logger.WriteInfoLog(app.ctx, &logger_wrapper.LogEntry{
				Msg:       "Signal received. Shutting down application...",
				Component: "application",
				Method:    "Start",
			})
			cancel()
		case <-ctx.Done():
		}
	})
}

func (app *App) FlushLogger() {
	logger.FlushLogs()
}

func (app *App) Run() {
	<-app.ctx.Done()
}
