package main

import (
	"context"
	"fmt"
	"time"

	"github.com/PavelAgarkov/warlock/application"
	"github.com/PavelAgarkov/warlock/config"
	"github.com/PavelAgarkov/warlock/locker"
	"github.com/PavelAgarkov/warlock/logger"
	logger "github.com/PavelAgarkov/warlock/logger/zap_engine"
	"github.com/PavelAgarkov/warlock/metrics"
	"github.com/PavelAgarkov/warlock/readiness_barrier"
	"github.com/PavelAgarkov/warlock/scheduler"
	"github.com/PavelAgarkov/warlock/server"
	"github.com/PavelAgarkov/warlock/watchdog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

const (
	sweepJobName      = "warlock-sweep"
	grpcCallTimeout   = 5 * time.Second
	schedulerRateHint = 4
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lock HTTP API and the gRPC health endpoint",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http.port", ":8080", "HTTP listen address")
	serveCmd.Flags().String("grpc.port", ":9090", "gRPC listen address")
	serveCmd.Flags().String("store.driver", config.DriverRedis, "lock store: redis or postgres")
	serveCmd.Flags().String("leader.name", "", "election name; enables leader-only sweeping when set")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if err := logger.InitLogger(cfg.Log); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := application.NewApp(ctx)
	defer app.FlushLogger()
	app.Start(cancel)

	opened, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	app.RegisterShutdown("store", opened.close, application.LowestPriority)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector()
	if err := collector.Register(registry); err != nil {
		return err
	}
	w := locker.NewWarlock(opened.store, locker.WithHooks(collector))

	barrier := readiness_barrier.NewReadinessBarrier(ctx, readiness_barrier.ReadinessBarrierConfig{Name: cfg.Store.Driver})
	barrier.Start()
	app.RegisterShutdown("readiness", barrier.Stop, application.LowPriority)

	probes := scheduler.NewJobScheduler(schedulerRateHint)
	if err := probes.Add(scheduler.JobConfiguration{
		Name:     "store-probe",
		Func:     barrier.ProbeJob(opened.pinger),
		Tick:     cfg.Readiness.Interval,
		StopMode: scheduler.StopGraceful,
	}); err != nil {
		return err
	}
	schedulers := []scheduler.JobSchedulerInterface{probes}

	var (
		leaderSweeps *scheduler.JobScheduler
		crons        []*scheduler.Cron
	)
	if opened.sweeper != nil {
		sweep := scheduler.JobConfiguration{
			Name:     sweepJobName,
			Func:     sweepFunc(opened),
			Tick:     cfg.Sweep.Interval,
			StopMode: scheduler.StopGraceful,
		}
		switch {
		case cfg.Leader.Name != "":
			// запускается и останавливается LeaderSupervisor
			if leaderSweeps, err = singleJob(sweep); err != nil {
				return err
			}
		case cfg.Sweep.Cron != "":
			c, err := sweepCron(ctx, w, cfg, opened)
			if err != nil {
				return err
			}
			crons = append(crons, c)
		default:
			// без выборов лидера каждый тик разыгрывается через lock
			sweep.Exclusive = &scheduler.Exclusive{Locker: w, TTL: cfg.Sweep.Interval}
			sweeps, err := singleJob(sweep)
			if err != nil {
				return err
			}
			schedulers = append(schedulers, sweeps)
		}
	}

	supervisor := scheduler.NewTaskSupervisor(schedulers, crons...)
	supervisor.Start(ctx)
	app.RegisterShutdown("jobs", supervisor.Stop, application.HighPriority)

	if cfg.Leader.Name != "" {
		start, stop := func() {}, func() {}
		if leaderSweeps != nil {
			start = leaderSweeps.Start(ctx)
			stop = leaderSweeps.Stop()
		}
		if err := app.RegisterLeaderSupervisor(&application.LeaderSupervisor{
			SupervisorName: "sweeper",
			Watchdog:       watchdog.NewEpochLeader(ctx, w),
			Election: watchdog.Config{
				ElectionName: cfg.Leader.Name,
				Expiration:   cfg.Leader.Expiration,
			},
			Start: start,
			Stop:  stop,
		}); err != nil {
			return err
		}
		app.StartLeaderSupervisors()
	}

	api := server.NewLockAPI(w, cfg.Lock.DefaultTTL, barrier, registry).WithDefaultWait(cfg.Lock.Wait)
	stopHTTP := server.CreateHTTPChiServer(api.Routes, cfg.HTTP.Port, server.RecoverChiMiddleware, server.LoggingChiMiddleware)
	app.RegisterShutdown("http", stopHTTP, application.ImmediatePriority)

	stopGRPC, err := server.CreateGRPCServer(ctx, func(s *grpc.Server) {
		server.RegisterHealth(s, barrier)
	}, cfg.GRPC, grpc.ChainUnaryInterceptor(
		server.RecoveryUnaryInterceptor(),
		server.TimeoutUnaryInterceptor(grpcCallTimeout),
	))
	if err != nil {
		cancel()
		app.Stop()
		return fmt.Errorf("failed to start grpc server: %w", err)
	}
	app.RegisterShutdown("grpc", stopGRPC, application.ImmediatePriority)

	logger.WriteInfoLog(ctx, &logger_wrapper.LogEntry{
		Msg:       "warlockd started",
		Component: "warlockd",
		Method:    "serve",
		Args:      fmt.Sprintf("store=%s http=%s grpc=%s", cfg.Store.Driver, cfg.HTTP.Port, cfg.GRPC.Port),
	})

	app.Run()
	app.Stop()
	return nil
}

func singleJob(cfg scheduler.JobConfiguration) (*scheduler.JobScheduler, error) {
	s := scheduler.NewJobScheduler(schedulerRateHint)
	if err := s.Add(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// sweepCron ставит очистку в cron: запуск достаётся узлу, взявшему lock по имени задачи.
func sweepCron(ctx context.Context, l locker.Locker, cfg *config.Config, opened *openedStore) (*scheduler.Cron, error) {
	c := scheduler.NewCron()
	err := c.AddExclusive(ctx, l, scheduler.ExclusiveCronJob{
		Name:        sweepJobName,
		Calendar:    cfg.Sweep.Cron,
		TTL:         cfg.Sweep.Interval,
		MaxAttempts: cfg.Lock.MaxAttempts,
		Wait:        cfg.Lock.Wait,
		Func:        sweepFunc(opened),
	})
	if err != nil {
		return nil, fmt.Errorf("sweep.cron: %w", err)
	}
	return c, nil
}

func sweepFunc(opened *openedStore) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		start := time.Now()
		n, err := opened.sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.WriteDebugLog(ctx, &logger_wrapper.LogEntry{
				Msg:       "expired locks removed",
				Component: "warlockd",
				Method:    "sweep",
				Result:    n,
				Start:     &start,
			})
		}
		return nil
	}
}
