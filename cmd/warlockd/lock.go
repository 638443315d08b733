package main

import (
	"context"
	"fmt"
	"time"

	"github.com/PavelAgarkov/warlock/config"
	"github.com/PavelAgarkov/warlock/locker"
	logger "github.com/PavelAgarkov/warlock/logger/zap_engine"
	"github.com/spf13/cobra"
)

var (
	acquireTTL      time.Duration
	acquireAttempts int
	acquireWait     time.Duration

	acquireCmd = &cobra.Command{
		Use:   "acquire [name]",
		Short: "Acquire a lock and print its token",
		Long:  "Acquire a lock. With --attempts above 1 the lock is retried with a fixed --wait delay between attempts.",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	releaseCmd = &cobra.Command{
		Use:   "release [name] [token]",
		Short: "Release a lock acquired earlier",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}
)

func init() {
	acquireCmd.Flags().DurationVar(&acquireTTL, "ttl", 0, "lock time to live (defaults to lock.default_ttl)")
	acquireCmd.Flags().IntVar(&acquireAttempts, "attempts", 1, "maximum number of acquisition attempts (defaults to lock.max_attempts)")
	acquireCmd.Flags().DurationVar(&acquireWait, "wait", 100*time.Millisecond, "delay between attempts (defaults to lock.wait)")
}

func withWarlock(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, w *locker.Warlock) error) error {
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return err
	}
	if err := logger.InitLogger(cfg.Log); err != nil {
		return err
	}
	defer logger.FlushLogs()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	opened, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer opened.close()

	return fn(ctx, cfg, locker.NewWarlock(opened.store))
}

func runAcquire(cmd *cobra.Command, args []string) error {
	return withWarlock(cmd, func(ctx context.Context, cfg *config.Config, w *locker.Warlock) error {
		ttl := acquireTTL
		if ttl == 0 {
			ttl = cfg.Lock.DefaultTTL
		}
		attempts, wait := acquireAttempts, acquireWait
		if !cmd.Flags().Changed("attempts") {
			attempts = cfg.Lock.MaxAttempts
		}
		if !cmd.Flags().Changed("wait") {
			wait = cfg.Lock.Wait
		}

		var (
			lease *locker.Lease
			ok    bool
			err   error
		)
		if attempts > 1 {
			lease, err = w.Optimistic(ctx, args[0], ttl, attempts, wait)
			ok = lease != nil
		} else {
			lease, ok, err = w.Lock(ctx, args[0], ttl)
		}
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "acquired=false")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "acquired=true key=%s token=%s ttl=%s\n", lease.Key, lease.Token, lease.TTL)
		return nil
	})
}

func runRelease(cmd *cobra.Command, args []string) error {
	return withWarlock(cmd, func(ctx context.Context, _ *config.Config, w *locker.Warlock) error {
		released, err := w.Unlock(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "released=%v\n", released)
		return nil
	})
}
