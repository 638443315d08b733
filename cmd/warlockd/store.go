package main

import (
	"context"
	"fmt"

	"github.com/PavelAgarkov/warlock/config"
	"github.com/PavelAgarkov/warlock/database/postgres"
	"github.com/PavelAgarkov/warlock/locker"
	"github.com/PavelAgarkov/warlock/readiness_barrier"
)

type openedStore struct {
	store   locker.Store
	pinger  readiness_barrier.Pinger
	sweeper *postgres.LockStore // nil для redis: там записи истекают сами
	close   func()
}

func openStore(ctx context.Context, cfg *config.Config) (*openedStore, error) {
	switch cfg.Store.Driver {
	case config.DriverRedis:
		client := locker.NewRedisClient(cfg.Redis)
		store := locker.NewRedisStore(client)
		return &openedStore{
			store:  store,
			pinger: store,
			close:  func() { _ = client.Close() },
		}, nil

	case config.DriverPostgres:
		conn, err := postgres.NewPostgresConnection(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		store := postgres.NewLockStore(conn.GetPool())
		if err := store.EnsureSchema(ctx); err != nil {
			conn.Stop()
			return nil, err
		}
		return &openedStore{
			store:   store,
			pinger:  conn,
			sweeper: store,
			close:   conn.Stop,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
