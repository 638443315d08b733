package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/PavelAgarkov/warlock/locker"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS warlock_locks (
	key        text        PRIMARY KEY,
	token      text        NOT NULL,
	expires_at timestamptz NOT NULL
)`

	// Запись с истёкшим сроком считается отсутствующей, поэтому её можно перезаписать.
	// Время берём только у базы.
	conditionalSetQuery = `INSERT INTO warlock_locks (key, token, expires_at)
VALUES ($1, $2, now() + $3::bigint * interval '1 millisecond')
ON CONFLICT (key) DO UPDATE
	SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
	WHERE warlock_locks.expires_at <= now()`

	compareAndDeleteQuery = `DELETE FROM warlock_locks WHERE key = $1 AND token = $2 AND expires_at > now()`

	sweepQuery = `DELETE FROM warlock_locks WHERE expires_at <= now()`
)

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// LockStore keeps lock records in a Postgres table. Each primitive is a
// single statement, so the row lock taken by Postgres makes it atomic.
type LockStore struct {
	db execer
}

func NewLockStore(db execer) *LockStore {
	return &LockStore{db: db}
}

func (s *LockStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTableQuery); err != nil {
		return fmt.Errorf("create warlock_locks: %w", err)
	}
	return nil
}

func (s *LockStore) ConditionalSet(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	tag, err := s.db.Exec(ctx, conditionalSetQuery, key, value, ttl.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("insert: %w", err)
	}
	return singleRow(tag)
}

func (s *LockStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	tag, err := s.db.Exec(ctx, compareAndDeleteQuery, key, expected)
	if err != nil {
		return false, fmt.Errorf("delete: %w", err)
	}
	return singleRow(tag)
}

// Sweep removes expired records. Correctness does not depend on it, it only
// keeps the table small.
func (s *LockStore) Sweep(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, sweepQuery)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

func singleRow(tag pgconn.CommandTag) (bool, error) {
	switch tag.RowsAffected() {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s", locker.ErrMalformedReply, tag.String())
	}
}
