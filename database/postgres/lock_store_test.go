package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PavelAgarkov/warlock/locker"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	tag   pgconn.CommandTag
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return f.tag, f.err
}

func TestConditionalSetPassesMilliseconds(t *testing.T) {
	db := &fakeExecer{tag: pgconn.NewCommandTag("INSERT 0 1")}
	store := NewLockStore(db)

	ok, err := store.ConditionalSet(context.Background(), "job42:lock", "token", 1500*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, db.calls, 1)
	assert.Equal(t, conditionalSetQuery, db.calls[0].sql)
	assert.Equal(t, []any{"job42:lock", "token", int64(1500)}, db.calls[0].args)
}

func TestConditionalSetConflict(t *testing.T) {
	store := NewLockStore(&fakeExecer{tag: pgconn.NewCommandTag("INSERT 0 0")})

	ok, err := store.ConditionalSet(context.Background(), "k", "v", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompareAndDelete(t *testing.T) {
	db := &fakeExecer{tag: pgconn.NewCommandTag("DELETE 1")}
	store := NewLockStore(db)

	deleted, err := store.CompareAndDelete(context.Background(), "k", "v")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []any{"k", "v"}, db.calls[0].args)

	db.tag = pgconn.NewCommandTag("DELETE 0")
	deleted, err = store.CompareAndDelete(context.Background(), "k", "v")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestUnexpectedRowCountIsMalformed(t *testing.T) {
	store := NewLockStore(&fakeExecer{tag: pgconn.NewCommandTag("DELETE 2")})

	_, err := store.CompareAndDelete(context.Background(), "k", "v")
	assert.ErrorIs(t, err, locker.ErrMalformedReply)
}

func TestExecErrorsSurfaceThroughWarlock(t *testing.T) {
	boom := errors.New("connection refused")
	w := locker.NewWarlock(NewLockStore(&fakeExecer{err: boom}))

	_, ok, err := w.Lock(context.Background(), "pg", time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, locker.ErrStore)
	assert.ErrorIs(t, err, boom)
}

func TestSweep(t *testing.T) {
	db := &fakeExecer{tag: pgconn.NewCommandTag("DELETE 3")}
	store := NewLockStore(db)

	n, err := store.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, sweepQuery, db.calls[0].sql)

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.Equal(t, createTableQuery, db.calls[1].sql)
}
