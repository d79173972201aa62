// Package store persists candidates, vacancies, sessions, marks and the chat
// history in PostgreSQL. Every accessor runs through the retry policy.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spigell/hr-interview-bot/internal/hr"
	"github.com/spigell/hr-interview-bot/internal/retry"
)

//go:embed schema.sql
var schema string

// DB is the subset of *pgxpool.Pool the store uses. Each call acquires a
// connection from the pool and releases it before returning.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewPool creates a pgx connection pool from the provided DSN.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	return pool, nil
}

type Store struct {
	db    DB
	retry *retry.Retrier
}

// New returns a store running every operation through r.
func New(db DB, r *retry.Retrier) *Store {
	if r == nil {
		r = NewRetrier(retry.DefaultPolicy(), nil)
	}
	return &Store{db: db, retry: r}
}

// NewRetrier builds a retrier that only retries transient database errors.
func NewRetrier(policy retry.Policy, log *zap.Logger, opts ...retry.Option) *retry.Retrier {
	base := []retry.Option{retry.WithClassifier(IsTransient), retry.WithLogger(log)}
	return retry.New(policy, append(base, opts...)...)
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	return s.retry.Do(ctx, "schema.migrate", func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, schema)
		return err
	})
}

// transientCodes are SQLSTATE codes worth another attempt besides the
// connection exception class (08).
var transientCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"53300": {}, // too_many_connections
	"57P01": {}, // admin_shutdown
	"57P02": {}, // crash_shutdown
	"57P03": {}, // cannot_connect_now
}

// IsTransient reports whether err is a network or availability failure of the
// database rather than a problem with the query or the data.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, hr.ErrNotFound) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		_, ok := transientCodes[pgErr.Code]
		return ok
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return pgconn.SafeToRetry(err)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return hr.ErrNotFound
	}
	return err
}

func inTx(ctx context.Context, db DB, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
