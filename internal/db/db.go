// Package db provides PostgreSQL-backed repository implementations for the
// TalentSphere background core. All repositories accept a DBTX interface that
// is satisfied by both *pgxpool.Pool (for normal queries) and pgx.Tx (for
// transactional execution), enabling clean transaction support.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"talentsphere/internal/config"
	"talentsphere/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgx connection pool from the database configuration.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// Advisory lock keys for single-owner scheduling. In a multi-replica
// deployment only the process holding the lock runs the timer; everyone else
// stays idle. Keys are arbitrary but must be unique per component.
const (
	LockKeySweeper    = int64(0x7453_0001)
	LockKeyDispatcher = int64(0x7453_0002)
	LockKeyDigest     = int64(0x7453_0003)
)

// TryAdvisoryLock attempts to take a session-level Postgres advisory lock on
// the given key using the provided connection. Returns true if this session
// now holds the lock. The lock is released when the session ends, so callers
// must hold the acquiring connection for the lifetime of their scheduler.
func TryAdvisoryLock(ctx context.Context, conn *pgxpool.Conn, key int64) (bool, error) {
	var acquired bool
	err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired)
	if err != nil {
		return false, fmt.Errorf("acquiring advisory lock %d: %w", key, err)
	}
	return acquired, nil
}

// lockRetryInterval is how long a standby replica waits between advisory
// lock attempts.
const lockRetryInterval = 30 * time.Second

// WaitForAdvisoryLock blocks until this process holds the advisory lock for
// key, polling at a fixed interval. The returned connection owns the lock;
// the caller must Release it on shutdown. Returns ctx.Err() if the context
// ends first.
func WaitForAdvisoryLock(ctx context.Context, pool *pgxpool.Pool, key int64, logger types.Logger) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock connection: %w", err)
	}

	for {
		acquired, err := TryAdvisoryLock(ctx, conn, key)
		if err != nil {
			conn.Release()
			return nil, err
		}
		if acquired {
			logger.Info("advisory lock acquired", "key", key)
			return conn, nil
		}

		logger.Info("advisory lock held elsewhere, standing by", "key", key)
		select {
		case <-ctx.Done():
			conn.Release()
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}
