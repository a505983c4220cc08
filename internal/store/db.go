// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

// Package store opens the PostgreSQL pool and manages the schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectConfig controls how Open waits for the database to come up.
type ConnectConfig struct {
	// Attempts is the number of pings tried before giving up.
	Attempts uint64
	// Backoff is the first delay; later delays double up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultConnectConfig retries for roughly half a minute.
func DefaultConnectConfig() ConnectConfig {
	return ConnectConfig{Attempts: 8, Backoff: 250 * time.Millisecond, MaxBackoff: 5 * time.Second}
}

// Open creates a pool for databaseURL and pings it until it answers or the
// attempts run out. Configuration errors fail immediately.
func Open(ctx context.Context, databaseURL string, cfg ConnectConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 1
	}
	backoff := retry.NewExponential(cfg.Backoff)
	if cfg.MaxBackoff > 0 {
		backoff = retry.WithCappedDuration(cfg.MaxBackoff, backoff)
	}
	backoff = retry.WithMaxRetries(attempts-1, backoff)

	var attempt int
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := pool.Ping(ctx); pingErr != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}

	return pool, nil
}
