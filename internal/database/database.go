// Package database centralises sqlx connection helpers for the reference
// backend.  The driver is go-sql-driver/mysql, which also serves MariaDB.
//
// Public entry points:
//
//	Open(ctx, dsn)             – pool sized for a single backend process.
//	OpenWithOptions(ctx, opts) – fine-grained control.
//
// Both helpers Ping the database before returning so `crm serve` fails fast
// during bootstrap.  Callers Close() the returned *sqlx.DB on shutdown.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Options tunes the pool.  Zero fields take the Open defaults.
type Options struct {
	DSN         string
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// Open returns a *sqlx.DB with 15 max open, 5 idle, and a 30-minute
// connection lifetime.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(ctx, Options{DSN: dsn})
}

// OpenWithOptions opens and pings a pool.  The DSN is forced to parse times,
// to interpolate parameters client-side, and to report matched rather than
// changed rows so an idempotent UPDATE still counts as found.
func OpenWithOptions(ctx context.Context, opts Options) (*sqlx.DB, error) {
	if opts.DSN == "" {
		return nil, errors.New("database: empty dsn")
	}
	cfg, err := mysql.ParseDSN(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("database: parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.InterpolateParams = true
	cfg.ClientFoundRows = true

	if opts.MaxOpen <= 0 {
		opts.MaxOpen = 15
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = 5
	}
	if opts.MaxLifetime <= 0 {
		opts.MaxLifetime = 30 * time.Minute
	}

	db, err := sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(opts.MaxOpen)
	db.SetMaxIdleConns(opts.MaxIdle)
	db.SetConnMaxLifetime(opts.MaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return db, nil
}

// WithPassword returns dsn with its password replaced.  Used when the
// password is resolved from Vault rather than stored in the DSN.
func WithPassword(dsn, password string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("database: parse dsn: %w", err)
	}
	cfg.Passwd = password
	return cfg.FormatDSN(), nil
}
