package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Opts are the pool and ping settings shared by every driver.
type Opts struct {
	Driver          string // sqlite | mysql | clickhouse
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// Open connects to the history store for opts.Driver.
func Open(opts Opts) (*sqlx.DB, error) {
	switch opts.Driver {
	case "sqlite":
		return NewSQLiteConnection(opts)
	case "mysql":
		return NewMySQLConnection(opts)
	case "clickhouse":
		return NewClickHouseConnection(opts)
	default:
		return nil, fmt.Errorf("unsupported history driver %q", opts.Driver)
	}
}

func open(driverName string, opts Opts, defaultPing time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, opts.DSN)
	if err != nil {
		return nil, err
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = defaultPing
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
