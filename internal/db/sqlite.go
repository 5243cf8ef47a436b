package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// NewSQLiteConnection opens a local sqlite file; the default store for a
// single CI runner.
func NewSQLiteConnection(opts Opts) (*sqlx.DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("empty sqlite DSN")
	}
	if !strings.Contains(opts.DSN, "_time_format=") {
		sep := "?"
		if strings.Contains(opts.DSN, "?") {
			sep = "&"
		}
		opts.DSN += sep + "_time_format=sqlite&_pragma=busy_timeout(5000)"
	}
	// one writer at a time
	opts.MaxOpenConns = 1
	return open("sqlite", opts, time.Second)
}
