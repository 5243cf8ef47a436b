package db

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// NewMySQLConnection opens a *sqlx.DB with sensible pool/timeouts.
// The DSN should carry parseTime=true so timestamps scan into time.Time.
func NewMySQLConnection(opts Opts) (*sqlx.DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("empty MySQL DSN")
	}
	return open("mysql", opts, 5*time.Second)
}
