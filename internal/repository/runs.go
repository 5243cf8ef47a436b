package repository

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/jmehdipour/wx-ci/internal/model"
	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrations embed.FS

// RunsRepository persists finished runs.
type RunsRepository interface {
	Migrate(ctx context.Context) error
	Insert(ctx context.Context, r model.RunRecord) error
	InsertBatch(ctx context.Context, rs []model.RunRecord) error
	List(ctx context.Context, f ListFilter) ([]model.RunRecord, error)
}

// ListFilter narrows List; zero values mean "any".
type ListFilter struct {
	Type   model.RunType
	AppID  string
	Limit  int
	Offset int
}

type RunsRepositoryImpl struct {
	db *sqlx.DB
}

func NewRunsRepository(db *sqlx.DB) *RunsRepositoryImpl {
	return &RunsRepositoryImpl{db: db}
}

// Migrate creates the runs table for the connected driver.
func (r *RunsRepositoryImpl) Migrate(ctx context.Context) error {
	name := "migrations/" + r.db.DriverName() + ".sql"
	b, err := migrations.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	// ClickHouse and the mysql driver accept one statement per Exec.
	for _, stmt := range strings.Split(string(b), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	return nil
}

func (r *RunsRepositoryImpl) insertQuery() string {
	verb := "INSERT INTO"
	switch r.db.DriverName() {
	case "sqlite":
		verb = "INSERT OR IGNORE INTO"
	case "mysql":
		verb = "INSERT IGNORE INTO"
	}
	return verb + ` runs
		    (action_id, type, app_id, version, description, env, mode, user_name, branch,
		     commit_id, state, error, notify_error, started_at, finished_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
}

func args(rec model.RunRecord) []any {
	return []any{
		rec.ActionID, rec.Type.String(), rec.AppID, rec.Version, rec.Description, rec.Env, rec.Mode,
		rec.User, rec.Branch, rec.CommitID, rec.State.String(), rec.Error, rec.NotifyError,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	}
}

// Insert writes a single run; an action id already present is ignored.
func (r *RunsRepositoryImpl) Insert(ctx context.Context, rec model.RunRecord) error {
	return r.InsertBatch(ctx, []model.RunRecord{rec})
}

// InsertBatch writes runs in one transaction with a prepared statement, the
// shape ClickHouse requires for batches.
func (r *RunsRepositoryImpl) InsertBatch(ctx context.Context, rs []model.RunRecord) error {
	if len(rs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, r.insertQuery())
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range rs {
		if _, err := stmt.ExecContext(ctx, args(rec)...); err != nil {
			return fmt.Errorf("insert run %s: %w", rec.ActionID, err)
		}
	}

	return tx.Commit()
}

func (r *RunsRepositoryImpl) List(ctx context.Context, f ListFilter) ([]model.RunRecord, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `
		SELECT action_id, type, app_id, version, description, env, mode, user_name, branch,
		       commit_id, state, error, notify_error, started_at, finished_at
		FROM runs
		WHERE 1 = 1
	`
	var params []any

	if f.Type != "" {
		q += " AND type = ?"
		params = append(params, f.Type.String())
	}
	if f.AppID != "" {
		q += " AND app_id = ?"
		params = append(params, f.AppID)
	}

	q += " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	params = append(params, f.Limit, f.Offset)

	var rows []model.RunRecord
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), params...); err != nil {
		return nil, err
	}
	return rows, nil
}
