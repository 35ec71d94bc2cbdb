package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

type BatchRunRepository struct {
	db *sql.DB
}

func NewBatchRunRepository(db *sql.DB) *BatchRunRepository {
	return &BatchRunRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *BatchRunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS batch_runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	params JSONB NOT NULL DEFAULT '{}'::jsonb,
	rows_done INTEGER NOT NULL DEFAULT 0,
	rows_total INTEGER NOT NULL DEFAULT 0,
	location TEXT NOT NULL DEFAULT '',
	warnings JSONB NOT NULL DEFAULT '[]'::jsonb,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batch_runs_status ON batch_runs(status);
CREATE INDEX IF NOT EXISTS idx_batch_runs_created_at ON batch_runs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *BatchRunRepository) Create(ctx context.Context, run *domain.BatchRun) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	warningsJSON, err := marshalWarnings(run.Warnings)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO batch_runs (
	id, status, params, rows_done, rows_total, location, warnings, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		run.ID, string(run.Status), paramsJSON, run.RowsDone, run.RowsTotal, run.Location, warningsJSON,
		run.Error, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch run: %w", err)
	}
	return nil
}

func (r *BatchRunRepository) GetByID(ctx context.Context, id string) (*domain.BatchRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, status, params, rows_done, rows_total, location, warnings, error_message, created_at, updated_at
FROM batch_runs
WHERE id = $1
`, id)

	var run domain.BatchRun
	var paramsRaw, warningsRaw []byte
	var status string

	err := row.Scan(
		&run.ID, &status, &paramsRaw, &run.RowsDone, &run.RowsTotal, &run.Location,
		&warningsRaw, &run.Error, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get batch run", fmt.Errorf("batch run %s", id))
		}
		return nil, fmt.Errorf("scan batch run: %w", err)
	}

	if err := json.Unmarshal(paramsRaw, &run.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if err := json.Unmarshal(warningsRaw, &run.Warnings); err != nil {
		return nil, fmt.Errorf("unmarshal warnings: %w", err)
	}
	run.Status = domain.BatchRunStatus(status)
	return &run, nil
}

func (r *BatchRunRepository) UpdateStatus(ctx context.Context, id string, status domain.BatchRunStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE batch_runs
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update batch run status: %w", err)
	}
	return ensureAffected(res, "update batch run status", id)
}

func (r *BatchRunRepository) UpdateProgress(ctx context.Context, id string, done, total int) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE batch_runs
SET rows_done = $2, rows_total = $3, updated_at = $4
WHERE id = $1
`, id, done, total, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update batch run progress: %w", err)
	}
	return ensureAffected(res, "update batch run progress", id)
}

func (r *BatchRunRepository) Complete(ctx context.Context, id, location string, warnings []string) error {
	warningsJSON, err := marshalWarnings(warnings)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE batch_runs
SET status = $2, location = $3, warnings = $4, error_message = '', updated_at = $5
WHERE id = $1
`, id, string(domain.BatchRunCompleted), location, warningsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("complete batch run: %w", err)
	}
	return ensureAffected(res, "complete batch run", id)
}

func marshalWarnings(warnings []string) ([]byte, error) {
	if warnings == nil {
		warnings = []string{}
	}
	out, err := json.Marshal(warnings)
	if err != nil {
		return nil, fmt.Errorf("marshal warnings: %w", err)
	}
	return out, nil
}

func ensureAffected(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("batch run %s", id))
	}
	return nil
}
