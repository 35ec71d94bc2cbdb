package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*BatchRunRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &BatchRunRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestCreateInsertsRun(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	run := &domain.BatchRun{
		ID:        "run-1",
		Status:    domain.BatchRunQueued,
		Params:    domain.BatchParams{Modes: domain.ModeFlags{GraphVector: true}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	mock.ExpectExec("INSERT INTO batch_runs").
		WithArgs("run-1", "queued", sqlmock.AnyArg(), 0, 0, "", []byte("[]"), "", now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDDecodesJSONColumns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "status", "params", "rows_done", "rows_total", "location", "warnings", "error_message", "created_at", "updated_at",
	}).AddRow(
		"run-1", "completed", []byte(`{"modes":{"raw":true},"answer_max_line_count":5}`), 3, 3,
		"/data/questions_answers.xlsx", []byte(`["`+domain.WarningRerankFallback+`"]`), "", now, now,
	)
	mock.ExpectQuery("SELECT id, status, params").WithArgs("run-1").WillReturnRows(rows)

	run, err := repo.GetByID(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if run.Status != domain.BatchRunCompleted || !run.Params.Modes.Raw || run.Params.PreviewLines != 5 {
		t.Fatalf("unexpected run %+v", run)
	}
	if len(run.Warnings) != 1 || run.RowsDone != 3 {
		t.Fatalf("unexpected progress/warnings %+v", run)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, status, params").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE batch_runs").
		WithArgs("missing", string(domain.BatchRunRunning), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.BatchRunRunning, "")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateProgress(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE batch_runs").
		WithArgs("run-1", 2, 5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateProgress(context.Background(), "run-1", 2, 5); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCompleteStoresLocationAndWarnings(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE batch_runs").
		WithArgs("run-1", string(domain.BatchRunCompleted), "/data/questions_answers.xlsx", []byte(`["w"]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Complete(context.Background(), "run-1", "/data/questions_answers.xlsx", []string{"w"}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
