package ports

import (
	"context"
	"io"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

// AnswerService is the inbound contract for multi-mode question answering.
type AnswerService interface {
	Answer(ctx context.Context, req domain.AnswerRequest) (domain.AnswerOutcome, error)
}

// PromptConfigReader exposes the current question/prompt snapshot.
type PromptConfigReader interface {
	Snapshot() domain.PromptConfig
}

// BatchService is the inbound contract for back-testing over a question spreadsheet.
type BatchService interface {
	UploadQuestions(ctx context.Context, filename string, body io.Reader, lineCount int) (domain.UploadResult, error)
	Preview(ctx context.Context, lineCount int) (*domain.BatchDocument, error)
	Run(ctx context.Context, params domain.BatchParams, progress domain.ProgressFunc) (domain.BatchResult, error)
	OpenAnswers(ctx context.Context) (io.ReadCloser, error)
	OpenTemplate(ctx context.Context) (io.ReadCloser, error)
}

// EvaluationService scores a persisted answer batch.
type EvaluationService interface {
	Evaluate(ctx context.Context, metrics []string, rowLimit int) ([]domain.EvaluationRow, error)
	MetricNames() []string
}

// BatchRunService queues batch runs for the worker and reports their progress.
type BatchRunService interface {
	Submit(ctx context.Context, params domain.BatchParams) (*domain.BatchRun, error)
	GetByID(ctx context.Context, id string) (*domain.BatchRun, error)
}

// BatchRunProcessor is the worker-side contract for queued batch runs.
type BatchRunProcessor interface {
	ProcessByID(ctx context.Context, runID string) error
}

// RowAnswerer answers a single batch row without reconciling the stored question/prompt snapshot.
type RowAnswerer interface {
	AnswerRow(ctx context.Context, req domain.AnswerRequest) (domain.AnswerOutcome, error)
}
