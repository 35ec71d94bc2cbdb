package usecase

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

type runStatusCall struct {
	status domain.BatchRunStatus
	errMsg string
}

type batchRunRepoFake struct {
	run         *domain.BatchRun
	createErr   error
	statusCalls []runStatusCall
	progress    [][2]int
	completed   bool
	location    string
	warnings    []string
}

func (f *batchRunRepoFake) Create(_ context.Context, run *domain.BatchRun) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyRun := *run
	f.run = &copyRun
	return nil
}

func (f *batchRunRepoFake) GetByID(context.Context, string) (*domain.BatchRun, error) {
	if f.run == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "get batch run", errors.New("missing"))
	}
	copyRun := *f.run
	return &copyRun, nil
}

func (f *batchRunRepoFake) UpdateStatus(_ context.Context, _ string, status domain.BatchRunStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, runStatusCall{status: status, errMsg: errMessage})
	return nil
}

func (f *batchRunRepoFake) UpdateProgress(_ context.Context, _ string, done, total int) error {
	f.progress = append(f.progress, [2]int{done, total})
	return nil
}

func (f *batchRunRepoFake) Complete(_ context.Context, _ string, location string, warnings []string) error {
	f.completed = true
	f.location = location
	f.warnings = warnings
	return nil
}

type batchQueueFake struct {
	published []string
	err       error
}

func (f *batchQueueFake) PublishBatchRequested(_ context.Context, runID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, runID)
	return nil
}

func (f *batchQueueFake) SubscribeBatchRequested(context.Context, func(context.Context, string) error) error {
	return nil
}

type batchServiceFake struct {
	rows   int
	result domain.BatchResult
	err    error
}

func (f *batchServiceFake) UploadQuestions(context.Context, string, io.Reader, int) (domain.UploadResult, error) {
	return domain.UploadResult{}, nil
}

func (f *batchServiceFake) Preview(context.Context, int) (*domain.BatchDocument, error) {
	return nil, nil
}

func (f *batchServiceFake) Run(_ context.Context, _ domain.BatchParams, progress domain.ProgressFunc) (domain.BatchResult, error) {
	for i := 1; i <= f.rows; i++ {
		progress(i, f.rows)
	}
	return f.result, f.err
}

func (f *batchServiceFake) OpenAnswers(context.Context) (io.ReadCloser, error)  { return nil, nil }
func (f *batchServiceFake) OpenTemplate(context.Context) (io.ReadCloser, error) { return nil, nil }

func TestBatchRunUseCaseSubmit(t *testing.T) {
	repo := &batchRunRepoFake{}
	queue := &batchQueueFake{}
	uc := NewBatchRunUseCase(repo, queue, &batchServiceFake{}, nil)

	run, err := uc.Submit(context.Background(), domain.BatchParams{Modes: domain.ModeFlags{Raw: true}})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if run.ID == "" || run.Status != domain.BatchRunQueued {
		t.Fatalf("unexpected run: %+v", run)
	}
	if len(queue.published) != 1 || queue.published[0] != run.ID {
		t.Fatalf("expected published run id, got %v", queue.published)
	}
	if repo.run == nil || repo.run.ID != run.ID {
		t.Fatalf("expected run persisted")
	}
}

func TestBatchRunUseCaseSubmitRequiresMode(t *testing.T) {
	queue := &batchQueueFake{}
	uc := NewBatchRunUseCase(&batchRunRepoFake{}, queue, &batchServiceFake{}, nil)

	_, err := uc.Submit(context.Background(), domain.BatchParams{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(queue.published) != 0 {
		t.Fatalf("expected nothing published")
	}
}

func TestBatchRunUseCaseSubmitPublishError(t *testing.T) {
	uc := NewBatchRunUseCase(&batchRunRepoFake{}, &batchQueueFake{err: errors.New("nats down")}, &batchServiceFake{}, nil)
	if _, err := uc.Submit(context.Background(), domain.BatchParams{Modes: domain.ModeFlags{Raw: true}}); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestBatchRunUseCaseProcessByIDCompletes(t *testing.T) {
	repo := &batchRunRepoFake{run: &domain.BatchRun{ID: "run-1", Params: domain.BatchParams{Modes: domain.ModeFlags{Raw: true}}}}
	batch := &batchServiceFake{rows: 3, result: domain.BatchResult{
		Location: "/data/questions_answers.xlsx",
		Warnings: []string{domain.WarningRerankFallback},
	}}
	uc := NewBatchRunUseCase(repo, &batchQueueFake{}, batch, nil)

	if err := uc.ProcessByID(context.Background(), "run-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(repo.statusCalls) != 1 || repo.statusCalls[0].status != domain.BatchRunRunning {
		t.Fatalf("unexpected status calls: %+v", repo.statusCalls)
	}
	if len(repo.progress) != 3 || repo.progress[2] != [2]int{3, 3} {
		t.Fatalf("unexpected progress: %v", repo.progress)
	}
	if !repo.completed || repo.location != "/data/questions_answers.xlsx" || len(repo.warnings) != 1 {
		t.Fatalf("expected completed run, got completed=%v location=%s warnings=%v", repo.completed, repo.location, repo.warnings)
	}
}

func TestBatchRunUseCaseProcessByIDMarksFailed(t *testing.T) {
	repo := &batchRunRepoFake{run: &domain.BatchRun{ID: "run-1", Params: domain.BatchParams{Modes: domain.ModeFlags{Raw: true}}}}
	batch := &batchServiceFake{rows: 1, err: domain.WrapError(domain.ErrUpstream, "rag answer", errors.New("llm down"))}
	uc := NewBatchRunUseCase(repo, &batchQueueFake{}, batch, nil)

	err := uc.ProcessByID(context.Background(), "run-1")
	if !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	last := repo.statusCalls[len(repo.statusCalls)-1]
	if last.status != domain.BatchRunFailed || last.errMsg == "" {
		t.Fatalf("expected failed status with message, got %+v", last)
	}
	if repo.completed {
		t.Fatalf("failed run must not complete")
	}
	if len(repo.progress) != 1 {
		t.Fatalf("expected progress of completed rows to be kept, got %v", repo.progress)
	}
}

func TestBatchRunUseCaseProcessByIDMissingRun(t *testing.T) {
	uc := NewBatchRunUseCase(&batchRunRepoFake{}, &batchQueueFake{}, &batchServiceFake{}, nil)
	if err := uc.ProcessByID(context.Background(), "missing"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
