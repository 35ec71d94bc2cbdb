package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
	"github.com/kirillkom/graphrag-assistant/internal/core/ports"
)

// BatchRunUseCase queues batch runs for the worker and executes them there.
type BatchRunUseCase struct {
	repo   ports.BatchRunRepository
	queue  ports.MessageQueue
	batch  ports.BatchService
	logger *slog.Logger
}

func NewBatchRunUseCase(
	repo ports.BatchRunRepository,
	queue ports.MessageQueue,
	batch ports.BatchService,
	logger *slog.Logger,
) *BatchRunUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchRunUseCase{
		repo:   repo,
		queue:  queue,
		batch:  batch,
		logger: logger,
	}
}

func (uc *BatchRunUseCase) Submit(ctx context.Context, params domain.BatchParams) (*domain.BatchRun, error) {
	if !params.Modes.Any() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit batch run", errors.New(domain.WarningNoModeSelected))
	}

	now := time.Now().UTC()
	run := &domain.BatchRun{
		ID:        uuid.NewString(),
		Status:    domain.BatchRunQueued,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create batch run: %w", err)
	}
	if err := uc.queue.PublishBatchRequested(ctx, run.ID); err != nil {
		return nil, fmt.Errorf("publish batch run event: %w", err)
	}
	return run, nil
}

func (uc *BatchRunUseCase) GetByID(ctx context.Context, id string) (*domain.BatchRun, error) {
	run, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get batch run: %w", err)
	}
	return run, nil
}

func (uc *BatchRunUseCase) ProcessByID(ctx context.Context, runID string) error {
	run, err := uc.repo.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("fetch batch run by id: %w", err)
	}
	if err := uc.repo.UpdateStatus(ctx, runID, domain.BatchRunRunning, ""); err != nil {
		return fmt.Errorf("set status=running: %w", err)
	}

	progress := func(done, total int) {
		if err := uc.repo.UpdateProgress(ctx, runID, done, total); err != nil {
			uc.logger.Warn("batch run progress update failed", "run_id", runID, "error", err)
		}
	}

	result, err := uc.batch.Run(ctx, run.Params, progress)
	if err == nil && result.Rejected {
		err = domain.WrapError(domain.ErrInvalidInput, "run batch", errors.New(domain.WarningNoModeSelected))
	}
	if err != nil {
		if failErr := uc.markFailed(ctx, runID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.Complete(ctx, runID, result.Location, result.Warnings); err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}
	return nil
}

func (uc *BatchRunUseCase) markFailed(ctx context.Context, runID string, runErr error) error {
	return uc.repo.UpdateStatus(ctx, runID, domain.BatchRunFailed, domain.UserMessage(runErr))
}
