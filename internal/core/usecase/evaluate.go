package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
	"github.com/kirillkom/graphrag-assistant/internal/core/ports"
)

// DefaultMetricCount is how many registry metrics are scored when none are requested.
const DefaultMetricCount = 4

type EvaluateUseCase struct {
	storage ports.ObjectStorage
	codec   ports.TabularCodec
	metrics ports.MetricEvaluator
}

func NewEvaluateUseCase(storage ports.ObjectStorage, codec ports.TabularCodec, metrics ports.MetricEvaluator) *EvaluateUseCase {
	return &EvaluateUseCase{
		storage: storage,
		codec:   codec,
		metrics: metrics,
	}
}

func (uc *EvaluateUseCase) MetricNames() []string {
	return uc.metrics.Names()
}

// Evaluate scores every context-backed answer column of the stored answers, one row per column,
// in document column order.
func (uc *EvaluateUseCase) Evaluate(ctx context.Context, metrics []string, rowLimit int) ([]domain.EvaluationRow, error) {
	metrics, err := uc.resolveMetrics(metrics)
	if err != nil {
		return nil, err
	}

	doc, err := uc.loadAnswers(ctx, rowLimit)
	if err != nil {
		return nil, err
	}

	answerColumns := make([]string, 0, 3)
	for _, column := range doc.Columns {
		if _, ok := domain.ModeForAnswerColumn(column); ok {
			answerColumns = append(answerColumns, column)
		}
	}
	if len(answerColumns) == 0 {
		return nil, domain.WrapError(domain.ErrNoAnswers, "evaluate", errors.New("no RAG answers found in the answer file"))
	}
	if !doc.HasColumn(domain.ColumnExpectedAnswer) {
		return nil, domain.WrapError(domain.ErrMissingColumn, "evaluate", fmt.Errorf("column %q is required", domain.ColumnExpectedAnswer))
	}

	rows := make([]domain.EvaluationRow, 0, len(answerColumns))
	for _, column := range answerColumns {
		mode, _ := domain.ModeForAnswerColumn(column)
		samples, err := buildSamples(doc, column, domain.ContextColumn(mode))
		if err != nil {
			return nil, err
		}
		scores, err := uc.metrics.Evaluate(ctx, samples, metrics)
		if err != nil {
			return nil, domain.WrapError(domain.ErrUpstream, "score "+column, err)
		}
		rows = append(rows, domain.EvaluationRow{
			Method:  column,
			Metrics: metrics,
			Scores:  scores,
		})
	}
	return rows, nil
}

func (uc *EvaluateUseCase) resolveMetrics(requested []string) ([]string, error) {
	known := uc.metrics.Names()
	if len(requested) == 0 {
		return known[:min(DefaultMetricCount, len(known))], nil
	}

	index := make(map[string]struct{}, len(known))
	for _, name := range known {
		index[name] = struct{}{}
	}
	out := make([]string, 0, len(requested))
	seen := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := index[name]; !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "evaluate", fmt.Errorf("unknown metric %q", name))
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

func (uc *EvaluateUseCase) loadAnswers(ctx context.Context, rowLimit int) (*domain.BatchDocument, error) {
	exists, err := uc.storage.Exists(ctx, AnswersKey)
	if err != nil {
		return nil, fmt.Errorf("check answers: %w", err)
	}
	if !exists {
		return nil, domain.WrapError(domain.ErrNoAnswers, "evaluate", errors.New("no answer file, run a batch first"))
	}

	rc, err := uc.storage.Open(ctx, AnswersKey)
	if err != nil {
		return nil, fmt.Errorf("open answers: %w", err)
	}
	defer rc.Close()

	doc, err := uc.codec.Decode(rc, FormatXLSX, rowLimit)
	if err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return doc, nil
}

func buildSamples(doc *domain.BatchDocument, answerColumn, contextColumn string) ([]domain.EvalSample, error) {
	samples := make([]domain.EvalSample, 0, doc.Len())
	for i := 0; i < doc.Len(); i++ {
		contexts, err := decodeContexts(doc.Value(i, contextColumn))
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "evaluate", fmt.Errorf("row %d %s: %w", i+1, contextColumn, err))
		}
		samples = append(samples, domain.EvalSample{
			Question:    doc.Question(i),
			Answer:      doc.Value(i, answerColumn),
			Contexts:    contexts,
			GroundTruth: doc.Value(i, domain.ColumnExpectedAnswer),
		})
	}
	return samples, nil
}
