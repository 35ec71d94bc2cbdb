package scoring

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
	"github.com/kirillkom/graphrag-assistant/internal/core/lexical"
	"github.com/kirillkom/graphrag-assistant/internal/core/ports"
)

const (
	ContextPrecision  = "context_precision"
	Faithfulness      = "faithfulness"
	AnswerRelevancy   = "answer_relevancy"
	AnswerCorrectness = "answer_correctness"
	ContextRecall     = "context_recall"
	BLEU              = "bleu"

	// contextRelevanceThreshold is the ground-truth token coverage above which a context counts as relevant.
	contextRelevanceThreshold = 0.3
	defaultJudgeParallelism   = 4
)

// Scorer rates a single sample in [0,1].
type Scorer interface {
	Score(ctx context.Context, sample domain.EvalSample) (float64, error)
}

type ScorerFunc func(ctx context.Context, sample domain.EvalSample) (float64, error)

func (f ScorerFunc) Score(ctx context.Context, sample domain.EvalSample) (float64, error) {
	return f(ctx, sample)
}

// Registry maps metric names to scorers and keeps their presentation order.
type Registry struct {
	order       []string
	scorers     map[string]Scorer
	parallelism int
}

// NewRegistry builds the default metric set. With a judge the first five metrics are rated by the
// language model; without one every metric is computed lexically.
func NewRegistry(judge ports.JSONGenerator, parallelism int) *Registry {
	if parallelism <= 0 {
		parallelism = defaultJudgeParallelism
	}
	r := &Registry{
		scorers:     make(map[string]Scorer),
		parallelism: parallelism,
	}
	lexicalScorers := []struct {
		name   string
		scorer Scorer
	}{
		{ContextPrecision, ScorerFunc(lexicalContextPrecision)},
		{Faithfulness, ScorerFunc(lexicalFaithfulness)},
		{AnswerRelevancy, ScorerFunc(lexicalAnswerRelevancy)},
		{AnswerCorrectness, ScorerFunc(lexicalAnswerCorrectness)},
		{ContextRecall, ScorerFunc(lexicalContextRecall)},
		{BLEU, ScorerFunc(lexicalBLEU)},
	}
	for _, s := range lexicalScorers {
		scorer := s.scorer
		if judge != nil && s.name != BLEU {
			scorer = newJudgeScorer(judge, s.name)
		}
		r.Register(s.name, scorer)
	}
	return r
}

// Register adds or replaces a metric. New metrics are appended to the order.
func (r *Registry) Register(name string, scorer Scorer) {
	if _, ok := r.scorers[name]; !ok {
		r.order = append(r.order, name)
	}
	r.scorers[name] = scorer
}

func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Evaluate returns the mean score per metric over all samples. An empty dataset scores 0.
func (r *Registry) Evaluate(ctx context.Context, samples []domain.EvalSample, metrics []string) (map[string]float64, error) {
	for _, name := range metrics {
		if _, ok := r.scorers[name]; !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "evaluate metrics", fmt.Errorf("unknown metric %q", name))
		}
	}

	var mu sync.Mutex
	sums := make(map[string]float64, len(metrics))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for _, name := range metrics {
		scorer := r.scorers[name]
		for i, sample := range samples {
			g.Go(func() error {
				score, err := scorer.Score(gctx, sample)
				if err != nil {
					return fmt.Errorf("%s row %d: %w", name, i+1, err)
				}
				mu.Lock()
				sums[name] += clamp(score)
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(metrics))
	for _, name := range metrics {
		if len(samples) == 0 {
			out[name] = 0
			continue
		}
		out[name] = sums[name] / float64(len(samples))
	}
	return out, nil
}

func lexicalContextPrecision(_ context.Context, s domain.EvalSample) (float64, error) {
	if len(s.Contexts) == 0 {
		return 0, nil
	}
	truth := lexical.TokenSet(s.GroundTruth)
	relevant := 0
	for _, c := range s.Contexts {
		if lexical.Overlap(truth, lexical.TokenSet(c)) >= contextRelevanceThreshold {
			relevant++
		}
	}
	return float64(relevant) / float64(len(s.Contexts)), nil
}

func lexicalFaithfulness(_ context.Context, s domain.EvalSample) (float64, error) {
	return lexical.Overlap(lexical.TokenSet(s.Answer), contextTokens(s.Contexts)), nil
}

func lexicalAnswerRelevancy(_ context.Context, s domain.EvalSample) (float64, error) {
	return lexical.Overlap(lexical.TokenSet(s.Question), lexical.TokenSet(s.Answer)), nil
}

func lexicalAnswerCorrectness(_ context.Context, s domain.EvalSample) (float64, error) {
	return lexical.F1(lexical.Tokens(s.Answer), lexical.Tokens(s.GroundTruth)), nil
}

func lexicalContextRecall(_ context.Context, s domain.EvalSample) (float64, error) {
	return lexical.Overlap(lexical.TokenSet(s.GroundTruth), contextTokens(s.Contexts)), nil
}

func lexicalBLEU(_ context.Context, s domain.EvalSample) (float64, error) {
	return lexical.BLEU(lexical.Tokens(s.Answer), lexical.Tokens(s.GroundTruth), 4), nil
}

func contextTokens(contexts []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, c := range contexts {
		for token := range lexical.TokenSet(c) {
			out[token] = struct{}{}
		}
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
