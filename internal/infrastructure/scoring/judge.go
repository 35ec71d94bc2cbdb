package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
	"github.com/kirillkom/graphrag-assistant/internal/core/ports"
)

var judgeCriteria = map[string]string{
	ContextPrecision:  "What fraction of the retrieved contexts is useful for arriving at the reference answer?",
	Faithfulness:      "What fraction of the claims in the answer can be inferred from the retrieved contexts?",
	AnswerRelevancy:   "How directly and completely does the answer address the question?",
	AnswerCorrectness: "How factually consistent is the answer with the reference answer?",
	ContextRecall:     "What fraction of the reference answer is supported by the retrieved contexts?",
}

type judgeScorer struct {
	judge  ports.JSONGenerator
	metric string
}

func newJudgeScorer(judge ports.JSONGenerator, metric string) *judgeScorer {
	return &judgeScorer{judge: judge, metric: metric}
}

func (s *judgeScorer) Score(ctx context.Context, sample domain.EvalSample) (float64, error) {
	raw, err := s.judge.GenerateJSONFromPrompt(ctx, buildJudgePrompt(judgeCriteria[s.metric], sample))
	if err != nil {
		return 0, fmt.Errorf("judge %s: %w", s.metric, err)
	}
	var out struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return 0, fmt.Errorf("decode judge %s response: %w", s.metric, err)
	}
	if out.Score == nil {
		return 0, fmt.Errorf("judge %s response has no score", s.metric)
	}
	return *out.Score, nil
}

func buildJudgePrompt(criterion string, sample domain.EvalSample) string {
	var b strings.Builder
	b.WriteString("You are grading a retrieval-augmented answer.\n")
	b.WriteString("Criterion: ")
	b.WriteString(criterion)
	b.WriteString("\nReturn only JSON of the form {\"score\": <number between 0 and 1>}.\n\n")
	b.WriteString("Question: ")
	b.WriteString(sample.Question)
	b.WriteString("\nAnswer: ")
	b.WriteString(sample.Answer)
	b.WriteString("\nReference answer: ")
	b.WriteString(sample.GroundTruth)
	b.WriteString("\nRetrieved contexts:\n")
	if len(sample.Contexts) == 0 {
		b.WriteString("(none)\n")
	}
	for i, c := range sample.Contexts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	return b.String()
}
