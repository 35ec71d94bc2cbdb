package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

type answerFake struct {
	got     domain.AnswerRequest
	outcome domain.AnswerOutcome
	err     error
}

func (f *answerFake) Answer(_ context.Context, req domain.AnswerRequest) (domain.AnswerOutcome, error) {
	f.got = req
	return f.outcome, f.err
}

type evaluationFake struct {
	metrics  []string
	rowLimit int
	rows     []domain.EvaluationRow
	err      error
}

func (f *evaluationFake) Evaluate(_ context.Context, metrics []string, rowLimit int) ([]domain.EvaluationRow, error) {
	f.metrics = metrics
	f.rowLimit = rowLimit
	return f.rows, f.err
}

func (f *evaluationFake) MetricNames() []string {
	return []string{"faithfulness", "bleu"}
}

type promptsFake struct{}

func (promptsFake) Snapshot() domain.PromptConfig {
	return domain.PromptConfig{DefaultQuestion: "Tell me about Sarah."}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatalf("expected tool content, got %+v", result)
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func newTestServer(t *testing.T, answer *answerFake, eval *evaluationFake) *Server {
	t.Helper()
	s, err := NewServer(answer, eval, promptsFake{}, nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s
}

func TestNewServerRequiresServices(t *testing.T) {
	if _, err := NewServer(nil, &evaluationFake{}, nil, nil); err == nil {
		t.Fatalf("expected error for missing answer service")
	}
	if _, err := NewServer(&answerFake{}, nil, nil, nil); err == nil {
		t.Fatalf("expected error for missing evaluation service")
	}
}

func TestRAGAnswerToolMapsArguments(t *testing.T) {
	answer := &answerFake{outcome: domain.AnswerOutcome{
		Status: domain.OutcomeAnswered,
		Result: domain.AnswerResult{Answers: domain.Answers{GraphVector: "Sarah is an attorney."}},
	}}
	s := newTestServer(t, answer, &evaluationFake{})

	result, err := s.handleRAGAnswer(context.Background(), callRequest(ToolRAGAnswer, map[string]any{
		"graph_vector":  true,
		"graph_ratio":   0.4,
		"rerank_method": "online",
		"rerank_hint":   "attorney",
	}))
	if err != nil {
		t.Fatalf("handleRAGAnswer() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if answer.got.Question != "Tell me about Sarah." {
		t.Fatalf("expected default question, got %q", answer.got.Question)
	}
	if !answer.got.Modes.GraphVector || answer.got.Fusion.GraphRatio != 0.4 || answer.got.Fusion.RerankMethod != domain.RerankOnline {
		t.Fatalf("unexpected request: %+v", answer.got)
	}

	var outcome domain.AnswerOutcome
	if err := json.Unmarshal([]byte(resultText(t, result)), &outcome); err != nil {
		t.Fatalf("decode tool result: %v", err)
	}
	if outcome.Result.Answers.GraphVector != "Sarah is an attorney." {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestRAGAnswerToolReportsRejection(t *testing.T) {
	answer := &answerFake{outcome: domain.RejectedOutcome(domain.WarningNoModeSelected)}
	s := newTestServer(t, answer, &evaluationFake{})

	result, err := s.handleRAGAnswer(context.Background(), callRequest(ToolRAGAnswer, map[string]any{"question": "q"}))
	if err != nil {
		t.Fatalf("handleRAGAnswer() error = %v", err)
	}
	if !result.IsError || resultText(t, result) != domain.WarningNoModeSelected {
		t.Fatalf("expected rejection tool error, got %+v", result)
	}
}

func TestRAGAnswerToolReportsServiceError(t *testing.T) {
	answer := &answerFake{err: domain.WrapError(domain.ErrUpstream, "synthesize", errors.New("llm down"))}
	s := newTestServer(t, answer, &evaluationFake{})

	result, err := s.handleRAGAnswer(context.Background(), callRequest(ToolRAGAnswer, map[string]any{"raw": true}))
	if err != nil {
		t.Fatalf("handleRAGAnswer() error = %v", err)
	}
	if !result.IsError || !strings.Contains(resultText(t, result), "llm down") {
		t.Fatalf("expected wrapped service error, got %+v", result)
	}
}

func TestEvaluateToolPassesMetricsAndLimit(t *testing.T) {
	eval := &evaluationFake{rows: []domain.EvaluationRow{{
		Method:  domain.ColumnRawAnswer,
		Metrics: []string{"bleu"},
		Scores:  map[string]float64{"bleu": 0.5},
	}}}
	s := newTestServer(t, &answerFake{}, eval)

	result, err := s.handleEvaluate(context.Background(), callRequest(ToolEvaluateRAG, map[string]any{
		"metrics":   []any{"bleu"},
		"row_limit": float64(3),
	}))
	if err != nil {
		t.Fatalf("handleEvaluate() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if len(eval.metrics) != 1 || eval.metrics[0] != "bleu" || eval.rowLimit != 3 {
		t.Fatalf("unexpected evaluate call: %v %d", eval.metrics, eval.rowLimit)
	}
	if !strings.Contains(resultText(t, result), `"bleu": 0.5`) {
		t.Fatalf("unexpected result: %s", resultText(t, result))
	}
}

func TestListMetricsTool(t *testing.T) {
	s := newTestServer(t, &answerFake{}, &evaluationFake{})

	result, err := s.handleListMetrics(context.Background(), callRequest(ToolListMetrics, nil))
	if err != nil {
		t.Fatalf("handleListMetrics() error = %v", err)
	}
	if !strings.Contains(resultText(t, result), "faithfulness") {
		t.Fatalf("unexpected metrics: %s", resultText(t, result))
	}
}
