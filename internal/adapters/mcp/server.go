package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
	"github.com/kirillkom/graphrag-assistant/internal/core/ports"
)

const (
	serverName    = "graphrag-assistant"
	serverVersion = "1.0.0"

	ToolRAGAnswer   = "rag_answer"
	ToolEvaluateRAG = "evaluate_rag"
	ToolListMetrics = "list_metrics"
)

// Server exposes answering and evaluation as MCP tools over stdio.
type Server struct {
	mcp        *server.MCPServer
	answer     ports.AnswerService
	evaluation ports.EvaluationService
	prompts    ports.PromptConfigReader
	logger     *slog.Logger
}

func NewServer(answer ports.AnswerService, evaluation ports.EvaluationService, prompts ports.PromptConfigReader, logger *slog.Logger) (*Server, error) {
	if answer == nil {
		return nil, errors.New("answer service is required")
	}
	if evaluation == nil {
		return nil, errors.New("evaluation service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		answer:     answer,
		evaluation: evaluation,
		prompts:    prompts,
		logger:     logger,
	}
	s.mcp = server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s, nil
}

// ServeStdio blocks until stdin is closed or the process is signalled.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool(ToolRAGAnswer,
		mcp.WithDescription("Answer a question with any combination of raw LLM, vector, graph and graph+vector retrieval."),
		mcp.WithString("question", mcp.Description("Question to answer. Empty uses the stored default question.")),
		mcp.WithBoolean("raw", mcp.Description("Answer with the bare LLM.")),
		mcp.WithBoolean("vector_only", mcp.Description("Answer from vector search contexts.")),
		mcp.WithBoolean("graph_only", mcp.Description("Answer from knowledge graph contexts.")),
		mcp.WithBoolean("graph_vector", mcp.Description("Answer from fused graph and vector contexts.")),
		mcp.WithNumber("graph_ratio", mcp.Description("Share of graph contexts in the fused set, 0..1."), mcp.Min(0), mcp.Max(1)),
		mcp.WithString("rerank_method", mcp.Description("Fused context rerank method."), mcp.Enum("lexical", "online")),
		mcp.WithBoolean("near_neighbor_first", mcp.Description("Order graph contexts by hop distance after rerank.")),
		mcp.WithString("rerank_hint", mcp.Description("Extra terms used to boost rerank scores.")),
		mcp.WithString("answer_prompt", mcp.Description("Prompt template with {context_str} and {query_str} placeholders.")),
	), s.handleRAGAnswer)

	s.mcp.AddTool(mcp.NewTool(ToolEvaluateRAG,
		mcp.WithDescription("Score the stored batch answers with the selected metrics."),
		mcp.WithArray("metrics", mcp.Description("Metric names. Empty uses the default set."), mcp.WithStringItems()),
		mcp.WithNumber("row_limit", mcp.Description("Evaluate only the first N rows. 0 means all rows."), mcp.Min(0)),
	), s.handleEvaluate)

	s.mcp.AddTool(mcp.NewTool(ToolListMetrics,
		mcp.WithDescription("List the available evaluation metrics."),
	), s.handleListMetrics)
}

func (s *Server) handleRAGAnswer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	method, err := domain.ParseRerankMethod(request.GetString("rerank_method", ""))
	if err != nil {
		return mcp.NewToolResultError(domain.UserMessage(err)), nil
	}
	question := request.GetString("question", "")
	if question == "" && s.prompts != nil {
		question = s.prompts.Snapshot().DefaultQuestion
	}

	outcome, err := s.answer.Answer(ctx, domain.AnswerRequest{
		Question: question,
		Modes: domain.ModeFlags{
			Raw:         request.GetBool("raw", false),
			VectorOnly:  request.GetBool("vector_only", false),
			GraphOnly:   request.GetBool("graph_only", false),
			GraphVector: request.GetBool("graph_vector", false),
		},
		Fusion: domain.FusionParams{
			GraphRatio:        request.GetFloat("graph_ratio", 0),
			RerankMethod:      method,
			NearNeighborFirst: request.GetBool("near_neighbor_first", false),
			RerankHint:        request.GetString("rerank_hint", ""),
		},
		PromptTemplate: request.GetString("answer_prompt", ""),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "mcp tool failed", "tool", ToolRAGAnswer, "error", err)
		return mcp.NewToolResultError(domain.UserMessage(err)), nil
	}
	if outcome.Status == domain.OutcomeRejected {
		return mcp.NewToolResultError(firstWarning(outcome.Warnings)), nil
	}
	return jsonResult(outcome)
}

func (s *Server) handleEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := s.evaluation.Evaluate(ctx, request.GetStringSlice("metrics", nil), request.GetInt("row_limit", 0))
	if err != nil {
		s.logger.ErrorContext(ctx, "mcp tool failed", "tool", ToolEvaluateRAG, "error", err)
		return mcp.NewToolResultError(domain.UserMessage(err)), nil
	}
	return jsonResult(map[string]any{"rows": rows})
}

func (s *Server) handleListMetrics(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"metrics": s.evaluation.MetricNames()})
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func firstWarning(warnings []string) string {
	if len(warnings) == 0 {
		return domain.WarningNoModeSelected
	}
	return warnings[0]
}
