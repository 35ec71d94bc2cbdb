package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
	"github.com/kirillkom/graphrag-assistant/internal/core/ports"
	"github.com/kirillkom/graphrag-assistant/internal/observability/logging"
)

const (
	defaultVectorTopK    = 10
	defaultContextBudget = 8
	defaultMaxKeywords   = 5
	defaultVertexLimit   = 10
	defaultGraphMaxDepth = 2
	defaultGraphMaxItems = 30
)

var errEmptyQuestion = domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("question is required"))

type AnswerOptions struct {
	VectorTopK    int
	ContextBudget int
	MaxKeywords   int
	VertexLimit   int
	GraphMaxDepth int
	GraphMaxItems int
}

func (o AnswerOptions) withDefaults() AnswerOptions {
	if o.VectorTopK <= 0 {
		o.VectorTopK = defaultVectorTopK
	}
	if o.ContextBudget <= 0 {
		o.ContextBudget = defaultContextBudget
	}
	if o.MaxKeywords <= 0 {
		o.MaxKeywords = defaultMaxKeywords
	}
	if o.VertexLimit <= 0 {
		o.VertexLimit = defaultVertexLimit
	}
	if o.GraphMaxDepth <= 0 {
		o.GraphMaxDepth = defaultGraphMaxDepth
	}
	if o.GraphMaxItems <= 0 {
		o.GraphMaxItems = defaultGraphMaxItems
	}
	return o
}

// RetrievalPorts groups the retrieval and synthesis collaborators of the answer pipeline.
// Reranker may be nil when no online reranking service is configured.
type RetrievalPorts struct {
	Embedder    ports.Embedder
	Vectors     ports.VectorStore
	Keywords    ports.KeywordExtractor
	Vertices    ports.VertexResolver
	Graph       ports.GraphStore
	Reranker    ports.OnlineReranker
	Synthesizer ports.AnswerSynthesizer
}

type AnswerUseCase struct {
	config    *PromptConfigStore
	retrieval RetrievalPorts
	opts      AnswerOptions
	logger    *slog.Logger
}

func NewAnswerUseCase(config *PromptConfigStore, retrieval RetrievalPorts, opts AnswerOptions, logger *slog.Logger) *AnswerUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerUseCase{
		config:    config,
		retrieval: retrieval,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// Answer reconciles the stored question/prompt, then runs every requested mode.
// A request without modes is rejected before anything is stored.
func (uc *AnswerUseCase) Answer(ctx context.Context, req domain.AnswerRequest) (domain.AnswerOutcome, error) {
	req = uc.normalize(req)
	if !req.Modes.Any() {
		return domain.RejectedOutcome(domain.WarningNoModeSelected), nil
	}
	if req.Question == "" {
		return domain.AnswerOutcome{}, errEmptyQuestion
	}

	if _, err := uc.config.Reconcile(ctx, req.Question, req.PromptTemplate, req.Fusion.RerankHint); err != nil {
		logging.Critical(ctx, uc.logger, "prompt config reconcile failed", "error", err)
		return domain.AnswerOutcome{}, domain.WrapError(domain.ErrUpstream, "reconcile prompt config", err)
	}
	return uc.answer(ctx, req)
}

// AnswerRow runs the pipeline without touching the stored question/prompt snapshot.
func (uc *AnswerUseCase) AnswerRow(ctx context.Context, req domain.AnswerRequest) (domain.AnswerOutcome, error) {
	return uc.answer(ctx, uc.normalize(req))
}

func (uc *AnswerUseCase) normalize(req domain.AnswerRequest) domain.AnswerRequest {
	req.Question = strings.TrimSpace(req.Question)
	if strings.TrimSpace(req.PromptTemplate) == "" {
		req.PromptTemplate = uc.config.Snapshot().AnswerPrompt
	}
	req.Fusion = req.Fusion.Normalized()
	return req
}

func (uc *AnswerUseCase) answer(ctx context.Context, req domain.AnswerRequest) (domain.AnswerOutcome, error) {
	if !req.Modes.Any() {
		return domain.RejectedOutcome(domain.WarningNoModeSelected), nil
	}
	if req.Question == "" {
		return domain.AnswerOutcome{}, errEmptyQuestion
	}

	result, err := uc.run(ctx, req)
	if err != nil {
		logging.Critical(ctx, uc.logger, "rag answer failed", "error", err)
		return domain.AnswerOutcome{}, domain.WrapError(domain.ErrUpstream, "rag answer", err)
	}

	outcome := domain.AnswerOutcome{Status: domain.OutcomeAnswered, Result: result}
	if result.RerankFallback {
		outcome.Status = domain.OutcomeFallback
		outcome.Warnings = append(outcome.Warnings, domain.WarningRerankFallback)
	}
	return outcome, nil
}

func (uc *AnswerUseCase) run(ctx context.Context, req domain.AnswerRequest) (domain.AnswerResult, error) {
	var vector, graph []domain.ContextItem

	g, gctx := errgroup.WithContext(ctx)
	if req.Modes.VectorSearch() {
		g.Go(func() error {
			items, err := uc.retrieveVector(gctx, req.Question)
			vector = items
			return err
		})
	}
	if req.Modes.GraphSearch() {
		g.Go(func() error {
			items, err := uc.retrieveGraph(gctx, req.Question)
			graph = items
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return domain.AnswerResult{}, err
	}

	reranker := newContextReranker(uc.retrieval.Reranker, req.Question, req.Fusion)
	bundle := fuseContexts(ctx, req.Modes, req.Fusion, uc.opts.ContextBudget, reranker, vector, graph)
	if reranker.fellBack {
		uc.logger.Warn("online rerank failed, using lexical rerank", "error", reranker.lastErr)
	}

	result := domain.AnswerResult{Contexts: bundle, RerankFallback: reranker.fellBack}
	for _, mode := range req.Modes.Active() {
		prompt := req.Question
		if mode != domain.ModeRaw {
			prompt = renderAnswerPrompt(req.PromptTemplate, req.Question, bundle.ForMode(mode))
		}
		text, err := uc.retrieval.Synthesizer.Synthesize(ctx, prompt)
		if err != nil {
			return domain.AnswerResult{}, fmt.Errorf("synthesize %s answer: %w", mode, err)
		}
		result.Answers.Set(mode, strings.TrimSpace(text))
	}
	return result, nil
}

func (uc *AnswerUseCase) retrieveVector(ctx context.Context, question string) ([]domain.ContextItem, error) {
	queryVector, err := uc.retrieval.Embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	items, err := uc.retrieval.Vectors.Search(ctx, queryVector, uc.opts.VectorTopK)
	if err != nil {
		return nil, fmt.Errorf("search vector index: %w", err)
	}
	return items, nil
}

func (uc *AnswerUseCase) retrieveGraph(ctx context.Context, question string) ([]domain.ContextItem, error) {
	keywords, err := uc.retrieval.Keywords.ExtractKeywords(ctx, question, uc.opts.MaxKeywords)
	if err != nil {
		return nil, fmt.Errorf("extract keywords: %w", err)
	}
	if len(keywords) == 0 {
		return nil, nil
	}
	vertexIDs, err := uc.retrieval.Vertices.ResolveVertexIDs(ctx, keywords, uc.opts.VertexLimit)
	if err != nil {
		return nil, fmt.Errorf("resolve vertex ids: %w", err)
	}
	if len(vertexIDs) == 0 {
		return nil, nil
	}
	items, err := uc.retrieval.Graph.QuerySubgraph(ctx, vertexIDs, uc.opts.GraphMaxDepth, uc.opts.GraphMaxItems)
	if err != nil {
		return nil, fmt.Errorf("query graph: %w", err)
	}
	return items, nil
}

func renderAnswerPrompt(template, question string, contexts []string) string {
	var b strings.Builder
	for i, c := range contexts {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(c)
	}
	replacer := strings.NewReplacer(
		domain.PlaceholderContext, b.String(),
		domain.PlaceholderQuery, question,
	)
	return replacer.Replace(template)
}
