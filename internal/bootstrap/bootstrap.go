package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/graphrag-assistant/internal/config"
	"github.com/kirillkom/graphrag-assistant/internal/core/ports"
	"github.com/kirillkom/graphrag-assistant/internal/core/usecase"
	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/promptstore"
	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/rerank"
	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/scoring"
	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/tabular"
	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Resilience *resilience.Executor

	PromptConfig *usecase.PromptConfigStore
	AnswerUC     *usecase.AnswerUseCase
	BatchUC      *usecase.BatchUseCase
	EvaluateUC   *usecase.EvaluateUseCase

	// Queue and RunsUC are nil for apps built with NewLocal.
	Queue  ports.MessageQueue
	RunsUC *usecase.BatchRunUseCase

	closers []func()
}

// New wires the full stack, including the Postgres run repository and the NATS queue.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	app, err := NewLocal(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	repo, err := ensureRunRepository(ctx, db)
	if err != nil {
		app.Close()
		return nil, err
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: app.Resilience,
		Logger:             app.Logger,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.closers = append(app.closers, queue.Close)

	app.Queue = queue
	app.RunsUC = usecase.NewBatchRunUseCase(repo, queue, app.BatchUC, app.Logger)
	return app, nil
}

func ensureRunRepository(ctx context.Context, db *sql.DB) (*postgres.BatchRunRepository, error) {
	repo := postgres.NewBatchRunRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

// NewLocal wires answering, batch and evaluation without the run repository or queue.
func NewLocal(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	app.Resilience = resilience.NewExecutor(resilience.Config{
		Retry: resilience.RetryPolicy{
			MaxAttempts:    cfg.ResilienceRetryMaxAttempts,
			InitialBackoff: cfg.ResilienceRetryInitialBackoff,
			MaxBackoff:     cfg.ResilienceRetryMaxBackoff,
			Multiplier:     2,
		},
		Breaker: resilience.BreakerPolicy{
			Enabled:      cfg.ResilienceBreakerEnabled,
			MinRequests:  uint32(max(cfg.ResilienceBreakerMinRequests, 0)),
			FailureRatio: cfg.ResilienceBreakerFailureRatio,
			OpenTimeout:  cfg.ResilienceBreakerOpenTimeout,
		},
		Logger: logger,
	})

	prompts, err := promptstore.New(cfg.PromptConfigPath)
	if err != nil {
		return nil, fmt.Errorf("init prompt config store: %w", err)
	}
	app.PromptConfig, err = usecase.NewPromptConfigStore(ctx, prompts)
	if err != nil {
		return nil, fmt.Errorf("load prompt config: %w", err)
	}

	storage, err := localfs.New(cfg.BatchStoragePath)
	if err != nil {
		return nil, fmt.Errorf("init batch storage: %w", err)
	}

	graph, err := neo4j.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase, cfg.Neo4jNameProp, app.Resilience)
	if err != nil {
		return nil, fmt.Errorf("init graph store: %w", err)
	}
	app.closers = append(app.closers, func() { _ = graph.Close(context.Background()) })

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, app.Resilience)
	retrieval := usecase.RetrievalPorts{
		Embedder:    ollama.NewEmbedder(ollamaClient, cfg.EmbedCacheSize),
		Vectors:     qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, app.Resilience),
		Keywords:    ollama.NewKeywordExtractor(ollamaClient, cfg.KeywordCacheSize),
		Vertices:    graph,
		Graph:       graph,
		Synthesizer: ollama.NewGenerator(ollamaClient),
	}
	if cfg.RerankerURL != "" {
		retrieval.Reranker = rerank.New(cfg.RerankerURL, cfg.RerankerModel, cfg.RerankerAPIKey, app.Resilience)
	} else {
		logger.Info("online reranker not configured, lexical rerank only")
	}

	app.AnswerUC = usecase.NewAnswerUseCase(app.PromptConfig, retrieval, usecase.AnswerOptions{
		VectorTopK:    cfg.VectorTopK,
		ContextBudget: cfg.ContextBudget,
		MaxKeywords:   cfg.MaxKeywords,
		VertexLimit:   cfg.VertexLimit,
		GraphMaxDepth: cfg.GraphMaxDepth,
		GraphMaxItems: cfg.GraphMaxItems,
	}, logger)

	codec := tabular.New()
	app.BatchUC = usecase.NewBatchUseCase(app.AnswerUC, storage, codec)
	if err := app.BatchUC.EnsureTemplate(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure question template: %w", err)
	}

	var judge ports.JSONGenerator
	if cfg.EvaluationJudgeEnabled {
		judgeModel := cfg.OllamaJudgeModel
		if judgeModel == "" {
			judgeModel = cfg.OllamaGenModel
		}
		judge = ollama.NewGenerator(ollama.New(cfg.OllamaURL, judgeModel, cfg.OllamaEmbedModel, app.Resilience))
	}
	app.EvaluateUC = usecase.NewEvaluateUseCase(storage, codec, scoring.NewRegistry(judge, cfg.EvaluationParallelism))

	return app, nil
}

// BreakerStates reports the circuit breaker state per upstream operation.
func (a *App) BreakerStates() map[string]string {
	if a.Resilience == nil {
		return nil
	}
	return a.Resilience.BreakerStates()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
