package ports

import (
	"context"
	"io"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

// Embedder builds vectors for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore performs semantic search over indexed passages.
type VectorStore interface {
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.ContextItem, error)
}

// KeywordExtractor pulls graph lookup keywords out of a question.
type KeywordExtractor interface {
	ExtractKeywords(ctx context.Context, question string, maxKeywords int) ([]string, error)
}

// VertexResolver maps keywords to graph vertex ids.
type VertexResolver interface {
	ResolveVertexIDs(ctx context.Context, keywords []string, limit int) ([]string, error)
}

// GraphStore queries the neighborhood of seed vertices.
type GraphStore interface {
	QuerySubgraph(ctx context.Context, vertexIDs []string, maxDepth, limit int) ([]domain.ContextItem, error)
}

// OnlineReranker scores documents against a query using an external service.
// The returned slice is aligned with documents.
type OnlineReranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
}

// AnswerSynthesizer generates the final answer text from a rendered prompt.
type AnswerSynthesizer interface {
	Synthesize(ctx context.Context, prompt string) (string, error)
}

// JSONGenerator returns a JSON object produced by the language model.
type JSONGenerator interface {
	GenerateJSONFromPrompt(ctx context.Context, prompt string) (string, error)
}

// PromptConfigPersistence loads and saves the question/prompt snapshot document.
type PromptConfigPersistence interface {
	Load(ctx context.Context) (domain.PromptConfig, error)
	Save(ctx context.Context, cfg domain.PromptConfig) error
}

// ObjectStorage stores tabular files at well-known keys.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Location(key string) string
}

// TabularCodec converts between spreadsheet files and batch documents.
type TabularCodec interface {
	Decode(r io.Reader, format string, limit int) (*domain.BatchDocument, error)
	Encode(w io.Writer, doc *domain.BatchDocument) error
}

// MetricEvaluator scores a dataset with named metrics and returns the mean per metric.
type MetricEvaluator interface {
	Names() []string
	Evaluate(ctx context.Context, samples []domain.EvalSample, metrics []string) (map[string]float64, error)
}

// BatchRunRepository persists asynchronous batch run state.
type BatchRunRepository interface {
	Create(ctx context.Context, run *domain.BatchRun) error
	GetByID(ctx context.Context, id string) (*domain.BatchRun, error)
	UpdateStatus(ctx context.Context, id string, status domain.BatchRunStatus, errMessage string) error
	UpdateProgress(ctx context.Context, id string, done, total int) error
	Complete(ctx context.Context, id, location string, warnings []string) error
}

// MessageQueue publishes/consumes batch run events.
type MessageQueue interface {
	PublishBatchRequested(ctx context.Context, runID string) error
	SubscribeBatchRequested(ctx context.Context, handler func(context.Context, string) error) error
}
