package ollama

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/resilience"
)

const defaultCacheSize = 1000

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

// New builds an Ollama client. A nil executor disables retries and circuit breaking.
func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
	cache  *lru.Cache[string, []float32]
}

func NewEmbedder(client *Client, cacheSize int) *Embedder {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &Embedder{client: client, cache: cache}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(e.client.embedModel, text)
	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}

	e.cache.Add(key, response.Embeddings[0])
	return response.Embeddings[0], nil
}

// Generator synthesizes answers and judge verdicts.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Synthesize(ctx context.Context, prompt string) (string, error) {
	return g.client.generateText(ctx, prompt)
}

func (g *Generator) GenerateJSONFromPrompt(ctx context.Context, prompt string) (string, error) {
	raw, err := g.client.generateJSON(ctx, prompt)
	if err != nil {
		return "", err
	}
	return extractJSONObject(raw), nil
}

// KeywordExtractor asks the model for graph lookup keywords and caches answers per question.
type KeywordExtractor struct {
	client *Client
	cache  *lru.Cache[string, []string]
}

func NewKeywordExtractor(client *Client, cacheSize int) *KeywordExtractor {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, _ := lru.New[string, []string](cacheSize)
	return &KeywordExtractor{client: client, cache: cache}
}

func (k *KeywordExtractor) ExtractKeywords(ctx context.Context, question string, maxKeywords int) ([]string, error) {
	key := cacheKey(k.client.genModel, fmt.Sprintf("%d\x00%s", maxKeywords, question))
	if keywords, ok := k.cache.Get(key); ok {
		return keywords, nil
	}

	raw, err := k.client.generateJSON(ctx, buildKeywordPrompt(question, maxKeywords))
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse keywords json: %w", err)
	}

	keywords := normalizeKeywords(parsed.Keywords, maxKeywords)
	k.cache.Add(key, keywords)
	return keywords, nil
}

func normalizeKeywords(raw []string, maxKeywords int) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, kw := range raw {
		kw = strings.TrimSpace(kw)
		lower := strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, kw)
		if maxKeywords > 0 && len(out) == maxKeywords {
			break
		}
	}
	return out
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func cacheKey(model, text string) string {
	hash := sha256.Sum256([]byte(text + "\x00" + model))
	return hex.EncodeToString(hash[:])
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
