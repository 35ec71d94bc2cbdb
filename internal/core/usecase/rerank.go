package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
	"github.com/kirillkom/graphrag-assistant/internal/core/lexical"
	"github.com/kirillkom/graphrag-assistant/internal/core/ports"
)

var errRerankerUnavailable = errors.New("online reranker is not configured")

// contextReranker scores context lists for one request. Once the online
// method fails it stays on lexical scoring for the rest of the request.
type contextReranker struct {
	online   ports.OnlineReranker
	method   domain.RerankMethod
	question string
	hint     []string
	fellBack bool
	lastErr  error
}

func newContextReranker(online ports.OnlineReranker, question string, params domain.FusionParams) *contextReranker {
	return &contextReranker{
		online:   online,
		method:   params.RerankMethod,
		question: question,
		hint:     params.HintTerms(),
	}
}

func (r *contextReranker) rerank(ctx context.Context, items []domain.ContextItem) []domain.ContextItem {
	if len(items) == 0 {
		return items
	}
	if r.method == domain.RerankOnline && !r.fellBack {
		reranked, err := r.rerankOnline(ctx, items)
		if err == nil {
			return reranked
		}
		r.fellBack = true
		r.lastErr = err
	}
	return r.rerankLexical(items)
}

func (r *contextReranker) rerankLexical(items []domain.ContextItem) []domain.ContextItem {
	return rerankLexical(r.question, r.hint, items)
}

func (r *contextReranker) rerankOnline(ctx context.Context, items []domain.ContextItem) ([]domain.ContextItem, error) {
	if r.online == nil {
		return nil, errRerankerUnavailable
	}

	docs := make([]string, len(items))
	for i, item := range items {
		docs[i] = item.Text
	}
	query := r.question
	if len(r.hint) > 0 {
		query = query + " " + strings.Join(r.hint, " ")
	}

	scores, err := r.online.Rerank(ctx, query, docs)
	if err != nil {
		return nil, fmt.Errorf("online rerank: %w", err)
	}
	if len(scores) != len(items) {
		return nil, fmt.Errorf("online rerank: scores/documents mismatch: %d/%d", len(scores), len(items))
	}

	out := make([]domain.ContextItem, len(items))
	copy(out, items)
	for i := range out {
		out[i].Score = scores[i]
	}
	sortByScore(out)
	return out, nil
}

// rerankLexical blends normalized retrieval score with question token overlap and boosts hint matches.
func rerankLexical(question string, hint []string, items []domain.ContextItem) []domain.ContextItem {
	out := make([]domain.ContextItem, len(items))
	copy(out, items)
	if len(out) == 0 {
		return out
	}

	queryTokens := lexical.Tokens(question)
	querySet := lexical.TokenSet(question)

	minScore := out[0].Score
	maxScore := out[0].Score
	for _, item := range out[1:] {
		if item.Score < minScore {
			minScore = item.Score
		}
		if item.Score > maxScore {
			maxScore = item.Score
		}
	}
	rangeScore := maxScore - minScore
	normalize := func(v float64) float64 {
		if rangeScore <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / rangeScore
	}

	for i := range out {
		textTokens := lexical.Tokens(out[i].Text)
		overlap := lexical.Overlap(querySet, lexical.TokenSet(out[i].Text))
		bigrams := lexical.BigramOverlap(queryTokens, textTokens)
		out[i].Score = 0.20*normalize(out[i].Score) + 0.55*overlap + 0.25*bigrams + 0.50*hintHit(hint, out[i].Text)
	}
	sortByScore(out)
	return out
}

func hintHit(hint []string, text string) float64 {
	if len(hint) == 0 || text == "" {
		return 0
	}
	text = strings.ToLower(text)
	matches := 0
	for _, term := range hint {
		if strings.Contains(text, term) {
			matches++
		}
	}
	return float64(matches) / float64(len(hint))
}

func sortByScore(items []domain.ContextItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
}
