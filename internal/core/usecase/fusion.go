package usecase

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

// fuseContexts dedupes and reranks the retrieved lists and builds the context set of every active mode.
func fuseContexts(
	ctx context.Context,
	modes domain.ModeFlags,
	params domain.FusionParams,
	budget int,
	reranker *contextReranker,
	vector, graph []domain.ContextItem,
) domain.ContextBundle {
	if budget <= 0 {
		budget = defaultContextBudget
	}

	vector = dedupeContexts(vector)
	graph = dedupeContexts(graph)

	retrieved := vector
	if modes.VectorSearch() {
		vector = reranker.rerank(ctx, vector)
	}
	onlineVector := modes.VectorSearch() && reranker.method == domain.RerankOnline && !reranker.fellBack
	if modes.GraphSearch() {
		graph = reranker.rerank(ctx, graph)
		if params.NearNeighborFirst {
			sortByDepth(graph)
		}
	}
	// Both lists must be on one score scale before mixing.
	if onlineVector && reranker.fellBack {
		vector = reranker.rerankLexical(retrieved)
	}

	var bundle domain.ContextBundle
	if modes.VectorOnly {
		bundle.VectorContexts = contextTexts(trimContexts(vector, budget))
	}
	if modes.GraphOnly {
		bundle.GraphContexts = contextTexts(trimContexts(graph, budget))
	}
	if modes.GraphVector {
		bundle.GraphVectorContexts = contextTexts(mixContexts(vector, graph, params, budget))
	}
	return bundle
}

// mixContexts allocates round(ratio*budget) slots to graph items and the rest to vector items.
// Each side backfills slots the other cannot use, so the total never exceeds budget and the
// graph share never decreases as the ratio grows.
func mixContexts(vector, graph []domain.ContextItem, params domain.FusionParams, budget int) []domain.ContextItem {
	graphKeys := make(map[string]struct{}, len(graph))
	for _, item := range graph {
		graphKeys[contextKey(item)] = struct{}{}
	}
	filtered := make([]domain.ContextItem, 0, len(vector))
	for _, item := range vector {
		if _, dup := graphKeys[contextKey(item)]; dup {
			continue
		}
		filtered = append(filtered, item)
	}

	quota := int(math.Round(params.GraphRatio * float64(budget)))
	graphTaken := min(len(graph), quota)
	vectorTaken := min(len(filtered), budget-graphTaken)
	graphTaken = min(len(graph), budget-vectorTaken)

	fused := make([]domain.ContextItem, 0, graphTaken+vectorTaken)
	fused = append(fused, graph[:graphTaken]...)
	fused = append(fused, filtered[:vectorTaken]...)
	sortByScore(fused)

	if params.NearNeighborFirst {
		slots := make([]int, 0, graphTaken)
		for i, item := range fused {
			if item.Source == domain.SourceGraph {
				slots = append(slots, i)
			}
		}
		ordered := make([]domain.ContextItem, 0, len(slots))
		for _, i := range slots {
			ordered = append(ordered, fused[i])
		}
		sortByDepth(ordered)
		for n, i := range slots {
			fused[i] = ordered[n]
		}
	}
	return fused
}

// dedupeContexts keeps the first occurrence of every normalized text, preferring the higher score.
func dedupeContexts(items []domain.ContextItem) []domain.ContextItem {
	if len(items) == 0 {
		return items
	}
	index := make(map[string]int, len(items))
	out := make([]domain.ContextItem, 0, len(items))
	for _, item := range items {
		key := contextKey(item)
		if key == "" {
			continue
		}
		if pos, ok := index[key]; ok {
			out[pos] = preferRicherItem(out[pos], item)
			continue
		}
		index[key] = len(out)
		out = append(out, item)
	}
	return out
}

func contextKey(item domain.ContextItem) string {
	return strings.Join(strings.Fields(strings.ToLower(item.Text)), " ")
}

func preferRicherItem(current, candidate domain.ContextItem) domain.ContextItem {
	if candidate.Score > current.Score {
		current.Score = candidate.Score
	}
	if current.ID == "" && candidate.ID != "" {
		current.ID = candidate.ID
	}
	if candidate.Depth >= 0 && (current.Depth < 0 || candidate.Depth < current.Depth) {
		current.Depth = candidate.Depth
	}
	return current
}

// sortByDepth puts nearer graph neighbors first and keeps rerank order within a hop.
func sortByDepth(items []domain.ContextItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return depthRank(items[i]) < depthRank(items[j])
	})
}

func depthRank(item domain.ContextItem) int {
	if item.Depth < 0 {
		return math.MaxInt
	}
	return item.Depth
}

func trimContexts(items []domain.ContextItem, limit int) []domain.ContextItem {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	return items[:limit]
}

func contextTexts(items []domain.ContextItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Text)
	}
	return out
}
