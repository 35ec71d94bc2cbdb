package domain

import (
	"fmt"
	"math"
	"strings"
)

type ContextSource string

const (
	SourceVector ContextSource = "vector"
	SourceGraph  ContextSource = "graph"
)

// ContextItem is a retrieved passage or subgraph fragment before fusion.
// Depth is the hop distance from a seed vertex for graph items and -1 for vector items.
type ContextItem struct {
	ID     string        `json:"id,omitempty"`
	Source ContextSource `json:"source"`
	Text   string        `json:"text"`
	Score  float64       `json:"score"`
	Depth  int           `json:"depth"`
}

type RerankMethod string

const (
	RerankLexical RerankMethod = "lexical"
	RerankOnline  RerankMethod = "online"
)

// ParseRerankMethod accepts the public names plus the "bleu"/"reranker" aliases.
func ParseRerankMethod(raw string) (RerankMethod, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "lexical", "bleu":
		return RerankLexical, nil
	case "online", "reranker":
		return RerankOnline, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse rerank method", fmt.Errorf("unknown rerank method %q", raw))
	}
}

// FusionParams tunes how vector and graph contexts are merged and reranked.
type FusionParams struct {
	GraphRatio        float64      `json:"graph_ratio"`
	RerankMethod      RerankMethod `json:"rerank_method"`
	NearNeighborFirst bool         `json:"near_neighbor_first"`
	RerankHint        string       `json:"rerank_hint"`
}

// Normalized clamps the graph ratio into [0,1] and defaults the rerank method. NaN counts as 0.
func (p FusionParams) Normalized() FusionParams {
	if math.IsNaN(p.GraphRatio) || p.GraphRatio < 0 {
		p.GraphRatio = 0
	}
	if p.GraphRatio > 1 {
		p.GraphRatio = 1
	}
	if p.RerankMethod == "" {
		p.RerankMethod = RerankLexical
	}
	return p
}

// HintTerms splits the rerank hint on commas and semicolons.
func (p FusionParams) HintTerms() []string {
	raw := strings.FieldsFunc(p.RerankHint, func(r rune) bool {
		return r == ',' || r == '，' || r == ';'
	})
	out := make([]string, 0, len(raw))
	for _, term := range raw {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			out = append(out, term)
		}
	}
	return out
}
