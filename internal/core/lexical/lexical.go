// Package lexical holds the tokenization and n-gram overlap helpers used by
// local reranking and by the deterministic evaluation metrics.
package lexical

import (
	"math"
	"strings"
	"unicode"
)

// Tokens lowercases s and splits it into letter/digit runs.
// Han characters become single-rune tokens since they carry no spacing.
func Tokens(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range s {
		r = unicode.ToLower(r)
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func TokenSet(s string) map[string]struct{} {
	return toSet(Tokens(s))
}

// Overlap is the fraction of query tokens present in the candidate set.
func Overlap(query, candidate map[string]struct{}) float64 {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := candidate[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

// NGrams joins consecutive tokens into n-grams.
func NGrams(tokens []string, n int) []string {
	if n <= 0 || len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], " "))
	}
	return out
}

// BigramOverlap is Overlap computed over token bigrams.
func BigramOverlap(query, candidate []string) float64 {
	return Overlap(toSet(NGrams(query, 2)), toSet(NGrams(candidate, 2)))
}

// F1 is the token-level F1 between a prediction and a reference.
func F1(prediction, reference []string) float64 {
	if len(prediction) == 0 || len(reference) == 0 {
		return 0
	}
	refCounts := counts(reference)
	common := 0
	for _, token := range prediction {
		if refCounts[token] > 0 {
			refCounts[token]--
			common++
		}
	}
	if common == 0 {
		return 0
	}
	precision := float64(common) / float64(len(prediction))
	recall := float64(common) / float64(len(reference))
	return 2 * precision * recall / (precision + recall)
}

// BLEU computes sentence BLEU up to maxN with add-one smoothing and brevity penalty.
func BLEU(candidate, reference []string, maxN int) float64 {
	if len(candidate) == 0 || len(reference) == 0 {
		return 0
	}
	if maxN <= 0 {
		maxN = 4
	}

	logSum := 0.0
	for n := 1; n <= maxN; n++ {
		candNGrams := NGrams(candidate, n)
		refCounts := counts(NGrams(reference, n))
		matches := 0
		for _, gram := range candNGrams {
			if refCounts[gram] > 0 {
				refCounts[gram]--
				matches++
			}
		}
		total := len(candNGrams)
		if n == 1 && matches == 0 {
			return 0
		}
		precision := float64(matches+1) / float64(total+1)
		if n == 1 {
			precision = float64(matches) / float64(total)
		}
		logSum += math.Log(precision)
	}

	brevity := 1.0
	if len(candidate) < len(reference) {
		brevity = math.Exp(1 - float64(len(reference))/float64(len(candidate)))
	}
	return brevity * math.Exp(logSum/float64(maxN))
}

func toSet(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func counts(tokens []string) map[string]int {
	out := make(map[string]int, len(tokens))
	for _, token := range tokens {
		out[token]++
	}
	return out
}
