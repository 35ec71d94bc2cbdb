package lexical

import (
	"math"
	"testing"
)

func TestTokensSplitsUnicodeAndHan(t *testing.T) {
	got := Tokens("Paris, France! 北京 Москва-2024")
	want := []string{"paris", "france", "北", "京", "москва", "2024"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestOverlapFractionOfQueryTokens(t *testing.T) {
	got := Overlap(TokenSet("capital of france"), TokenSet("Paris is the capital of France"))
	if got != 1 {
		t.Fatalf("expected full overlap, got %f", got)
	}
	if Overlap(TokenSet(""), TokenSet("x")) != 0 {
		t.Fatalf("expected zero overlap for empty query")
	}
}

func TestBLEUIdenticalSentenceScoresOne(t *testing.T) {
	tokens := Tokens("the capital of france is paris")
	if got := BLEU(tokens, tokens, 4); math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected BLEU=1, got %f", got)
	}
}

func TestBLEUDisjointSentenceScoresZero(t *testing.T) {
	if got := BLEU(Tokens("berlin germany"), Tokens("paris france"), 4); got != 0 {
		t.Fatalf("expected BLEU=0, got %f", got)
	}
}

func TestF1PartialMatch(t *testing.T) {
	got := F1(Tokens("paris is nice"), Tokens("paris"))
	if math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected F1=0.5, got %f", got)
	}
}
