package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
	"github.com/kirillkom/graphrag-assistant/internal/core/ports"
)

// PromptConfigStore owns the last-used question/prompt snapshot and persists it when a request diverges.
type PromptConfigStore struct {
	mu       sync.Mutex
	persist  ports.PromptConfigPersistence
	snapshot domain.PromptConfig
}

func NewPromptConfigStore(ctx context.Context, persist ports.PromptConfigPersistence) (*PromptConfigStore, error) {
	cfg, err := persist.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load prompt config: %w", err)
	}
	return &PromptConfigStore{
		persist:  persist,
		snapshot: cfg.WithDefaults(),
	}, nil
}

func (s *PromptConfigStore) Snapshot() domain.PromptConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Reconcile overwrites and saves the snapshot when any value differs. It reports whether a save happened.
func (s *PromptConfigStore) Reconcile(ctx context.Context, question, answerPrompt, rerankHint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := domain.PromptConfig{
		DefaultQuestion:  question,
		AnswerPrompt:     answerPrompt,
		CustomRerankInfo: rerankHint,
	}
	if next == s.snapshot {
		return false, nil
	}
	if err := s.persist.Save(ctx, next); err != nil {
		return false, fmt.Errorf("save prompt config: %w", err)
	}
	s.snapshot = next
	return true, nil
}
