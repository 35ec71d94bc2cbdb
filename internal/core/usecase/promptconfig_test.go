package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

type promptPersistenceFake struct {
	loaded  domain.PromptConfig
	saved   []domain.PromptConfig
	loadErr error
	saveErr error
}

func (f *promptPersistenceFake) Load(context.Context) (domain.PromptConfig, error) {
	if f.loadErr != nil {
		return domain.PromptConfig{}, f.loadErr
	}
	return f.loaded, nil
}

func (f *promptPersistenceFake) Save(_ context.Context, cfg domain.PromptConfig) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, cfg)
	return nil
}

func TestNewPromptConfigStoreFillsDefaults(t *testing.T) {
	store, err := NewPromptConfigStore(context.Background(), &promptPersistenceFake{})
	if err != nil {
		t.Fatalf("NewPromptConfigStore() error = %v", err)
	}
	snap := store.Snapshot()
	if snap.DefaultQuestion != domain.DefaultQuestion || snap.AnswerPrompt != domain.DefaultAnswerTemplate {
		t.Fatalf("expected default snapshot, got %+v", snap)
	}
}

func TestPromptConfigStoreReconcileSavesOnlyOnChange(t *testing.T) {
	persist := &promptPersistenceFake{loaded: domain.PromptConfig{DefaultQuestion: "q", AnswerPrompt: "p"}}
	store, err := NewPromptConfigStore(context.Background(), persist)
	if err != nil {
		t.Fatalf("NewPromptConfigStore() error = %v", err)
	}

	saved, err := store.Reconcile(context.Background(), "q", "p", "")
	if err != nil || saved {
		t.Fatalf("expected no save for identical values, saved=%v err=%v", saved, err)
	}

	saved, err = store.Reconcile(context.Background(), "q", "p", "capital,france")
	if err != nil || !saved {
		t.Fatalf("expected save for changed hint, saved=%v err=%v", saved, err)
	}
	if len(persist.saved) != 1 || persist.saved[0].CustomRerankInfo != "capital,france" {
		t.Fatalf("unexpected saved configs: %+v", persist.saved)
	}
	if store.Snapshot().CustomRerankInfo != "capital,france" {
		t.Fatalf("snapshot not updated: %+v", store.Snapshot())
	}
}

func TestPromptConfigStoreReconcileKeepsSnapshotOnSaveError(t *testing.T) {
	persist := &promptPersistenceFake{loaded: domain.PromptConfig{DefaultQuestion: "q", AnswerPrompt: "p"}}
	store, _ := NewPromptConfigStore(context.Background(), persist)
	persist.saveErr = errors.New("disk full")

	if _, err := store.Reconcile(context.Background(), "other", "p", ""); err == nil {
		t.Fatalf("expected save error")
	}
	if store.Snapshot().DefaultQuestion != "q" {
		t.Fatalf("snapshot must stay unchanged on save failure, got %+v", store.Snapshot())
	}
}

func TestNewPromptConfigStoreLoadError(t *testing.T) {
	if _, err := NewPromptConfigStore(context.Background(), &promptPersistenceFake{loadErr: errors.New("boom")}); err == nil {
		t.Fatalf("expected load error")
	}
}
