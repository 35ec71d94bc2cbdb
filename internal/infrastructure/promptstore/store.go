package promptstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

const lockRetryDelay = 50 * time.Millisecond

// FileStore persists the question/prompt snapshot as YAML.
// A sibling .lock file serializes writers across processes (api, worker, ragctl).
type FileStore struct {
	path string
	lock *flock.Flock
}

func New(path string) (*FileStore, error) {
	if path == "" {
		path = "./data/config_prompt.yaml"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create prompt config dir: %w", err)
	}
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Load returns the defaults when the file does not exist yet.
func (s *FileStore) Load(ctx context.Context) (domain.PromptConfig, error) {
	if _, err := s.lock.TryRLockContext(ctx, lockRetryDelay); err != nil {
		return domain.PromptConfig{}, fmt.Errorf("lock prompt config: %w", err)
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.DefaultPromptConfig(), nil
	}
	if err != nil {
		return domain.PromptConfig{}, fmt.Errorf("read prompt config: %w", err)
	}

	var cfg domain.PromptConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.PromptConfig{}, fmt.Errorf("parse prompt config: %w", err)
	}
	return cfg.WithDefaults(), nil
}

func (s *FileStore) Save(ctx context.Context, cfg domain.PromptConfig) error {
	if _, err := s.lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("lock prompt config: %w", err)
	}
	defer s.lock.Unlock()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal prompt config: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write prompt config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace prompt config: %w", err)
	}
	return nil
}
