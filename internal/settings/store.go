package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

type Store interface {
	Snapshot() Settings
	Update(s Settings) error
}

type MemoryStore struct {
	mu sync.RWMutex
	s  Settings
}

func NewMemoryStore(s Settings) *MemoryStore {
	return &MemoryStore{s: s}
}

func (m *MemoryStore) Snapshot() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s
}

func (m *MemoryStore) Update(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

// FileStore keeps settings in a JSON file next to the service. An access token
// from the environment overrides whatever the file holds and is never written back.
type FileStore struct {
	log           *slog.Logger
	path          string
	tokenOverride string

	mu sync.RWMutex
	s  Settings
}

func NewFileStore(log *slog.Logger, path, tokenOverride string) (*FileStore, error) {
	fs := &FileStore{
		log:           log.With(slog.String("component", "settings")),
		path:          path,
		tokenOverride: tokenOverride,
		s:             Defaults(),
	}

	if err := fs.load(); err != nil {
		return nil, err
	}

	return fs, nil
}

func (f *FileStore) load() error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.log.Info("settings file not found, using defaults", slog.String("path", f.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings %s: %w", f.path, err)
	}

	s := Defaults()
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse settings %s: %w", f.path, err)
	}

	f.mu.Lock()
	f.s = s
	f.mu.Unlock()

	f.log.Info("settings loaded",
		slog.String("path", f.path),
		slog.Bool("enabled", s.Enabled),
		slog.Int("targets", len(s.Targets())),
	)
	return nil
}

func (f *FileStore) Snapshot() Settings {
	f.mu.RLock()
	s := f.s
	f.mu.RUnlock()

	if f.tokenOverride != "" {
		s.AccessToken = f.tokenOverride
	}
	return s
}

// Update persists s. An empty channel secret keeps the one already on disk.
func (f *FileStore) Update(s Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s.ChannelSecret == "" {
		s.ChannelSecret = f.s.ChannelSecret
	}
	if f.tokenOverride != "" && s.AccessToken == f.tokenOverride {
		s.AccessToken = f.s.AccessToken
	}
	if s.Template == "" {
		s.Template = DefaultTemplate
	}

	if err := f.writeLocked(s); err != nil {
		return err
	}
	f.s = s
	return nil
}

func (f *FileStore) writeLocked(s Settings) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}

	return nil
}
