package settings

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/logger"
	"github.com/scmhooks/jenkins-notifier/internal/permission"
)

// HookKey identifies this integration among the hooks of a repository
const HookKey = "jenkins-notifier:jenkins-postReceiveHook"

// File is the on-disk YAML layout
type File struct {
	Repositories []RepositoryEntry `yaml:"repositories"`
}

// RepositoryEntry is the hook configuration of one repository
type RepositoryEntry struct {
	Project  string   `yaml:"project"`
	Slug     string   `yaml:"slug"`
	Enabled  bool     `yaml:"enabled"`
	Settings Settings `yaml:"settings"`
}

func (e RepositoryEntry) key() string {
	return e.Project + "/" + e.Slug
}

// FileStore serves settings from a YAML file. It implements Service.
type FileStore struct {
	path string

	mu      sync.RWMutex
	entries map[string]RepositoryEntry
}

// NewFileStore loads path and returns a store serving its contents
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemoryStore returns a store serving the given entries without a backing file
func NewMemoryStore(entries ...RepositoryEntry) *FileStore {
	s := &FileStore{}
	s.replace(entries)
	return s
}

// Path returns the backing file path
func (s *FileStore) Path() string {
	return s.path
}

// Reload re-reads the backing file. On error the previous snapshot is kept.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse settings file %s: %w", s.path, err)
	}

	for _, e := range f.Repositories {
		if e.Project == "" || e.Slug == "" {
			return fmt.Errorf("settings file %s: repository entry needs project and slug", s.path)
		}
		if e.Enabled {
			if err := ValidateSettings(e.Settings); err != nil {
				return fmt.Errorf("settings for %s: %w", e.key(), err)
			}
		}
	}

	s.replace(f.Repositories)
	logger.Get().Debug("Loaded settings for %d repositories from %s", len(f.Repositories), s.path)
	return nil
}

func (s *FileStore) replace(list []RepositoryEntry) {
	entries := make(map[string]RepositoryEntry, len(list))
	for _, e := range list {
		entries[e.key()] = e
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
}

// Put stores settings for a repository, replacing any previous entry
func (s *FileStore) Put(repo events.Repository, enabled bool, values Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string]RepositoryEntry)
	}
	s.entries[repo.Key()] = RepositoryEntry{
		Project:  repo.ProjectKey,
		Slug:     repo.Slug,
		Enabled:  enabled,
		Settings: values,
	}
}

// GetRepositoryHook returns the hook state, or nil when the repository has no entry
func (s *FileStore) GetRepositoryHook(ctx context.Context, repo events.Repository) (*Hook, error) {
	return permission.Do(ctx, permission.RepoAdmin, "read hook state", func(ctx context.Context) (*Hook, error) {
		entry, ok, err := s.lookup(ctx, repo)
		if err != nil || !ok {
			return nil, err
		}
		return &Hook{Key: HookKey, Enabled: entry.Enabled}, nil
	})
}

// GetSettings returns the repository settings, or nil when the repository has no entry
func (s *FileStore) GetSettings(ctx context.Context, repo events.Repository) (Settings, error) {
	return permission.Do(ctx, permission.RepoAdmin, "read hook settings", func(ctx context.Context) (Settings, error) {
		entry, ok, err := s.lookup(ctx, repo)
		if err != nil || !ok || entry.Settings == nil {
			return nil, err
		}
		// copy so callers cannot mutate the snapshot
		out := make(Settings, len(entry.Settings))
		for k, v := range entry.Settings {
			out[k] = v
		}
		return out, nil
	})
}

func (s *FileStore) lookup(ctx context.Context, repo events.Repository) (RepositoryEntry, bool, error) {
	if err := permission.Require(ctx, permission.RepoAdmin); err != nil {
		return RepositoryEntry{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[repo.Key()]
	return entry, ok, nil
}
