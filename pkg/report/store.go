package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/matzehuels/winch/pkg/errors"
)

// Store persists finished reports.
type Store interface {
	Save(ctx context.Context, r *Report) error
	// Get returns the report whose ID equals or uniquely starts with id.
	// Unknown IDs fail with errors.ErrCodeReportNotFound.
	Get(ctx context.Context, id string) (*Report, error)
	// List returns up to limit reports, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*Report, error)
	Close() error
}

// DefaultDir returns the report directory: $XDG_STATE_HOME/winch/reports,
// falling back to ~/.local/state/winch/reports.
func DefaultDir() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "winch", "reports"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".local", "state", "winch", "reports"), nil
}

// FileStore keeps one JSON file per report.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a file-based report store.
// If baseDir is empty, [DefaultDir] is used.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		baseDir = dir
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Path returns the directory holding report files.
func (s *FileStore) Path() string {
	return s.baseDir
}

func (s *FileStore) reportPath(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

func (s *FileStore) Save(ctx context.Context, r *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(s.reportPath(r.ID), data, 0600); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*Report, error) {
	if id == "" || strings.ContainsAny(id, `/\.*?[`) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "invalid report id %q", id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.reportPath(id)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path, err = s.findPrefix(id)
		if err != nil {
			return nil, err
		}
	}
	return readReport(path)
}

func (s *FileStore) findPrefix(prefix string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.baseDir, prefix+"*.json"))
	if err != nil {
		return "", fmt.Errorf("search reports: %w", err)
	}
	switch len(matches) {
	case 0:
		return "", errors.New(errors.ErrCodeReportNotFound, "no report %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", errors.New(errors.ErrCodeInvalidInput, "report id %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

func (s *FileStore) List(ctx context.Context, limit int) ([]*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read report dir: %w", err)
	}

	var reports []*Report
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		r, err := readReport(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		reports = append(reports, r)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].StartedAt.After(reports[j].StartedAt)
	})
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

func (s *FileStore) Close() error { return nil }

func readReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report file: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &r, nil
}

var _ Store = (*FileStore)(nil)
