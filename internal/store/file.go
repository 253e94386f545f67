package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/types"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type fileDocument struct {
	DataSources []*types.DataSource `yaml:"data_sources"`
	Tasks       []*types.Task       `yaml:"tasks"`
}

// FileStore keeps tasks and data sources in a YAML file. The file is re-read
// when its modification time changes, so edits are picked up by the next
// reconcile without a restart.
type FileStore struct {
	mu      sync.Mutex
	path    string
	modTime time.Time
	doc     fileDocument
}

func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) reload() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("failed to stat tasks file: %w", err)
	}
	if !s.modTime.IsZero() && info.ModTime().Equal(s.modTime) {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read tasks file: %w", err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse tasks file %s: %w", s.path, err)
	}
	if err := validateDocument(&doc); err != nil {
		return fmt.Errorf("invalid tasks file %s: %w", s.path, err)
	}

	s.doc = doc
	s.modTime = info.ModTime()
	return nil
}

func validateDocument(doc *fileDocument) error {
	sources := make(map[int64]bool, len(doc.DataSources))
	for _, src := range doc.DataSources {
		if src.ID <= 0 {
			return fmt.Errorf("data source %q needs a positive id", src.Name)
		}
		if sources[src.ID] {
			return fmt.Errorf("duplicate data source id %d", src.ID)
		}
		sources[src.ID] = true
	}

	tasks := make(map[int64]bool, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if t.ID <= 0 {
			return fmt.Errorf("task %q needs a positive id", t.Name)
		}
		if tasks[t.ID] {
			return fmt.Errorf("duplicate task id %d", t.ID)
		}
		tasks[t.ID] = true
		if !sources[t.DataSourceID] {
			return fmt.Errorf("task %d references unknown data source %d", t.ID, t.DataSourceID)
		}
		t.Status = types.TaskStatus(strings.ToUpper(string(t.Status)))
		if t.Status == "" {
			t.Status = types.TaskStopped
		}
	}
	return nil
}

func (s *FileStore) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reload(); err != nil {
		return nil, err
	}
	for _, t := range s.doc.Tasks {
		if t.ID == id {
			copied := *t
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
}

func (s *FileStore) ListTasks(ctx context.Context) ([]*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reload(); err != nil {
		return nil, err
	}
	out := make([]*types.Task, 0, len(s.doc.Tasks))
	for _, t := range s.doc.Tasks {
		copied := *t
		out = append(out, &copied)
	}
	return out, nil
}

func (s *FileStore) ListRunning(ctx context.Context) ([]*types.Task, error) {
	tasks, err := s.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	return running(tasks), nil
}

// UpdateStatus sets the task status and writes the file back.
func (s *FileStore) UpdateStatus(ctx context.Context, id int64, status types.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reload(); err != nil {
		return err
	}

	var found *types.Task
	for _, t := range s.doc.Tasks {
		if t.ID == id {
			found = t
			break
		}
	}
	if found == nil {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	found.Status = status
	found.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	return s.save()
}

func (s *FileStore) GetDataSource(ctx context.Context, id int64) (*types.DataSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reload(); err != nil {
		return nil, err
	}
	for _, src := range s.doc.DataSources {
		if src.ID == id {
			copied := *src
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("data source %d: %w", id, ErrNotFound)
}

// save writes to a temporary file next to the target and renames it over.
func (s *FileStore) save() error {
	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return fmt.Errorf("failed to encode tasks file: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(s.path), "."+filepath.Base(s.path)+"."+uuid.NewString()[:8])
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write tasks file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace tasks file: %w", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
	}
	return nil
}
