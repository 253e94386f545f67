package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/types"
)

// MemoryStore implements every store interface in process. The run command
// uses it for ad-hoc runs without a history database, and tests use it as a
// collaborator.
type MemoryStore struct {
	mu         sync.Mutex
	tasks      map[int64]*types.Task
	sources    map[int64]*types.DataSource
	executions map[int64]*types.ExecutionRecord
	nextExecID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:      make(map[int64]*types.Task),
		sources:    make(map[int64]*types.DataSource),
		executions: make(map[int64]*types.ExecutionRecord),
	}
}

func (m *MemoryStore) PutTask(t *types.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *t
	m.tasks[t.ID] = &copied
}

func (m *MemoryStore) PutDataSource(src *types.DataSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *src
	m.sources[src.ID] = &copied
}

func (m *MemoryStore) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	copied := *t
	return &copied, nil
}

func (m *MemoryStore) ListTasks(ctx context.Context) ([]*types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		copied := *t
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListRunning(ctx context.Context) ([]*types.Task, error) {
	tasks, err := m.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	return running(tasks), nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id int64, status types.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetDataSource(ctx context.Context, id int64) (*types.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[id]
	if !ok {
		return nil, fmt.Errorf("data source %d: %w", id, ErrNotFound)
	}
	copied := *src
	return &copied, nil
}

func (m *MemoryStore) Create(ctx context.Context, rec *types.ExecutionRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextExecID++
	copied := *rec
	copied.ID = m.nextExecID
	if copied.Status == "" {
		copied.Status = types.ExecutionRunning
	}
	if copied.StartTime.IsZero() {
		copied.StartTime = time.Now()
	}
	m.executions[copied.ID] = &copied
	return copied.ID, nil
}

func (m *MemoryStore) Finalize(ctx context.Context, id int64, status types.ExecutionStatus, msg string, total, success, errCount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.executions[id]
	if !ok {
		return fmt.Errorf("execution %d: %w", id, ErrNotFound)
	}
	if rec.Status != types.ExecutionRunning {
		return fmt.Errorf("execution %d: %w", id, ErrNotRunning)
	}
	now := time.Now()
	rec.EndTime = &now
	rec.Status = status
	rec.ErrorMessage = msg
	rec.TotalCount = total
	rec.SuccessCount = success
	rec.ErrorCount = errCount
	return nil
}

func (m *MemoryStore) LatestRunning(ctx context.Context, taskID int64) (*types.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *types.ExecutionRecord
	for _, rec := range m.executions {
		if rec.TaskID != taskID || rec.Status != types.ExecutionRunning {
			continue
		}
		if latest == nil || rec.ID > latest.ID {
			latest = rec
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("running execution of task %d: %w", taskID, ErrNotFound)
	}
	copied := *latest
	return &copied, nil
}

func (m *MemoryStore) List(ctx context.Context, taskID int64, limit int) ([]*types.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.ExecutionRecord
	for _, rec := range m.executions {
		if taskID != 0 && rec.TaskID != taskID {
			continue
		}
		copied := *rec
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Execution returns a copy of one record. Tests read results through it.
func (m *MemoryStore) Execution(id int64) (*types.ExecutionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.executions[id]
	if !ok {
		return nil, false
	}
	copied := *rec
	return &copied, true
}
