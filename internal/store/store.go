package store

import (
	"context"
	"errors"

	"github.com/Lumos-Labs-HQ/datagen/internal/types"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrNotRunning is returned by Finalize when the record was already finalized.
	ErrNotRunning = errors.New("execution is not running")
)

// TaskStore is the task persistence the engine and scheduler read from.
type TaskStore interface {
	GetTask(ctx context.Context, id int64) (*types.Task, error)
	ListTasks(ctx context.Context) ([]*types.Task, error)
	ListRunning(ctx context.Context) ([]*types.Task, error)
	UpdateStatus(ctx context.Context, id int64, status types.TaskStatus) error
}

type DataSourceStore interface {
	GetDataSource(ctx context.Context, id int64) (*types.DataSource, error)
}

// ExecutionStore records one row per run. Finalize only succeeds while the
// record is RUNNING, which makes finalization happen at most once.
type ExecutionStore interface {
	Create(ctx context.Context, rec *types.ExecutionRecord) (int64, error)
	Finalize(ctx context.Context, id int64, status types.ExecutionStatus, msg string, total, success, errCount int64) error
	LatestRunning(ctx context.Context, taskID int64) (*types.ExecutionRecord, error)
	List(ctx context.Context, taskID int64, limit int) ([]*types.ExecutionRecord, error)
}

func running(tasks []*types.Task) []*types.Task {
	var out []*types.Task
	for _, t := range tasks {
		if t.IsRunning() {
			out = append(out, t)
		}
	}
	return out
}
