package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/config"
	"github.com/Lumos-Labs-HQ/datagen/internal/database"
	"github.com/Lumos-Labs-HQ/datagen/internal/logger"
	"github.com/Lumos-Labs-HQ/datagen/internal/rules"
	"github.com/Lumos-Labs-HQ/datagen/internal/store"
	"github.com/Lumos-Labs-HQ/datagen/internal/stream"
	"github.com/Lumos-Labs-HQ/datagen/internal/types"
	"github.com/Lumos-Labs-HQ/datagen/internal/writer"
)

// Opener connects to a relational data source.
type Opener func(ctx context.Context, src *types.DataSource) (database.Adapter, error)

type Engine struct {
	cfg     *config.Config
	tasks   store.TaskStore
	sources store.DataSourceStore
	history store.ExecutionStore
	streams *stream.Registry
	writer  *writer.Writer
	open    Opener
	seed    int64
}

func New(cfg *config.Config, tasks store.TaskStore, sources store.DataSourceStore, history store.ExecutionStore, streams *stream.Registry) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if streams == nil {
		streams = stream.NewRegistry(cfg.Stream, nil)
	}
	return &Engine{
		cfg:     cfg,
		tasks:   tasks,
		sources: sources,
		history: history,
		streams: streams,
		writer:  writer.New(cfg.Writer, nil),
		open:    database.Open,
	}
}

// WithOpener replaces how relational sources are opened.
func (e *Engine) WithOpener(open Opener) *Engine {
	e.open = open
	return e
}

// WithSeed makes every run use the same random sequence.
func (e *Engine) WithSeed(seed int64) *Engine {
	e.seed = seed
	return e
}

func (e *Engine) Streams() *stream.Registry {
	return e.streams
}

// Stats are the counts of one run.
type Stats struct {
	Total   int64
	Success int64
	Errors  int64
	notes   []string
}

func (s *Stats) note(format string, args ...interface{}) {
	s.notes = append(s.notes, fmt.Sprintf(format, args...))
}

// ExecuteTask runs the task once and records the outcome. It reports true
// when the run finished as SUCCESS; details go to the execution record.
func (e *Engine) ExecuteTask(ctx context.Context, id int64) bool {
	log := logger.ForTask(id)

	task, err := e.tasks.GetTask(ctx, id)
	if err != nil {
		log.Error("❌ Failed to load task: %v", err)
		return false
	}

	recID, err := e.history.Create(ctx, &types.ExecutionRecord{
		TaskID:    id,
		StartTime: time.Now(),
		Status:    types.ExecutionRunning,
	})
	if err != nil {
		log.Error("❌ Failed to create execution record: %v", err)
		return false
	}

	log.Info("🌱 Starting %s (%s %s, batch %d)", task.Name, task.TargetType, task.TargetName, task.BatchSize)
	started := time.Now()
	stats, runErr := e.run(ctx, task, log)
	status, msg := outcome(ctx, &stats, runErr)

	if err := e.history.Finalize(context.WithoutCancel(ctx), recID, status, msg, stats.Total, stats.Success, stats.Errors); err != nil {
		if errors.Is(err, store.ErrNotRunning) {
			log.Debug("execution %d was already finalized", recID)
		} else {
			log.Error("❌ Failed to finalize execution %d: %v", recID, err)
		}
	}

	switch status {
	case types.ExecutionSuccess:
		log.Success("✅ %s finished in %s: %d/%d rows written", task.Name, time.Since(started).Round(time.Millisecond), stats.Success, stats.Total)
	case types.ExecutionStopped:
		log.Warn("⚠️  %s stopped: %d/%d rows written", task.Name, stats.Success, stats.Total)
	default:
		log.Error("❌ %s failed: %s", task.Name, msg)
	}
	return status == types.ExecutionSuccess
}

func outcome(ctx context.Context, stats *Stats, runErr error) (types.ExecutionStatus, string) {
	switch {
	case runErr == nil:
		if stats.Errors > 0 || stats.Success < stats.Total {
			msg := fmt.Sprintf("%d of %d rows were not written", stats.Total-stats.Success, stats.Total)
			if len(stats.notes) > 0 {
				msg += ": " + strings.Join(stats.notes, "; ")
			}
			return types.ExecutionSuccess, msg
		}
		return types.ExecutionSuccess, ""
	case errors.Is(runErr, errStopped), errors.Is(runErr, context.Canceled) && ctx.Err() != nil:
		return types.ExecutionStopped, "stopped while running"
	default:
		return types.ExecutionFailed, runErr.Error()
	}
}

func (e *Engine) run(ctx context.Context, task *types.Task, log *logger.Logger) (Stats, error) {
	var stats Stats
	if task.BatchSize <= 0 {
		return stats, &ConfigError{Message: fmt.Sprintf("task %d has no batch size", task.ID)}
	}
	if _, err := rules.Compile([]byte(task.Template)); err != nil {
		return stats, err
	}

	src, err := e.sources.GetDataSource(ctx, task.DataSourceID)
	if err != nil {
		return stats, &ConfigError{Message: fmt.Sprintf("task %d: %v", task.ID, err)}
	}

	targetType := types.TargetType(strings.ToUpper(string(task.TargetType)))
	switch {
	case targetType == types.TargetTopic && src.IsStream():
		return e.runTopic(ctx, task, src, log)
	case targetType == types.TargetTable && !src.IsStream():
		return e.runTables(ctx, task, src, log)
	default:
		return stats, &ConfigError{Message: fmt.Sprintf("target type %q cannot be written to a %s data source", task.TargetType, src.Type)}
	}
}

// guard aborts the run when a task that started RUNNING has since left that
// state. Ad-hoc runs of a task that was never RUNNING are only bounded by ctx.
func (e *Engine) guard(ctx context.Context, task *types.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !task.IsRunning() {
		return nil
	}
	latest, err := e.tasks.GetTask(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("failed to re-read task status: %w", err)
	}
	if !latest.IsRunning() {
		return errStopped
	}
	return nil
}

func (e *Engine) newRand() *rand.Rand {
	seed := e.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func (e *Engine) compile(task *types.Task, r *rand.Rand) (*rules.Set, error) {
	return rules.Compile([]byte(task.Template), rules.WithRand(r), rules.WithNullRate(e.cfg.Generator.NullRate))
}
