package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Lumos-Labs-HQ/datagen/internal/config"
	"github.com/Lumos-Labs-HQ/datagen/internal/engine"
	"github.com/Lumos-Labs-HQ/datagen/internal/logger"
	"github.com/Lumos-Labs-HQ/datagen/internal/scheduler"
	"github.com/Lumos-Labs-HQ/datagen/internal/store"
	"github.com/Lumos-Labs-HQ/datagen/internal/stream"
)

// app holds the collaborators every task command shares.
type app struct {
	cfg       *config.Config
	tasks     *store.FileStore
	history   store.ExecutionStore
	streams   *stream.Registry
	engine    *engine.Engine
	scheduler *scheduler.Scheduler

	closeHistory func() error
}

// newApp loads the config and the tasks file. With memoryHistory set the
// execution records are kept in process instead of the history database.
func newApp(ctx context.Context, memoryHistory bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger.SetVerbose(cfg.Log.Verbose)

	tasks, err := store.NewFileStore(cfg.Store.TasksFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	a := &app{cfg: cfg, tasks: tasks, closeHistory: func() error { return nil }}
	if memoryHistory {
		a.history = store.NewMemoryStore()
	} else {
		h, err := store.OpenHistory(ctx, cfg.GetHistoryURL())
		if err != nil {
			return nil, fmt.Errorf("failed to open execution history: %w", err)
		}
		a.history = h
		a.closeHistory = h.Close
	}

	a.streams = stream.NewRegistry(cfg.Stream, nil)
	a.engine = engine.New(cfg, tasks, tasks, a.history, a.streams)
	a.scheduler = scheduler.New(tasks, a.history, a.engine, a.streams, cfg.Scheduler)
	return a, nil
}

func (a *app) Close() {
	if err := a.streams.CloseAll(); err != nil {
		logger.Warn("⚠️  %v", err)
	}
	if err := a.closeHistory(); err != nil {
		logger.Warn("⚠️  Failed to close execution history: %v", err)
	}
}

func parseTaskID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return id, nil
}
