package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/config"
	"github.com/Lumos-Labs-HQ/datagen/internal/logger"
	"github.com/Lumos-Labs-HQ/datagen/internal/store"
	"github.com/Lumos-Labs-HQ/datagen/internal/types"
	"github.com/robfig/cron/v3"
)

// Executor runs one task once. The engine implements it.
type Executor interface {
	ExecuteTask(ctx context.Context, id int64) bool
}

// Teardowner releases per-task resources such as stream producers.
type Teardowner interface {
	Teardown(taskID int64) error
}

type State int

const (
	Unscheduled State = iota
	Scheduled
	Cancelled
)

func (s State) String() string {
	switch s {
	case Scheduled:
		return "SCHEDULED"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNSCHEDULED"
	}
}

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler keeps one fixed-delay loop per RUNNING task. Runs share a pool of
// PoolSize slots and a task never overlaps with itself.
type Scheduler struct {
	tasks      store.TaskStore
	history    store.ExecutionStore
	exec       Executor
	teardown   Teardowner
	cfg        config.Scheduler
	log        *logger.Logger
	sem        chan struct{}
	intervalOf func(*types.Task) time.Duration

	mu        sync.Mutex
	base      context.Context
	stopBase  context.CancelFunc
	jobs      map[int64]*job
	cancelled map[int64]bool
	inflight  map[int64]context.CancelFunc
	cron      *cron.Cron
	wg        sync.WaitGroup
	running   bool
	stopped   bool
}

func New(tasks store.TaskStore, history store.ExecutionStore, exec Executor, teardown Teardowner, cfg config.Scheduler) *Scheduler {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 60 * time.Second
	}
	base, stop := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:      tasks,
		history:    history,
		exec:       exec,
		teardown:   teardown,
		cfg:        cfg,
		log:        logger.New("scheduler"),
		sem:        make(chan struct{}, cfg.PoolSize),
		intervalOf: (*types.Task).Interval,
		base:       base,
		stopBase:   stop,
		jobs:       make(map[int64]*job),
		cancelled:  make(map[int64]bool),
		inflight:   make(map[int64]context.CancelFunc),
	}
}

// ScheduleTask starts a fixed-delay loop for a RUNNING task, replacing any
// existing loop for the same id. Other tasks are ignored.
func (s *Scheduler) ScheduleTask(task *types.Task) {
	if task == nil || !task.IsRunning() {
		return
	}
	s.cancelJob(task.ID)

	ctx, cancel := context.WithCancel(s.base)
	j := &job{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		cancel()
		return
	}
	s.jobs[task.ID] = j
	delete(s.cancelled, task.ID)
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info("⏰ Scheduled task %d every %s", task.ID, s.intervalOf(task))
	go s.loop(ctx, j, task)
}

// loop runs the task immediately and then again one interval after each run
// completes.
func (s *Scheduler) loop(ctx context.Context, j *job, task *types.Task) {
	defer s.wg.Done()
	defer close(j.done)

	interval := s.intervalOf(task)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.run(ctx, task.ID)

		latest, err := s.tasks.GetTask(ctx, task.ID)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, store.ErrNotFound):
			s.log.Warn("⚠️  Task %d no longer exists, unscheduling", task.ID)
			s.dropJob(task.ID, j)
			return
		case err == nil && !latest.IsRunning():
			s.log.Info("⏹️  Task %d is %s, unscheduling", task.ID, latest.Status)
			s.dropJob(task.ID, j)
			return
		case err == nil:
			interval = s.intervalOf(latest)
		}
		timer.Reset(interval)
	}
}

// run executes one invocation under the in-flight guard and the pool.
func (s *Scheduler) run(ctx context.Context, id int64) bool {
	if ctx.Err() != nil {
		return false
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if _, busy := s.inflight[id]; busy {
		s.mu.Unlock()
		s.log.Info("⏭️  Task %d is already running, skipping", id)
		return false
	}
	s.inflight[id] = cancel
	if _, scheduled := s.jobs[id]; !scheduled {
		delete(s.cancelled, id)
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-runCtx.Done():
		return false
	}
	defer func() { <-s.sem }()

	ok := s.execute(runCtx, id)

	task, err := s.tasks.GetTask(context.WithoutCancel(ctx), id)
	if err == nil && (task.Status == types.TaskStopped || task.Status == types.TaskFailed) {
		s.release(id)
	}
	return ok
}

func (s *Scheduler) execute(ctx context.Context, id int64) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("🔥 Panic in task %d: %v", id, r)
			ok = false
		}
	}()
	return s.exec.ExecuteTask(ctx, id)
}

func (s *Scheduler) release(id int64) {
	if s.teardown == nil {
		return
	}
	if err := s.teardown.Teardown(id); err != nil {
		s.log.Warn("⚠️  %v", err)
	}
}

// ExecuteTask runs the task now, outside its schedule. It returns false when
// the run failed or the task was already running.
func (s *Scheduler) ExecuteTask(ctx context.Context, id int64) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	stopCtx, cancel := mergeCancel(ctx, s.base)
	defer cancel()
	return s.run(stopCtx, id)
}

// mergeCancel returns a context of ctx that is also cancelled with other.
func mergeCancel(ctx, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(other, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// CancelTask stops the task's loop and any in-flight run, and releases the
// task's producer. Cancelling a task that is not scheduled or already
// cancelled does nothing.
func (s *Scheduler) CancelTask(id int64) {
	s.mu.Lock()
	j, scheduled := s.jobs[id]
	delete(s.jobs, id)
	runCancel, busy := s.inflight[id]
	if !scheduled && (!busy || s.cancelled[id]) {
		s.mu.Unlock()
		return
	}
	s.cancelled[id] = true
	s.mu.Unlock()

	if scheduled {
		j.cancel()
	}
	if busy {
		runCancel()
	}
	s.release(id)
	s.log.Info("🛑 Cancelled task %d", id)
}

func (s *Scheduler) cancelJob(id int64) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()
	if ok {
		j.cancel()
	}
}

// dropJob removes j if it is still the task's current loop.
func (s *Scheduler) dropJob(id int64, j *job) {
	s.mu.Lock()
	if s.jobs[id] == j {
		delete(s.jobs, id)
		s.cancelled[id] = true
	}
	s.mu.Unlock()
	j.cancel()
	s.release(id)
}

// StopTask marks the task STOPPED, cancels it and closes out its RUNNING
// execution record.
func (s *Scheduler) StopTask(ctx context.Context, id int64) error {
	if err := s.tasks.UpdateStatus(ctx, id, types.TaskStopped); err != nil {
		return fmt.Errorf("failed to stop task %d: %w", id, err)
	}
	s.CancelTask(id)
	s.release(id)

	if s.history == nil {
		return nil
	}
	rec, err := s.history.LatestRunning(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	err = s.history.Finalize(ctx, rec.ID, types.ExecutionStopped, "stopped by request", rec.TotalCount, rec.SuccessCount, rec.ErrorCount)
	if err != nil && !errors.Is(err, store.ErrNotRunning) {
		return err
	}
	return nil
}

// Reconcile schedules RUNNING tasks that have no loop and drops loops whose
// task is no longer RUNNING.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	tasks, err := s.tasks.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("failed to list running tasks: %w", err)
	}

	want := make(map[int64]bool, len(tasks))
	for _, task := range tasks {
		want[task.ID] = true
		if s.State(task.ID) != Scheduled {
			s.ScheduleTask(task)
		}
	}
	for _, id := range s.Scheduled() {
		if !want[id] {
			s.CancelTask(id)
		}
	}
	return nil
}

// Start performs an initial reconcile and then repeats it on the configured
// interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	cronLog := cronLogger{s.log}
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.ReconcileInterval), func() {
		if err := s.Reconcile(ctx); err != nil {
			s.log.Warn("⚠️  Reconcile failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to register reconcile job: %w", err)
	}

	s.log.Info("⏰ Scheduler starting (pool %d, reconcile every %s)", s.cfg.PoolSize, s.cfg.ReconcileInterval)
	if err := s.Reconcile(ctx); err != nil {
		s.log.Warn("⚠️  Initial reconcile failed: %v", err)
	}
	s.cron.Start()
	return nil
}

// Stop cancels every loop and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	c := s.cron
	ids := make([]int64, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	s.log.Info("⏰ Scheduler stopping...")
	if c != nil {
		<-c.Stop().Done()
	}
	for _, id := range ids {
		s.CancelTask(id)
	}
	s.stopBase()
	s.wg.Wait()
	s.log.Info("⏰ Scheduler stopped")
}

func (s *Scheduler) State(id int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		return Scheduled
	}
	if s.cancelled[id] {
		return Cancelled
	}
	return Unscheduled
}

// Scheduled lists the ids with a live loop.
func (s *Scheduler) Scheduled() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// cronLogger routes cron's own messages through the scheduler logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("❌ cron: %s: %v %v", msg, err, keysAndValues)
}
