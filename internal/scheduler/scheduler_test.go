package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/config"
	"github.com/Lumos-Labs-HQ/datagen/internal/store"
	"github.com/Lumos-Labs-HQ/datagen/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor counts runs per task. When block is set every run waits on it
// or on ctx.
type fakeExecutor struct {
	mu       sync.Mutex
	runs     map[int64]int
	active   int32
	peak     int32
	block    chan struct{}
	onRun    func(id int64)
	canceled int32
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{runs: make(map[int64]int)}
}

func (f *fakeExecutor) ExecuteTask(ctx context.Context, id int64) bool {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.runs[id]++
	hook := f.onRun
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			atomic.AddInt32(&f.canceled, 1)
			return false
		}
	}
	return true
}

func (f *fakeExecutor) count(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id]
}

type fakeTeardown struct {
	mu    sync.Mutex
	calls map[int64]int
}

func (f *fakeTeardown) Teardown(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[int64]int)
	}
	f.calls[id]++
	return nil
}

func (f *fakeTeardown) count(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func runningTask(id int64) *types.Task {
	return &types.Task{ID: id, Name: "task", Status: types.TaskRunning, Frequency: 1, BatchSize: 1}
}

func newTestScheduler(t *testing.T, cfg config.Scheduler) (*Scheduler, *store.MemoryStore, *fakeExecutor, *fakeTeardown) {
	t.Helper()
	mem := store.NewMemoryStore()
	exec := newFakeExecutor()
	td := &fakeTeardown{}
	s := New(mem, mem, exec, td, cfg)
	s.intervalOf = func(*types.Task) time.Duration { return 10 * time.Millisecond }
	t.Cleanup(s.Stop)
	return s, mem, exec, td
}

func TestScheduleRunsImmediatelyAndRepeats(t *testing.T) {
	s, mem, exec, _ := newTestScheduler(t, config.Scheduler{PoolSize: 2})
	task := runningTask(1)
	mem.PutTask(task)

	s.ScheduleTask(task)
	assert.Equal(t, Scheduled, s.State(1))
	require.Eventually(t, func() bool { return exec.count(1) >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduleIgnoresStoppedTask(t *testing.T) {
	s, mem, exec, _ := newTestScheduler(t, config.Scheduler{})
	task := runningTask(1)
	task.Status = types.TaskStopped
	mem.PutTask(task)

	s.ScheduleTask(task)
	s.ScheduleTask(nil)

	assert.Equal(t, Unscheduled, s.State(1))
	assert.Empty(t, s.Scheduled())
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, exec.count(1))
}

func TestLoopEndsWhenTaskLeavesRunning(t *testing.T) {
	s, mem, exec, td := newTestScheduler(t, config.Scheduler{})
	mem.PutTask(runningTask(1))
	exec.onRun = func(id int64) {
		_ = mem.UpdateStatus(context.Background(), id, types.TaskCompleted)
	}

	s.ScheduleTask(runningTask(1))
	require.Eventually(t, func() bool { return s.State(1) == Cancelled }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, exec.count(1))
	assert.GreaterOrEqual(t, td.count(1), 1)
}

func TestCancelTaskTwice(t *testing.T) {
	s, mem, exec, td := newTestScheduler(t, config.Scheduler{})
	mem.PutTask(runningTask(1))
	s.ScheduleTask(runningTask(1))
	require.Eventually(t, func() bool { return exec.count(1) >= 1 }, time.Second, 5*time.Millisecond)

	s.CancelTask(1)
	assert.Equal(t, Cancelled, s.State(1))
	calls := td.count(1)

	s.CancelTask(1)
	assert.Equal(t, Cancelled, s.State(1))
	assert.Equal(t, calls, td.count(1))

	settled := exec.count(1)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, settled, exec.count(1))
}

func TestCancelUnknownTaskDoesNothing(t *testing.T) {
	s, _, _, td := newTestScheduler(t, config.Scheduler{})
	s.CancelTask(42)
	assert.Equal(t, Unscheduled, s.State(42))
	assert.Zero(t, td.count(42))
}

func TestInFlightGuardSkipsOverlap(t *testing.T) {
	s, mem, exec, _ := newTestScheduler(t, config.Scheduler{PoolSize: 4})
	exec.block = make(chan struct{})
	mem.PutTask(runningTask(1))

	done := make(chan bool, 1)
	go func() { done <- s.ExecuteTask(context.Background(), 1) }()
	require.Eventually(t, func() bool { return exec.count(1) == 1 }, time.Second, 5*time.Millisecond)

	assert.False(t, s.ExecuteTask(context.Background(), 1))
	assert.Equal(t, 1, exec.count(1))

	close(exec.block)
	assert.True(t, <-done)
}

func TestPoolLimitsConcurrency(t *testing.T) {
	s, mem, exec, _ := newTestScheduler(t, config.Scheduler{PoolSize: 1})
	exec.block = make(chan struct{})
	for id := int64(1); id <= 3; id++ {
		mem.PutTask(runningTask(id))
	}

	var wg sync.WaitGroup
	for id := int64(1); id <= 3; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.ExecuteTask(context.Background(), id)
		}(id)
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&exec.active) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&exec.active))

	close(exec.block)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&exec.peak))
	for id := int64(1); id <= 3; id++ {
		assert.Equal(t, 1, exec.count(id))
	}
}

func TestReconcile(t *testing.T) {
	s, mem, _, _ := newTestScheduler(t, config.Scheduler{})
	mem.PutTask(runningTask(1))
	stopped := runningTask(2)
	stopped.Status = types.TaskStopped
	mem.PutTask(stopped)

	require.NoError(t, s.Reconcile(context.Background()))
	assert.Equal(t, []int64{1}, s.Scheduled())

	require.NoError(t, mem.UpdateStatus(context.Background(), 1, types.TaskStopped))
	require.NoError(t, mem.UpdateStatus(context.Background(), 2, types.TaskRunning))
	require.NoError(t, s.Reconcile(context.Background()))

	require.Eventually(t, func() bool {
		ids := s.Scheduled()
		return len(ids) == 1 && ids[0] == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, Cancelled, s.State(1))
}

func TestStopTaskFinalizesRunningRecord(t *testing.T) {
	s, mem, exec, td := newTestScheduler(t, config.Scheduler{})
	exec.block = make(chan struct{})
	mem.PutTask(runningTask(1))
	recID, err := mem.Create(context.Background(), &types.ExecutionRecord{TaskID: 1, TotalCount: 5})
	require.NoError(t, err)

	s.ScheduleTask(runningTask(1))
	require.Eventually(t, func() bool { return exec.count(1) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.StopTask(context.Background(), 1))

	task, err := mem.GetTask(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStopped, task.Status)
	assert.Equal(t, Cancelled, s.State(1))
	assert.GreaterOrEqual(t, td.count(1), 1)

	rec, ok := mem.Execution(recID)
	require.True(t, ok)
	assert.Equal(t, types.ExecutionStopped, rec.Status)
	assert.Equal(t, "stopped by request", rec.ErrorMessage)
	assert.NotNil(t, rec.EndTime)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&exec.canceled) == 1 }, time.Second, 5*time.Millisecond)
}

func TestStopTaskWithoutRecord(t *testing.T) {
	s, mem, _, _ := newTestScheduler(t, config.Scheduler{})
	task := runningTask(1)
	task.Status = types.TaskStopped
	mem.PutTask(task)

	assert.NoError(t, s.StopTask(context.Background(), 1))
	assert.ErrorIs(t, s.StopTask(context.Background(), 9), store.ErrNotFound)
}

func TestStartAndStop(t *testing.T) {
	s, mem, exec, _ := newTestScheduler(t, config.Scheduler{ReconcileInterval: time.Hour})
	mem.PutTask(runningTask(1))

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return exec.count(1) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{1}, s.Scheduled())

	s.Stop()
	assert.Empty(t, s.Scheduled())
	assert.False(t, s.ExecuteTask(context.Background(), 1))

	s.ScheduleTask(runningTask(1))
	assert.Empty(t, s.Scheduled())
}
