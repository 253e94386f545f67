package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tasksYAML = `data_sources:
  - id: 1
    name: shop
    type: MYSQL
    url: mysql://root@localhost:3306/shop
    password_env: SHOP_DB_PASSWORD
  - id: 2
    name: events
    type: KAFKA
    url: kafka://localhost:9092
tasks:
  - id: 10
    name: orders
    data_source_id: 1
    target_type: TABLE
    target_name: customers, orders
    write_mode: APPEND
    template: '{"status": {"type": "enum", "params": {"values": ["NEW", "PAID"]}}}'
    batch_size: 50
    frequency: 30
    status: running
  - id: 11
    name: clicks
    data_source_id: 2
    target_type: TOPIC
    target_name: clicks
    batch_size: 100
    frequency: 5
`

func writeTasks(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFileStoreLoads(t *testing.T) {
	s, err := NewFileStore(writeTasks(t, tasksYAML))
	require.NoError(t, err)
	ctx := context.Background()

	task, err := s.GetTask(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, task.Targets())
	assert.Equal(t, types.TaskRunning, task.Status)
	assert.Equal(t, 30*time.Second, task.Interval())

	stopped, err := s.GetTask(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStopped, stopped.Status)

	running, err := s.ListRunning(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, int64(10), running[0].ID)

	src, err := s.GetDataSource(ctx, 2)
	require.NoError(t, err)
	assert.True(t, src.IsStream())

	_, err = s.GetTask(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreUpdateStatusPersists(t *testing.T) {
	path := writeTasks(t, tasksYAML)
	s, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.UpdateStatus(ctx, 10, types.TaskStopped))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	task, err := reopened.GetTask(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStopped, task.Status)
	assert.False(t, task.UpdatedAt.IsZero())

	assert.ErrorIs(t, s.UpdateStatus(ctx, 99, types.TaskStopped), ErrNotFound)
}

func TestFileStoreReloadsOnChange(t *testing.T) {
	path := writeTasks(t, tasksYAML)
	s, err := NewFileStore(path)
	require.NoError(t, err)

	updated := tasksYAML + `  - id: 12
    name: more
    data_source_id: 1
    target_type: TABLE
    target_name: customers
    status: RUNNING
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	running, err := s.ListRunning(context.Background())
	require.NoError(t, err)
	assert.Len(t, running, 2)
}

func TestFileStoreRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"duplicate task": `data_sources:
  - {id: 1, name: a, type: SQLITE, url: "sqlite://a.db"}
tasks:
  - {id: 1, name: x, data_source_id: 1}
  - {id: 1, name: y, data_source_id: 1}
`,
		"unknown source": `data_sources: []
tasks:
  - {id: 1, name: x, data_source_id: 4}
`,
		"missing id": `data_sources:
  - {name: a, type: SQLITE}
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewFileStore(writeTasks(t, content))
			assert.Error(t, err)
		})
	}
}

func TestMemoryStoreFinalizeOnce(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	id, err := m.Create(ctx, &types.ExecutionRecord{TaskID: 1})
	require.NoError(t, err)

	latest, err := m.LatestRunning(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, id, latest.ID)

	require.NoError(t, m.Finalize(ctx, id, types.ExecutionStopped, "stopped", 0, 0, 0))
	assert.ErrorIs(t, m.Finalize(ctx, id, types.ExecutionSuccess, "", 5, 5, 0), ErrNotRunning)

	rec, ok := m.Execution(id)
	require.True(t, ok)
	assert.Equal(t, types.ExecutionStopped, rec.Status)

	_, err = m.LatestRunning(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
