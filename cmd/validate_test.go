package cmd

import (
	"context"
	"testing"

	"github.com/Lumos-Labs-HQ/datagen/internal/store"
	"github.com/Lumos-Labs-HQ/datagen/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationSources() *store.MemoryStore {
	mem := store.NewMemoryStore()
	mem.PutDataSource(&types.DataSource{ID: 1, Name: "shop", Type: "MYSQL"})
	mem.PutDataSource(&types.DataSource{ID: 2, Name: "events", Type: "KAFKA"})
	return mem
}

func TestValidateTask(t *testing.T) {
	sources := validationSources()
	ctx := context.Background()

	tests := []struct {
		name    string
		task    types.Task
		wantErr string
	}{
		{
			name: "table task",
			task: types.Task{DataSourceID: 1, TargetType: types.TargetTable, TargetName: "customers, orders", BatchSize: 5, Frequency: 60,
				Template: `{"name": {"type": "string", "params": {"pattern": "${name}"}}}`},
		},
		{
			name: "topic task",
			task: types.Task{DataSourceID: 2, TargetType: types.TargetTopic, TargetName: "clicks", BatchSize: 5, Frequency: 60,
				Template: `{"id": {"type": "sequence"}}`},
		},
		{
			name:    "zero batch",
			task:    types.Task{DataSourceID: 1, TargetType: types.TargetTable, TargetName: "customers", Frequency: 60},
			wantErr: "batch_size",
		},
		{
			name:    "tables on a stream",
			task:    types.Task{DataSourceID: 2, TargetType: types.TargetTable, TargetName: "customers", BatchSize: 1, Frequency: 60},
			wantErr: "is a stream",
		},
		{
			name:    "topic without template",
			task:    types.Task{DataSourceID: 2, TargetType: types.TargetTopic, TargetName: "clicks", BatchSize: 1, Frequency: 60},
			wantErr: "needs a template",
		},
		{
			name:    "unknown rule type",
			task:    types.Task{DataSourceID: 1, TargetType: types.TargetTable, TargetName: "customers", BatchSize: 1, Frequency: 60, Template: `{"a": {"type": "bogus"}}`},
			wantErr: "template",
		},
		{
			name:    "missing data source",
			task:    types.Task{DataSourceID: 9, TargetType: types.TargetTable, TargetName: "customers", BatchSize: 1, Frequency: 60},
			wantErr: "data source 9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTask(ctx, sources, &tt.task)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseTaskID(t *testing.T) {
	id, err := parseTaskID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, arg := range []string{"", "abc", "0", "-3"} {
		_, err := parseTaskID(arg)
		assert.Error(t, err, arg)
	}
}
