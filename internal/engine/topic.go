package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lumos-Labs-HQ/datagen/internal/logger"
	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
	"github.com/Lumos-Labs-HQ/datagen/internal/types"
)

// runTopic sends BatchSize template rows to the task's topic. The producer
// stays in the registry between runs. A failed or stopped run tears it down,
// dropping the messages buffered since the last flush.
func (e *Engine) runTopic(ctx context.Context, task *types.Task, src *types.DataSource, log *logger.Logger) (stats Stats, err error) {
	topic := strings.TrimSpace(task.TargetName)
	if topic == "" {
		return stats, &ConfigError{Message: fmt.Sprintf("task %d has no topic", task.ID)}
	}
	if format := strings.ToUpper(task.DataFormat); format != "" && format != "JSON" {
		return stats, &ConfigError{Message: fmt.Sprintf("data format %q is not supported for topics", task.DataFormat)}
	}
	stats.Total = int64(task.BatchSize)

	set, err := e.compile(task, e.newRand())
	if err != nil {
		return stats, err
	}
	if set.Len() == 0 {
		return stats, &ConfigError{Message: fmt.Sprintf("task %d needs a template to write to a topic", task.ID)}
	}

	producer, err := e.streams.Acquire(ctx, task.ID, src, topic)
	if err != nil {
		return stats, &ConnectError{Source: src.Name, Err: err}
	}
	defer func() {
		if err != nil {
			if tdErr := e.streams.Teardown(task.ID); tdErr != nil {
				log.Warn("⚠️  %v", tdErr)
			}
		}
	}()

	log.Info("📝 Sending %d messages to %s", task.BatchSize, topic)
	before := producer.Sent()
	defer func() {
		stats.Success = producer.Sent() - before
		stats.Errors = stats.Total - stats.Success
	}()

	for i := 0; i < task.BatchSize; i++ {
		if err := e.guard(ctx, task); err != nil {
			return stats, err
		}
		row := set.Row()
		if err := producer.SendRow(ctx, messageKey(row), row); err != nil {
			return stats, e.stoppedOr(ctx, task, err)
		}
	}
	if err := e.guard(ctx, task); err != nil {
		return stats, err
	}
	if err := producer.Flush(ctx); err != nil {
		return stats, e.stoppedOr(ctx, task, err)
	}
	return stats, nil
}

// stoppedOr reports a stop that raced a producer error as the stop itself.
func (e *Engine) stoppedOr(ctx context.Context, task *types.Task, err error) error {
	if gErr := e.guard(ctx, task); gErr != nil {
		return gErr
	}
	return err
}

// messageKey partitions by the row's id when it has one.
func messageKey(row map[string]interface{}) string {
	for _, field := range []string{"id", "key"} {
		if v, ok := row[field]; ok && v != nil {
			return metadata.ValueKey(v)
		}
	}
	return ""
}
