package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Lumos-Labs-HQ/datagen/internal/config"
	"github.com/Lumos-Labs-HQ/datagen/internal/logger"
	"github.com/Lumos-Labs-HQ/datagen/internal/types"
)

type Factory func(ctx context.Context, src *types.DataSource, topic string) (*Producer, error)

// Registry owns at most one producer per task.
type Registry struct {
	mu        sync.Mutex
	producers map[int64]*Producer
	factory   Factory
	log       *logger.Logger
}

func NewRegistry(cfg config.Stream, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.New("stream")
	}
	return &Registry{
		producers: make(map[int64]*Producer),
		factory: func(ctx context.Context, src *types.DataSource, topic string) (*Producer, error) {
			return Dial(ctx, src, topic, cfg)
		},
		log: log,
	}
}

// WithFactory replaces how producers are created. Tests use it to avoid a broker.
func (r *Registry) WithFactory(f Factory) *Registry {
	r.factory = f
	return r
}

// Acquire returns the task's producer, creating it on first use. A producer
// for a different topic is torn down and replaced.
func (r *Registry) Acquire(ctx context.Context, taskID int64, src *types.DataSource, topic string) (*Producer, error) {
	r.mu.Lock()
	existing, ok := r.producers[taskID]
	r.mu.Unlock()
	if ok && existing.Topic() == topic {
		return existing, nil
	}
	if ok {
		if err := r.Teardown(taskID); err != nil {
			r.log.Warn("⚠️  Replacing producer for task %d: %v", taskID, err)
		}
	}

	p, err := r.factory(ctx, src, topic)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if raced, ok := r.producers[taskID]; ok && raced.Topic() == topic {
		p.Close()
		return raced, nil
	}
	r.producers[taskID] = p
	return p, nil
}

func (r *Registry) Get(taskID int64) (*Producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[taskID]
	return p, ok
}

// Teardown evicts and closes the task's producer, dropping any messages not
// yet flushed. Runs flush before they finish, so only an aborted run loses
// anything. It is a no-op when the task has none.
func (r *Registry) Teardown(taskID int64) error {
	r.mu.Lock()
	p, ok := r.producers[taskID]
	delete(r.producers, taskID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	dropped, err := p.Discard()
	if err != nil {
		return fmt.Errorf("failed to close producer for task %d: %w", taskID, err)
	}
	if dropped > 0 {
		r.log.Warn("⚠️  Dropped %d unsent messages for task %d", dropped, taskID)
	}
	r.log.Debug("producer for task %d closed", taskID)
	return nil
}

func (r *Registry) CloseAll() error {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.producers))
	for id := range r.producers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := r.Teardown(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.producers)
}
