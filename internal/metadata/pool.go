package metadata

import (
	"fmt"
	"math/rand"
	"sync"
)

// ValuePool is the set of values known to exist in a referenced column.
type ValuePool struct {
	mu     sync.RWMutex
	values []interface{}
	index  map[string]struct{}
}

func NewValuePool(values ...interface{}) *ValuePool {
	p := &ValuePool{index: make(map[string]struct{})}
	p.Add(values...)
	return p
}

// ValueKey normalises driver values so int64(5), "5" and []byte("5") compare equal.
func ValueKey(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "\x00nil"
	case []byte:
		return string(val)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	case float32:
		return ValueKey(float64(val))
	default:
		return fmt.Sprintf("%v", val)
	}
}

func (p *ValuePool) Add(values ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range values {
		if v == nil {
			continue
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		key := ValueKey(v)
		if _, exists := p.index[key]; exists {
			continue
		}
		p.index[key] = struct{}{}
		p.values = append(p.values, v)
	}
}

// Replace swaps the pool contents, used when the referenced column is re-read.
func (p *ValuePool) Replace(values []interface{}) {
	p.mu.Lock()
	p.values = nil
	p.index = make(map[string]struct{})
	p.mu.Unlock()
	p.Add(values...)
}

func (p *ValuePool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.values)
}

func (p *ValuePool) Empty() bool {
	return p.Len() == 0
}

func (p *ValuePool) Contains(v interface{}) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.index[ValueKey(v)]
	return ok
}

func (p *ValuePool) Values() []interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]interface{}, len(p.values))
	copy(out, p.values)
	return out
}

// Pick returns a uniformly random member, or nil when the pool is empty.
func (p *ValuePool) Pick(r *rand.Rand) interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.values) == 0 {
		return nil
	}
	return p.values[r.Intn(len(p.values))]
}
