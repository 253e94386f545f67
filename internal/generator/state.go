package generator

import (
	"math/rand"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
	"github.com/zeebo/xxh3"
)

// RunState carries the key and uniqueness bookkeeping of one table for one run.
type RunState struct {
	Rand *rand.Rand

	existing  map[string]struct{}
	generated map[string]struct{}
	keys      []interface{}

	hasMax bool
	nextPK int64

	unique map[string]map[uint64]struct{}
}

func NewRunState(r *rand.Rand) *RunState {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RunState{
		Rand:      r,
		existing:  make(map[string]struct{}),
		generated: make(map[string]struct{}),
		unique:    make(map[string]map[uint64]struct{}),
	}
}

// SeedExisting records primary keys already present in the store.
func (s *RunState) SeedExisting(values []interface{}) {
	for _, v := range values {
		if v != nil {
			s.existing[metadata.ValueKey(v)] = struct{}{}
		}
	}
}

// SetMaxPK enables monotonic key generation above max.
func (s *RunState) SetMaxPK(max int64) {
	s.hasMax = true
	s.nextPK = max
}

func (s *RunState) HasMaxPK() bool {
	return s.hasMax
}

func (s *RunState) KeyTaken(v interface{}) bool {
	key := metadata.ValueKey(v)
	if _, ok := s.existing[key]; ok {
		return true
	}
	_, ok := s.generated[key]
	return ok
}

func (s *RunState) claimKey(v interface{}) {
	key := metadata.ValueKey(v)
	if _, ok := s.generated[key]; ok {
		return
	}
	s.generated[key] = struct{}{}
	s.keys = append(s.keys, v)
}

func (s *RunState) releaseKey(v interface{}) {
	key := metadata.ValueKey(v)
	if _, ok := s.generated[key]; !ok {
		return
	}
	delete(s.generated, key)
	for i, k := range s.keys {
		if metadata.ValueKey(k) == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// GeneratedKeys lists the primary keys issued so far, in order.
func (s *RunState) GeneratedKeys() []interface{} {
	out := make([]interface{}, len(s.keys))
	copy(out, s.keys)
	return out
}

func hashValue(v interface{}) uint64 {
	return xxh3.HashString(metadata.ValueKey(v))
}

func (s *RunState) uniqueTaken(column string, v interface{}) bool {
	seen, ok := s.unique[column]
	if !ok {
		return false
	}
	_, taken := seen[hashValue(v)]
	return taken
}

func (s *RunState) claimUnique(column string, v interface{}) {
	seen, ok := s.unique[column]
	if !ok {
		seen = make(map[uint64]struct{})
		s.unique[column] = seen
	}
	seen[hashValue(v)] = struct{}{}
}

// SeedUnique records values of a unique column that already exist in the store.
func (s *RunState) SeedUnique(column string, values []interface{}) {
	for _, v := range values {
		if v != nil {
			s.claimUnique(column, v)
		}
	}
}
