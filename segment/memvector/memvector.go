// Package memvector implements the in-memory vector segment engine.
//
// Records live only in process memory; stopping an instance keeps them so a
// restarted instance serves the same data, and Delete or ResetState drops
// them. The engine holds no files and has no file-handle cost.
package memvector

import (
	"context"
	"sync"

	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
)

// MetadataPrefix selects the collection metadata keys propagated to vector
// segments.
const MetadataPrefix = "hnsw:"

// Impl returns the catalog entry of the in-memory vector kind.
func Impl() segment.Impl {
	return segment.Impl{
		Type:                        model.SegmentTypeHNSWLocalMemory,
		Scope:                       model.ScopeVector,
		New:                         New,
		PropagateCollectionMetadata: segment.PrefixFilter(MetadataPrefix),
	}
}

// Segment is an in-memory vector segment.
type Segment struct {
	desc model.Segment

	mu      sync.RWMutex
	started bool
	records *segment.RecordSet
}

var (
	_ segment.VectorReader = (*Segment)(nil)
	_ segment.Writer       = (*Segment)(nil)
)

// New creates an unstarted segment.
func New(_ segment.Env, seg model.Segment) (segment.Instance, error) {
	return &Segment{
		desc:    seg,
		records: segment.NewRecordSet(0),
	}, nil
}

func (s *Segment) Segment() model.Segment { return s.desc }

func (s *Segment) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *Segment) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *Segment) ResetState() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records.Reset(false)
	return nil
}

func (s *Segment) Delete() error {
	return s.ResetState()
}

func (s *Segment) Apply(_ context.Context, records []segment.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return segment.ErrStopped
	}
	return s.records.Apply(records)
}

func (s *Segment) GetVectors(_ context.Context, ids []string) ([]segment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, segment.ErrStopped
	}
	return s.records.Get(ids), nil
}

func (s *Segment) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return 0, segment.ErrStopped
	}
	return s.records.Len(), nil
}

func (s *Segment) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.Dimension()
}
