// Package memory provides an in-memory, insertion-ordered implementation of
// sysdb.SysDB for tests and single-process deployments without a database.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/sysdb"
)

// Store is an in-memory system-of-record. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	segments    []model.Segment
	collections []model.Collection
}

var _ sysdb.SysDB = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// GetSegments returns copies of the matching descriptors in creation order.
func (s *Store) GetSegments(_ context.Context, filter sysdb.SegmentFilter) ([]model.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Segment
	for _, seg := range s.segments {
		if filter.Match(seg) {
			seg.Metadata = seg.Metadata.Clone()
			out = append(out, seg)
		}
	}
	return out, nil
}

func (s *Store) CreateSegment(_ context.Context, seg model.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.segments, func(x model.Segment) bool { return x.ID == seg.ID }) {
		return fmt.Errorf("segment %s: %w", seg.ID, sysdb.ErrConflict)
	}
	seg.Metadata = seg.Metadata.Clone()
	s.segments = append(s.segments, seg)
	return nil
}

func (s *Store) DeleteSegment(_ context.Context, id model.UniqueID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.segments, func(x model.Segment) bool { return x.ID == id })
	if i < 0 {
		return fmt.Errorf("segment %s: %w", id, sysdb.ErrNotFound)
	}
	s.segments = slices.Delete(s.segments, i, i+1)
	return nil
}

func (s *Store) GetCollections(_ context.Context, filter sysdb.CollectionFilter) ([]model.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Collection
	for _, c := range s.collections {
		if filter.Match(c) {
			c.Metadata = c.Metadata.Clone()
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) CreateCollection(_ context.Context, c model.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.collections, func(x model.Collection) bool {
		return x.ID == c.ID || x.Name == c.Name
	}) {
		return fmt.Errorf("collection %s: %w", c.ID, sysdb.ErrConflict)
	}
	c.Metadata = c.Metadata.Clone()
	s.collections = append(s.collections, c)
	return nil
}

func (s *Store) DeleteCollection(_ context.Context, id model.UniqueID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.collections, func(x model.Collection) bool { return x.ID == id })
	if i < 0 {
		return fmt.Errorf("collection %s: %w", id, sysdb.ErrNotFound)
	}
	s.collections = slices.Delete(s.collections, i, i+1)
	return nil
}
