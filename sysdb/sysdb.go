// Package sysdb defines the system-of-record for collections and segment
// descriptors.
//
// The segment managers only read descriptors through [SysDB.GetSegments];
// the remaining operations serve the daemon and tests. Implementations return
// descriptors in creation order, which the managers rely on when picking the
// first descriptor of a known kind.
package sysdb

import (
	"context"
	"errors"

	"github.com/hupe1980/vecseg/model"
)

// Sentinel errors for system-of-record operations.
var (
	// ErrNotFound is returned when a collection or segment does not exist.
	ErrNotFound = errors.New("sysdb: not found")

	// ErrConflict is returned when a collection or segment already exists.
	ErrConflict = errors.New("sysdb: already exists")
)

// SegmentFilter selects segment descriptors. Nil fields match everything.
type SegmentFilter struct {
	ID         *model.UniqueID
	Collection *model.UniqueID
	Scope      *model.SegmentScope
	Type       *model.SegmentType
}

// Match reports whether seg satisfies the filter.
func (f SegmentFilter) Match(seg model.Segment) bool {
	if f.ID != nil && *f.ID != seg.ID {
		return false
	}
	if f.Collection != nil && *f.Collection != seg.Collection {
		return false
	}
	if f.Scope != nil && *f.Scope != seg.Scope {
		return false
	}
	if f.Type != nil && *f.Type != seg.Type {
		return false
	}
	return true
}

// ForCollection returns a filter for all segments of a collection.
func ForCollection(id model.UniqueID) SegmentFilter {
	return SegmentFilter{Collection: &id}
}

// ForScope returns a filter for the segments of a collection with one scope.
func ForScope(id model.UniqueID, scope model.SegmentScope) SegmentFilter {
	return SegmentFilter{Collection: &id, Scope: &scope}
}

// CollectionFilter selects collections. Nil fields match everything.
type CollectionFilter struct {
	ID   *model.UniqueID
	Name *string
}

// Match reports whether c satisfies the filter.
func (f CollectionFilter) Match(c model.Collection) bool {
	if f.ID != nil && *f.ID != c.ID {
		return false
	}
	if f.Name != nil && *f.Name != c.Name {
		return false
	}
	return true
}

// SysDB is the authoritative store of collections and segment descriptors.
type SysDB interface {
	// GetSegments returns the descriptors matching filter in creation order.
	GetSegments(ctx context.Context, filter SegmentFilter) ([]model.Segment, error)

	// CreateSegment stores a descriptor. Returns ErrConflict if the id exists.
	CreateSegment(ctx context.Context, seg model.Segment) error

	// DeleteSegment removes a descriptor. Returns ErrNotFound if absent.
	DeleteSegment(ctx context.Context, id model.UniqueID) error

	// GetCollections returns the collections matching filter in creation order.
	GetCollections(ctx context.Context, filter CollectionFilter) ([]model.Collection, error)

	// CreateCollection stores a collection. Returns ErrConflict if the id or
	// name exists.
	CreateCollection(ctx context.Context, c model.Collection) error

	// DeleteCollection removes a collection. Returns ErrNotFound if absent.
	DeleteCollection(ctx context.Context, id model.UniqueID) error
}
