package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UniqueID identifies collections and segments.
type UniqueID = uuid.UUID

// NilUniqueID is the zero UniqueID.
var NilUniqueID = uuid.Nil

// NewUniqueID returns a fresh random UniqueID.
func NewUniqueID() UniqueID {
	return uuid.New()
}

// ParseUniqueID parses the canonical string form of a UniqueID.
func ParseUniqueID(s string) (UniqueID, error) {
	return uuid.Parse(s)
}

// Metadata is a flat mapping of string keys to scalar values
// (string, int64, float64, bool).
type Metadata map[string]any

// Clone returns a shallow copy of m. A nil map stays nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Collection is a logical collection owned by the system-of-record.
type Collection struct {
	ID        UniqueID
	Name      string
	Dimension *int32
	Metadata  Metadata
	Tenant    string
	Database  string
}

// SegmentScope denotes the purpose of a segment.
type SegmentScope string

const (
	// ScopeVector is a similarity index.
	ScopeVector SegmentScope = "VECTOR"
	// ScopeMetadata is a structured filter store.
	ScopeMetadata SegmentScope = "METADATA"
	// ScopeRecord is an append log (distributed deployments only).
	ScopeRecord SegmentScope = "RECORD"
)

// Valid reports whether s is one of the known scopes.
func (s SegmentScope) Valid() bool {
	switch s {
	case ScopeVector, ScopeMetadata, ScopeRecord:
		return true
	default:
		return false
	}
}

// ParseSegmentScope parses a scope name case-insensitively.
func ParseSegmentScope(s string) (SegmentScope, error) {
	scope := SegmentScope(strings.ToUpper(s))
	if !scope.Valid() {
		return "", fmt.Errorf("unknown segment scope %q", s)
	}
	return scope, nil
}

// SegmentType selects the engine implementation backing a segment.
type SegmentType string

const (
	SegmentTypeHNSWLocalMemory    SegmentType = "urn:vecseg:segment/vector/hnsw-local-memory"
	SegmentTypeHNSWLocalPersisted SegmentType = "urn:vecseg:segment/vector/hnsw-local-persisted"
	SegmentTypePebbleMetadata     SegmentType = "urn:vecseg:segment/metadata/pebble"
	SegmentTypeHNSWDistributed    SegmentType = "urn:vecseg:segment/vector/hnsw-distributed"
	SegmentTypeBlockfileRecord    SegmentType = "urn:vecseg:segment/record/blockfile"
	SegmentTypeBlockfileMetadata  SegmentType = "urn:vecseg:segment/metadata/blockfile"
)

// Segment is the descriptor of a single segment.
// It is authoritative only in the system-of-record.
type Segment struct {
	ID         UniqueID
	Type       SegmentType
	Scope      SegmentScope
	Collection UniqueID
	Metadata   Metadata
}

// String returns a string representation of the Segment.
func (s Segment) String() string {
	return fmt.Sprintf("Segment(%s %s %s collection=%s)", s.ID, s.Scope, s.Type, s.Collection)
}

// Operation is the kind of work a caller is about to perform on a collection.
// It is passed as an advisory hint only.
type Operation string

const (
	OperationAdd    Operation = "ADD"
	OperationUpdate Operation = "UPDATE"
	OperationUpsert Operation = "UPSERT"
	OperationDelete Operation = "DELETE"
)
