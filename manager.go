package vecseg

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/vecseg/model"
)

// Capability selects the reader interface a caller needs from a local
// segment and, through it, the segment scope.
type Capability int

const (
	// CapabilityVectorReader requests a segment.VectorReader (VECTOR scope).
	CapabilityVectorReader Capability = iota + 1
	// CapabilityMetadataReader requests a segment.MetadataReader (METADATA scope).
	CapabilityMetadataReader
)

// Scope returns the segment scope served by the capability.
func (c Capability) Scope() (model.SegmentScope, error) {
	switch c {
	case CapabilityVectorReader:
		return model.ScopeVector, nil
	case CapabilityMetadataReader:
		return model.ScopeMetadata, nil
	default:
		return "", fmt.Errorf("%w: capability %s", ErrInvalidArgument, c)
	}
}

// String returns a string representation of the Capability.
func (c Capability) String() string {
	switch c {
	case CapabilityVectorReader:
		return "VectorReader"
	case CapabilityMetadataReader:
		return "MetadataReader"
	default:
		return fmt.Sprintf("Capability(%d)", int(c))
	}
}

// SegmentManager is the contract shared by the local and distributed
// topologies.
type SegmentManager interface {
	// CreateSegments synthesizes fresh descriptors for a new collection.
	// The caller persists them in the system-of-record.
	CreateSegments(collection model.Collection) ([]model.Segment, error)

	// DeleteSegments returns the ids of the collection's descriptors on record
	// and drops every piece of local state held for them.
	DeleteSegments(ctx context.Context, collection model.UniqueID) ([]model.UniqueID, error)

	// HintUseCollection signals that a collection is about to be used.
	HintUseCollection(ctx context.Context, collection model.UniqueID, hint model.Operation) error

	// Start starts every registered instance.
	Start() error

	// Stop stops every registered instance.
	Stop() error

	// ResetState stops and discards every instance and clears all caches.
	ResetState() error
}

var (
	_ SegmentManager = (*LocalManager)(nil)
	_ SegmentManager = (*DistributedManager)(nil)
)

// Stats is a point-in-time view of a manager's caches and budgets.
type Stats struct {
	Topology          string `json:"topology"`
	Instances         int    `json:"instances"`
	CachedDescriptors int    `json:"cached_descriptors"`

	// Local persisted deployments only.
	OpenSegments      int   `json:"open_segments"`
	FileHandleBudget  int   `json:"file_handle_budget"`
	FootprintBudget   int64 `json:"footprint_budget_bytes"`
	ResidentFootprint int64 `json:"resident_footprint_bytes"`
}

// ResidentSegment describes one cached descriptor of a local manager.
type ResidentSegment struct {
	Segment       model.Segment `json:"segment"`
	LastUsed      time.Time     `json:"last_used"`
	Instantiated  bool          `json:"instantiated"`
	ResourcesOpen bool          `json:"resources_open"`
}
