package segment

import (
	"context"
	"errors"

	"github.com/hupe1980/vecseg/model"
)

var (
	// ErrStopped is returned by instances that are not started.
	ErrStopped = errors.New("segment: instance is stopped")

	// ErrDimensionMismatch is returned when a record's embedding length
	// differs from the segment's dimension.
	ErrDimensionMismatch = errors.New("segment: dimension mismatch")

	// ErrUnsupported is returned by proxies for operations that are served
	// remotely.
	ErrUnsupported = errors.New("segment: operation not supported")
)

// Record is a single entry applied to or read from a segment.
type Record struct {
	ID        string
	Operation model.Operation
	Embedding []float32
	Metadata  model.Metadata
}

// Instance is a live, stateful engine object bound to one descriptor.
type Instance interface {
	// Segment returns the descriptor this instance was built from.
	Segment() model.Segment

	// Start prepares the instance for use. It may open files.
	Start() error

	// Stop releases runtime resources. Persisted state is kept.
	Stop() error

	// ResetState discards all data held by the instance.
	ResetState() error

	// Delete removes persisted state. The instance must be stopped first.
	Delete() error
}

// VectorReader is the read capability of VECTOR segments.
type VectorReader interface {
	Instance

	// GetVectors returns the records with the given ids, or all records if
	// ids is empty. Missing ids are skipped.
	GetVectors(ctx context.Context, ids []string) ([]Record, error)

	// Count returns the number of records.
	Count(ctx context.Context) (int, error)

	// Dimension returns the embedding dimension (0 if unknown).
	Dimension() int
}

// MetadataReader is the read capability of METADATA segments.
type MetadataReader interface {
	Instance

	// GetMetadata returns the records with the given ids, or all records if
	// ids is empty. Missing ids are skipped.
	GetMetadata(ctx context.Context, ids []string) ([]Record, error)

	// Count returns the number of records.
	Count(ctx context.Context) (int, error)
}

// Writer applies records to a segment.
type Writer interface {
	Apply(ctx context.Context, records []Record) error
}

// PersistentVector is implemented by vector engines that keep index files
// open while resident.
type PersistentVector interface {
	VectorReader

	// OpenPersistentResources opens the index files. Idempotent.
	OpenPersistentResources() error

	// ClosePersistentResources closes the index files. The instance stays
	// started and reopens them lazily.
	ClosePersistentResources() error

	// OnDiskFootprint returns the size in bytes of the segment directory.
	OnDiskFootprint() (int64, error)
}
