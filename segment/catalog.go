package segment

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/hupe1980/vecseg/codec"
	"github.com/hupe1980/vecseg/internal/fs"
	"github.com/hupe1980/vecseg/model"
)

// EndpointResolver maps a remote segment to a network address.
type EndpointResolver func(ctx context.Context, seg model.Segment) (string, error)

// Env carries the collaborators an engine needs to build an instance.
type Env struct {
	// PersistDirectory is the storage root. Empty means not persisted.
	PersistDirectory string

	FS     fs.FileSystem
	Codec  codec.Codec
	Logger *slog.Logger

	// Resolve is used by remote kinds only.
	Resolve EndpointResolver
}

// Persisted reports whether instances keep state on disk.
func (e Env) Persisted() bool { return e.PersistDirectory != "" }

// SegmentDir returns the storage directory of a segment.
func (e Env) SegmentDir(id model.UniqueID) string {
	return filepath.Join(e.PersistDirectory, id.String())
}

// FileSystem returns e.FS or the default local filesystem.
func (e Env) FileSystem() fs.FileSystem {
	if e.FS == nil {
		return fs.Default
	}
	return e.FS
}

// MetadataCodec returns e.Codec or the default codec.
func (e Env) MetadataCodec() codec.Codec {
	if e.Codec == nil {
		return codec.Default
	}
	return e.Codec
}

// Log returns e.Logger or a discarding logger.
func (e Env) Log() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

// Factory constructs an unstarted instance for a descriptor.
type Factory func(env Env, seg model.Segment) (Instance, error)

// Impl describes one engine kind.
type Impl struct {
	Type  model.SegmentType
	Scope model.SegmentScope
	New   Factory

	// PropagateCollectionMetadata translates collection metadata into
	// segment metadata. Must be pure. Nil propagates nothing.
	PropagateCollectionMetadata func(model.Metadata) model.Metadata

	// FileHandleCost is the number of files an instance keeps open while
	// its persistent resources are open. Zero for non-persisted kinds.
	FileHandleCost int
}

// Persistent reports whether instances of this kind hold index files.
func (i Impl) Persistent() bool { return i.FileHandleCost > 0 }

// Propagate applies PropagateCollectionMetadata. An empty result is nil.
func (i Impl) Propagate(md model.Metadata) model.Metadata {
	if len(md) == 0 || i.PropagateCollectionMetadata == nil {
		return nil
	}
	out := i.PropagateCollectionMetadata(md)
	if len(out) == 0 {
		return nil
	}
	return out
}

// PrefixFilter returns a propagation function that keeps keys with prefix.
func PrefixFilter(prefix string) func(model.Metadata) model.Metadata {
	return func(md model.Metadata) model.Metadata {
		var out model.Metadata
		for k, v := range md {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			if out == nil {
				out = make(model.Metadata)
			}
			out[k] = v
		}
		return out
	}
}

// Catalog is the closed set of engine kinds known to this build.
type Catalog struct {
	impls map[model.SegmentType]Impl
	order []model.SegmentType
}

// NewCatalog creates a catalog. Later entries replace earlier ones with the
// same Type.
func NewCatalog(impls ...Impl) *Catalog {
	c := &Catalog{impls: make(map[model.SegmentType]Impl, len(impls))}
	for _, impl := range impls {
		if _, ok := c.impls[impl.Type]; !ok {
			c.order = append(c.order, impl.Type)
		}
		c.impls[impl.Type] = impl
	}
	return c
}

// Lookup returns the implementation of a kind.
func (c *Catalog) Lookup(t model.SegmentType) (Impl, bool) {
	impl, ok := c.impls[t]
	return impl, ok
}

// Known reports whether a kind is in the catalog.
func (c *Catalog) Known(t model.SegmentType) bool {
	_, ok := c.impls[t]
	return ok
}

// Types returns the known kinds in registration order.
func (c *Catalog) Types() []model.SegmentType {
	return append([]model.SegmentType(nil), c.order...)
}

// FirstKnown returns the first descriptor whose kind is in the catalog.
// Descriptors of unknown kinds are skipped.
func (c *Catalog) FirstKnown(segs []model.Segment) (model.Segment, Impl, bool) {
	for _, s := range segs {
		if impl, ok := c.impls[s.Type]; ok {
			return s, impl, true
		}
	}
	return model.Segment{}, Impl{}, false
}
