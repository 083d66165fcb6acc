package vecseg

import (
	"google.golang.org/grpc"

	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
	"github.com/hupe1980/vecseg/segment/diskvector"
	"github.com/hupe1980/vecseg/segment/memvector"
	"github.com/hupe1980/vecseg/segment/metastore"
	"github.com/hupe1980/vecseg/segment/remote"
)

// LocalCatalog returns the engine kinds served by a local manager.
func LocalCatalog() *segment.Catalog {
	return segment.NewCatalog(
		memvector.Impl(),
		diskvector.Impl(),
		metastore.Impl(),
	)
}

// DistributedCatalog returns the remote proxy kinds served by a distributed
// manager.
func DistributedCatalog(opts ...grpc.DialOption) *segment.Catalog {
	return segment.NewCatalog(
		remote.VectorImpl(opts...),
		remote.RecordImpl(opts...),
		remote.MetadataImpl(opts...),
	)
}

func localLayout(persisted bool) []model.SegmentType {
	vector := model.SegmentTypeHNSWLocalMemory
	if persisted {
		vector = model.SegmentTypeHNSWLocalPersisted
	}
	return []model.SegmentType{vector, model.SegmentTypePebbleMetadata}
}

func distributedLayout() []model.SegmentType {
	return []model.SegmentType{
		model.SegmentTypeHNSWDistributed,
		model.SegmentTypeBlockfileRecord,
		model.SegmentTypeBlockfileMetadata,
	}
}
