package vecseg

import (
	"fmt"

	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
)

// createSegments builds one fresh descriptor per kind in layout. Each
// descriptor carries the collection metadata its kind chooses to propagate.
func createSegments(cat *segment.Catalog, layout []model.SegmentType, collection model.Collection) ([]model.Segment, error) {
	segs := make([]model.Segment, 0, len(layout))
	for _, t := range layout {
		impl, ok := cat.Lookup(t)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSegmentType, t)
		}
		segs = append(segs, model.Segment{
			ID:         model.NewUniqueID(),
			Type:       impl.Type,
			Scope:      impl.Scope,
			Collection: collection.ID,
			Metadata:   impl.Propagate(collection.Metadata),
		})
	}
	return segs, nil
}

func segmentIDs(segs []model.Segment) []model.UniqueID {
	ids := make([]model.UniqueID, len(segs))
	for i, s := range segs {
		ids[i] = s.ID
	}
	return ids
}
