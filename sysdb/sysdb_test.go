package sysdb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/vecseg/model"
)

func TestSegmentFilter_Match(t *testing.T) {
	coll := model.NewUniqueID()
	seg := model.Segment{
		ID:         model.NewUniqueID(),
		Type:       model.SegmentTypePebbleMetadata,
		Scope:      model.ScopeMetadata,
		Collection: coll,
	}

	assert.True(t, SegmentFilter{}.Match(seg))
	assert.True(t, ForCollection(coll).Match(seg))
	assert.True(t, ForScope(coll, model.ScopeMetadata).Match(seg))
	assert.False(t, ForScope(coll, model.ScopeVector).Match(seg))
	assert.False(t, ForCollection(model.NewUniqueID()).Match(seg))

	typ := model.SegmentTypeHNSWLocalMemory
	assert.False(t, SegmentFilter{Type: &typ}.Match(seg))

	id := seg.ID
	assert.True(t, SegmentFilter{ID: &id}.Match(seg))
}

func TestCollectionFilter_Match(t *testing.T) {
	c := model.Collection{ID: model.NewUniqueID(), Name: "docs"}

	name := "docs"
	other := "images"
	assert.True(t, CollectionFilter{}.Match(c))
	assert.True(t, CollectionFilter{Name: &name}.Match(c))
	assert.False(t, CollectionFilter{Name: &other}.Match(c))

	id := model.NewUniqueID()
	assert.False(t, CollectionFilter{ID: &id}.Match(c))
}
