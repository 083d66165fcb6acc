package directory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecseg/model"
)

func segmentsOf(collection model.UniqueID) []model.Segment {
	return []model.Segment{
		{ID: model.NewUniqueID(), Scope: model.ScopeVector, Collection: collection},
		{ID: model.NewUniqueID(), Scope: model.ScopeRecord, Collection: collection},
		{ID: model.NewUniqueID(), Scope: model.ScopeMetadata, Collection: collection},
	}
}

func TestStatic(t *testing.T) {
	ctx := t.Context()
	d := NewStatic("server-0:50051")

	coll := model.NewUniqueID()
	for _, seg := range segmentsOf(coll) {
		ep, err := d.GetSegmentEndpoint(ctx, seg)
		require.NoError(t, err)
		assert.Equal(t, "server-0:50051", ep)
	}

	d.Assign(coll, "server-1:50051")
	ep, err := d.GetSegmentEndpoint(ctx, segmentsOf(coll)[0])
	require.NoError(t, err)
	assert.Equal(t, "server-1:50051", ep)

	_, err = NewStatic("").GetSegmentEndpoint(ctx, segmentsOf(model.NewUniqueID())[0])
	assert.ErrorIs(t, err, ErrNoMembers)
}

func TestRendezvous_SameEndpointForAllScopes(t *testing.T) {
	ctx := t.Context()
	d := NewRendezvous("a:1", "b:1", "c:1", "d:1")

	for range 50 {
		coll := model.NewUniqueID()
		var first string
		for i, seg := range segmentsOf(coll) {
			ep, err := d.GetSegmentEndpoint(ctx, seg)
			require.NoError(t, err)
			if i == 0 {
				first = ep
			}
			assert.Equal(t, first, ep)
		}
	}
}

func TestRendezvous_Stable(t *testing.T) {
	ctx := t.Context()
	d1 := NewRendezvous("a:1", "b:1", "c:1")
	d2 := NewRendezvous("c:1", "a:1", "b:1", "a:1")
	assert.Equal(t, []string{"a:1", "b:1", "c:1"}, d2.Members())

	for range 50 {
		seg := segmentsOf(model.NewUniqueID())[1]
		ep1, err := d1.GetSegmentEndpoint(ctx, seg)
		require.NoError(t, err)
		ep2, err := d2.GetSegmentEndpoint(ctx, seg)
		require.NoError(t, err)
		assert.Equal(t, ep1, ep2, "member order does not matter")
	}
}

func TestRendezvous_MinimalMovement(t *testing.T) {
	ctx := t.Context()
	members := make([]string, 5)
	for i := range members {
		members[i] = fmt.Sprintf("server-%d:50051", i)
	}
	d := NewRendezvous(members...)

	before := make(map[model.UniqueID]string)
	for range 200 {
		coll := model.NewUniqueID()
		ep, err := d.GetSegmentEndpoint(ctx, model.Segment{Collection: coll})
		require.NoError(t, err)
		before[coll] = ep
	}

	d.SetMembers(members[:4])
	for coll, old := range before {
		ep, err := d.GetSegmentEndpoint(ctx, model.Segment{Collection: coll})
		require.NoError(t, err)
		if old != members[4] {
			assert.Equal(t, old, ep, "collections on remaining members stay put")
		} else {
			assert.NotEqual(t, members[4], ep)
		}
	}
}

func TestRendezvous_NoMembers(t *testing.T) {
	_, err := NewRendezvous().GetSegmentEndpoint(t.Context(), model.Segment{Collection: model.NewUniqueID()})
	assert.ErrorIs(t, err, ErrNoMembers)
}
