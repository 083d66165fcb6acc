package vecseg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
	"github.com/hupe1980/vecseg/segment/diskvector"
	"github.com/hupe1980/vecseg/sysdb/memory"
)

type resourcesOpener interface {
	ResourcesOpen() bool
}

func TestLocalManager_FileHandleBudget(t *testing.T) {
	db := memory.New()
	metrics := &BasicMetricsCollector{}
	m, err := NewLocalManager(db,
		WithPersistDirectory(t.TempDir()),
		WithMaxFileHandles(2*diskvector.FileHandleCount),
		WithMetricsCollector(metrics),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Stats().FileHandleBudget)

	var collections []model.Collection
	for range 3 {
		c, _ := createCollection(t, db, m, nil)
		collections = append(collections, c)
	}

	vectors := make([]segment.VectorReader, len(collections))
	for i, c := range collections {
		require.NoError(t, m.HintUseCollection(t.Context(), c.ID, model.OperationAdd))
		vectors[i] = mustVector(t, m, c.ID)
	}

	assert.False(t, vectors[0].(resourcesOpener).ResourcesOpen(), "least recently hinted collection is closed")
	assert.True(t, vectors[1].(resourcesOpener).ResourcesOpen())
	assert.True(t, vectors[2].(resourcesOpener).ResourcesOpen())
	assert.Equal(t, 2, m.Stats().OpenSegments)
	assert.Equal(t, int64(1), metrics.GetStats().FileHandleEvictions)

	// The evicted instance stays registered and reopens on the next hint.
	assert.True(t, m.instances.Contains(vectors[0].Segment().ID))
	require.NoError(t, m.HintUseCollection(t.Context(), collections[0].ID, model.OperationAdd))
	assert.Same(t, vectors[0], mustVector(t, m, collections[0].ID))
	assert.True(t, vectors[0].(resourcesOpener).ResourcesOpen())
	assert.False(t, vectors[1].(resourcesOpener).ResourcesOpen(), "next least recently hinted collection is closed")
	assert.True(t, vectors[2].(resourcesOpener).ResourcesOpen())
}

func TestLocalManager_FileHandleBudget_GetSegmentDoesNotTouch(t *testing.T) {
	kinds := newFakeKinds()
	m, db := newFakeLocal(t, kinds,
		WithPersistDirectory(t.TempDir()),
		WithMaxFileHandles(4),
	)
	assert.Equal(t, 1, m.Stats().FileHandleBudget)

	a, segsA := createCollection(t, db, m, nil)
	b, segsB := createCollection(t, db, m, nil)

	require.NoError(t, m.HintUseCollection(t.Context(), a.ID, model.OperationAdd))
	_, err := m.GetSegment(t.Context(), b.ID, CapabilityVectorReader)
	require.NoError(t, err)

	vecA := kinds.vector(segmentOf(t, segsA, model.ScopeVector).ID)
	vecB := kinds.vector(segmentOf(t, segsB, model.ScopeVector).ID)
	assert.True(t, vecA.ResourcesOpen(), "plain lookups do not enter the governor")
	assert.Zero(t, vecB.snapshot().opens)
	assert.Equal(t, []model.UniqueID{a.ID}, m.fileHandles.lru.Keys())

	require.NoError(t, m.HintUseCollection(t.Context(), b.ID, model.OperationAdd))
	assert.False(t, vecA.ResourcesOpen())
	assert.Equal(t, 1, vecA.snapshot().closes)
	assert.True(t, vecB.ResourcesOpen())
	assert.Equal(t, 0, vecA.snapshot().stops, "closing files does not stop the instance")
}

func TestFileHandleGovernor(t *testing.T) {
	g := newFileHandleGovernor(2, NoopLogger(), NoopMetricsCollector{})

	newVec := func() *fakeVector {
		v := &fakeVector{fakeEngine{desc: model.Segment{ID: model.NewUniqueID()}}}
		require.NoError(t, v.OpenPersistentResources())
		return v
	}
	a, b, c := newVec(), newVec(), newVec()
	ca, cb, cc := model.NewUniqueID(), model.NewUniqueID(), model.NewUniqueID()

	g.touch(ca, a)
	g.touch(cb, b)
	g.touch(ca, a)
	g.touch(cc, c)

	assert.True(t, a.ResourcesOpen())
	assert.False(t, b.ResourcesOpen())
	assert.True(t, c.ResourcesOpen())

	g.remove(ca)
	assert.False(t, g.contains(ca))
	assert.True(t, a.ResourcesOpen(), "removal does not close")

	g.purge()
	assert.Zero(t, g.len())
	assert.True(t, c.ResourcesOpen())
	assert.Equal(t, 2, g.budget())
}
