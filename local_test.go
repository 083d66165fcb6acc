package vecseg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecseg/internal/fs"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
	"github.com/hupe1980/vecseg/segment/memvector"
	"github.com/hupe1980/vecseg/sysdb/memory"
)

func newFakeLocal(t *testing.T, kinds *fakeKinds, opts ...Option) (*LocalManager, *memory.Store) {
	t.Helper()
	db := memory.New()
	m, err := NewLocalManager(db, append([]Option{withCatalog(kinds.catalog())}, opts...)...)
	require.NoError(t, err)
	return m, db
}

func TestNewLocalManager_RequiresSysDB(t *testing.T) {
	_, err := NewLocalManager(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewLocalManager_IncompleteCatalog(t *testing.T) {
	_, err := NewLocalManager(memory.New(), withCatalog(segment.NewCatalog()))
	assert.ErrorIs(t, err, ErrUnknownSegmentType)
	assert.ErrorContains(t, err, "catalog has []")

	_, err = NewLocalManager(memory.New(), withCatalog(segment.NewCatalog(memvector.Impl())))
	assert.ErrorIs(t, err, ErrUnknownSegmentType)
	assert.ErrorContains(t, err, string(model.SegmentTypePebbleMetadata))
	assert.ErrorContains(t, err, "catalog has ["+string(model.SegmentTypeHNSWLocalMemory)+"]")
}

func TestLocalManager_CreateSegments(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		vectorType model.SegmentType
	}{
		{name: "memory", vectorType: model.SegmentTypeHNSWLocalMemory},
		{name: "persisted", opts: []Option{WithPersistDirectory(t.TempDir())}, vectorType: model.SegmentTypeHNSWLocalPersisted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewLocalManager(memory.New(), tt.opts...)
			require.NoError(t, err)

			c := model.Collection{
				ID:       model.NewUniqueID(),
				Metadata: model.Metadata{"hnsw:space": "cosine", "owner": "team-a"},
			}
			segs, err := m.CreateSegments(c)
			require.NoError(t, err)
			require.Len(t, segs, 2)

			assert.Equal(t, tt.vectorType, segs[0].Type)
			assert.Equal(t, model.ScopeVector, segs[0].Scope)
			assert.Equal(t, model.Metadata{"hnsw:space": "cosine"}, segs[0].Metadata)

			assert.Equal(t, model.SegmentTypePebbleMetadata, segs[1].Type)
			assert.Equal(t, model.ScopeMetadata, segs[1].Scope)
			assert.Nil(t, segs[1].Metadata)

			for _, s := range segs {
				assert.Equal(t, c.ID, s.Collection)
			}
			assert.NotEqual(t, segs[0].ID, segs[1].ID)

			again, err := m.CreateSegments(c)
			require.NoError(t, err)
			assert.NotEqual(t, segs[0].ID, again[0].ID, "ids are fresh on every call")
		})
	}
}

func TestLocalManager_CreateSegments_NoMetadata(t *testing.T) {
	m, err := NewLocalManager(memory.New())
	require.NoError(t, err)

	segs, err := m.CreateSegments(model.Collection{ID: model.NewUniqueID()})
	require.NoError(t, err)
	for _, s := range segs {
		assert.Nil(t, s.Metadata)
	}

	segs, err = m.CreateSegments(model.Collection{ID: model.NewUniqueID(), Metadata: model.Metadata{"owner": "x"}})
	require.NoError(t, err)
	assert.Nil(t, segs[0].Metadata, "nothing to propagate yields no metadata")
}

func TestLocalManager_GetSegment_AtMostOnce(t *testing.T) {
	kinds := newFakeKinds()
	kinds.buildDelay = 20 * time.Millisecond
	m, db := newFakeLocal(t, kinds)
	_, segs := createCollection(t, db, m, nil)
	c := segs[0].Collection

	const callers = 32
	results := make([]segment.Instance, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := m.GetSegment(context.Background(), c, CapabilityVectorReader)
			assert.NoError(t, err)
			results[i] = inst
		}()
	}
	wg.Wait()

	vec := segmentOf(t, segs, model.ScopeVector)
	assert.Equal(t, 1, kinds.builds(vec.ID))
	for _, inst := range results {
		assert.Same(t, kinds.vector(vec.ID), inst)
	}
	assert.Equal(t, 1, kinds.vector(vec.ID).snapshot().starts)
}

func TestLocalManager_GetSegment_DescriptorIdempotence(t *testing.T) {
	kinds := newFakeKinds()
	m, db := newFakeLocal(t, kinds)
	c, segs := createCollection(t, db, m, nil)

	for _, capability := range []Capability{CapabilityVectorReader, CapabilityMetadataReader} {
		first, err := m.GetSegment(t.Context(), c.ID, capability)
		require.NoError(t, err)
		for range 5 {
			inst, err := m.GetSegment(t.Context(), c.ID, capability)
			require.NoError(t, err)
			assert.Equal(t, first.Segment().ID, inst.Segment().ID)
			assert.Same(t, first, inst)
		}
	}

	assert.Equal(t, segmentOf(t, segs, model.ScopeVector).ID, mustVector(t, m, c.ID).Segment().ID)
	assert.Equal(t, 2, m.Stats().Instances)
	assert.Equal(t, 2, m.Stats().CachedDescriptors)
}

func mustVector(t *testing.T, m *LocalManager, collection model.UniqueID) segment.VectorReader {
	t.Helper()
	vr, err := m.VectorReader(t.Context(), collection)
	require.NoError(t, err)
	return vr
}

func TestLocalManager_GetSegment_SkipsUnknownKinds(t *testing.T) {
	kinds := newFakeKinds()
	m, db := newFakeLocal(t, kinds)
	c := model.Collection{ID: model.NewUniqueID(), Name: "mixed"}
	require.NoError(t, db.CreateCollection(t.Context(), c))

	unknown := model.Segment{ID: model.NewUniqueID(), Type: "urn:other:segment/vector/flat", Scope: model.ScopeVector, Collection: c.ID}
	known := model.Segment{ID: model.NewUniqueID(), Type: model.SegmentTypeHNSWLocalMemory, Scope: model.ScopeVector, Collection: c.ID}
	later := model.Segment{ID: model.NewUniqueID(), Type: model.SegmentTypeHNSWLocalMemory, Scope: model.ScopeVector, Collection: c.ID}
	for _, s := range []model.Segment{unknown, known, later} {
		require.NoError(t, db.CreateSegment(t.Context(), s))
	}

	inst, err := m.GetSegment(t.Context(), c.ID, CapabilityVectorReader)
	require.NoError(t, err)
	assert.Equal(t, known.ID, inst.Segment().ID)
	assert.Zero(t, kinds.builds(unknown.ID))
	assert.Zero(t, kinds.builds(later.ID))
}

func TestLocalManager_GetSegment_NotFound(t *testing.T) {
	kinds := newFakeKinds()
	m, db := newFakeLocal(t, kinds)

	_, err := m.GetSegment(t.Context(), model.NewUniqueID(), CapabilityVectorReader)
	assert.ErrorIs(t, err, ErrSegmentNotFound)

	c := model.Collection{ID: model.NewUniqueID(), Name: "only-unknown"}
	require.NoError(t, db.CreateCollection(t.Context(), c))
	require.NoError(t, db.CreateSegment(t.Context(), model.Segment{
		ID: model.NewUniqueID(), Type: "urn:other:segment/metadata/sqlite", Scope: model.ScopeMetadata, Collection: c.ID,
	}))
	_, err = m.GetSegment(t.Context(), c.ID, CapabilityMetadataReader)
	assert.ErrorIs(t, err, ErrSegmentNotFound)
	assert.Zero(t, m.Stats().CachedDescriptors)
}

func TestLocalManager_GetSegment_InvalidCapability(t *testing.T) {
	kinds := newFakeKinds()
	m, db := newFakeLocal(t, kinds)
	c, _ := createCollection(t, db, m, nil)

	_, err := m.GetSegment(t.Context(), c.ID, Capability(99))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, m.Stats().CachedDescriptors)
}

func TestLocalManager_GetSegment_CapabilityMismatch(t *testing.T) {
	kinds := newFakeKinds()
	cat := segment.NewCatalog(
		segment.Impl{Type: model.SegmentTypeHNSWLocalMemory, Scope: model.ScopeVector, New: kinds.newVector},
		segment.Impl{Type: model.SegmentTypePebbleMetadata, Scope: model.ScopeMetadata, New: kinds.newVector},
	)
	db := memory.New()
	m, err := NewLocalManager(db, withCatalog(cat))
	require.NoError(t, err)
	c, _ := createCollection(t, db, m, nil)

	_, err = m.GetSegment(t.Context(), c.ID, CapabilityMetadataReader)
	assert.ErrorIs(t, err, ErrCapabilityMismatch)
}

func TestLocalManager_DeleteSegments(t *testing.T) {
	kinds := newFakeKinds()
	root := t.TempDir()
	m, db := newFakeLocal(t, kinds, WithPersistDirectory(root))
	c, segs := createCollection(t, db, m, model.Metadata{"hnsw:M": int64(16)})
	other, _ := createCollection(t, db, m, nil)

	require.NoError(t, m.HintUseCollection(t.Context(), c.ID, model.OperationAdd))
	require.NoError(t, m.HintUseCollection(t.Context(), other.ID, model.OperationAdd))

	vec := segmentOf(t, segs, model.ScopeVector)
	meta := segmentOf(t, segs, model.ScopeMetadata)
	writeFootprint(t, root, vec, 16)
	require.True(t, m.fileHandles.contains(c.ID))

	ids, err := m.DeleteSegments(t.Context(), c.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.UniqueID{vec.ID, meta.ID}, ids)

	for _, s := range segs {
		assert.False(t, m.instances.Contains(s.ID))
	}
	_, ok := m.descriptors.get(cacheKey{c.ID, model.ScopeVector})
	assert.False(t, ok)
	_, ok = m.descriptors.get(cacheKey{c.ID, model.ScopeMetadata})
	assert.False(t, ok)
	assert.False(t, m.fileHandles.contains(c.ID))

	assert.Equal(t, 1, kinds.vector(vec.ID).snapshot().stops)
	assert.Equal(t, 1, kinds.vector(vec.ID).snapshot().deletes)
	assert.Equal(t, 1, kinds.metadata(meta.ID).snapshot().deletes)
	assert.NoDirExists(t, filepath.Join(root, vec.ID.String()))

	assert.True(t, m.fileHandles.contains(other.ID), "other collections are untouched")
	assert.Equal(t, 2, m.Stats().Instances)

	// The descriptors are still on record: a later lookup rebuilds fresh instances.
	_, err = m.GetSegment(t.Context(), c.ID, CapabilityVectorReader)
	require.NoError(t, err)
	assert.Equal(t, 2, kinds.builds(vec.ID))
}

func TestLocalManager_DeleteSegments_NotInstantiated(t *testing.T) {
	root := t.TempDir()
	db := memory.New()
	m, err := NewLocalManager(db, WithPersistDirectory(root))
	require.NoError(t, err)
	c, segs := createCollection(t, db, m, nil)

	vec := segmentOf(t, segs, model.ScopeVector)
	writeFootprint(t, root, vec, 8)

	ids, err := m.DeleteSegments(t.Context(), c.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.NoDirExists(t, filepath.Join(root, vec.ID.String()))
	assert.Zero(t, m.Stats().Instances)
}

func TestLocalManager_DeleteSegments_EngineFailure(t *testing.T) {
	root := t.TempDir()
	ffs := fs.NewFaultyFS(nil)
	db := memory.New()
	m, err := NewLocalManager(db, WithPersistDirectory(root), withFileSystem(ffs))
	require.NoError(t, err)
	c, segs := createCollection(t, db, m, nil)

	require.NoError(t, m.HintUseCollection(t.Context(), c.ID, model.OperationAdd))
	vec := segmentOf(t, segs, model.ScopeVector)
	ffs.AddRule(vec.ID.String(), fs.Fault{FailOnRemove: true})

	ids, err := m.DeleteSegments(t.Context(), c.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrInjected)
	assert.Len(t, ids, 2, "ids are returned even when an engine fails")

	for _, s := range segs {
		assert.False(t, m.instances.Contains(s.ID))
	}
	assert.Zero(t, m.Stats().CachedDescriptors)
	assert.False(t, m.fileHandles.contains(c.ID))
}

func TestLocalManager_HintUseCollection(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		kinds := newFakeKinds()
		m, db := newFakeLocal(t, kinds)
		c, segs := createCollection(t, db, m, nil)

		require.NoError(t, m.HintUseCollection(t.Context(), c.ID, model.OperationAdd))
		require.NoError(t, m.HintUseCollection(t.Context(), c.ID, model.OperationAdd))

		vec := kinds.vector(segmentOf(t, segs, model.ScopeVector).ID)
		require.NotNil(t, vec)
		assert.Zero(t, vec.snapshot().opens)
		assert.Zero(t, m.fileHandles.len())
		assert.NotNil(t, kinds.metadata(segmentOf(t, segs, model.ScopeMetadata).ID))
	})

	t.Run("persisted", func(t *testing.T) {
		kinds := newFakeKinds()
		m, db := newFakeLocal(t, kinds, WithPersistDirectory(t.TempDir()))
		c, segs := createCollection(t, db, m, nil)

		require.NoError(t, m.HintUseCollection(t.Context(), c.ID, model.OperationUpsert))
		vec := kinds.vector(segmentOf(t, segs, model.ScopeVector).ID)
		assert.True(t, vec.ResourcesOpen())
		assert.True(t, m.fileHandles.contains(c.ID))
	})

	t.Run("unknown collection", func(t *testing.T) {
		m, _ := newFakeLocal(t, newFakeKinds())
		assert.ErrorIs(t, m.HintUseCollection(t.Context(), model.NewUniqueID(), model.OperationAdd), ErrSegmentNotFound)
	})
}

func TestLocalManager_Lifecycle(t *testing.T) {
	kinds := newFakeKinds()
	m, db := newFakeLocal(t, kinds)
	c, segs := createCollection(t, db, m, nil)
	require.NoError(t, m.HintUseCollection(t.Context(), c.ID, model.OperationAdd))

	vec := kinds.vector(segmentOf(t, segs, model.ScopeVector).ID)
	meta := kinds.metadata(segmentOf(t, segs, model.ScopeMetadata).ID)

	require.NoError(t, m.Stop())
	assert.False(t, vec.isStarted())
	assert.False(t, meta.isStarted())
	assert.Equal(t, 2, m.Stats().Instances, "stop keeps instances registered")

	require.NoError(t, m.Start())
	assert.True(t, vec.isStarted())
	assert.Equal(t, 2, vec.snapshot().starts)

	require.NoError(t, m.ResetState())
	assert.Equal(t, 1, vec.snapshot().resets)
	assert.Equal(t, 1, meta.snapshot().resets)
	assert.Zero(t, m.Stats().Instances)
	assert.Zero(t, m.Stats().CachedDescriptors)

	// Descriptors are still on record; the next access rebuilds.
	_, err := m.GetSegment(t.Context(), c.ID, CapabilityVectorReader)
	require.NoError(t, err)
	assert.Equal(t, 2, kinds.builds(vec.Segment().ID))
}

func TestLocalManager_StopErrorsAreJoined(t *testing.T) {
	kinds := newFakeKinds()
	m, db := newFakeLocal(t, kinds)
	c, segs := createCollection(t, db, m, nil)
	require.NoError(t, m.HintUseCollection(t.Context(), c.ID, model.OperationAdd))

	errStop := errors.New("stop failed")
	kinds.vector(segmentOf(t, segs, model.ScopeVector).ID).stopErr = errStop

	assert.ErrorIs(t, m.Stop(), errStop)
	assert.ErrorIs(t, m.ResetState(), errStop)
	assert.Zero(t, m.Stats().Instances, "reset completes despite errors")
}

func TestLocalManager_ResidentSegments(t *testing.T) {
	kinds := newFakeKinds()
	clock := newStepClock()
	m, db := newFakeLocal(t, kinds, WithPersistDirectory(t.TempDir()), WithClock(clock.Now))
	a, _ := createCollection(t, db, m, nil)
	b, _ := createCollection(t, db, m, nil)

	require.NoError(t, m.HintUseCollection(t.Context(), a.ID, model.OperationAdd))
	_, err := m.GetSegment(t.Context(), b.ID, CapabilityVectorReader)
	require.NoError(t, err)

	resident := m.ResidentSegments()
	require.Len(t, resident, 3)

	var open, closed int
	for _, rs := range resident {
		assert.True(t, rs.Instantiated)
		assert.False(t, rs.LastUsed.IsZero())
		if rs.Segment.Scope != model.ScopeVector {
			continue
		}
		if rs.ResourcesOpen {
			open++
			assert.Equal(t, a.ID, rs.Segment.Collection)
		} else {
			closed++
		}
	}
	assert.Equal(t, 1, open)
	assert.Equal(t, 1, closed)
}

func TestLocalManager_Metrics(t *testing.T) {
	kinds := newFakeKinds()
	metrics := &BasicMetricsCollector{}
	m, db := newFakeLocal(t, kinds, WithMetricsCollector(metrics))
	c, _ := createCollection(t, db, m, nil)

	require.NoError(t, m.HintUseCollection(t.Context(), c.ID, model.OperationAdd))
	require.NoError(t, m.HintUseCollection(t.Context(), c.ID, model.OperationAdd))
	_, err := m.DeleteSegments(t.Context(), c.ID)
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(4), stats.GetSegmentCount)
	assert.Equal(t, int64(2), stats.GetSegmentHits)
	assert.Equal(t, int64(2), stats.InstancesCreated)
	assert.Equal(t, int64(1), stats.DeleteCount)
	assert.Equal(t, int64(2), stats.DeletedSegments)
}

func TestLocalManager_RealEngines(t *testing.T) {
	tests := []struct {
		name string
		opts func(t *testing.T) []Option
	}{
		{name: "memory", opts: func(*testing.T) []Option { return nil }},
		{name: "persisted", opts: func(t *testing.T) []Option { return []Option{WithPersistDirectory(t.TempDir())} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := memory.New()
			m, err := NewLocalManager(db, tt.opts(t)...)
			require.NoError(t, err)
			c, _ := createCollection(t, db, m, nil)

			require.NoError(t, m.HintUseCollection(t.Context(), c.ID, model.OperationAdd))

			vr, err := m.VectorReader(t.Context(), c.ID)
			require.NoError(t, err)
			require.NoError(t, vr.(segment.Writer).Apply(t.Context(), []segment.Record{
				{ID: "a", Operation: model.OperationAdd, Embedding: []float32{1, 2, 3}},
				{ID: "b", Operation: model.OperationAdd, Embedding: []float32{4, 5, 6}},
			}))

			mr, err := m.MetadataReader(t.Context(), c.ID)
			require.NoError(t, err)
			require.NoError(t, mr.(segment.Writer).Apply(t.Context(), []segment.Record{
				{ID: "a", Operation: model.OperationAdd, Metadata: model.Metadata{"color": "red"}},
			}))

			n, err := vr.Count(t.Context())
			require.NoError(t, err)
			assert.Equal(t, 2, n)
			assert.Equal(t, 3, vr.Dimension())

			recs, err := mr.GetMetadata(t.Context(), []string{"a"})
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, "red", recs[0].Metadata["color"])

			require.NoError(t, m.Stop())
			require.NoError(t, m.Start())

			n, err = mr.Count(t.Context())
			require.NoError(t, err)
			assert.Equal(t, 1, n, "metadata survives stop and start")

			_, err = m.DeleteSegments(t.Context(), c.ID)
			require.NoError(t, err)
			assert.Zero(t, m.Stats().Instances)
		})
	}
}

func TestLocalManager_PersistedSurvivesRestart(t *testing.T) {
	root := t.TempDir()
	db := memory.New()

	m, err := NewLocalManager(db, WithPersistDirectory(root))
	require.NoError(t, err)
	c, segs := createCollection(t, db, m, nil)

	vr, err := m.VectorReader(t.Context(), c.ID)
	require.NoError(t, err)
	require.NoError(t, vr.(segment.Writer).Apply(t.Context(), []segment.Record{
		{ID: "x", Embedding: []float32{0.5, 0.25}},
	}))
	require.NoError(t, m.Stop())

	restarted, err := NewLocalManager(db, WithPersistDirectory(root))
	require.NoError(t, err)
	vr, err = restarted.VectorReader(t.Context(), c.ID)
	require.NoError(t, err)

	recs, err := vr.GetVectors(t.Context(), []string{"x"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []float32{0.5, 0.25}, recs[0].Embedding)

	_, err = os.Stat(filepath.Join(root, segmentOf(t, segs, model.ScopeVector).ID.String()))
	assert.NoError(t, err)
	require.NoError(t, restarted.Stop())
}

func TestCapability(t *testing.T) {
	scope, err := CapabilityVectorReader.Scope()
	require.NoError(t, err)
	assert.Equal(t, model.ScopeVector, scope)

	scope, err = CapabilityMetadataReader.Scope()
	require.NoError(t, err)
	assert.Equal(t, model.ScopeMetadata, scope)

	_, err = Capability(0).Scope()
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Equal(t, "VectorReader", CapabilityVectorReader.String())
	assert.Equal(t, "Capability(7)", Capability(7).String())
}
