package vecseg

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecseg/internal/fs"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
	"github.com/hupe1980/vecseg/sysdb/memory"
)

type fakeCounts struct {
	starts, stops, resets, deletes, opens, closes int
}

// fakeEngine records lifecycle calls and holds no data.
type fakeEngine struct {
	desc model.Segment
	env  segment.Env

	mu      sync.Mutex
	started bool
	open    bool
	counts  fakeCounts
	stopErr error
}

func (f *fakeEngine) Segment() model.Segment { return f.desc }

func (f *fakeEngine) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	f.counts.starts++
	return nil
}

func (f *fakeEngine) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	f.open = false
	f.counts.stops++
	return f.stopErr
}

func (f *fakeEngine) ResetState() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts.resets++
	return nil
}

func (f *fakeEngine) Delete() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts.deletes++
	if !f.env.Persisted() {
		return nil
	}
	return f.env.FileSystem().RemoveAll(f.env.SegmentDir(f.desc.ID))
}

func (f *fakeEngine) Count(context.Context) (int, error) { return 0, nil }

func (f *fakeEngine) snapshot() fakeCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts
}

func (f *fakeEngine) isStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

type fakeVector struct {
	fakeEngine
}

var _ segment.PersistentVector = (*fakeVector)(nil)

func (f *fakeVector) GetVectors(context.Context, []string) ([]segment.Record, error) {
	return nil, nil
}

func (f *fakeVector) Dimension() int { return 0 }

func (f *fakeVector) OpenPersistentResources() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	f.counts.opens++
	return nil
}

func (f *fakeVector) ClosePersistentResources() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.counts.closes++
	return nil
}

func (f *fakeVector) ResourcesOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeVector) OnDiskFootprint() (int64, error) {
	return fs.DirSize(f.env.FileSystem(), f.env.SegmentDir(f.desc.ID))
}

type fakeMetadata struct {
	fakeEngine
}

var _ segment.MetadataReader = (*fakeMetadata)(nil)

func (f *fakeMetadata) GetMetadata(context.Context, []string) ([]segment.Record, error) {
	return nil, nil
}

// fakeKinds builds fake engines for the local kinds and counts
// constructions per segment id.
type fakeKinds struct {
	buildDelay time.Duration

	mu        sync.Mutex
	built     map[model.UniqueID]int
	vectors   map[model.UniqueID]*fakeVector
	metadatas map[model.UniqueID]*fakeMetadata
}

func newFakeKinds() *fakeKinds {
	return &fakeKinds{
		built:     make(map[model.UniqueID]int),
		vectors:   make(map[model.UniqueID]*fakeVector),
		metadatas: make(map[model.UniqueID]*fakeMetadata),
	}
}

func (k *fakeKinds) catalog() *segment.Catalog {
	return segment.NewCatalog(
		segment.Impl{
			Type:                        model.SegmentTypeHNSWLocalMemory,
			Scope:                       model.ScopeVector,
			New:                         k.newVector,
			PropagateCollectionMetadata: segment.PrefixFilter("hnsw:"),
		},
		segment.Impl{
			Type:                        model.SegmentTypeHNSWLocalPersisted,
			Scope:                       model.ScopeVector,
			New:                         k.newVector,
			PropagateCollectionMetadata: segment.PrefixFilter("hnsw:"),
			FileHandleCost:              4,
		},
		segment.Impl{
			Type:  model.SegmentTypePebbleMetadata,
			Scope: model.ScopeMetadata,
			New:   k.newMetadata,
		},
	)
}

func (k *fakeKinds) newVector(env segment.Env, seg model.Segment) (segment.Instance, error) {
	if k.buildDelay > 0 {
		time.Sleep(k.buildDelay)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.built[seg.ID]++
	v := &fakeVector{fakeEngine{desc: seg, env: env}}
	k.vectors[seg.ID] = v
	return v, nil
}

func (k *fakeKinds) newMetadata(env segment.Env, seg model.Segment) (segment.Instance, error) {
	if k.buildDelay > 0 {
		time.Sleep(k.buildDelay)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.built[seg.ID]++
	md := &fakeMetadata{fakeEngine{desc: seg, env: env}}
	k.metadatas[seg.ID] = md
	return md, nil
}

func (k *fakeKinds) builds(id model.UniqueID) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.built[id]
}

func (k *fakeKinds) vector(id model.UniqueID) *fakeVector {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.vectors[id]
}

func (k *fakeKinds) metadata(id model.UniqueID) *fakeMetadata {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.metadatas[id]
}

// stepClock advances one second on every reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// createCollection stores a collection and the descriptors m synthesizes for
// it in db.
func createCollection(t *testing.T, db *memory.Store, m SegmentManager, md model.Metadata) (model.Collection, []model.Segment) {
	t.Helper()

	id := model.NewUniqueID()
	c := model.Collection{ID: id, Name: "collection-" + id.String(), Metadata: md}
	require.NoError(t, db.CreateCollection(t.Context(), c))

	segs, err := m.CreateSegments(c)
	require.NoError(t, err)
	for _, s := range segs {
		require.NoError(t, db.CreateSegment(t.Context(), s))
	}
	return c, segs
}

func segmentOf(t *testing.T, segs []model.Segment, scope model.SegmentScope) model.Segment {
	t.Helper()
	for _, s := range segs {
		if s.Scope == scope {
			return s
		}
	}
	t.Fatalf("no %s segment", scope)
	return model.Segment{}
}

// writeFootprint writes a file of size bytes into a segment directory.
func writeFootprint(t *testing.T, root string, seg model.Segment, size int) {
	t.Helper()
	dir := filepath.Join(root, seg.ID.String())
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.bin"), make([]byte, size), 0o644))
}
