package vecseg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/hupe1980/vecseg/directory"
	"github.com/hupe1980/vecseg/internal/registry"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
	"github.com/hupe1980/vecseg/sysdb"
)

// DistributedManager resolves the segments of a disaggregated deployment to
// remote segment servers.
//
// Descriptors are cached for the manager's lifetime once looked up; a
// segment relocated to another server keeps its cached descriptor. All scopes
// of a collection are served by the same endpoint, so endpoints are resolved
// through the RECORD segment only. No governors apply: storage is not local.
type DistributedManager struct {
	sysdb     sysdb.SysDB
	directory directory.SegmentDirectory
	catalog   *segment.Catalog
	env       segment.Env

	descriptors *xsync.MapOf[cacheKey, model.Segment]
	proxies     *registry.Registry[model.UniqueID, segment.Instance]

	logger  *Logger
	metrics MetricsCollector
}

// NewDistributedManager creates a distributed segment manager.
func NewDistributedManager(db sysdb.SysDB, dir directory.SegmentDirectory, optFns ...Option) (*DistributedManager, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: sysdb is required", ErrInvalidArgument)
	}
	if dir == nil {
		return nil, fmt.Errorf("%w: segment directory is required", ErrInvalidArgument)
	}

	o := applyOptions(optFns)

	cat := o.catalog
	if cat == nil {
		cat = DistributedCatalog(o.dialOptions...)
	}
	for _, t := range distributedLayout() {
		if !cat.Known(t) {
			return nil, fmt.Errorf("%w: %s (catalog has %v)", ErrUnknownSegmentType, t, cat.Types())
		}
	}

	return &DistributedManager{
		sysdb:     db,
		directory: dir,
		catalog:   cat,
		env: segment.Env{
			Codec:   o.codec,
			Logger:  o.logger.Logger,
			Resolve: dir.GetSegmentEndpoint,
		},
		descriptors: xsync.NewMapOf[cacheKey, model.Segment](),
		proxies:     registry.New[model.UniqueID, segment.Instance](),
		logger:      o.logger,
		metrics:     o.metricsCollector,
	}, nil
}

// CreateSegments returns a VECTOR, a RECORD and a METADATA descriptor for
// collection, all of remote kinds.
func (m *DistributedManager) CreateSegments(collection model.Collection) ([]model.Segment, error) {
	return createSegments(m.catalog, distributedLayout(), collection)
}

// DeleteSegments returns the ids on record for the collection. Remote state
// is owned by the segment servers; only local proxies and cached descriptors
// are dropped.
func (m *DistributedManager) DeleteSegments(ctx context.Context, collection model.UniqueID) ([]model.UniqueID, error) {
	start := time.Now()

	segs, err := m.sysdb.GetSegments(ctx, sysdb.ForCollection(collection))
	if err != nil {
		return nil, fmt.Errorf("get segments of collection %s: %w", collection, err)
	}

	var errs []error
	for _, seg := range segs {
		if _, _, err := m.proxies.Remove(seg.ID); err != nil {
			errs = append(errs, fmt.Errorf("stop proxy %s: %w", seg.ID, err))
		}
	}
	m.forgetCollection(collection)

	err = errors.Join(errs...)
	m.logger.LogDelete(ctx, collection, len(segs), err)
	m.metrics.RecordDelete(len(segs), time.Since(start), err)

	return segmentIDs(segs), err
}

func (m *DistributedManager) forgetCollection(collection model.UniqueID) {
	m.descriptors.Range(func(key cacheKey, seg model.Segment) bool {
		if key.collection == collection {
			_, _, _ = m.proxies.Remove(seg.ID)
			m.descriptors.Delete(key)
		}
		return true
	})
}

// GetSegment returns the descriptor of a collection's segment for scope.
func (m *DistributedManager) GetSegment(ctx context.Context, collection model.UniqueID, scope model.SegmentScope) (model.Segment, error) {
	start := time.Now()
	seg, hit, err := m.getSegment(ctx, collection, scope)
	m.metrics.RecordGetSegment(scope, hit, time.Since(start), err)
	return seg, err
}

func (m *DistributedManager) getSegment(ctx context.Context, collection model.UniqueID, scope model.SegmentScope) (model.Segment, bool, error) {
	if !scope.Valid() {
		return model.Segment{}, false, fmt.Errorf("%w: scope %q", ErrInvalidArgument, scope)
	}

	key := cacheKey{collection, scope}
	if seg, ok := m.descriptors.Load(key); ok {
		return seg, true, nil
	}

	seg, err := lookupSegment(ctx, m.sysdb, m.catalog, collection, scope)
	if err != nil {
		return model.Segment{}, false, err
	}

	seg, _ = m.descriptors.LoadOrStore(key, seg)
	return seg, false, nil
}

// GetEndpoint returns the network address serving a collection.
func (m *DistributedManager) GetEndpoint(ctx context.Context, collection model.UniqueID) (string, error) {
	seg, err := m.GetSegment(ctx, collection, model.ScopeRecord)
	if err != nil {
		return "", err
	}
	endpoint, err := m.directory.GetSegmentEndpoint(ctx, seg)
	if err != nil {
		return "", fmt.Errorf("resolve endpoint of collection %s: %w", collection, err)
	}
	return endpoint, nil
}

// Proxy returns a started proxy for a collection's segment, building it on
// first use.
func (m *DistributedManager) Proxy(ctx context.Context, collection model.UniqueID, scope model.SegmentScope) (segment.Instance, error) {
	seg, err := m.GetSegment(ctx, collection, scope)
	if err != nil {
		return nil, err
	}

	impl, ok := m.catalog.Lookup(seg.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSegmentType, seg.Type)
	}

	start := time.Now()
	built := false
	inst, err := m.proxies.GetOrCreate(seg.ID, func() (segment.Instance, error) {
		built = true
		return impl.New(m.env, seg)
	})
	if built {
		m.metrics.RecordInstanceCreated(seg.Type, time.Since(start), err)
		m.logger.LogInstanceCreated(ctx, seg, err)
	}
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", seg, err)
	}
	return inst, nil
}

// HintUseCollection does nothing: there is no local state to warm.
func (m *DistributedManager) HintUseCollection(context.Context, model.UniqueID, model.Operation) error {
	return nil
}

// Start starts every registered proxy.
func (m *DistributedManager) Start() error {
	return rangeLifecycle(m.proxies, segment.Instance.Start)
}

// Stop stops every registered proxy.
func (m *DistributedManager) Stop() error {
	return rangeLifecycle(m.proxies, segment.Instance.Stop)
}

// ResetState stops and discards every proxy and clears the descriptor cache.
func (m *DistributedManager) ResetState() error {
	insts := m.proxies.Drain()

	var errs []error
	for _, inst := range insts {
		if err := inst.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", inst.Segment(), err))
		}
	}
	m.descriptors.Clear()

	err := errors.Join(errs...)
	m.logger.LogReset(context.Background(), len(insts), err)
	return err
}

// Stats returns a snapshot of the manager's caches.
func (m *DistributedManager) Stats() Stats {
	return Stats{
		Topology:          "distributed",
		Instances:         m.proxies.Len(),
		CachedDescriptors: m.descriptors.Size(),
	}
}
