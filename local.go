package vecseg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/vecseg/internal/registry"
	"github.com/hupe1980/vecseg/internal/resource"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
	"github.com/hupe1980/vecseg/segment/diskvector"
	"github.com/hupe1980/vecseg/sysdb"
)

// LocalManager owns the segment instances of a single-process deployment.
//
// Descriptors are read through from the system-of-record and cached per
// (collection, scope). Instances are built lazily, at most once per segment
// id. In persisted deployments two governors bound resident state: the
// file-handle governor closes index files of the least recently hinted
// collection, and the footprint governor evicts whole vector segments before
// a new one becomes resident.
type LocalManager struct {
	sysdb   sysdb.SysDB
	catalog *segment.Catalog
	layout  []model.SegmentType
	env     segment.Env

	rc          *resource.Controller
	instances   *registry.Registry[model.UniqueID, segment.Instance]
	descriptors *descriptorCache
	fileHandles *fileHandleGovernor
	footprint   *footprintGovernor

	logger  *Logger
	metrics MetricsCollector
	now     func() time.Time
}

// NewLocalManager creates a local segment manager backed by db.
func NewLocalManager(db sysdb.SysDB, optFns ...Option) (*LocalManager, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: sysdb is required", ErrInvalidArgument)
	}

	o := applyOptions(optFns)

	cat := o.catalog
	if cat == nil {
		cat = LocalCatalog()
	}

	persisted := o.persistDirectory != ""
	layout := localLayout(persisted)
	for _, t := range layout {
		if !cat.Known(t) {
			return nil, fmt.Errorf("%w: %s (catalog has %v)", ErrUnknownSegmentType, t, cat.Types())
		}
	}

	m := &LocalManager{
		sysdb:   db,
		catalog: cat,
		layout:  layout,
		env: segment.Env{
			PersistDirectory: o.persistDirectory,
			FS:               o.fs,
			Codec:            o.codec,
			Logger:           o.logger.Logger,
		},
		rc: resource.NewController(resource.Config{
			FootprintLimitBytes: o.memoryLimit,
			MaxFileHandles:      o.maxFileHandles,
			MaxScanWorkers:      o.scanConcurrency,
		}),
		instances:   registry.New[model.UniqueID, segment.Instance](),
		descriptors: newDescriptorCache(),
		logger:      o.logger,
		metrics:     o.metricsCollector,
		now:         o.clock,
	}

	cost := diskvector.FileHandleCount
	if impl, ok := cat.Lookup(layout[0]); ok && impl.Persistent() {
		cost = impl.FileHandleCost
	}
	m.fileHandles = newFileHandleGovernor(m.rc.SegmentBudget(cost), m.logger, m.metrics)
	m.footprint = newFootprintGovernor(m.rc, m.env, m.descriptors, m.evictVector, m.logger, m.metrics)

	return m, nil
}

// Persisted reports whether the manager keeps segment state on disk.
func (m *LocalManager) Persisted() bool {
	return m.env.Persisted()
}

// CreateSegments returns a VECTOR and a METADATA descriptor for collection.
// The vector kind is the persisted engine when a persist directory is set.
func (m *LocalManager) CreateSegments(collection model.Collection) ([]model.Segment, error) {
	return createSegments(m.catalog, m.layout, collection)
}

// DeleteSegments stops and deletes every registered instance of the
// collection's segments, then drops the collection from the descriptor cache
// and the file-handle governor. It returns the ids on record for the
// collection. Bookkeeping completes even if an engine fails; the failures are
// returned joined.
func (m *LocalManager) DeleteSegments(ctx context.Context, collection model.UniqueID) ([]model.UniqueID, error) {
	start := time.Now()

	segs, err := m.sysdb.GetSegments(ctx, sysdb.ForCollection(collection))
	if err != nil {
		return nil, fmt.Errorf("get segments of collection %s: %w", collection, err)
	}

	var errs []error
	for _, seg := range segs {
		if err := m.deleteInstance(seg); err != nil {
			errs = append(errs, fmt.Errorf("delete segment %s: %w", seg.ID, err))
		}
	}

	m.fileHandles.remove(collection)
	m.descriptors.removeCollection(collection)

	err = errors.Join(errs...)
	m.logger.LogDelete(ctx, collection, len(segs), err)
	m.metrics.RecordDelete(len(segs), time.Since(start), err)

	return segmentIDs(segs), err
}

// deleteInstance removes a segment's instance and its persisted state.
// Segments that were never instantiated in this process still own files in a
// persisted deployment; a transient instance removes them.
func (m *LocalManager) deleteInstance(seg model.Segment) error {
	inst, removed, stopErr := m.instances.Remove(seg.ID)
	if removed {
		return errors.Join(stopErr, inst.Delete())
	}

	impl, ok := m.catalog.Lookup(seg.Type)
	if !ok || !m.env.Persisted() {
		return nil
	}
	inst, err := impl.New(m.env, seg)
	if err != nil {
		return err
	}
	return inst.Delete()
}

// GetSegment returns the live instance serving capability for a collection,
// building it on first use. The returned instance implements
// segment.VectorReader or segment.MetadataReader respectively.
func (m *LocalManager) GetSegment(ctx context.Context, collection model.UniqueID, capability Capability) (segment.Instance, error) {
	start := time.Now()

	scope, err := capability.Scope()
	if err != nil {
		return nil, err
	}

	inst, hit, err := m.getSegment(ctx, collection, scope)
	if err == nil {
		err = checkCapability(inst, capability)
	}
	m.metrics.RecordGetSegment(scope, hit, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// VectorReader returns the collection's vector segment.
func (m *LocalManager) VectorReader(ctx context.Context, collection model.UniqueID) (segment.VectorReader, error) {
	inst, err := m.GetSegment(ctx, collection, CapabilityVectorReader)
	if err != nil {
		return nil, err
	}
	return inst.(segment.VectorReader), nil
}

// MetadataReader returns the collection's metadata segment.
func (m *LocalManager) MetadataReader(ctx context.Context, collection model.UniqueID) (segment.MetadataReader, error) {
	inst, err := m.GetSegment(ctx, collection, CapabilityMetadataReader)
	if err != nil {
		return nil, err
	}
	return inst.(segment.MetadataReader), nil
}

func (m *LocalManager) getSegment(ctx context.Context, collection model.UniqueID, scope model.SegmentScope) (segment.Instance, bool, error) {
	entry, hit := m.descriptors.get(cacheKey{collection, scope})
	if !hit {
		seg, err := lookupSegment(ctx, m.sysdb, m.catalog, collection, scope)
		if err != nil {
			return nil, false, err
		}

		if scope == model.ScopeVector && m.footprint.enabled() {
			if err := m.footprint.admit(ctx, seg); err != nil {
				return nil, false, err
			}
		}

		entry = m.descriptors.put(seg, m.now())
	} else {
		entry.touch(m.now())
	}

	inst, err := m.instance(ctx, entry.seg)
	return inst, hit, err
}

// instance returns the registered instance of seg, building it if needed.
func (m *LocalManager) instance(ctx context.Context, seg model.Segment) (segment.Instance, error) {
	impl, ok := m.catalog.Lookup(seg.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSegmentType, seg.Type)
	}

	start := time.Now()
	built := false
	inst, err := m.instances.GetOrCreate(seg.ID, func() (segment.Instance, error) {
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

// evictVector fully removes a resident vector segment on behalf of the
// footprint governor.
func (m *LocalManager) evictVector(ctx context.Context, seg model.Segment, bytes int64) {
	_, _, err := m.instances.Remove(seg.ID)
	m.fileHandles.remove(seg.Collection)
	m.descriptors.removeSegment(seg)

	m.logger.LogFootprintEviction(ctx, seg, bytes, err)
	m.metrics.RecordFootprintEviction(bytes, err)
}

// HintUseCollection pre-warms the metadata and vector segments of a
// collection. In persisted deployments it also opens the vector segment's
// index files and registers the collection with the file-handle governor.
// Calling it redundantly is harmless.
func (m *LocalManager) HintUseCollection(ctx context.Context, collection model.UniqueID, _ model.Operation) error {
	if _, err := m.GetSegment(ctx, collection, CapabilityMetadataReader); err != nil {
		return err
	}

	inst, err := m.GetSegment(ctx, collection, CapabilityVectorReader)
	if err != nil {
		return err
	}

	if !m.env.Persisted() {
		return nil
	}

	pv, ok := inst.(segment.PersistentVector)
	if !ok {
		return nil
	}
	if err := pv.OpenPersistentResources(); err != nil {
		return fmt.Errorf("open persistent resources of %s: %w", pv.Segment(), err)
	}
	m.fileHandles.touch(collection, pv)
	return nil
}

// Start starts every registered instance.
func (m *LocalManager) Start() error {
	return rangeLifecycle(m.instances, segment.Instance.Start)
}

// Stop stops every registered instance. Instances stay registered and are
// started again by Start.
func (m *LocalManager) Stop() error {
	return rangeLifecycle(m.instances, segment.Instance.Stop)
}

// ResetState stops every instance, wipes its state and discards it, then
// clears the descriptor cache and the file-handle governor. Constructions in
// flight when it is called are waited for and reset as well.
func (m *LocalManager) ResetState() error {
	insts := m.instances.Drain()

	var errs []error
	for _, inst := range insts {
		if err := inst.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", inst.Segment(), err))
		}
		if err := inst.ResetState(); err != nil {
			errs = append(errs, fmt.Errorf("reset %s: %w", inst.Segment(), err))
		}
	}

	m.descriptors.clear()
	m.fileHandles.purge()
	m.rc.RecordFootprint(0)

	err := errors.Join(errs...)
	m.logger.LogReset(context.Background(), len(insts), err)
	return err
}

// ResidentSegments returns the cached descriptors with their last-used
// stamps.
func (m *LocalManager) ResidentSegments() []ResidentSegment {
	entries := m.descriptors.snapshot()
	out := make([]ResidentSegment, 0, len(entries))
	for _, e := range entries {
		rs := ResidentSegment{
			Segment:  e.seg,
			LastUsed: e.lastUsedTime(),
		}
		if inst, ok := m.instances.Get(e.seg.ID); ok {
			rs.Instantiated = true
			if ro, ok := inst.(interface{ ResourcesOpen() bool }); ok {
				rs.ResourcesOpen = ro.ResourcesOpen()
			}
		}
		out = append(out, rs)
	}
	return out
}

// Stats returns a snapshot of the manager's caches and budgets.
func (m *LocalManager) Stats() Stats {
	s := Stats{
		Topology:          "local",
		Instances:         m.instances.Len(),
		CachedDescriptors: m.descriptors.len(),
	}
	if m.env.Persisted() {
		s.OpenSegments = m.fileHandles.len()
		s.FileHandleBudget = m.fileHandles.budget()
		s.FootprintBudget = m.rc.FootprintLimit()
		s.ResidentFootprint = m.rc.Footprint()
	}
	return s
}

func checkCapability(inst segment.Instance, capability Capability) error {
	var ok bool
	switch capability {
	case CapabilityVectorReader:
		_, ok = inst.(segment.VectorReader)
	case CapabilityMetadataReader:
		_, ok = inst.(segment.MetadataReader)
	}
	if !ok {
		return fmt.Errorf("%w: %s is not a %s", ErrCapabilityMismatch, inst.Segment(), capability)
	}
	return nil
}

// lookupSegment fetches the first descriptor of a known kind for a
// collection and scope from the system-of-record.
func lookupSegment(ctx context.Context, db sysdb.SysDB, cat *segment.Catalog, collection model.UniqueID, scope model.SegmentScope) (model.Segment, error) {
	segs, err := db.GetSegments(ctx, sysdb.ForScope(collection, scope))
	if err != nil {
		return model.Segment{}, fmt.Errorf("get %s segments of collection %s: %w", scope, collection, err)
	}
	seg, _, ok := cat.FirstKnown(segs)
	if !ok {
		return model.Segment{}, fmt.Errorf("%w: collection %s scope %s", ErrSegmentNotFound, collection, scope)
	}
	return seg, nil
}

func rangeLifecycle(r *registry.Registry[model.UniqueID, segment.Instance], fn func(segment.Instance) error) error {
	var errs []error
	r.Range(func(_ model.UniqueID, inst segment.Instance) bool {
		if err := fn(inst); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", inst.Segment(), err))
		}
		return true
	})
	return errors.Join(errs...)
}
