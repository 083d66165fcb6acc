package vecseg

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/vecseg/internal/fs"
	"github.com/hupe1980/vecseg/internal/resource"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
)

// evictFunc fully removes a resident vector segment.
type evictFunc func(ctx context.Context, seg model.Segment, bytes int64)

// footprintGovernor keeps the aggregate on-disk size of resident vector
// segments under the controller's footprint budget. The on-disk size of a
// segment directory stands in for the memory its index occupies.
type footprintGovernor struct {
	rc          *resource.Controller
	env         segment.Env
	descriptors *descriptorCache
	evict       evictFunc
	logger      *Logger
	metrics     MetricsCollector

	overBudget rate.Sometimes
}

type residentFootprint struct {
	entry *cachedSegment
	bytes int64
}

func newFootprintGovernor(rc *resource.Controller, env segment.Env, descriptors *descriptorCache, evict evictFunc, logger *Logger, metrics MetricsCollector) *footprintGovernor {
	return &footprintGovernor{
		rc:          rc,
		env:         env,
		descriptors: descriptors,
		evict:       evict,
		logger:      logger,
		metrics:     metrics,
		overBudget:  rate.Sometimes{Interval: time.Minute},
	}
}

// enabled reports whether admission control applies.
func (g *footprintGovernor) enabled() bool {
	return g.env.Persisted() && g.rc.FootprintEnabled()
}

// admit evicts resident vector segments, least recently used first, until
// resident plus the candidate's footprint fits the budget or nothing is left
// to evict. Admission never fails for lack of room.
func (g *footprintGovernor) admit(ctx context.Context, candidate model.Segment) error {
	incoming, err := g.measure(ctx, candidate)
	if err != nil {
		return err
	}

	residents, total, err := g.measureResidents(ctx, candidate.Collection)
	if err != nil {
		return err
	}

	for i := 0; !g.rc.Fits(total, incoming) && i < len(residents); i++ {
		r := residents[i]
		g.evict(ctx, r.entry.seg, r.bytes)
		total -= r.bytes
	}

	if !g.rc.Fits(total, incoming) {
		g.overBudget.Do(func() {
			g.logger.LogOverBudget(ctx, total, incoming, g.rc.FootprintLimit())
		})
	}

	g.rc.RecordFootprint(total + incoming)
	g.metrics.RecordFootprint(total + incoming)
	return nil
}

// measureResidents sizes every cached vector segment outside exclude in
// parallel. The returned slice is in eviction order.
func (g *footprintGovernor) measureResidents(ctx context.Context, exclude model.UniqueID) ([]residentFootprint, int64, error) {
	entries := g.descriptors.residentVectors(exclude)
	out := make([]residentFootprint, len(entries))

	var total atomic.Int64

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.rc.MaxScanWorkers())

	for i, e := range entries {
		eg.Go(func() error {
			n, err := g.measure(ctx, e.seg)
			if err != nil {
				return err
			}
			out[i] = residentFootprint{entry: e, bytes: n}
			total.Add(n)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}
	return out, total.Load(), nil
}

// measure returns the on-disk size of a segment directory. Filesystem
// errors are logged and count as zero; only cancellation is returned.
func (g *footprintGovernor) measure(ctx context.Context, seg model.Segment) (int64, error) {
	if err := g.rc.AcquireScan(ctx); err != nil {
		return 0, err
	}
	defer g.rc.ReleaseScan()

	n, err := fs.DirSize(g.env.FileSystem(), g.env.SegmentDir(seg.ID))
	if err != nil {
		g.logger.WarnContext(ctx, "measuring segment footprint failed",
			"segment_id", seg.ID.String(),
			"error", err,
		)
		return 0, nil
	}
	return n, nil
}
