package vecseg

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecseg/model"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus
// (see package observability for a ready-made implementation).
type MetricsCollector interface {
	// RecordGetSegment is called after each segment lookup.
	// hit reports whether the descriptor was served from the cache.
	RecordGetSegment(scope model.SegmentScope, hit bool, duration time.Duration, err error)

	// RecordInstanceCreated is called after each instance construction,
	// including the engine's Start.
	RecordInstanceCreated(kind model.SegmentType, duration time.Duration, err error)

	// RecordFootprintEviction is called for every vector segment evicted by
	// the footprint governor. bytes is the measured footprint of the segment.
	RecordFootprintEviction(bytes int64, err error)

	// RecordFileHandleEviction is called when the file-handle governor closes
	// an instance's persistent resources.
	RecordFileHandleEviction(err error)

	// RecordDelete is called after each DeleteSegments call.
	RecordDelete(segments int, duration time.Duration, err error)

	// RecordFootprint is called with the resident footprint measured during
	// admission.
	RecordFootprint(bytes int64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGetSegment(model.SegmentScope, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordInstanceCreated(model.SegmentType, time.Duration, error)   {}
func (NoopMetricsCollector) RecordFootprintEviction(int64, error)                            {}
func (NoopMetricsCollector) RecordFileHandleEviction(error)                                  {}
func (NoopMetricsCollector) RecordDelete(int, time.Duration, error)                          {}
func (NoopMetricsCollector) RecordFootprint(int64)                                           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	GetSegmentCount       atomic.Int64
	GetSegmentHits        atomic.Int64
	GetSegmentErrors      atomic.Int64
	GetSegmentTotalNanos  atomic.Int64
	InstancesCreated      atomic.Int64
	InstanceCreateErrors  atomic.Int64
	FootprintEvictions    atomic.Int64
	FootprintEvictedBytes atomic.Int64
	FootprintEvictErrors  atomic.Int64
	FileHandleEvictions   atomic.Int64
	FileHandleEvictErrors atomic.Int64
	DeleteCount           atomic.Int64
	DeletedSegments       atomic.Int64
	DeleteErrors          atomic.Int64
	ResidentFootprint     atomic.Int64
}

// RecordGetSegment implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGetSegment(_ model.SegmentScope, hit bool, duration time.Duration, err error) {
	b.GetSegmentCount.Add(1)
	b.GetSegmentTotalNanos.Add(duration.Nanoseconds())
	if hit {
		b.GetSegmentHits.Add(1)
	}
	if err != nil {
		b.GetSegmentErrors.Add(1)
	}
}

// RecordInstanceCreated implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInstanceCreated(_ model.SegmentType, _ time.Duration, err error) {
	if err != nil {
		b.InstanceCreateErrors.Add(1)
		return
	}
	b.InstancesCreated.Add(1)
}

// RecordFootprintEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFootprintEviction(bytes int64, err error) {
	b.FootprintEvictions.Add(1)
	b.FootprintEvictedBytes.Add(bytes)
	if err != nil {
		b.FootprintEvictErrors.Add(1)
	}
}

// RecordFileHandleEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFileHandleEviction(err error) {
	b.FileHandleEvictions.Add(1)
	if err != nil {
		b.FileHandleEvictErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(segments int, _ time.Duration, err error) {
	b.DeleteCount.Add(1)
	b.DeletedSegments.Add(int64(segments))
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordFootprint implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFootprint(bytes int64) {
	b.ResidentFootprint.Store(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		GetSegmentCount:       b.GetSegmentCount.Load(),
		GetSegmentHits:        b.GetSegmentHits.Load(),
		GetSegmentErrors:      b.GetSegmentErrors.Load(),
		GetSegmentAvgNanos:    b.getAvgGetSegmentNanos(),
		InstancesCreated:      b.InstancesCreated.Load(),
		InstanceCreateErrors:  b.InstanceCreateErrors.Load(),
		FootprintEvictions:    b.FootprintEvictions.Load(),
		FootprintEvictedBytes: b.FootprintEvictedBytes.Load(),
		FootprintEvictErrors:  b.FootprintEvictErrors.Load(),
		FileHandleEvictions:   b.FileHandleEvictions.Load(),
		FileHandleEvictErrors: b.FileHandleEvictErrors.Load(),
		DeleteCount:           b.DeleteCount.Load(),
		DeletedSegments:       b.DeletedSegments.Load(),
		DeleteErrors:          b.DeleteErrors.Load(),
		ResidentFootprint:     b.ResidentFootprint.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgGetSegmentNanos() int64 {
	count := b.GetSegmentCount.Load()
	if count == 0 {
		return 0
	}
	return b.GetSegmentTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	GetSegmentCount       int64
	GetSegmentHits        int64
	GetSegmentErrors      int64
	GetSegmentAvgNanos    int64
	InstancesCreated      int64
	InstanceCreateErrors  int64
	FootprintEvictions    int64
	FootprintEvictedBytes int64
	FootprintEvictErrors  int64
	FileHandleEvictions   int64
	FileHandleEvictErrors int64
	DeleteCount           int64
	DeletedSegments       int64
	DeleteErrors          int64
	ResidentFootprint     int64
}
