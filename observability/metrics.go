// Package observability provides a Prometheus implementation of
// vecseg.MetricsCollector.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/vecseg"
	"github.com/hupe1980/vecseg/model"
)

// LatencyBuckets defines histogram buckets for segment lookups and instance
// construction, ranging from 100µs to 10s.
var LatencyBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

// Collector records segment manager metrics in Prometheus.
type Collector struct {
	// GetSegmentTotal counts segment lookups by scope, cache result and status.
	GetSegmentTotal *prometheus.CounterVec

	// GetSegmentDuration records segment lookup duration in seconds by scope.
	GetSegmentDuration *prometheus.HistogramVec

	// InstancesCreatedTotal counts instance constructions by kind and status.
	InstancesCreatedTotal *prometheus.CounterVec

	// InstanceCreateDuration records construction duration in seconds by kind.
	InstanceCreateDuration *prometheus.HistogramVec

	// FootprintEvictionsTotal counts footprint evictions by status.
	FootprintEvictionsTotal *prometheus.CounterVec

	// FootprintEvictedBytesTotal counts the bytes released by footprint evictions.
	FootprintEvictedBytesTotal prometheus.Counter

	// FileHandleEvictionsTotal counts file-handle evictions by status.
	FileHandleEvictionsTotal *prometheus.CounterVec

	// DeletedSegmentsTotal counts segments dropped by DeleteSegments.
	DeletedSegmentsTotal prometheus.Counter

	// DeleteTotal counts DeleteSegments calls by status.
	DeleteTotal *prometheus.CounterVec

	// ResidentFootprintBytes is the last measured resident footprint.
	ResidentFootprintBytes prometheus.Gauge
}

var _ vecseg.MetricsCollector = (*Collector)(nil)

// NewCollector creates a collector and registers it with reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		GetSegmentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecseg_get_segment_total",
				Help: "Segment lookups",
			},
			[]string{"scope", "cache", "status"},
		),
		GetSegmentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vecseg_get_segment_duration_seconds",
				Help:    "Segment lookup duration",
				Buckets: LatencyBuckets,
			},
			[]string{"scope"},
		),
		InstancesCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecseg_instances_created_total",
				Help: "Segment instance constructions",
			},
			[]string{"type", "status"},
		),
		InstanceCreateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vecseg_instance_create_duration_seconds",
				Help:    "Segment instance construction duration",
				Buckets: LatencyBuckets,
			},
			[]string{"type"},
		),
		FootprintEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecseg_footprint_evictions_total",
				Help: "Vector segments evicted for footprint",
			},
			[]string{"status"},
		),
		FootprintEvictedBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vecseg_footprint_evicted_bytes_total",
				Help: "On-disk bytes released by footprint evictions",
			},
		),
		FileHandleEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecseg_file_handle_evictions_total",
				Help: "Vector segments whose index files were closed",
			},
			[]string{"status"},
		),
		DeletedSegmentsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vecseg_deleted_segments_total",
				Help: "Segments dropped by collection deletion",
			},
		),
		DeleteTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecseg_delete_total",
				Help: "Collection segment deletions",
			},
			[]string{"status"},
		),
		ResidentFootprintBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vecseg_resident_footprint_bytes",
				Help: "Last measured on-disk footprint of resident vector segments",
			},
		),
	}

	for _, m := range []prometheus.Collector{
		c.GetSegmentTotal,
		c.GetSegmentDuration,
		c.InstancesCreatedTotal,
		c.InstanceCreateDuration,
		c.FootprintEvictionsTotal,
		c.FootprintEvictedBytesTotal,
		c.FileHandleEvictionsTotal,
		c.DeletedSegmentsTotal,
		c.DeleteTotal,
		c.ResidentFootprintBytes,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordGetSegment implements vecseg.MetricsCollector.
func (c *Collector) RecordGetSegment(scope model.SegmentScope, hit bool, duration time.Duration, err error) {
	cache := "miss"
	if hit {
		cache = "hit"
	}
	c.GetSegmentTotal.WithLabelValues(string(scope), cache, status(err)).Inc()
	c.GetSegmentDuration.WithLabelValues(string(scope)).Observe(duration.Seconds())
}

// RecordInstanceCreated implements vecseg.MetricsCollector.
func (c *Collector) RecordInstanceCreated(kind model.SegmentType, duration time.Duration, err error) {
	c.InstancesCreatedTotal.WithLabelValues(string(kind), status(err)).Inc()
	c.InstanceCreateDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// RecordFootprintEviction implements vecseg.MetricsCollector.
func (c *Collector) RecordFootprintEviction(bytes int64, err error) {
	c.FootprintEvictionsTotal.WithLabelValues(status(err)).Inc()
	c.FootprintEvictedBytesTotal.Add(float64(bytes))
}

// RecordFileHandleEviction implements vecseg.MetricsCollector.
func (c *Collector) RecordFileHandleEviction(err error) {
	c.FileHandleEvictionsTotal.WithLabelValues(status(err)).Inc()
}

// RecordDelete implements vecseg.MetricsCollector.
func (c *Collector) RecordDelete(segments int, _ time.Duration, err error) {
	c.DeleteTotal.WithLabelValues(status(err)).Inc()
	c.DeletedSegmentsTotal.Add(float64(segments))
}

// RecordFootprint implements vecseg.MetricsCollector.
func (c *Collector) RecordFootprint(bytes int64) {
	c.ResidentFootprintBytes.Set(float64(bytes))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
