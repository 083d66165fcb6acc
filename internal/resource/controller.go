package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/vecseg/internal/fdlimit"
)

// DefaultMaxScanWorkers bounds concurrent footprint scans when unset.
const DefaultMaxScanWorkers = 4

// Config holds resource limits.
type Config struct {
	// FootprintLimitBytes is the aggregate on-disk budget for resident
	// persisted vector segments. If <= 0, footprint governance is disabled.
	FootprintLimitBytes int64

	// MaxFileHandles is the number of file descriptors available to segments.
	// If 0, the platform limit is used.
	MaxFileHandles int

	// MaxScanWorkers is the maximum number of concurrent footprint scans.
	// If 0, defaults to DefaultMaxScanWorkers.
	MaxScanWorkers int64
}

// Controller owns the resource budgets of one segment manager.
type Controller struct {
	cfg Config

	scanSem *semaphore.Weighted

	// Last measured resident footprint.
	footprint atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxScanWorkers <= 0 {
		cfg.MaxScanWorkers = DefaultMaxScanWorkers
	}
	if cfg.MaxFileHandles <= 0 {
		cfg.MaxFileHandles = fdlimit.Limit()
	}

	return &Controller{
		cfg:     cfg,
		scanSem: semaphore.NewWeighted(cfg.MaxScanWorkers),
	}
}

// FootprintLimit returns the configured footprint budget in bytes (0 if disabled).
func (c *Controller) FootprintLimit() int64 {
	if c == nil || c.cfg.FootprintLimitBytes <= 0 {
		return 0
	}
	return c.cfg.FootprintLimitBytes
}

// FootprintEnabled reports whether a positive footprint budget is configured.
func (c *Controller) FootprintEnabled() bool {
	return c.FootprintLimit() > 0
}

// Fits reports whether resident plus incoming bytes stay strictly below the
// footprint budget. Without a budget everything fits.
func (c *Controller) Fits(resident, incoming int64) bool {
	limit := c.FootprintLimit()
	if limit == 0 {
		return true
	}
	return resident+incoming < limit
}

// RecordFootprint stores the most recent resident footprint measurement.
func (c *Controller) RecordFootprint(bytes int64) {
	if c == nil {
		return
	}
	c.footprint.Store(bytes)
}

// Footprint returns the most recent resident footprint measurement.
func (c *Controller) Footprint() int64 {
	if c == nil {
		return 0
	}
	return c.footprint.Load()
}

// FileHandleLimit returns the number of file descriptors available to segments.
func (c *Controller) FileHandleLimit() int {
	if c == nil {
		return fdlimit.Limit()
	}
	return c.cfg.MaxFileHandles
}

// SegmentBudget returns how many segments costing costPerSegment file
// handles each may hold their files open at once. The result is at least 1.
func (c *Controller) SegmentBudget(costPerSegment int) int {
	if costPerSegment <= 0 {
		costPerSegment = 1
	}
	n := c.FileHandleLimit() / costPerSegment
	if n < 1 {
		return 1
	}
	return n
}

// MaxScanWorkers returns the concurrent footprint scan limit.
func (c *Controller) MaxScanWorkers() int {
	if c == nil {
		return DefaultMaxScanWorkers
	}
	return int(c.cfg.MaxScanWorkers)
}

// AcquireScan reserves a footprint scan slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireScan(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.scanSem.Acquire(ctx, 1)
}

// ReleaseScan releases a scan slot.
func (c *Controller) ReleaseScan() {
	if c == nil {
		return
	}
	c.scanSem.Release(1)
}
