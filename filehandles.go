package vecseg

import (
	"github.com/hupe1980/vecseg/internal/cache"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
)

// fileHandleGovernor bounds how many persisted vector instances keep their
// index files open. Entries are keyed by collection id in recency order.
// Eviction closes the evicted instance's files; the instance itself stays
// registered and reopens its files on the next hint.
type fileHandleGovernor struct {
	lru     *cache.LRU[model.UniqueID, segment.PersistentVector]
	logger  *Logger
	metrics MetricsCollector
}

func newFileHandleGovernor(budget int, logger *Logger, metrics MetricsCollector) *fileHandleGovernor {
	g := &fileHandleGovernor{
		logger:  logger,
		metrics: metrics,
	}
	g.lru = cache.NewLRU(budget, g.onEvict)
	return g
}

func (g *fileHandleGovernor) onEvict(collection model.UniqueID, inst segment.PersistentVector) {
	err := inst.ClosePersistentResources()
	g.logger.LogFileHandleEviction(collection, err)
	g.metrics.RecordFileHandleEviction(err)
}

// touch marks a collection's vector instance most recently used, evicting
// the least recently used one when the budget is exceeded.
func (g *fileHandleGovernor) touch(collection model.UniqueID, inst segment.PersistentVector) {
	g.lru.Set(collection, inst)
}

// remove drops membership without closing anything.
func (g *fileHandleGovernor) remove(collection model.UniqueID) {
	g.lru.Remove(collection)
}

func (g *fileHandleGovernor) contains(collection model.UniqueID) bool {
	return g.lru.Contains(collection)
}

func (g *fileHandleGovernor) purge() {
	g.lru.Purge()
}

func (g *fileHandleGovernor) len() int {
	return g.lru.Len()
}

func (g *fileHandleGovernor) budget() int {
	return g.lru.Capacity()
}
