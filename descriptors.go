package vecseg

import (
	"bytes"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecseg/model"
)

type cacheKey struct {
	collection model.UniqueID
	scope      model.SegmentScope
}

// cachedSegment is a descriptor admitted to the local descriptor cache.
type cachedSegment struct {
	seg      model.Segment
	lastUsed atomic.Int64 // unix nanos
}

func (c *cachedSegment) touch(now time.Time) {
	c.lastUsed.Store(now.UnixNano())
}

func (c *cachedSegment) lastUsedTime() time.Time {
	return time.Unix(0, c.lastUsed.Load())
}

// descriptorCache holds at most one descriptor per (collection, scope).
// The mutex guards the map only. Lookup, admission and insertion are separate
// steps, so two concurrent misses for the same key may both insert; the last
// write wins.
type descriptorCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*cachedSegment
}

func newDescriptorCache() *descriptorCache {
	return &descriptorCache{entries: make(map[cacheKey]*cachedSegment)}
}

func (d *descriptorCache) get(key cacheKey) (*cachedSegment, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[key]
	return e, ok
}

func (d *descriptorCache) put(seg model.Segment, now time.Time) *cachedSegment {
	e := &cachedSegment{seg: seg}
	e.touch(now)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[cacheKey{seg.Collection, seg.Scope}] = e
	return e
}

// removeSegment drops the entry for seg's key if it still holds seg.
func (d *descriptorCache) removeSegment(seg model.Segment) bool {
	key := cacheKey{seg.Collection, seg.Scope}

	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[key]; ok && e.seg.ID == seg.ID {
		delete(d.entries, key)
		return true
	}
	return false
}

// removeCollection drops every scope cached for a collection.
func (d *descriptorCache) removeCollection(collection model.UniqueID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.entries {
		if key.collection == collection {
			delete(d.entries, key)
		}
	}
}

// residentVectors returns the cached VECTOR entries of every collection
// except exclude, oldest first. Ties are ordered by ascending segment id.
func (d *descriptorCache) residentVectors(exclude model.UniqueID) []*cachedSegment {
	d.mu.RLock()
	out := make([]*cachedSegment, 0, len(d.entries))
	for key, e := range d.entries {
		if key.scope == model.ScopeVector && key.collection != exclude {
			out = append(out, e)
		}
	}
	d.mu.RUnlock()

	sortByLastUsed(out)
	return out
}

// snapshot returns all entries ordered by collection id then scope.
func (d *descriptorCache) snapshot() []*cachedSegment {
	d.mu.RLock()
	out := make([]*cachedSegment, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].seg.Collection[:], out[j].seg.Collection[:]); c != 0 {
			return c < 0
		}
		return out[i].seg.Scope < out[j].seg.Scope
	})
	return out
}

func (d *descriptorCache) clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make(map[cacheKey]*cachedSegment)
}

func (d *descriptorCache) len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

func sortByLastUsed(entries []*cachedSegment) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].lastUsed.Load(), entries[j].lastUsed.Load()
		if a != b {
			return a < b
		}
		return bytes.Compare(entries[i].seg.ID[:], entries[j].seg.ID[:]) < 0
	})
}
