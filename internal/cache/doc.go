// Package cache provides a recency-ordered bounded cache.
//
// The LRU bounds the number of entries rather than bytes. When an insert
// pushes the cache past capacity, the least recently used entry is dropped and
// an eviction callback observes it. The segment managers use this to bound the
// number of vector segments holding open index files: the callback closes the
// evicted segment's file handles while the segment itself stays registered.
//
// Explicit Remove and Purge never run the callback; they are used when the
// owner has already released the entry's resources.
package cache
