package registry

import (
	"errors"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrConstructionPanicked is returned to callers that waited on a
// construction whose build or start panicked.
var ErrConstructionPanicked = errors.New("registry: construction panicked")

// Lifecycle is the contract of a registered instance.
type Lifecycle interface {
	Start() error
	Stop() error
}

// BuildFunc constructs an unstarted instance.
type BuildFunc[V Lifecycle] func() (V, error)

type cell[V Lifecycle] struct {
	done chan struct{}
	inst V
	err  error
}

func (c *cell[V]) ready() bool {
	select {
	case <-c.done:
		return c.err == nil
	default:
		return false
	}
}

// Registry maps keys to live instances.
type Registry[K comparable, V Lifecycle] struct {
	m *xsync.MapOf[K, *cell[V]]
}

// New creates an empty registry.
func New[K comparable, V Lifecycle]() *Registry[K, V] {
	return &Registry[K, V]{m: xsync.NewMapOf[K, *cell[V]]()}
}

// GetOrCreate returns the instance registered under key, constructing and
// starting it with build if there is none. build runs at most once per key
// among concurrent callers. If build or Start panics, the key is vacated,
// waiting callers receive ErrConstructionPanicked and the panic propagates.
func (r *Registry[K, V]) GetOrCreate(key K, build BuildFunc[V]) (V, error) {
	fresh := &cell[V]{done: make(chan struct{})}

	c, loaded := r.m.LoadOrStore(key, fresh)
	if loaded {
		<-c.done
		if c.err != nil {
			var zero V
			return zero, c.err
		}
		return c.inst, nil
	}

	settled := false
	defer func() {
		if settled {
			return
		}
		p := recover()
		fresh.err = fmt.Errorf("%w: %v", ErrConstructionPanicked, p)
		close(fresh.done)
		r.discard(key, fresh)
		if p != nil {
			panic(p)
		}
	}()

	inst, err := build()
	if err == nil {
		err = inst.Start()
	}

	settled = true
	if err != nil {
		fresh.err = err
		close(fresh.done)
		r.discard(key, fresh)
		var zero V
		return zero, err
	}

	fresh.inst = inst
	close(fresh.done)
	return inst, nil
}

// Get returns the instance registered under key if construction has
// completed successfully.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	c, ok := r.m.Load(key)
	if !ok || !c.ready() {
		var zero V
		return zero, false
	}
	return c.inst, true
}

// Contains reports whether a live instance is registered under key.
func (r *Registry[K, V]) Contains(key K) bool {
	_, ok := r.Get(key)
	return ok
}

// Remove unregisters the instance under key and stops it. It waits for a
// pending construction to finish first. Removing an absent key is a no-op.
func (r *Registry[K, V]) Remove(key K) (inst V, removed bool, err error) {
	c, ok := r.m.Load(key)
	if !ok {
		return inst, false, nil
	}
	<-c.done

	if !r.discard(key, c) || c.err != nil {
		return inst, false, nil
	}
	return c.inst, true, c.inst.Stop()
}

// Range calls f for each live instance until f returns false.
func (r *Registry[K, V]) Range(f func(key K, inst V) bool) {
	r.m.Range(func(key K, c *cell[V]) bool {
		if !c.ready() {
			return true
		}
		return f(key, c.inst)
	})
}

// Keys returns the keys of all live instances.
func (r *Registry[K, V]) Keys() []K {
	keys := make([]K, 0, r.m.Size())
	r.Range(func(key K, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Len returns the number of live instances.
func (r *Registry[K, V]) Len() int {
	n := 0
	r.Range(func(K, V) bool {
		n++
		return true
	})
	return n
}

// Drain unregisters every instance without stopping it and returns them.
// Constructions pending when Drain is called are waited for and drained too;
// failed ones are skipped.
func (r *Registry[K, V]) Drain() []V {
	type entry struct {
		key K
		c   *cell[V]
	}
	var entries []entry
	r.m.Range(func(key K, c *cell[V]) bool {
		entries = append(entries, entry{key, c})
		return true
	})

	var out []V
	for _, e := range entries {
		<-e.c.done
		if e.c.err != nil {
			continue
		}
		if r.discard(e.key, e.c) {
			out = append(out, e.c.inst)
		}
	}
	return out
}

// discard deletes key only if it still maps to c.
func (r *Registry[K, V]) discard(key K, c *cell[V]) bool {
	deleted := false
	r.m.Compute(key, func(old *cell[V], loaded bool) (*cell[V], bool) {
		if loaded && old == c {
			deleted = true
			return old, true
		}
		return old, !loaded
	})
	return deleted
}
