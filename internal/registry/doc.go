// Package registry provides a concurrent instance registry with
// at-most-one construction per key.
//
// The first caller of [Registry.GetOrCreate] for a key runs the build
// function and starts the instance; concurrent callers for the same key
// block until that construction finishes and then share its outcome.
// A failed construction is not cached: the key becomes vacant again and
// the next caller retries. A panicking build or start also vacates the key;
// waiters receive [ErrConstructionPanicked].
//
//	reg := registry.New[model.UniqueID, segment.Instance]()
//	inst, err := reg.GetOrCreate(seg.ID, func() (segment.Instance, error) {
//	    return impl.New(env, seg)
//	})
//
// Removal stops the instance after it has left the registry, so no caller can
// obtain an instance that is being stopped through the registry.
// [Registry.Drain] waits for pending constructions before unregistering.
package registry
