// Package vecseg manages the lifecycle and resource budgets of the storage
// segments behind vector-database collections.
//
// A collection is served by one segment per scope: a VECTOR index and a
// METADATA store, plus a RECORD log in distributed deployments. A segment
// manager synthesizes the segment descriptors of new collections, reads them
// through from the system-of-record, and hands out live instances.
//
// # Local Mode
//
// LocalManager builds engine instances in process, at most one per segment:
//
//	db := memory.New()
//	m, _ := vecseg.NewLocalManager(db,
//	    vecseg.WithPersistDirectory("./data"),
//	    vecseg.WithMemoryLimit(4<<30),
//	)
//
//	segs, _ := m.CreateSegments(collection)
//	for _, s := range segs {
//	    _ = db.CreateSegment(ctx, s)
//	}
//
//	_ = m.HintUseCollection(ctx, collection.ID, model.OperationAdd)
//	vr, _ := m.VectorReader(ctx, collection.ID)
//
// # Resource Governance
//
// Persisted deployments bound resident state twice:
//
//   - File handles: hinted collections keep their vector index files open.
//     At most fdlimit / per-segment-cost collections do so at a time; the
//     least recently hinted one has its files closed but stays resident.
//   - Footprint: before a vector segment becomes resident, the oldest
//     resident vector segments are stopped and evicted until the on-disk size
//     of all of them plus the newcomer fits WithMemoryLimit. If nothing is
//     left to evict, admission proceeds over budget.
//
// # Distributed Mode
//
// DistributedManager serves descriptors of remote segments and resolves them
// to endpoints through a directory:
//
//	m, _ := vecseg.NewDistributedManager(db, directory.NewRendezvous("seg-0:50051", "seg-1:50051"))
//	endpoint, _ := m.GetEndpoint(ctx, collection.ID)
//
// # Concurrency
//
// Managers are safe for concurrent use. Instance construction is guarded per
// segment id. Descriptor-cache bookkeeping and footprint admission are not
// serialized with each other: two concurrent first lookups of the same
// collection may both evict and both insert, exceeding the budget briefly.
package vecseg
