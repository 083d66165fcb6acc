// Package resource implements the Controller for segment resource budgets.
//
// The Controller centralizes the two independent budgets of a local segment
// manager and the concurrency limit of the footprint scans that feed one of
// them:
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                          Controller                          │
//	├───────────────────┬────────────────────┬─────────────────────┤
//	│  Footprint Budget │  File-Handle Budget│  Scan Workers (sem) │
//	│  (bytes on disk)  │  (fd limit / cost) │                     │
//	├───────────────────┼────────────────────┼─────────────────────┤
//	│  FootprintLimit   │  FileHandleLimit   │  AcquireScan        │
//	│  Fits             │  SegmentBudget     │  ReleaseScan        │
//	│  RecordFootprint  │                    │                     │
//	└───────────────────┴────────────────────┴─────────────────────┘
//
// # Footprint Budget
//
// A byte budget for the aggregate on-disk size of resident persisted vector
// segments. Fits(resident, incoming) is the admission test; the caller evicts
// until it holds or nothing evictable remains. A budget <= 0 disables it.
//
// # File-Handle Budget
//
// Derived from the process file-descriptor limit (see package fdlimit) or an
// explicit override, divided by the per-segment handle cost:
//
//	rc := resource.NewController(resource.Config{})
//	budget := rc.SegmentBudget(diskvector.FileHandleCount)
//
// # Scan Workers
//
// Footprint measurement walks segment directories. The scan semaphore bounds
// how many walks run at once:
//
//	if err := rc.AcquireScan(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseScan()
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully: budgets are disabled and
// acquisitions succeed immediately.
package resource
