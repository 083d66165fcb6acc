// Package segment defines the capabilities of live segment instances and the
// closed catalog of engine kinds that can back a segment descriptor.
//
// A descriptor ([model.Segment]) names a kind via its Type. The [Catalog]
// maps every kind known to this build to an [Impl], which carries the
// constructor for instances of that kind and its static properties (scope,
// collection-metadata propagation, file-handle cost). Kinds that are not in
// the catalog are skipped during selection rather than treated as errors.
//
// Capabilities:
//
//   - [Instance]: lifecycle (Start, Stop, ResetState, Delete)
//   - [VectorReader] / [MetadataReader]: read access by scope
//   - [Writer]: record application
//   - [PersistentVector]: file-handle control and on-disk footprint for
//     persisted vector engines
//
// Engines live in sub-packages (memvector, diskvector, metastore, remote) and
// each exports an Impl constructor.
package segment
