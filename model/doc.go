// Package model defines core types used throughout vecseg.
//
// # Identity Types
//
//   - UniqueID: Globally unique identifier for collections and segments (UUID)
//
// # Descriptor Types
//
//   - Collection: Logical collection as recorded by the system-of-record
//   - Segment: Lightweight descriptor of one unit of storage for a collection
//   - SegmentScope: Purpose of a segment (VECTOR, METADATA, RECORD)
//   - SegmentType: Engine kind backing a segment
//
// Descriptors are immutable once created. Scope, type and owning collection
// never change; only the manager-local last-used stamp moves.
package model
