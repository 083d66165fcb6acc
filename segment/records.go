package segment

import (
	"fmt"
	"slices"

	"github.com/hupe1980/vecseg/model"
)

// RecordSet is an insertion-ordered set of records keyed by id.
// It is not safe for concurrent use; engines guard it with their own lock.
type RecordSet struct {
	order []string
	rows  map[string]Record
	dim   int
}

// NewRecordSet creates an empty set. dim 0 means the dimension is taken from
// the first embedding applied.
func NewRecordSet(dim int) *RecordSet {
	return &RecordSet{rows: make(map[string]Record), dim: dim}
}

// Dimension returns the embedding dimension (0 if unknown).
func (s *RecordSet) Dimension() int { return s.dim }

// Len returns the number of records.
func (s *RecordSet) Len() int { return len(s.order) }

// Apply applies records in order.
//
// ADD inserts absent ids and ignores present ones, UPDATE modifies present ids
// and ignores absent ones, UPSERT does either, DELETE removes. On UPDATE and
// UPSERT of an existing id, a nil embedding keeps the old one and metadata
// keys are merged, with nil values removing keys.
func (s *RecordSet) Apply(records []Record) error {
	for _, r := range records {
		if r.Embedding != nil {
			if s.dim == 0 {
				s.dim = len(r.Embedding)
			} else if len(r.Embedding) != s.dim {
				return fmt.Errorf("%w: record %q has %d, want %d", ErrDimensionMismatch, r.ID, len(r.Embedding), s.dim)
			}
		}

		old, exists := s.rows[r.ID]
		switch r.Operation {
		case model.OperationAdd:
			if !exists {
				s.insert(r)
			}
		case model.OperationUpdate:
			if exists {
				s.rows[r.ID] = merge(old, r)
			}
		case model.OperationUpsert, "":
			if exists {
				s.rows[r.ID] = merge(old, r)
			} else {
				s.insert(r)
			}
		case model.OperationDelete:
			if exists {
				delete(s.rows, r.ID)
				s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == r.ID })
			}
		default:
			return fmt.Errorf("segment: unknown operation %q", r.Operation)
		}
	}
	return nil
}

// Get returns the records with the given ids in request order, or all records
// in insertion order if ids is empty. Returned records share storage with the
// set and must be treated as read-only.
func (s *RecordSet) Get(ids []string) []Record {
	if len(ids) == 0 {
		ids = s.order
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.rows[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Reset removes all records. The dimension is forgotten unless keepDim is set.
func (s *RecordSet) Reset(keepDim bool) {
	s.order = nil
	s.rows = make(map[string]Record)
	if !keepDim {
		s.dim = 0
	}
}

func (s *RecordSet) insert(r Record) {
	r.Operation = ""
	r.Embedding = slices.Clone(r.Embedding)
	r.Metadata = r.Metadata.Clone()
	s.rows[r.ID] = r
	s.order = append(s.order, r.ID)
}

func merge(old, r Record) Record {
	if r.Embedding != nil {
		old.Embedding = slices.Clone(r.Embedding)
	}
	if len(r.Metadata) > 0 {
		md := old.Metadata.Clone()
		if md == nil {
			md = make(model.Metadata, len(r.Metadata))
		}
		for k, v := range r.Metadata {
			if v == nil {
				delete(md, k)
				continue
			}
			md[k] = v
		}
		if len(md) == 0 {
			md = nil
		}
		old.Metadata = md
	}
	return old
}
