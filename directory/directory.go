// Package directory maps remote segments to the network endpoints of the
// segment servers that serve them.
//
// Every implementation assigns endpoints per collection, so all scopes of one
// collection resolve to the same server.
package directory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/vecseg/model"
)

// ErrNoMembers is returned when no segment server is available.
var ErrNoMembers = errors.New("directory: no members")

// SegmentDirectory resolves the endpoint serving a segment.
type SegmentDirectory interface {
	GetSegmentEndpoint(ctx context.Context, seg model.Segment) (string, error)
}

// Static resolves every segment to a fixed endpoint, with optional
// per-collection overrides.
type Static struct {
	endpoint string

	mu        sync.RWMutex
	overrides map[model.UniqueID]string
}

var _ SegmentDirectory = (*Static)(nil)

// NewStatic creates a directory that resolves to endpoint.
func NewStatic(endpoint string) *Static {
	return &Static{endpoint: endpoint, overrides: make(map[model.UniqueID]string)}
}

// Assign pins a collection to an endpoint.
func (s *Static) Assign(collection model.UniqueID, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[collection] = endpoint
}

func (s *Static) GetSegmentEndpoint(_ context.Context, seg model.Segment) (string, error) {
	s.mu.RLock()
	ep, ok := s.overrides[seg.Collection]
	s.mu.RUnlock()
	if ok {
		return ep, nil
	}
	if s.endpoint == "" {
		return "", ErrNoMembers
	}
	return s.endpoint, nil
}

// Rendezvous assigns collections to members by highest-random-weight
// hashing. Changing the member list only moves the collections of the
// members that left or joined.
type Rendezvous struct {
	members atomic.Pointer[[]string]
}

var _ SegmentDirectory = (*Rendezvous)(nil)

// NewRendezvous creates a directory over the given member endpoints.
func NewRendezvous(members ...string) *Rendezvous {
	r := &Rendezvous{}
	r.SetMembers(members)
	return r
}

// SetMembers replaces the member list. Duplicates are removed.
func (r *Rendezvous) SetMembers(members []string) {
	m := slices.Clone(members)
	slices.Sort(m)
	m = slices.Compact(m)
	r.members.Store(&m)
}

// Members returns the current member list in sorted order.
func (r *Rendezvous) Members() []string {
	return slices.Clone(*r.members.Load())
}

func (r *Rendezvous) GetSegmentEndpoint(_ context.Context, seg model.Segment) (string, error) {
	return r.assign(seg.Collection)
}

func (r *Rendezvous) assign(collection model.UniqueID) (string, error) {
	members := *r.members.Load()
	if len(members) == 0 {
		return "", ErrNoMembers
	}

	var (
		best  string
		score uint64
	)
	for i, m := range members {
		h := xxhash.New()
		_, _ = h.Write(collection[:])
		_, _ = h.WriteString(m)
		if s := h.Sum64(); i == 0 || s > score {
			best, score = m, s
		}
	}
	return best, nil
}
