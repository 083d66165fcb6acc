// Package metastore implements the metadata segment engine on top of
// cockroachdb/pebble.
//
// A persisted segment keeps its pebble store in <persist dir>/<segment id>.
// Without a persist directory the store lives on an in-memory vfs owned by
// the instance, so data survives Stop/Start but not the process.
//
// Keys are "r" + record id; values are codec-encoded metadata.
package metastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/hupe1980/vecseg/codec"
	"github.com/hupe1980/vecseg/internal/fs"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
)

const recordPrefix = 'r'

// ErrFatal is the panic value raised when pebble reports an unrecoverable
// error.
var ErrFatal = errors.New("metastore: fatal pebble error")

// Impl returns the catalog entry of the pebble metadata kind.
func Impl() segment.Impl {
	return segment.Impl{
		Type:  model.SegmentTypePebbleMetadata,
		Scope: model.ScopeMetadata,
		New:   New,
	}
}

// Segment is a pebble-backed metadata segment.
type Segment struct {
	desc   model.Segment
	dir    string // empty when in memory
	fsys   fs.FileSystem
	codec  codec.Codec
	logger *slog.Logger

	mu    sync.RWMutex
	db    *pebble.DB
	memFS vfs.FS
}

var (
	_ segment.MetadataReader = (*Segment)(nil)
	_ segment.Writer         = (*Segment)(nil)
)

// New creates an unstarted segment.
func New(env segment.Env, seg model.Segment) (segment.Instance, error) {
	s := &Segment{
		desc:   seg,
		fsys:   env.FileSystem(),
		codec:  env.MetadataCodec(),
		logger: env.Log().With("segment_id", seg.ID.String()),
	}
	if env.Persisted() {
		s.dir = env.SegmentDir(seg.ID)
	} else {
		s.memFS = vfs.NewMem()
	}
	return s, nil
}

func (s *Segment) Segment() model.Segment { return s.desc }

// Start opens the pebble store.
func (s *Segment) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

// Stop closes the pebble store.
func (s *Segment) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

// ResetState discards all records. A started segment stays started.
func (s *Segment) ResetState() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasOpen := s.db != nil
	if err := s.closeLocked(); err != nil {
		return err
	}
	if err := s.wipeLocked(); err != nil {
		return err
	}
	if wasOpen {
		return s.openLocked()
	}
	return nil
}

// Delete removes the pebble store.
func (s *Segment) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	closeErr := s.closeLocked()
	return errors.Join(closeErr, s.wipeLocked())
}

func (s *Segment) Apply(_ context.Context, records []segment.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return segment.ErrStopped
	}

	b := s.db.NewBatch()
	defer b.Close()

	// Later records in the batch observe earlier ones.
	pending := make(map[string]*model.Metadata)
	lookup := func(id string) (model.Metadata, bool, error) {
		if md, ok := pending[id]; ok {
			if md == nil {
				return nil, false, nil
			}
			return *md, true, nil
		}
		return s.getLocked(id)
	}

	for _, r := range records {
		old, exists, err := lookup(r.ID)
		if err != nil {
			return err
		}

		var next model.Metadata
		switch r.Operation {
		case model.OperationAdd:
			if exists {
				continue
			}
			next = r.Metadata
		case model.OperationUpdate:
			if !exists {
				continue
			}
			next = mergeMetadata(old, r.Metadata)
		case model.OperationUpsert, "":
			next = mergeMetadata(old, r.Metadata)
		case model.OperationDelete:
			if !exists {
				continue
			}
			if err := b.Delete(key(r.ID), nil); err != nil {
				return err
			}
			pending[r.ID] = nil
			continue
		default:
			return fmt.Errorf("metastore: unknown operation %q", r.Operation)
		}

		val, err := codec.MarshalMetadata(s.codec, next)
		if err != nil {
			return fmt.Errorf("metastore: record %q: %w", r.ID, err)
		}
		if err := b.Set(key(r.ID), val, nil); err != nil {
			return err
		}
		md := next.Clone()
		pending[r.ID] = &md
	}

	return b.Commit(pebble.Sync)
}

func (s *Segment) GetMetadata(_ context.Context, ids []string) ([]segment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, segment.ErrStopped
	}

	if len(ids) > 0 {
		out := make([]segment.Record, 0, len(ids))
		for _, id := range ids {
			md, ok, err := s.getLocked(id)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, segment.Record{ID: id, Metadata: md})
			}
		}
		return out, nil
	}

	var out []segment.Record
	err := s.scanLocked(func(k, v []byte) error {
		md, err := codec.UnmarshalMetadata(s.codec, v)
		if err != nil {
			return err
		}
		out = append(out, segment.Record{ID: string(k[1:]), Metadata: md})
		return nil
	})
	return out, err
}

func (s *Segment) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, segment.ErrStopped
	}
	n := 0
	err := s.scanLocked(func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

func (s *Segment) openLocked() error {
	if s.db != nil {
		return nil
	}
	opts := &pebble.Options{Logger: pebbleLogger{s.logger}}
	path := s.dir
	if s.memFS != nil {
		opts.FS = s.memFS
		path = ""
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return fmt.Errorf("metastore: open %s: %w", s.desc.ID, err)
	}
	s.db = db
	return nil
}

func (s *Segment) closeLocked() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Segment) wipeLocked() error {
	if s.memFS != nil {
		s.memFS = vfs.NewMem()
		return nil
	}
	if err := s.fsys.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("metastore: delete %s: %w", s.dir, err)
	}
	return nil
}

func (s *Segment) getLocked(id string) (model.Metadata, bool, error) {
	val, closer, err := s.db.Get(key(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	md, err := codec.UnmarshalMetadata(s.codec, val)
	if err != nil {
		return nil, false, err
	}
	return md, true, nil
}

func (s *Segment) scanLocked(fn func(k, v []byte) error) error {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{recordPrefix},
		UpperBound: []byte{recordPrefix + 1},
	})
	if err != nil {
		return err
	}
	for it.First(); it.Valid(); it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			_ = it.Close()
			return err
		}
	}
	return errors.Join(it.Error(), it.Close())
}

func key(id string) []byte {
	k := make([]byte, 0, len(id)+1)
	k = append(k, recordPrefix)
	return append(k, id...)
}

func mergeMetadata(old, update model.Metadata) model.Metadata {
	md := old.Clone()
	for k, v := range update {
		if v == nil {
			delete(md, k)
			continue
		}
		if md == nil {
			md = make(model.Metadata, len(update))
		}
		md[k] = v
	}
	return md
}

// pebbleLogger routes pebble's log output to slog.
type pebbleLogger struct {
	l *slog.Logger
}

func (p pebbleLogger) Infof(format string, args ...any) {
	p.l.Debug(fmt.Sprintf(format, args...), "component", "pebble")
}

// Fatalf panics with ErrFatal so the embedding process decides how to shut
// down.
func (p pebbleLogger) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.l.Error(msg, "component", "pebble")
	panic(fmt.Errorf("%w: %s", ErrFatal, msg))
}
