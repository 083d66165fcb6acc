// Package diskvector implements the persisted vector segment engine.
//
// Each segment owns a directory <persist dir>/<segment id> with four column
// files (header, ids, vectors, metadata). While its persistent resources are
// open the segment holds exactly [FileHandleCount] file handles. Closing them
// keeps the instance started with its records in memory; the next write
// reopens the files.
//
// Writes rewrite the column files in full and sync them before returning.
// The header records a CRC32C checksum per column file; a mismatch on load
// is reported as [ErrCorrupt].
package diskvector

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/vecseg/codec"
	"github.com/hupe1980/vecseg/internal/fs"
	"github.com/hupe1980/vecseg/internal/hash"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
)

// MetadataPrefix selects the collection metadata keys propagated to vector
// segments.
const MetadataPrefix = "hnsw:"

// Impl returns the catalog entry of the persisted vector kind.
func Impl() segment.Impl {
	return segment.Impl{
		Type:                        model.SegmentTypeHNSWLocalPersisted,
		Scope:                       model.ScopeVector,
		New:                         New,
		PropagateCollectionMetadata: segment.PrefixFilter(MetadataPrefix),
		FileHandleCost:              FileHandleCount,
	}
}

// Segment is a persisted vector segment.
type Segment struct {
	desc   model.Segment
	dir    string
	fsys   fs.FileSystem
	codec  codec.Codec
	logger *slog.Logger

	mu      sync.RWMutex
	started bool
	files   []fs.File // nil while closed
	records *segment.RecordSet
}

var (
	_ segment.PersistentVector = (*Segment)(nil)
	_ segment.Writer           = (*Segment)(nil)
)

// New creates an unstarted segment. env must carry a persist directory.
func New(env segment.Env, seg model.Segment) (segment.Instance, error) {
	if !env.Persisted() {
		return nil, fmt.Errorf("diskvector: segment %s requires a persist directory", seg.ID)
	}
	return &Segment{
		desc:    seg,
		dir:     env.SegmentDir(seg.ID),
		fsys:    env.FileSystem(),
		codec:   env.MetadataCodec(),
		logger:  env.Log().With("segment_id", seg.ID.String()),
		records: segment.NewRecordSet(0),
	}, nil
}

func (s *Segment) Segment() model.Segment { return s.desc }

// Dir returns the segment directory.
func (s *Segment) Dir() string { return s.dir }

// Start opens the segment files and loads the records.
func (s *Segment) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if err := s.openLocked(); err != nil {
		return err
	}
	if err := s.loadLocked(); err != nil {
		_ = s.closeLocked()
		return err
	}
	s.started = true
	return nil
}

// Stop closes the segment files and drops the in-memory records.
func (s *Segment) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.records.Reset(false)
	return s.closeLocked()
}

// ResetState removes all records and the segment directory. A started
// segment stays started and recreates its files on the next write.
func (s *Segment) ResetState() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records.Reset(false)
	closeErr := s.closeLocked()
	return errors.Join(closeErr, s.fsys.RemoveAll(s.dir))
}

// Delete removes the segment directory.
func (s *Segment) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.records.Reset(false)
	closeErr := s.closeLocked()
	if err := s.fsys.RemoveAll(s.dir); err != nil {
		return errors.Join(closeErr, fmt.Errorf("diskvector: delete %s: %w", s.dir, err))
	}
	return closeErr
}

// OpenPersistentResources opens the segment files. Idempotent.
func (s *Segment) OpenPersistentResources() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return segment.ErrStopped
	}
	return s.openLocked()
}

// ClosePersistentResources closes the segment files. Idempotent.
func (s *Segment) ClosePersistentResources() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

// ResourcesOpen reports whether the segment currently holds its files open.
func (s *Segment) ResourcesOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.files != nil
}

// OnDiskFootprint returns the size of the segment directory.
func (s *Segment) OnDiskFootprint() (int64, error) {
	return fs.DirSize(s.fsys, s.dir)
}

func (s *Segment) Apply(_ context.Context, records []segment.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return segment.ErrStopped
	}
	if err := s.records.Apply(records); err != nil {
		return err
	}
	if err := s.openLocked(); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *Segment) GetVectors(_ context.Context, ids []string) ([]segment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, segment.ErrStopped
	}
	return s.records.Get(ids), nil
}

func (s *Segment) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return 0, segment.ErrStopped
	}
	return s.records.Len(), nil
}

func (s *Segment) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.Dimension()
}

func (s *Segment) openLocked() error {
	if s.files != nil {
		return nil
	}
	if err := s.fsys.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("diskvector: create %s: %w", s.dir, err)
	}

	files := make([]fs.File, 0, FileHandleCount)
	for _, name := range fileNames {
		f, err := s.fsys.OpenFile(filepath.Join(s.dir, name), os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			for _, open := range files {
				_ = open.Close()
			}
			return fmt.Errorf("diskvector: open %s: %w", name, err)
		}
		files = append(files, f)
	}
	s.files = files
	s.logger.Debug("opened segment files", "dir", s.dir)
	return nil
}

func (s *Segment) closeLocked() error {
	if s.files == nil {
		return nil
	}
	var errs []error
	for _, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.files = nil
	s.logger.Debug("closed segment files", "dir", s.dir)
	return errors.Join(errs...)
}

func (s *Segment) loadLocked() error {
	for _, f := range s.files {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}

	info, err := s.files[0].Stat()
	if err != nil {
		return err
	}
	s.records.Reset(false)
	if info.Size() == 0 {
		return nil
	}

	raw, err := io.ReadAll(s.files[0])
	if err != nil {
		return err
	}
	var h header
	if err := codec.Default.Unmarshal(raw, &h); err != nil {
		return fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if h.Version != formatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.Version)
	}
	c, ok := codec.ByName(h.Codec)
	if !ok {
		return fmt.Errorf("%w: unknown codec %q", ErrCorrupt, h.Codec)
	}

	var columns [columnCount]*bufio.Reader
	for i := range columns {
		data, err := io.ReadAll(s.files[i+1])
		if err != nil {
			return err
		}
		if !hash.Verify(data, h.Checksums[i]) {
			return fmt.Errorf("%w: checksum mismatch in %s", ErrCorrupt, fileNames[i+1])
		}
		columns[i] = bufio.NewReader(bytes.NewReader(data))
	}

	recs, err := decode(c, h.Count, columns[0], columns[1], columns[2])
	if err != nil {
		return err
	}

	s.records = segment.NewRecordSet(h.Dimension)
	return s.records.Apply(recs)
}

// flushLocked rewrites the column files, then the header carrying their
// checksums.
func (s *Segment) flushLocked() error {
	for i, f := range s.files {
		if err := s.fsys.Truncate(filepath.Join(s.dir, fileNames[i]), 0); err != nil {
			return err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}

	var (
		sums    [columnCount]*hash.Writer
		columns [columnCount]*bufio.Writer
	)
	for i := range columns {
		sums[i] = hash.NewWriter(s.files[i+1])
		columns[i] = bufio.NewWriter(sums[i])
	}

	recs := s.records.Get(nil)
	if err := encode(s.codec, recs, columns[0], columns[1], columns[2]); err != nil {
		return err
	}
	for _, w := range columns {
		if err := w.Flush(); err != nil {
			return err
		}
	}

	h := header{
		Version:   formatVersion,
		Dimension: s.records.Dimension(),
		Count:     len(recs),
		Codec:     s.codec.Name(),
	}
	for i, cw := range sums {
		h.Checksums[i] = cw.Sum32()
	}
	raw, err := codec.Default.Marshal(h)
	if err != nil {
		return err
	}
	if _, err := s.files[0].Write(raw); err != nil {
		return err
	}

	for _, f := range s.files {
		if err := f.Sync(); err != nil {
			return err
		}
	}
	return nil
}
