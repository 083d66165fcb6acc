package diskvector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/vecseg/codec"
	"github.com/hupe1980/vecseg/segment"
)

const (
	formatVersion = 2

	headerFile   = "header.bin"
	idsFile      = "ids.bin"
	vectorsFile  = "vectors.bin"
	metadataFile = "metadata.bin"
)

// FileHandleCount is the number of files an open segment holds.
const FileHandleCount = 4

var fileNames = [FileHandleCount]string{headerFile, idsFile, vectorsFile, metadataFile}

// columnCount is the number of column files following the header.
const columnCount = FileHandleCount - 1

// ErrCorrupt is returned when segment files cannot be decoded.
var ErrCorrupt = errors.New("diskvector: corrupt segment files")

type header struct {
	Version   int    `json:"version"`
	Dimension int    `json:"dimension"`
	Count     int    `json:"count"`
	Codec     string `json:"codec"`

	Checksums [columnCount]uint32 `json:"checksums"`
}

func writeUvarint(w *bufio.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

func writeBlob(w *bufio.Writer, b []byte) error {
	if err := writeUvarint(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func writeVector(w *bufio.Writer, vec []float32) error {
	if err := writeUvarint(w, uint64(len(vec))); err != nil {
		return err
	}
	var buf [4]byte
	for _, f := range vec {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func readBlob(r *bufio.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readVector(r *bufio.Reader) ([]float32, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	vec := make([]float32, n)
	var buf [4]byte
	for i := range vec {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[:]))
	}
	return vec, nil
}

// encode writes records to the four column writers.
func encode(c codec.Codec, recs []segment.Record, ids, vectors, metadata *bufio.Writer) error {
	for _, r := range recs {
		if err := writeBlob(ids, []byte(r.ID)); err != nil {
			return err
		}
		if err := writeVector(vectors, r.Embedding); err != nil {
			return err
		}
		md, err := codec.MarshalMetadata(c, r.Metadata)
		if err != nil {
			return fmt.Errorf("record %q: %w", r.ID, err)
		}
		if err := writeBlob(metadata, md); err != nil {
			return err
		}
	}
	return nil
}

// decode reads count records from the column readers.
func decode(c codec.Codec, count int, ids, vectors, metadata *bufio.Reader) ([]segment.Record, error) {
	recs := make([]segment.Record, 0, count)
	for i := range count {
		id, err := readBlob(ids)
		if err != nil {
			return nil, fmt.Errorf("%w: id %d: %v", ErrCorrupt, i, err)
		}
		vec, err := readVector(vectors)
		if err != nil {
			return nil, fmt.Errorf("%w: vector %d: %v", ErrCorrupt, i, err)
		}
		blob, err := readBlob(metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata %d: %v", ErrCorrupt, i, err)
		}
		md, err := codec.UnmarshalMetadata(c, blob)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata %d: %v", ErrCorrupt, i, err)
		}
		recs = append(recs, segment.Record{ID: string(id), Embedding: vec, Metadata: md})
	}
	return recs, nil
}
