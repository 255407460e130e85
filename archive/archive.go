// Package archive implements the optional tee log named in spec.md §2:
// a side channel that durably records every MB1 and TRN-update record
// the Pipeline Controller produces, independent of (and never blocking)
// the publish path.
package archive

import (
	"bufio"
	"encoding/binary"
	"os"
	"sync"
)

// Kind distinguishes the two record families a tee log carries.
type Kind uint8

const (
	MB1Record Kind = iota
	TRNURecord
)

// Record is one archived entry: a classified, already-encoded wire
// record plus its ping/cycle identity, used for both the append and
// replay paths.
type Record struct {
	Kind       Kind
	PingNumber uint32
	ArrivedAt  int64
	Payload    []byte
}

// Backend is the tee log's storage seam. FileBackend (below) and
// TileDBBackend (tiledb.go) both implement it; the Pipeline Controller
// holds only this interface, so enabling object-store archival is a
// configuration choice, not a code change.
type Backend interface {
	Append(rec Record) error
	Close() error
}

// FileBackend appends records to a local file using the same
// length-prefixed frame shape decode.FileSource replays (4-byte type,
// 8-byte arrival time, 4-byte length, payload); a tee log of raw input
// records (as opposed to derived MB1/TRNU output) can therefore be
// replayed directly as a FileSource.
type FileBackend struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// OpenFileBackend creates (or truncates) path for append-only writing.
func OpenFileBackend(path string) (*FileBackend, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileBackend{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one framed record: kind/record-type (4 bytes), arrival
// timestamp (8 bytes), payload length (4 bytes), payload. All fields
// little-endian, matching decode.FileSource's reader.
func (b *FileBackend) Append(rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var hdr [16]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(rec.Kind))
	binary.LittleEndian.PutUint64(hdr[4:12], uint64(rec.ArrivedAt))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(rec.Payload)))

	if _, err := b.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := b.w.Write(rec.Payload)
	return err
}

func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.w.Flush(); err != nil {
		return err
	}
	return b.f.Close()
}

var _ Backend = (*FileBackend)(nil)
