package decode

import (
	"bufio"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/sixy6e/mbtrnpp/search"
)

// FileSource is the file/datalist FrameSource (spec.md §6.3): a
// sequence of locally readable files, each holding length-prefixed
// classified records in the same on-disk shape a tee log writes
// (archive package), replayed in file order. INPUT-EOF on one file
// advances to the next; exhausting the list is a clean end of stream,
// not an error condition the controller treats as a failure
// (spec.md §7).
type FileSource struct {
	Entries []search.Entry

	idx int
	f   *os.File
	r   *bufio.Reader
}

// NewFileSource resolves a §6.3 input argument (single file or
// datalist) into a FileSource.
func NewFileSource(path, format string) (*FileSource, error) {
	entries, err := search.ResolveInput(path, format)
	if err != nil {
		return nil, err
	}
	return &FileSource{Entries: entries, idx: -1}, nil
}

func (s *FileSource) Open() error {
	return s.openNext()
}

func (s *FileSource) openNext() error {
	s.idx++
	if s.idx >= len(s.Entries) {
		return ErrEndOfStream
	}
	if s.f != nil {
		_ = s.f.Close()
	}
	f, err := os.Open(s.Entries[s.idx].Path)
	if err != nil {
		return err
	}
	log.Info("file source opened", "path", s.Entries[s.idx].Path, "format", s.Entries[s.idx].Format)
	s.f = f
	s.r = bufio.NewReaderSize(f, defaultFrameBufferLen)
	return nil
}

func (s *FileSource) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}

// ReadRecord reads the next length-prefixed classified record from the
// current file, advancing to the next list entry on end of file. It
// returns ErrEndOfStream only once every entry is exhausted.
func (s *FileSource) ReadRecord() (Record, error) {
	for {
		if s.r == nil {
			if err := s.openNext(); err != nil {
				return Record{}, err
			}
		}

		rec, err := readFramedRecord(s.r)
		if err == nil {
			return rec, nil
		}
		if !isEOF(err) {
			return Record{}, err
		}

		if err := s.openNext(); err != nil {
			return Record{}, err
		}
	}
}

// readFramedRecord reads one archive-format record: a 4-byte record
// type, an 8-byte arrival timestamp and a 4-byte length-prefixed
// payload, all little-endian. This is the same shape
// archive.FileBackend.Append emits, so a tee log can be replayed directly as a FileSource.
func readFramedRecord(r *bufio.Reader) (Record, error) {
	var hdr [16]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Record{}, err
	}
	rt := le32(hdr[0:4])
	arrivedAt := le64(hdr[4:12])
	plen := le32(hdr[12:16])

	payload := make([]byte, plen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Record{}, io.ErrUnexpectedEOF
	}

	return Record{Type: RecordType(rt), Payload: payload, ArrivedAt: int64(arrivedAt)}, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

var _ FrameSource = (*FileSource)(nil)
