package decode

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/charmbracelet/log"
)

// reson7kSync is the 4-byte sync pattern a 7K frame stream begins each
// frame with. Adapter A resynchronizes by scanning forward for it
// whenever the bytes at the current read position do not start with it.
var reson7kSync = [4]byte{0x00, 0x7a, 0x00, 0x7a}

const (
	reson7kFrameHeaderLen = 12 // sync(4) + total length(4) + record type(4)
	defaultFrameBufferLen = 256 * 1024
)

// Reson7K is Adapter A: a TCP "7K"-center frame stream (spec.md §4.1).
// It owns the socket and a bounded internal frame buffer, subscribes to
// the fixed Subscription record-type list on connect/reconnect, and
// reports its sync-loss byte count through SyncLossBytes.
type Reson7K struct {
	Addr          string
	BufferLen     int
	ReadTimeout   time.Duration
	SyncLossBytes uint64

	conn net.Conn
	r    *bufio.Reader
}

// NewReson7K constructs an Adapter A source. bufferLen <= 0 selects the
// 256 KiB default.
func NewReson7K(addr string, bufferLen int, readTimeout time.Duration) *Reson7K {
	if bufferLen <= 0 {
		bufferLen = defaultFrameBufferLen
	}
	return &Reson7K{Addr: addr, BufferLen: bufferLen, ReadTimeout: readTimeout}
}

func (s *Reson7K) Open() error {
	conn, err := net.DialTimeout("tcp", s.Addr, 5*time.Second)
	if err != nil {
		return err
	}
	s.conn = conn
	s.r = bufio.NewReaderSize(conn, s.BufferLen)
	return s.subscribe()
}

func (s *Reson7K) Reconnect() error {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	return s.Open()
}

// subscribe issues the fixed record-type subscription list. The wire
// form of the subscribe control message is vendor-defined; here it is a
// length-prefixed uint32 array, which is all a 7K-center needs to
// recognize an IRDS subscribe request in practice.
func (s *Reson7K) subscribe() error {
	buf := make([]byte, 4+4*len(Subscription))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(Subscription)))
	for i, rt := range Subscription {
		binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], rt)
	}
	_, err := s.conn.Write(buf)
	return err
}

func (s *Reson7K) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// ReadRecord reads one length-prefixed 7K frame, first resynchronizing
// by scanning forward for reson7kSync; every skipped byte is counted in
// SyncLossBytes. A frame whose length field is out of range is dropped
// with ErrMalformed and its 12 header bytes are added to SyncLossBytes.
func (s *Reson7K) ReadRecord() (Record, error) {
	if s.conn != nil {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	}

	header, err := s.syncToFrame()
	if err != nil {
		return Record{}, err
	}

	totalLen := binary.LittleEndian.Uint32(header[4:8])
	recordType := binary.LittleEndian.Uint32(header[8:12])
	if totalLen < reson7kFrameHeaderLen || int(totalLen) > s.BufferLen {
		s.SyncLossBytes += reson7kFrameHeaderLen
		return Record{}, ErrMalformed
	}

	payload := make([]byte, totalLen-reson7kFrameHeaderLen)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return Record{}, ErrWouldBlock
		}
		if isEOF(err) {
			return Record{}, ErrDisconnected
		}
		return Record{}, err
	}

	return Record{
		Type:      ClassifyReson7K(recordType),
		Payload:   payload,
		ArrivedAt: time.Now().UnixNano(),
	}, nil
}

// syncToFrame reads forward, byte at a time once out of alignment,
// until the 12-byte header window begins with reson7kSync.
func (s *Reson7K) syncToFrame() ([]byte, error) {
	header := make([]byte, reson7kFrameHeaderLen)
	if _, err := io.ReadFull(s.r, header); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrWouldBlock
		}
		if isEOF(err) {
			return nil, ErrDisconnected
		}
		return nil, err
	}

	for header[0] != reson7kSync[0] || header[1] != reson7kSync[1] ||
		header[2] != reson7kSync[2] || header[3] != reson7kSync[3] {
		copy(header, header[1:])
		b, err := s.r.ReadByte()
		if err != nil {
			if isEOF(err) {
				return nil, ErrDisconnected
			}
			return nil, err
		}
		header[reson7kFrameHeaderLen-1] = b
		s.SyncLossBytes++
		if s.SyncLossBytes%65536 == 0 {
			log.Warn("7K resync in progress", "bytes_skipped", s.SyncLossBytes)
		}
	}
	return header, nil
}

var _ FrameSource = (*Reson7K)(nil)
var _ Reconnectable = (*Reson7K)(nil)
