// Package encode implements the MB1 sounding-record codec and the
// TRN-update publish-record codec (spec.md §6.1, §6.2): the two
// fixed-layout, little-endian wire formats the pipeline emits. MB1
// carries a trailing checksum; the TRN-update record is validated only
// by its sync constant and length.
package encode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sixy6e/mbtrnpp"
)

const (
	mb1HeaderLen   = 56
	mb1SoundingLen = 28
	mb1ChecksumLen = 4

	mb1Magic0, mb1Magic1, mb1Magic2 = 'M', 'B', '1'
)

var errBadMagic = fmt.Errorf("mb1: %w", errTag("bad magic"))
var errShort = fmt.Errorf("mb1: %w", errTag("short record"))
var errBadChecksum = fmt.Errorf("mb1: %w", errTag("bad checksum"))

type errTag string

func (e errTag) Error() string { return string(e) }

// MB1View is the decoded read-only view of an MB1 record: the header
// fields plus the sounding array, in wire order.
type MB1View struct {
	Timestamp      float64
	Latitude       float64
	Longitude      float64
	TransducerDepth float64
	Heading        float64
	PingNumber     uint32
	Soundings      []MB1Sounding
}

// MB1Sounding is one decoded (or to-be-encoded) sounding entry.
type MB1Sounding struct {
	BeamIndex  uint32
	AlongTrack float64
	AcrossTrack float64
	Depth      float64
}

// EncodeMB1 serializes ping, restricted to the beam indices in
// selected (in the order given), into an MB1 record. Encode is total:
// any Ping and any subset of its beam indices produce a valid
// HEADER+N*SOUNDING+CHECKSUM byte string, including the zero-sounding
// case (spec.md §4.4 edge case).
func EncodeMB1(ping *mbtrn.Ping, selected []int) []byte {
	n := len(selected)
	total := mb1HeaderLen + n*mb1SoundingLen + mb1ChecksumLen
	buf := make([]byte, total)

	buf[0], buf[1], buf[2], buf[3] = mb1Magic0, mb1Magic1, mb1Magic2, 0
	binary.LittleEndian.PutUint32(buf[4:8], uint32(total))
	putFloat64(buf[8:16], timestampToFloat(ping))
	putFloat64(buf[16:24], ping.Pose.Latitude)
	putFloat64(buf[24:32], ping.Pose.Longitude)
	putFloat64(buf[32:40], ping.Pose.Depth)
	putFloat64(buf[40:48], ping.Pose.Heading)
	binary.LittleEndian.PutUint32(buf[48:52], ping.Number)
	binary.LittleEndian.PutUint32(buf[52:56], uint32(n))

	off := mb1HeaderLen
	for _, idx := range selected {
		s := ping.Soundings[idx]
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(idx))
		putFloat64(buf[off+4:off+12], s.AlongTrack)
		putFloat64(buf[off+12:off+20], s.AcrossTrack)
		putFloat64(buf[off+20:off+28], s.Bath)
		off += mb1SoundingLen
	}

	checksum := sumBytes(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:off+4], checksum)

	return buf
}

// DecodeMB1 validates and parses an MB1 record: magic, total length and
// checksum (sum of all preceding bytes, unsigned octets, mod 2^32).
func DecodeMB1(buf []byte) (MB1View, error) {
	if len(buf) < mb1HeaderLen+mb1ChecksumLen {
		return MB1View{}, errShort
	}
	if buf[0] != mb1Magic0 || buf[1] != mb1Magic1 || buf[2] != mb1Magic2 {
		return MB1View{}, errBadMagic
	}

	total := binary.LittleEndian.Uint32(buf[4:8])
	if int(total) != len(buf) {
		return MB1View{}, errShort
	}

	checksumOff := len(buf) - mb1ChecksumLen
	want := binary.LittleEndian.Uint32(buf[checksumOff:])
	got := sumBytes(buf[:checksumOff])
	if want != got {
		return MB1View{}, errBadChecksum
	}

	n := binary.LittleEndian.Uint32(buf[52:56])
	soundingsLen := mb1HeaderLen + int(n)*mb1SoundingLen
	if soundingsLen+mb1ChecksumLen != len(buf) {
		return MB1View{}, errShort
	}

	view := MB1View{
		Timestamp:       getFloat64(buf[8:16]),
		Latitude:        getFloat64(buf[16:24]),
		Longitude:       getFloat64(buf[24:32]),
		TransducerDepth: getFloat64(buf[32:40]),
		Heading:         getFloat64(buf[40:48]),
		PingNumber:      binary.LittleEndian.Uint32(buf[48:52]),
		Soundings:       make([]MB1Sounding, n),
	}

	off := mb1HeaderLen
	for i := uint32(0); i < n; i++ {
		view.Soundings[i] = MB1Sounding{
			BeamIndex:   binary.LittleEndian.Uint32(buf[off : off+4]),
			AlongTrack:  getFloat64(buf[off+4 : off+12]),
			AcrossTrack: getFloat64(buf[off+12 : off+20]),
			Depth:       getFloat64(buf[off+20 : off+28]),
		}
		off += mb1SoundingLen
	}

	return view, nil
}

func timestampToFloat(ping *mbtrn.Ping) float64 {
	return float64(ping.Timestamp.Unix()) + float64(ping.Timestamp.Nanosecond())/1e9
}

func putFloat64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

func getFloat64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func sumBytes(b []byte) uint32 {
	var sum uint32
	for _, c := range b {
		sum += uint32(c)
	}
	return sum
}

// ErrBadMagic, ErrShort and ErrBadChecksum are the three MB1 decode
// failure modes named in spec.md §4.5; exported so callers can
// errors.Is against them.
var (
	ErrBadMagic    = errBadMagic
	ErrShort       = errShort
	ErrBadChecksum = errBadChecksum
)
