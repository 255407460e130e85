package encode

import (
	"encoding/binary"
	"fmt"
)

// trnuSync is the fixed 4-byte sync constant leading a TRN-update
// publish record (spec.md §6.2).
var trnuSync = [4]byte{'T', 'R', 'N', 'U'}

// trnuEstimateLen is one (time, position[3], covariance[4]) tuple:
// 8 + 3*8 + 4*8 = 64 bytes.
const trnuEstimateLen = 8 + 3*8 + 4*8

// trnuBodyLen is everything after the sync constant: three estimate
// tuples, reinit count, last-reinit time, filter state, three status
// bytes, one pad byte, mb1 cycle, ping number, mb1 timestamp, update
// timestamp.
const trnuBodyLen = 3*trnuEstimateLen + 4 + 8 + 4 + 1 + 1 + 1 + 1 + 4 + 4 + 8 + 8
const trnuRecordLen = 4 + trnuBodyLen

// Estimate is one (time, northing, easting, depth, 4-element
// covariance) tuple: the point-estimate, MLE, or MSE slot of a TRN
// Update (spec.md §3).
type Estimate struct {
	Time       float64
	Northing   float64
	Easting    float64
	Depth      float64
	Covariance [4]float64
}

// TRNUpdate mirrors spec.md §3's TRN Update value, laid out in the
// wire order spec.md §6.2 defines.
type TRNUpdate struct {
	Point Estimate
	MLE   Estimate
	MSE   Estimate

	ReinitCount  uint32
	LastReinit   float64
	FilterState  uint32
	Success      bool
	Converged    bool
	Valid        bool
	MB1Cycle     uint32
	PingNumber   uint32
	MB1Timestamp float64
	UpdateTime   float64
}

// EncodeTRNU serializes a TRNUpdate into its fixed-length publish
// record.
func EncodeTRNU(u TRNUpdate) []byte {
	buf := make([]byte, trnuRecordLen)
	copy(buf[0:4], trnuSync[:])

	off := 4
	off = putEstimate(buf, off, u.Point)
	off = putEstimate(buf, off, u.MLE)
	off = putEstimate(buf, off, u.MSE)

	binary.LittleEndian.PutUint32(buf[off:off+4], u.ReinitCount)
	off += 4
	putFloat64(buf[off:off+8], u.LastReinit)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], u.FilterState)
	off += 4
	buf[off] = boolByte(u.Success)
	off++
	buf[off] = boolByte(u.Converged)
	off++
	buf[off] = boolByte(u.Valid)
	off++
	off++ // padding byte
	binary.LittleEndian.PutUint32(buf[off:off+4], u.MB1Cycle)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], u.PingNumber)
	off += 4
	putFloat64(buf[off:off+8], u.MB1Timestamp)
	off += 8
	putFloat64(buf[off:off+8], u.UpdateTime)
	off += 8

	return buf
}

// DecodeTRNU parses a TRN-update publish record, validating the sync
// constant and total length.
func DecodeTRNU(buf []byte) (TRNUpdate, error) {
	if len(buf) != trnuRecordLen {
		return TRNUpdate{}, fmt.Errorf("trnu: %w", errTag("short record"))
	}
	if buf[0] != trnuSync[0] || buf[1] != trnuSync[1] || buf[2] != trnuSync[2] || buf[3] != trnuSync[3] {
		return TRNUpdate{}, fmt.Errorf("trnu: %w", errTag("bad sync"))
	}

	var u TRNUpdate
	off := 4
	u.Point, off = getEstimate(buf, off)
	u.MLE, off = getEstimate(buf, off)
	u.MSE, off = getEstimate(buf, off)

	u.ReinitCount = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	u.LastReinit = getFloat64(buf[off : off+8])
	off += 8
	u.FilterState = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	u.Success = buf[off] != 0
	off++
	u.Converged = buf[off] != 0
	off++
	u.Valid = buf[off] != 0
	off++
	off++ // padding byte
	u.MB1Cycle = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	u.PingNumber = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	u.MB1Timestamp = getFloat64(buf[off : off+8])
	off += 8
	u.UpdateTime = getFloat64(buf[off : off+8])
	off += 8

	return u, nil
}

func putEstimate(buf []byte, off int, e Estimate) int {
	putFloat64(buf[off:off+8], e.Time)
	off += 8
	putFloat64(buf[off:off+8], e.Northing)
	off += 8
	putFloat64(buf[off:off+8], e.Easting)
	off += 8
	putFloat64(buf[off:off+8], e.Depth)
	off += 8
	for _, c := range e.Covariance {
		putFloat64(buf[off:off+8], c)
		off += 8
	}
	return off
}

func getEstimate(buf []byte, off int) (Estimate, int) {
	var e Estimate
	e.Time = getFloat64(buf[off : off+8])
	off += 8
	e.Northing = getFloat64(buf[off : off+8])
	off += 8
	e.Easting = getFloat64(buf[off : off+8])
	off += 8
	e.Depth = getFloat64(buf[off : off+8])
	off += 8
	for i := range e.Covariance {
		e.Covariance[i] = getFloat64(buf[off : off+8])
		off += 8
	}
	return e, off
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
