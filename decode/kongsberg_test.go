package decode

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildDatagram constructs one raw Kongsberg-style datagram: a 24-byte
// envelope (length, tag, timeSec, timeNanosec, numOfDgms, dgmNum)
// followed by payload and a trailing 4-byte length duplicate.
func buildDatagram(tag string, timeSec, timeNanosec, numOfDgms, dgmNum int32, payload []byte) []byte {
	total := kgDatagramHeaderLen + len(payload) + 4
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	copy(buf[4:8], tag)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(timeSec))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(timeNanosec))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(numOfDgms))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(dgmNum))
	copy(buf[24:24+len(payload)], payload)
	binary.LittleEndian.PutUint32(buf[total-4:total], uint32(total))
	return buf
}

func TestAccumulateSingleDatagramStripsEnvelope(t *testing.T) {
	k := NewKongsberg("224.1.1.1:6020", "", 0)
	payload := []byte("hello-mrz")
	dg := buildDatagram("#MRZ", 100, 200, 1, 1, payload)

	rec, ready, err := k.accumulate(dg)
	require.NoError(t, err)
	require.True(t, ready)
	require.Equal(t, MRZ, rec.Type)
	require.Equal(t, payload, rec.Payload)
}

func TestAccumulateMultiPartReassemblesWithRewrittenPartition(t *testing.T) {
	k := NewKongsberg("224.1.1.1:6020", "", 0)

	p0 := []byte("AAAA")
	p1 := []byte("BBBB")
	p2 := []byte("CCCC")
	dg0 := buildDatagram("#MWC", 100, 200, 3, 1, p0)
	dg1 := buildDatagram("#MWC", 100, 200, 3, 2, p1)
	dg2 := buildDatagram("#MWC", 100, 200, 3, 3, p2)

	_, ready, err := k.accumulate(dg0)
	require.NoError(t, err)
	require.False(t, ready)

	_, ready, err = k.accumulate(dg1)
	require.NoError(t, err)
	require.False(t, ready)

	rec, ready, err := k.accumulate(dg2)
	require.NoError(t, err)
	require.True(t, ready)
	require.Equal(t, MWC, rec.Type)

	// Expected length per the review's formula: sum(piece_len) - (n-1)*(header+trailing).
	wantLen := (len(dg0) + len(dg1) + len(dg2)) - 2*(kgDatagramHeaderLen+4)
	require.Equal(t, wantLen, len(rec.Payload))

	leadingLen := binary.LittleEndian.Uint32(rec.Payload[0:4])
	require.Equal(t, uint32(len(rec.Payload)), leadingLen)

	numOfDgms := binary.LittleEndian.Uint32(rec.Payload[16:20])
	dgmNum := binary.LittleEndian.Uint32(rec.Payload[20:24])
	require.Equal(t, uint32(1), numOfDgms)
	require.Equal(t, uint32(1), dgmNum)

	trailing := binary.LittleEndian.Uint32(rec.Payload[len(rec.Payload)-4:])
	require.Equal(t, leadingLen, trailing)

	// piece 0's header/time fields survive verbatim.
	require.Equal(t, []byte("#MWC"), rec.Payload[4:8])
	require.Equal(t, uint32(100), binary.LittleEndian.Uint32(rec.Payload[8:12]))
	require.Equal(t, uint32(200), binary.LittleEndian.Uint32(rec.Payload[12:16]))

	// Payload content: piece0's payload, then piece1's and piece2's payloads
	// (header/partition/trailing stripped from each).
	body := rec.Payload[kgDatagramHeaderLen : len(rec.Payload)-4]
	require.Equal(t, append(append(append([]byte{}, p0...), p1...), p2...), body)
}

func TestAccumulateOutOfOrderDatagramsReassembleCorrectly(t *testing.T) {
	k := NewKongsberg("224.1.1.1:6020", "", 0)
	dg2 := buildDatagram("#MRZ", 1, 2, 2, 2, []byte("second"))
	dg1 := buildDatagram("#MRZ", 1, 2, 2, 1, []byte("first-"))

	_, ready, err := k.accumulate(dg2)
	require.NoError(t, err)
	require.False(t, ready)

	rec, ready, err := k.accumulate(dg1)
	require.NoError(t, err)
	require.True(t, ready)

	body := rec.Payload[kgDatagramHeaderLen : len(rec.Payload)-4]
	require.Equal(t, []byte("first-second"), body)
}

func TestAccumulateMismatchedGroupRestarts(t *testing.T) {
	k := NewKongsberg("224.1.1.1:6020", "", 0)
	dgA1 := buildDatagram("#MRZ", 1, 1, 2, 1, []byte("A1"))
	dgB1 := buildDatagram("#MRZ", 2, 2, 2, 1, []byte("B1"))
	dgB2 := buildDatagram("#MRZ", 2, 2, 2, 2, []byte("B2"))

	_, ready, err := k.accumulate(dgA1)
	require.NoError(t, err)
	require.False(t, ready)

	// A new group key clears the in-progress reassembly.
	_, ready, err = k.accumulate(dgB1)
	require.NoError(t, err)
	require.False(t, ready)

	rec, ready, err := k.accumulate(dgB2)
	require.NoError(t, err)
	require.True(t, ready)
	body := rec.Payload[kgDatagramHeaderLen : len(rec.Payload)-4]
	require.Equal(t, []byte("B1B2"), body)
}
