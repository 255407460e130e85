package encode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sixy6e/mbtrnpp"
)

func samplePing() *mbtrn.Ping {
	soundings := []mbtrn.Sounding{
		{Bath: 100.5, AlongTrack: 1.1, AcrossTrack: -2.2, Flag: mbtrn.OK},
		{Bath: 101.5, AlongTrack: 1.2, AcrossTrack: -2.1, Flag: mbtrn.FlaggedFilter},
		{Bath: 99.5, AlongTrack: 1.3, AcrossTrack: -2.0, Flag: mbtrn.OK},
	}
	pose := mbtrn.Pose{Latitude: 0.7, Longitude: -2.1, Depth: 3.0, Heading: 1.57}
	return mbtrn.NewPing(42, time.Unix(1700000000, 500000000), pose, mbtrn.Gains{TransmitGain: 250}, soundings)
}

func TestMB1RoundTrip(t *testing.T) {
	p := samplePing()
	selected := p.Selected()
	require.Equal(t, []int{0, 2}, selected)

	buf := EncodeMB1(p, selected)
	require.Len(t, buf, mb1HeaderLen+2*mb1SoundingLen+mb1ChecksumLen)

	view, err := DecodeMB1(buf)
	require.NoError(t, err)
	require.Equal(t, p.Number, view.PingNumber)
	require.InDelta(t, p.Pose.Latitude, view.Latitude, 1e-12)
	require.InDelta(t, p.Pose.Longitude, view.Longitude, 1e-12)
	require.Len(t, view.Soundings, 2)
	require.Equal(t, uint32(0), view.Soundings[0].BeamIndex)
	require.InDelta(t, 100.5, view.Soundings[0].Depth, 1e-9)
	require.Equal(t, uint32(2), view.Soundings[1].BeamIndex)
	require.InDelta(t, 99.5, view.Soundings[1].Depth, 1e-9)
}

func TestMB1EncodeZeroSoundings(t *testing.T) {
	p := samplePing()
	buf := EncodeMB1(p, nil)
	require.Len(t, buf, mb1HeaderLen+mb1ChecksumLen)

	view, err := DecodeMB1(buf)
	require.NoError(t, err)
	require.Empty(t, view.Soundings)
}

func TestMB1DecodeBadMagic(t *testing.T) {
	buf := EncodeMB1(samplePing(), nil)
	buf[0] = 'X'
	_, err := DecodeMB1(buf)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestMB1DecodeShort(t *testing.T) {
	_, err := DecodeMB1(make([]byte, 10))
	require.ErrorIs(t, err, ErrShort)
}

func TestMB1DecodeBadChecksum(t *testing.T) {
	buf := EncodeMB1(samplePing(), []int{0})
	buf[len(buf)-1] ^= 0xFF
	_, err := DecodeMB1(buf)
	require.ErrorIs(t, err, ErrBadChecksum)
}
