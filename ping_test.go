package mbtrn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPingSeedsFilterFlagsFromRawFlags(t *testing.T) {
	soundings := []Sounding{
		{Bath: 10, Flag: OK},
		{Bath: 0, Flag: Null},
		{Bath: 12, Flag: FlaggedSonar},
	}
	p := NewPing(7, time.Unix(1000, 0), Pose{}, Gains{TransmitGain: 250}, soundings)

	require.Equal(t, uint32(7), p.Number)
	require.Equal(t, 3, p.Beams)
	require.Equal(t, []Flag{OK, Null, FlaggedSonar}, []Flag{p.FilterFlags[0], p.FilterFlags[1], p.FilterFlags[2]})
}

func TestNewPingTruncatesBeyondMaxBeams(t *testing.T) {
	soundings := make([]Sounding, MaxBeams+10)
	for i := range soundings {
		soundings[i] = Sounding{Flag: OK}
	}
	p := NewPing(1, time.Now(), Pose{}, Gains{}, soundings)
	require.Equal(t, MaxBeams, p.Beams)
}

func TestApplyGainThresholdDowngradesOnlyOKSoundings(t *testing.T) {
	soundings := []Sounding{
		{Flag: OK},
		{Flag: Null},
		{Flag: OK},
	}
	p := NewPing(1, time.Now(), Pose{}, Gains{TransmitGain: 50}, soundings)
	p.ApplyGainThreshold(200)

	require.Equal(t, FlaggedSonar, p.Soundings[0].Flag)
	require.Equal(t, Null, p.Soundings[1].Flag)
	require.Equal(t, FlaggedSonar, p.Soundings[2].Flag)
	require.Equal(t, FlaggedSonar, p.FilterFlags[0])
	require.Equal(t, FlaggedSonar, p.FilterFlags[2])
}

func TestApplyGainThresholdNoopAboveThreshold(t *testing.T) {
	soundings := []Sounding{{Flag: OK}}
	p := NewPing(1, time.Now(), Pose{}, Gains{TransmitGain: 250}, soundings)
	p.ApplyGainThreshold(200)
	require.Equal(t, OK, p.Soundings[0].Flag)
}

func TestSelectedReturnsOnlyOKIndices(t *testing.T) {
	soundings := []Sounding{
		{Flag: OK},
		{Flag: FlaggedSonar},
		{Flag: OK},
		{Flag: Null},
	}
	p := NewPing(1, time.Now(), Pose{}, Gains{TransmitGain: 250}, soundings)
	require.Equal(t, []int{0, 2}, p.Selected())
}
