package mbtrn

import "time"

// MaxBeams bounds the number of soundings a Ping may carry. The source
// (mbtrnpp.c) uses a 256-beam array; this design requires headroom for
// wider swaths.
const MaxBeams = 512

// Sounding is one beam's range/offset triple plus its status flag.
// AlongTrack and AcrossTrack are metres relative to the transducer; Bath
// is the raw bathymetric range (not yet corrected for transducer depth).
type Sounding struct {
	Bath        float64
	AlongTrack  float64
	AcrossTrack float64
	Flag        Flag
}

// Gains carries the transmit/receive gain triple read for a ping, used
// by the Ping Extractor's gain-threshold rule and the TRN Orchestrator's
// reinit gate.
type Gains struct {
	TransmitGain float64
	PulseLength  float64
	ReceiveGain  float64
}

// Pose carries the navigation/attitude fields attached to a ping.
type Pose struct {
	Latitude  float64 // radians, WGS-84
	Longitude float64 // radians, WGS-84
	Heading   float64 // radians, east-of-north
	Depth     float64 // transducer depth, metres
	Speed     float64
	Roll      float64
	Pitch     float64
	Heave     float64
}

// Ping is one sonar sounding cycle: identity, pose, gains and the
// parallel sounding arrays. Soundings and FilterFlags are parallel,
// fixed-length (len == Beams) slices; FilterFlags starts as a clone of
// each Sounding's raw Flag and is mutated independently by the Sounding
// Filter so sensor-provided flags are never overwritten in place
// (spec.md §4.2 rule 2).
type Ping struct {
	Number    uint32
	Timestamp time.Time
	Pose      Pose
	Gains     Gains
	Beams     int
	Soundings [MaxBeams]Sounding
	// FilterFlags mirrors Soundings[i].Flag at extraction time and is the
	// only array the Sounding Filter downgrades.
	FilterFlags [MaxBeams]Flag
}

// NewPing constructs a Ping with its filter-flag mirror seeded from the
// raw per-sounding flags. Soundings beyond n are left zero-valued.
func NewPing(number uint32, ts time.Time, pose Pose, gains Gains, soundings []Sounding) *Ping {
	p := &Ping{
		Number:    number,
		Timestamp: ts,
		Pose:      pose,
		Gains:     gains,
		Beams:     len(soundings),
	}
	if p.Beams > MaxBeams {
		p.Beams = MaxBeams
	}
	for i := 0; i < p.Beams; i++ {
		p.Soundings[i] = soundings[i]
		p.FilterFlags[i] = soundings[i].Flag
	}
	return p
}

// ApplyGainThreshold implements spec.md §4.2 rule 1: when the ping's
// transmit gain is below threshold, every OK sounding (by raw flag) is
// downgraded to FlaggedSonar in both the raw and mirrored flag arrays.
func (p *Ping) ApplyGainThreshold(threshold float64) {
	if p.Gains.TransmitGain >= threshold {
		return
	}
	for i := 0; i < p.Beams; i++ {
		if p.Soundings[i].Flag == OK {
			p.Soundings[i].Flag = FlaggedSonar
		}
		p.FilterFlags[i] = p.Soundings[i].Flag
	}
}

// Selected returns the indices, in beam order, whose FilterFlags are OK.
func (p *Ping) Selected() []int {
	out := make([]int, 0, p.Beams)
	for i := 0; i < p.Beams; i++ {
		if p.FilterFlags[i] == OK {
			out = append(out, i)
		}
	}
	return out
}
