package decode

import (
	"time"

	"github.com/sixy6e/mbtrnpp"
)

// NormalizedRecord is what an adapter hands the Ping Extractor: vendor
// framing already stripped and fields already byte-order-decoded, but
// none of the extractor's own rules (gain threshold, flag mirroring)
// applied yet.
type NormalizedRecord struct {
	Number        uint32
	TimeSec       int64
	TimeNanosec   int64
	Pose          mbtrn.Pose
	Gains         mbtrn.Gains
	Soundings     []mbtrn.Sounding
	SourceAdapter string
}

// Timestamp returns the record's sensor time as a time.UTC value.
func (n NormalizedRecord) Timestamp() time.Time {
	return time.Unix(n.TimeSec, n.TimeNanosec).UTC()
}

// Extractor applies spec.md §4.2's three ordered rules, converting a
// NormalizedRecord into a mbtrn.Ping. GainThreshold is sonar-specific:
// Adapter A's default is 200.0, Adapter B's is -20.0 (spec.md §4.2);
// callers configure one Extractor per adapter.
type Extractor struct {
	GainThreshold float64
}

// NewExtractor builds an Extractor for the given adapter-specific gain
// threshold.
func NewExtractor(gainThreshold float64) *Extractor {
	return &Extractor{GainThreshold: gainThreshold}
}

// Normalizer converts one classified Record's raw payload bytes into a
// NormalizedRecord. Vendor datagram internals (the 7K center-data and
// Kongsberg #MRZ/#MWC payload layouts) are sensor-specific and outside
// this design's scope (spec.md §1 "the generic sonar-agnostic I/O
// frontend"); a Normalizer is supplied by the integration wiring the
// Pipeline Controller to a concrete sonar family.
type Normalizer func(Record) (NormalizedRecord, error)

// Extract builds a Ping from a normalized record. Rule 1 (gain
// downgrade) and rule 2 (flag mirror) are both satisfied by
// mbtrn.NewPing + ApplyGainThreshold; rule 3 (pose/altitude defaulting)
// is satisfied by NormalizedRecord's zero-valued Pose fields, since a
// missing optional field decodes to its Go zero value.
func (e *Extractor) Extract(rec NormalizedRecord) *mbtrn.Ping {
	p := mbtrn.NewPing(rec.Number, rec.Timestamp(), rec.Pose, rec.Gains, rec.Soundings)
	p.ApplyGainThreshold(e.GainThreshold)
	return p
}
