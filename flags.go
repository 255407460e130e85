package mbtrn

// Flag describes the per-sounding status carried alongside a Ping's beam
// data. A sounding whose Flag is not OK may not contribute to any
// downstream product (MB1 output, median population, TRN measurement).
type Flag uint8

const (
	// OK marks a sounding as usable.
	OK Flag = iota
	// Null marks a sounding that never carried valid data.
	Null
	// FlaggedSonar marks a sounding downgraded by the Ping Extractor
	// because the ping's transmit gain fell below threshold.
	FlaggedSonar
	// FlaggedFilter marks a sounding downgraded by the Sounding Filter
	// (swath trim, decimation or median rejection).
	FlaggedFilter
)

// String renders the flag the way stats/log output wants it.
func (f Flag) String() string {
	switch f {
	case OK:
		return "OK"
	case Null:
		return "NULL"
	case FlaggedSonar:
		return "FLAGGED-SONAR"
	case FlaggedFilter:
		return "FLAGGED-FILTER"
	default:
		return "UNKNOWN"
	}
}

// BeamOK reports whether a flag allows the sounding to contribute
// downstream.
func BeamOK(f Flag) bool {
	return f == OK
}
