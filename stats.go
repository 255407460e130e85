package mbtrn

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds the periodic counters spec.md §7 requires ("every
// recoverable error category also increments a named counter visible in
// periodic statistics output"), plus the ping/sounding throughput
// counters the Pipeline Controller updates as it processes pings. No
// cycle-timing values are kept.
//
// Counters are plain atomics rather than prometheus.Counter so Snapshot
// can be read cheaply from the controller thread without touching the
// registry; Register wires a subset of them (not the per-category
// sounding counters or InputEOF) into a prometheus.Registry for
// external scraping.
type Stats struct {
	PingsRead        atomic.Uint64
	SoundingsRead    atomic.Uint64
	SoundingsValid   atomic.Uint64
	SoundingsNull    atomic.Uint64
	SoundingsFlagged atomic.Uint64
	SoundingsTrimmed atomic.Uint64
	SoundingsDecim   atomic.Uint64
	SoundingsMedian  atomic.Uint64
	MB1Emitted       atomic.Uint64
	TRNUpdates       atomic.Uint64

	InputDisconnects atomic.Uint64
	InputMalformed   atomic.Uint64
	InputEOF         atomic.Uint64
	EstimatorFails   atomic.Uint64
	PublishSendFails atomic.Uint64
	LogWriteFails    atomic.Uint64
}

// Count increments the named counter for a recoverable error Kind.
func (s *Stats) Count(kind Kind) {
	switch kind {
	case InputDisconnected:
		s.InputDisconnects.Add(1)
	case InputMalformed:
		s.InputMalformed.Add(1)
	case InputEOF:
		s.InputEOF.Add(1)
	case EstimatorFail:
		s.EstimatorFails.Add(1)
	case PublishSendFail:
		s.PublishSendFails.Add(1)
	case LogWriteFail:
		s.LogWriteFails.Add(1)
	}
}

// Snapshot is a point-in-time copy of Stats suitable for logging or JSON
// encoding (the `statsec`/`statflags` periodic output, spec.md §6.4).
type Snapshot struct {
	PingsRead        uint64 `json:"pings_read"`
	SoundingsRead    uint64 `json:"soundings_read"`
	SoundingsValid   uint64 `json:"soundings_valid"`
	SoundingsNull    uint64 `json:"soundings_null"`
	SoundingsFlagged uint64 `json:"soundings_flagged"`
	SoundingsTrimmed uint64 `json:"soundings_trimmed"`
	SoundingsDecim   uint64 `json:"soundings_decimated"`
	SoundingsMedian  uint64 `json:"soundings_median_rejected"`
	MB1Emitted       uint64 `json:"mb1_emitted"`
	TRNUpdates       uint64 `json:"trn_updates"`
	InputDisconnects uint64 `json:"input_disconnects"`
	InputMalformed   uint64 `json:"input_malformed"`
	InputEOF         uint64 `json:"input_eof"`
	EstimatorFails   uint64 `json:"estimator_fails"`
	PublishSendFails uint64 `json:"publish_send_fails"`
	LogWriteFails    uint64 `json:"log_write_fails"`
}

// Take returns a Snapshot of the current counter values.
func (s *Stats) Take() Snapshot {
	return Snapshot{
		PingsRead:        s.PingsRead.Load(),
		SoundingsRead:    s.SoundingsRead.Load(),
		SoundingsValid:   s.SoundingsValid.Load(),
		SoundingsNull:    s.SoundingsNull.Load(),
		SoundingsFlagged: s.SoundingsFlagged.Load(),
		SoundingsTrimmed: s.SoundingsTrimmed.Load(),
		SoundingsDecim:   s.SoundingsDecim.Load(),
		SoundingsMedian:  s.SoundingsMedian.Load(),
		MB1Emitted:       s.MB1Emitted.Load(),
		TRNUpdates:       s.TRNUpdates.Load(),
		InputDisconnects: s.InputDisconnects.Load(),
		InputMalformed:   s.InputMalformed.Load(),
		InputEOF:         s.InputEOF.Load(),
		EstimatorFails:   s.EstimatorFails.Load(),
		PublishSendFails: s.PublishSendFails.Load(),
		LogWriteFails:    s.LogWriteFails.Load(),
	}
}

// Register exposes Stats through a prometheus.Registerer using
// function-backed gauges, so a scrape always reflects the live atomics
// rather than a stale copy.
func (s *Stats) Register(reg prometheus.Registerer) error {
	gauges := map[string]func() float64{
		"mbtrn_pings_read_total":            func() float64 { return float64(s.PingsRead.Load()) },
		"mbtrn_soundings_read_total":        func() float64 { return float64(s.SoundingsRead.Load()) },
		"mbtrn_soundings_valid_total":       func() float64 { return float64(s.SoundingsValid.Load()) },
		"mbtrn_mb1_emitted_total":           func() float64 { return float64(s.MB1Emitted.Load()) },
		"mbtrn_trn_updates_total":           func() float64 { return float64(s.TRNUpdates.Load()) },
		"mbtrn_input_disconnects_total":     func() float64 { return float64(s.InputDisconnects.Load()) },
		"mbtrn_input_malformed_total":       func() float64 { return float64(s.InputMalformed.Load()) },
		"mbtrn_estimator_fails_total":       func() float64 { return float64(s.EstimatorFails.Load()) },
		"mbtrn_publish_send_fails_total":    func() float64 { return float64(s.PublishSendFails.Load()) },
		"mbtrn_log_write_fails_total":       func() float64 { return float64(s.LogWriteFails.Load()) },
	}
	for name, fn := range gauges {
		g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: name}, fn)
		if err := reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}
