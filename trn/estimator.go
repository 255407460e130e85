// Package trn implements the TRN Orchestrator (spec.md §4.7): gating,
// reinit-on-gain latching, and the update sequence that drives the
// opaque terrain-relative-navigation estimator and composes its output
// into a TRN Update.
package trn

import (
	"time"

	"github.com/sixy6e/mbtrnpp/encode"
)

// Pose is the orchestrator's UTM-projected navigation state, built from
// an MB1 record for the estimator's motion update.
type Pose struct {
	Time     float64
	Northing float64
	Easting  float64
	Depth    float64
	Heading  float64
}

// Measurement is the orchestrator's UTM-projected sounding measurement,
// built from an MB1 record for the estimator's measurement update.
type Measurement struct {
	Time     float64
	Northing float64
	Easting  float64
	Depth    float64
}

// Estimator is the capability set the opaque TRN particle/point-mass
// filter exposes (spec.md §1 Out-of-scope, §9's "cohesive capability
// interface" redesign). The Orchestrator never inspects an estimator's
// internals; every interaction goes through this seam, so any
// conforming TRN library implementation plugs in unchanged.
type Estimator interface {
	// ReinitFilter clears the estimator's internal history when
	// clearHistory is set, re-arming it after a gain dropout.
	ReinitFilter(clearHistory bool) error

	// BuildMeasurement and BuildPose convert an MB1 view into the
	// estimator's own UTM-projected representations; UTM projection
	// itself is the estimator's responsibility (spec.md §1 non-goal).
	BuildMeasurement(mb1 encode.MB1View, utmZone int) (Measurement, error)
	BuildPose(mb1 encode.MB1View, utmZone int) (Pose, error)

	// MotionUpdate and MeasurementUpdate advance the filter; their
	// relative ordering for a given cycle is decided by the
	// Orchestrator from the two timestamps (spec.md §4.7 step 2).
	MotionUpdate(pose Pose) error
	MeasurementUpdate(measurement Measurement) error

	// IsConverged reports the filter's own convergence judgment.
	IsConverged() bool

	// Estimate returns one of the filter's state estimates: its
	// current point estimate, or one of the two requested bias
	// estimates (maximum-likelihood, minimum-mean-squared-error).
	Estimate(kind EstimateKind) (encode.Estimate, error)
}

// EstimateKind selects which state estimate Estimate returns.
type EstimateKind int

const (
	Point EstimateKind = iota
	MLE
	MSE
)

// clock abstracts time.Now so tests can supply a deterministic
// sequence of ticks for the decs gate.
type clock func() time.Time
