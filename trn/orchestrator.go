package trn

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/sixy6e/mbtrnpp"
	"github.com/sixy6e/mbtrnpp/encode"
)

// Params are the TRN Orchestrator's per-instance configuration values,
// drawn from mbtrn.Config's trn-* options (spec.md §4.7, §6.4).
type Params struct {
	UTMZone       int
	IgnoreGain    bool
	GainThreshold float64
	Decn          uint
	Decs          float64
	MaxNorthCov   float64
	MaxEastCov    float64
	MaxNorthErr   float64
	MaxEastErr    float64
}

// Orchestrator guards every call into the opaque Estimator, applying
// spec.md §4.7's gating and reinit-on-gain rules before sequencing the
// estimator update and composing a TRN Update.
type Orchestrator struct {
	Estimator Estimator
	Params    Params

	reinitRequired bool
	decnCounter    uint
	lastFire       time.Time
	haveLastFire   bool

	now clock
}

// NewOrchestrator constructs an Orchestrator. reinit_required starts
// TRUE per spec.md §4.7.
func NewOrchestrator(estimator Estimator, params Params) *Orchestrator {
	return &Orchestrator{
		Estimator:      estimator,
		Params:         params,
		reinitRequired: true,
		now:            time.Now,
	}
}

// Gate implements spec.md §4.7's per-cycle gating decision: decn takes
// priority over decs, and an unset pair processes unconditionally. A
// fire resets the decn counter or records the decs fire time so the
// next gate call measures from this instant, not a resampled clock
// read (Open Question #3, DESIGN.md).
func (o *Orchestrator) Gate() bool {
	now := o.now()

	if o.Params.Decn > 0 {
		o.decnCounter++
		if o.decnCounter < o.Params.Decn {
			return false
		}
		o.decnCounter = 0
		return true
	}

	if o.Params.Decs > 0 {
		if o.haveLastFire && now.Sub(o.lastFire).Seconds() < o.Params.Decs {
			return false
		}
		o.lastFire = now
		o.haveLastFire = true
		return true
	}

	return true
}

// Process runs one TRN cycle for an encoded MB1 record: gating, the
// reinit-on-gain latch, and — if the cycle is not skipped — the
// estimator update sequence and TRN Update composition. A nil update
// with a nil error means the cycle was gated or gain-skipped, not a
// failure.
func (o *Orchestrator) Process(mb1 encode.MB1View, transmitGain float64, cycle, pingNumber uint32) (*encode.TRNUpdate, error) {
	if !o.Gate() {
		return nil, nil
	}

	gainOK := o.Params.IgnoreGain || transmitGain >= o.Params.GainThreshold
	if gainOK {
		if o.reinitRequired {
			if err := o.Estimator.ReinitFilter(true); err != nil {
				return nil, mbtrn.NewError(mbtrn.EstimatorFail, "reinit", err)
			}
			o.reinitRequired = false
		}
	} else {
		if !o.reinitRequired {
			log.Warn("trn gain below threshold, suspending updates", "gain", transmitGain, "threshold", o.Params.GainThreshold)
		}
		o.reinitRequired = true
		return nil, nil
	}

	return o.update(mb1, cycle, pingNumber)
}

// update performs spec.md §4.7's estimator update sequence: build
// measurement/pose, order the motion/measurement updates by timestamp,
// request both bias estimates, and compose the TRN Update.
func (o *Orchestrator) update(mb1 encode.MB1View, cycle, pingNumber uint32) (*encode.TRNUpdate, error) {
	measurement, err := o.Estimator.BuildMeasurement(mb1, o.Params.UTMZone)
	if err != nil {
		return nil, mbtrn.NewError(mbtrn.EstimatorFail, "measurement build", err)
	}
	pose, err := o.Estimator.BuildPose(mb1, o.Params.UTMZone)
	if err != nil {
		return nil, mbtrn.NewError(mbtrn.EstimatorFail, "pose build", err)
	}

	if pose.Time <= measurement.Time {
		if err := o.Estimator.MotionUpdate(pose); err != nil {
			return nil, mbtrn.NewError(mbtrn.EstimatorFail, "motion", err)
		}
		if err := o.Estimator.MeasurementUpdate(measurement); err != nil {
			return nil, mbtrn.NewError(mbtrn.EstimatorFail, "measurement", err)
		}
	} else {
		if err := o.Estimator.MeasurementUpdate(measurement); err != nil {
			return nil, mbtrn.NewError(mbtrn.EstimatorFail, "measurement", err)
		}
		if err := o.Estimator.MotionUpdate(pose); err != nil {
			return nil, mbtrn.NewError(mbtrn.EstimatorFail, "motion", err)
		}
	}

	point, err := o.Estimator.Estimate(Point)
	if err != nil {
		return nil, mbtrn.NewError(mbtrn.EstimatorFail, "estimate", err)
	}
	mle, err := o.Estimator.Estimate(MLE)
	if err != nil {
		return nil, mbtrn.NewError(mbtrn.EstimatorFail, "estimate", err)
	}
	mse, err := o.Estimator.Estimate(MSE)
	if err != nil {
		return nil, mbtrn.NewError(mbtrn.EstimatorFail, "estimate", err)
	}

	update := &encode.TRNUpdate{
		Point: point, MLE: mle, MSE: mse,
		Success:      true,
		Converged:    o.Estimator.IsConverged(),
		MB1Cycle:     cycle,
		PingNumber:   pingNumber,
		MB1Timestamp: mb1.Timestamp,
		UpdateTime:   float64(o.now().UnixNano()) / 1e9,
	}
	update.Valid = isValid(update, o.Params, measurement.Time)

	return update, nil
}

// isValid implements spec.md §4.7 step 4's validity predicate.
// cov[0]/cov[1] are read as the northing/easting covariance diagonal
// entries — the first two of the MSE estimate's 4-element covariance,
// consistent with encode.Estimate's (nn, ee, ..) convention.
func isValid(u *encode.TRNUpdate, p Params, sourceTS float64) bool {
	ncov := u.MSE.Covariance[0]
	ecov := u.MSE.Covariance[1]
	nerr := abs(u.MSE.Northing - u.Point.Northing)
	eerr := abs(u.MSE.Easting - u.Point.Easting)
	return ncov <= p.MaxNorthCov && ecov <= p.MaxEastCov && nerr <= p.MaxNorthErr && eerr <= p.MaxEastErr && sourceTS > 0
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
