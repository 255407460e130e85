package trn

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sixy6e/mbtrnpp/encode"
)

type fakeEstimator struct {
	reinitCalls  int
	motionCalls  int
	measureCalls int
	converged    bool
	mseCov       [4]float64
	mseN, mseE   float64
	pointN, pointE float64
	failReinit   bool
}

func (f *fakeEstimator) ReinitFilter(clearHistory bool) error {
	f.reinitCalls++
	if f.failReinit {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeEstimator) BuildMeasurement(mb1 encode.MB1View, utmZone int) (Measurement, error) {
	return Measurement{Time: mb1.Timestamp, Northing: 10, Easting: 20, Depth: mb1.TransducerDepth}, nil
}

func (f *fakeEstimator) BuildPose(mb1 encode.MB1View, utmZone int) (Pose, error) {
	return Pose{Time: mb1.Timestamp - 1, Northing: 10, Easting: 20, Depth: mb1.TransducerDepth}, nil
}

func (f *fakeEstimator) MotionUpdate(pose Pose) error {
	f.motionCalls++
	return nil
}

func (f *fakeEstimator) MeasurementUpdate(m Measurement) error {
	f.measureCalls++
	return nil
}

func (f *fakeEstimator) IsConverged() bool { return f.converged }

func (f *fakeEstimator) Estimate(kind EstimateKind) (encode.Estimate, error) {
	switch kind {
	case Point:
		return encode.Estimate{Northing: f.pointN, Easting: f.pointE}, nil
	case MLE:
		return encode.Estimate{Northing: f.pointN, Easting: f.pointE}, nil
	default:
		return encode.Estimate{Northing: f.mseN, Easting: f.mseE, Covariance: f.mseCov}, nil
	}
}

func TestOrchestratorReinitsOnceThenUpdates(t *testing.T) {
	est := &fakeEstimator{converged: true}
	o := NewOrchestrator(est, Params{GainThreshold: 200, MaxNorthCov: 5, MaxEastCov: 5, MaxNorthErr: 5, MaxEastErr: 5})

	mb1 := encode.MB1View{Timestamp: 100}
	u, err := o.Process(mb1, 250, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, 1, est.reinitCalls, "must reinit exactly once on the first good-gain cycle")
	require.Equal(t, 1, est.motionCalls)
	require.Equal(t, 1, est.measureCalls)

	u, err = o.Process(mb1, 250, 2, 2)
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, 1, est.reinitCalls, "must not reinit again while gain stays good")
}

func TestOrchestratorSkipsOnLowGain(t *testing.T) {
	est := &fakeEstimator{}
	o := NewOrchestrator(est, Params{GainThreshold: 200})

	u, err := o.Process(encode.MB1View{Timestamp: 100}, 50, 1, 1)
	require.NoError(t, err)
	require.Nil(t, u)
	require.Equal(t, 0, est.reinitCalls)
	require.Equal(t, 0, est.motionCalls)
	require.True(t, o.reinitRequired, "latch must be set so gain recovery triggers a reinit")
}

func TestOrchestratorValidityPredicate(t *testing.T) {
	est := &fakeEstimator{mseCov: [4]float64{1, 1, 0, 0}, pointN: 10, pointE: 10, mseN: 10.1, mseE: 10.1}
	o := NewOrchestrator(est, Params{GainThreshold: 200, MaxNorthCov: 5, MaxEastCov: 5, MaxNorthErr: 1, MaxEastErr: 1})

	u, err := o.Process(encode.MB1View{Timestamp: 100}, 250, 1, 1)
	require.NoError(t, err)
	require.True(t, u.Valid)

	est2 := &fakeEstimator{mseCov: [4]float64{10, 10, 0, 0}}
	o2 := NewOrchestrator(est2, Params{GainThreshold: 200, MaxNorthCov: 5, MaxEastCov: 5, MaxNorthErr: 5, MaxEastErr: 5})
	u2, err := o2.Process(encode.MB1View{Timestamp: 100}, 250, 1, 1)
	require.NoError(t, err)
	require.False(t, u2.Valid, "covariance above threshold must invalidate the update")
}

func TestOrchestratorReinitFailureReturnsError(t *testing.T) {
	est := &fakeEstimator{failReinit: true}
	o := NewOrchestrator(est, Params{GainThreshold: 200})

	_, err := o.Process(encode.MB1View{Timestamp: 100}, 250, 1, 1)
	require.Error(t, err)
}

func TestGateDecn(t *testing.T) {
	o := NewOrchestrator(&fakeEstimator{}, Params{Decn: 3})
	require.False(t, o.Gate())
	require.False(t, o.Gate())
	require.True(t, o.Gate(), "third candidate cycle must fire")
	require.False(t, o.Gate())
}

func TestGateDecs(t *testing.T) {
	o := NewOrchestrator(&fakeEstimator{}, Params{Decs: 1})
	tick := time.Unix(1000, 0)
	o.now = func() time.Time { return tick }

	require.True(t, o.Gate(), "first call always fires")
	require.False(t, o.Gate(), "same instant must not fire again")

	tick = tick.Add(2 * time.Second)
	require.True(t, o.Gate(), "elapsed time past decs must fire")
}
