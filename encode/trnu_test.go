package encode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleUpdate() TRNUpdate {
	est := Estimate{Time: 1.5, Northing: 100, Easting: 200, Depth: 30, Covariance: [4]float64{1, 2, 3, 4}}
	return TRNUpdate{
		Point: est, MLE: est, MSE: est,
		ReinitCount: 3, LastReinit: 99.25, FilterState: 2,
		Success: true, Converged: true, Valid: true,
		MB1Cycle: 7, PingNumber: 42,
		MB1Timestamp: 1700000000.5, UpdateTime: 1700000000.6,
	}
}

func TestTRNURoundTrip(t *testing.T) {
	u := sampleUpdate()
	buf := EncodeTRNU(u)
	require.Len(t, buf, trnuRecordLen)

	got, err := DecodeTRNU(buf)
	require.NoError(t, err)
	require.Equal(t, u, got)
}

func TestTRNUDecodeBadSync(t *testing.T) {
	buf := EncodeTRNU(sampleUpdate())
	buf[0] = 'X'
	_, err := DecodeTRNU(buf)
	require.Error(t, err)
}

func TestTRNUDecodeShort(t *testing.T) {
	_, err := DecodeTRNU(make([]byte, 4))
	require.Error(t, err)
}
