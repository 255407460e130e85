package mbtrn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestPing(n uint32) *Ping {
	return NewPing(n, time.Unix(int64(n), 0), Pose{}, Gains{}, []Sounding{{Bath: 10, Flag: OK}})
}

func TestPingRingReadiness(t *testing.T) {
	r := NewPingRing(3)

	_, ready := r.Push(newTestPing(1))
	require.False(t, ready, "first of D-1 warm-up pushes must not be ready")

	_, ready = r.Push(newTestPing(2))
	require.False(t, ready)

	center, ready := r.Push(newTestPing(3))
	require.True(t, ready, "the D-th push must produce exactly one process slot")
	require.Equal(t, uint32(2), center.Number, "center of [1,2,3] is ping 2")

	center, ready = r.Push(newTestPing(4))
	require.True(t, ready, "every subsequent push must also be ready")
	require.Equal(t, uint32(3), center.Number, "center of [2,3,4] is ping 3")
}

func TestPingRingDepthOne(t *testing.T) {
	r := NewPingRing(1)
	center, ready := r.Push(newTestPing(1))
	require.True(t, ready, "D=1 has zero warm-up pushes")
	require.Equal(t, uint32(1), center.Number)
}

func TestPingRingDisabledClampsToOne(t *testing.T) {
	r := NewPingRing(0)
	require.Equal(t, 1, r.Depth())
}
