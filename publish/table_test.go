package publish

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTableSubscribeAssignsCredits(t *testing.T) {
	tbl := NewTable(3, time.Second)
	now := time.Now()

	p := tbl.Subscribe("10.0.0.1:4000", PubSub, now)
	require.Equal(t, 3, p.Credits)
	require.Equal(t, Subscribed, p.State)
	require.Equal(t, 1, tbl.Len())
}

func TestTableDecrementEvictsAtZero(t *testing.T) {
	tbl := NewTable(2, time.Second)
	now := time.Now()
	tbl.Subscribe("10.0.0.1:4000", PubSub, now)

	tbl.Decrement("10.0.0.1:4000")
	require.Equal(t, 1, tbl.Len())

	tbl.Decrement("10.0.0.1:4000")
	require.Equal(t, 0, tbl.Len(), "peer must be evicted at zero credits")
}

func TestTableSweepEvictsOnTimeout(t *testing.T) {
	tbl := NewTable(5, 10*time.Millisecond)
	now := time.Now()
	tbl.Subscribe("10.0.0.1:4000", PubSub, now)

	evicted := tbl.Sweep(now.Add(20 * time.Millisecond))
	require.Equal(t, []string{"10.0.0.1:4000"}, evicted)
	require.Equal(t, 0, tbl.Len())
}

func TestTableLiveFiltersByModeAndState(t *testing.T) {
	tbl := NewTable(5, time.Minute)
	now := time.Now()
	tbl.Subscribe("10.0.0.1:4000", PubSub, now)
	tbl.Subscribe("10.0.0.2:4000", ReqRes, now)

	live := tbl.Live(PubSub)
	require.Equal(t, []string{"10.0.0.1:4000"}, live)
}

func TestTableTouchRequiresExistingPeer(t *testing.T) {
	tbl := NewTable(5, time.Minute)
	require.False(t, tbl.Touch("10.0.0.1:4000", time.Now()))
}
