package mbtrn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolverSessionTokens(t *testing.T) {
	start := time.Date(2026, time.March, 5, 13, 4, 5, 0, time.UTC)
	r := NewResolver(start, nil)

	require.Equal(t, "2026064-130405", r.Resolve("SESSION"))
	require.Equal(t, "trn-2026064-130405", r.Resolve("TRN_SESSION"))
}

func TestResolverEnvFallback(t *testing.T) {
	r := NewResolver(time.Now(), map[string]string{"RESON_HOST": "10.0.0.5"})
	require.Equal(t, "10.0.0.5", r.Resolve("RESON_HOST"))

	r2 := NewResolver(time.Now(), map[string]string{})
	require.Equal(t, "localhost", r2.Resolve("MBTRN_HOST"))
}

func TestResolverLeavesUnresolvedTokensAlone(t *testing.T) {
	r := NewResolver(time.Now(), map[string]string{})
	require.Equal(t, "TRN_LOGFILES", r.Resolve("TRN_LOGFILES"))
}

func TestResolverSubstitutesWithinLargerString(t *testing.T) {
	r := NewResolver(time.Now(), map[string]string{"RESON_HOST": "sonar1"})
	require.Equal(t, "tcp://sonar1:7000", r.Resolve("tcp://RESON_HOST:7000"))
}

func TestResolverNilIsNoop(t *testing.T) {
	var r *Resolver
	require.Equal(t, "RESON_HOST", r.Resolve("RESON_HOST"))
}
