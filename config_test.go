package mbtrn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadPrecedence(t *testing.T) {
	fromFile := map[string]string{"swath-width": "1.0", "soundings": "50"}
	fromCLI := map[string]string{"swath-width": "2.0"}

	cfg, err := Load(fromFile, fromCLI, nil)
	require.NoError(t, err)
	require.Equal(t, 2.0, cfg.SwathWidth, "command line must win over config file")
	require.Equal(t, 50, cfg.Soundings, "config file must win over compiled default")
}

func TestLoadRejectsUnknownOption(t *testing.T) {
	_, err := Load(map[string]string{"not-a-real-option": "1"}, nil, nil)
	require.Error(t, err)
}

func TestParseMedianFilter(t *testing.T) {
	p, err := ParseMedianFilter("0.1/3/3")
	require.NoError(t, err)
	require.Equal(t, MedianFilterParams{Threshold: 0.1, NAcross: 3, NAlong: 3}, p)

	_, err = ParseMedianFilter("bogus")
	require.Error(t, err)
}

func TestParseOutputSelector(t *testing.T) {
	targets, err := ParseOutputSelector("mb1,trnu:localhost:8000")
	require.NoError(t, err)
	require.Len(t, targets, 2)
	require.Equal(t, "mb1", targets[0].Name)
	require.True(t, targets[0].Enabled)
	require.Equal(t, "trnu", targets[1].Name)
	require.Equal(t, "localhost", targets[1].Host)
	require.Equal(t, 8000, targets[1].Port)
}

func TestResolverSubstitutesMnemonics(t *testing.T) {
	r := NewResolver(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC), map[string]string{"RESON_HOST": "10.0.0.5"})
	require.Equal(t, "10.0.0.5", r.Resolve("RESON_HOST"))
	require.Contains(t, r.Resolve("SESSION"), "2026")
}
