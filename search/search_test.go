package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveInputSingleFile(t *testing.T) {
	entries, err := ResolveInput("/data/line001.s7k", "0")
	require.NoError(t, err)
	require.Equal(t, []Entry{{Path: "/data/line001.s7k", Format: "0", Weight: 1}}, entries)
}

func TestResolveInputDatalist(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "lines.mb-1")
	require.NoError(t, os.WriteFile(listPath, []byte(""+
		"# comment\n"+
		"\n"+
		"line001.s7k 0\n"+
		"line002.s7k 0 0.5\n"+
		"/abs/line003.s7k 1\n",
	), 0o644))

	entries, err := ResolveInput(listPath, "")
	require.NoError(t, err)
	require.Equal(t, []Entry{
		{Path: filepath.Join(dir, "line001.s7k"), Format: "0", Weight: 1},
		{Path: filepath.Join(dir, "line002.s7k"), Format: "0", Weight: 0.5},
		{Path: "/abs/line003.s7k", Format: "1", Weight: 1},
	}, entries)
}

func TestParseDatalistRejectsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "bad.dlist")
	require.NoError(t, os.WriteFile(listPath, []byte("onlyonefield\n"), 0o644))

	_, err := parseDatalist(listPath)
	require.Error(t, err)
}

func TestIsDatalistExtensions(t *testing.T) {
	require.True(t, isDatalist("x.mb-1"))
	require.True(t, isDatalist("x.DLIST"))
	require.True(t, isDatalist("x.datalist"))
	require.False(t, isDatalist("x.s7k"))
}
