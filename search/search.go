// Package search discovers input files for the Frame Reader's file
// source: either a single named file or a datalist (a list file of
// "path format weight" lines, spec.md §6.3). Trawl separately offers a
// recursive search for file names matching a pattern under a URI;
// ResolveInput does not trawl directories.
package search

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// Entry is one resolved input file, its declared format code and
// weight, as read from a datalist line or defaulted for a bare file.
type Entry struct {
	Path   string
	Format string
	Weight float64
}

// trawl recursively walks uri via a TileDB VFS handle (so a file source
// can point at an object store as readily as a local filesystem) and
// collects every entry whose basename matches pattern.
func trawl(vfs *tiledb.VFS, pattern, uri string, items []string) ([]string, error) {
	dirs, files, err := vfs.List(uri)
	if err != nil {
		return items, fmt.Errorf("list %s: %w", uri, err)
	}

	for _, file := range files {
		match, err := filepath.Match(pattern, filepath.Base(file))
		if err != nil {
			return items, err
		}
		if match {
			items = append(items, file)
		}
	}

	for _, dir := range dirs {
		items, err = trawl(vfs, pattern, dir, items)
		if err != nil {
			return items, err
		}
	}

	return items, nil
}

// Trawl recursively searches for files matching pattern under uri,
// using configURI for object-store credentials/settings (empty selects
// a generic local config).
func Trawl(uri, pattern, configURI string) ([]string, error) {
	var (
		config *tiledb.Config
		err    error
	)

	if configURI == "" {
		config, err = tiledb.NewConfig()
	} else {
		config, err = tiledb.LoadConfig(configURI)
	}
	if err != nil {
		return nil, err
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return nil, err
	}
	defer ctx.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return nil, err
	}
	defer vfs.Free()

	return trawl(vfs, pattern, uri, nil)
}

// ResolveInput expands a spec.md §6.3 file-source input argument into
// an ordered list of Entry values:
//   - a path ending in a recognized datalist extension (.mb-1, .dlist,
//     .datalist, case-insensitive)
//     is parsed as "path format [weight]" per line, '#'-prefixed lines
//     and blanks skipped, relative paths resolved against the list
//     file's directory (mirroring the source's datalist convention);
//   - any other path is treated as a single direct input with the given
//     format and a weight of 1.
func ResolveInput(path, format string) ([]Entry, error) {
	if isDatalist(path) {
		return parseDatalist(path)
	}
	return []Entry{{Path: path, Format: format, Weight: 1}}, nil
}

func isDatalist(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mb-1", ".dlist", ".datalist":
		return true
	default:
		return false
	}
}

func parseDatalist(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dir := filepath.Dir(path)
	var entries []Entry

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: expected \"path format [weight]\"", path, lineNum)
		}

		entryPath := fields[0]
		if !filepath.IsAbs(entryPath) {
			entryPath = filepath.Join(dir, entryPath)
		}

		weight := 1.0
		if len(fields) >= 3 {
			weight, err = strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad weight %q: %w", path, lineNum, fields[2], err)
			}
		}

		entries = append(entries, Entry{Path: entryPath, Format: fields[1], Weight: weight})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
