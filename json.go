package mbtrn

import (
	"encoding/json"
	"os"
)

// WriteJSON serialises data as indented JSON to a local path, mirroring
// the teacher's json.go WriteJson helper (there backed by a TileDB VFS
// handle so it could target an object store; here a plain file, since
// stats/debug output is always local — the object-store-capable variant
// lives in archive/ for the tee-logged MB1/TRNU records).
func WriteJSON(path string, data any) (int, error) {
	jsn, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, NewError(LogWriteFail, "json", err)
	}
	defer f.Close()

	n, err := f.Write(jsn)
	if err != nil {
		return n, NewError(LogWriteFail, "json", err)
	}
	return n, nil
}

// JSONDumps constructs a compact JSON string of data.
func JSONDumps(data any) (string, error) {
	jsn, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(jsn), nil
}
