package archive

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileBackendAppendWritesFramedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tee.bin")
	b, err := OpenFileBackend(path)
	require.NoError(t, err)

	require.NoError(t, b.Append(Record{Kind: MB1Record, PingNumber: 7, ArrivedAt: 123, Payload: []byte("hello")}))
	require.NoError(t, b.Append(Record{Kind: TRNURecord, PingNumber: 8, ArrivedAt: 456, Payload: []byte("world!")}))
	require.NoError(t, b.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Equal(t, uint32(MB1Record), binary.LittleEndian.Uint32(raw[0:4]))
	require.Equal(t, uint64(123), binary.LittleEndian.Uint64(raw[4:12]))
	require.Equal(t, uint32(5), binary.LittleEndian.Uint32(raw[12:16]))
	require.Equal(t, "hello", string(raw[16:21]))

	second := raw[21:]
	require.Equal(t, uint32(TRNURecord), binary.LittleEndian.Uint32(second[0:4]))
	require.Equal(t, uint32(6), binary.LittleEndian.Uint32(second[12:16]))
	require.Equal(t, "world!", string(second[16:22]))
}
