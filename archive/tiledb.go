package archive

import (
	"fmt"
	"sync"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// TileDBBackend tees MB1/TRN-update records into a 1D sparse TileDB
// array, giving the tee log the same object-store reach the teacher's
// GSF-to-TileDB conversion had (tiledb.go's ArrayOpen/filter helpers,
// here repurposed for a small fixed schema instead of a reflected
// struct). The array has one dimension ("seq", a monotonic write
// counter) and four attributes: kind, ping_number, arrived_at and a
// variable-length, zstd-compressed payload blob.
type TileDBBackend struct {
	ctx   *tiledb.Context
	array *tiledb.Array

	mu  sync.Mutex
	seq uint64
}

// CreateTileDBArray builds the archive array schema at uri; it returns
// an error when an array already exists there. zstdLevel controls the payload attribute's
// compression level (the teacher's CreateAttr honors the same
// `filters:"zstd(level=N)"` convention; this schema is fixed rather
// than tag-derived since it only ever stores one record shape).
func CreateTileDBArray(ctx *tiledb.Context, uri string, zstdLevel int32) error {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return fmt.Errorf("archive: new domain: %w", err)
	}
	defer domain.Free()

	dim, err := tiledb.NewDimension(ctx, "seq", tiledb.TILEDB_UINT64, []uint64{0, ^uint64(0) - 1}, uint64(4096))
	if err != nil {
		return fmt.Errorf("archive: new dimension: %w", err)
	}
	defer dim.Free()

	if err := domain.AddDimensions(dim); err != nil {
		return fmt.Errorf("archive: add dimension: %w", err)
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_SPARSE)
	if err != nil {
		return fmt.Errorf("archive: new schema: %w", err)
	}
	defer schema.Free()

	if err := schema.SetDomain(domain); err != nil {
		return fmt.Errorf("archive: set domain: %w", err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return err
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return err
	}

	kindAttr, err := tiledb.NewAttribute(ctx, "kind", tiledb.TILEDB_UINT8)
	if err != nil {
		return err
	}
	defer kindAttr.Free()

	pingAttr, err := tiledb.NewAttribute(ctx, "ping_number", tiledb.TILEDB_UINT32)
	if err != nil {
		return err
	}
	defer pingAttr.Free()

	arrivedAttr, err := tiledb.NewAttribute(ctx, "arrived_at", tiledb.TILEDB_INT64)
	if err != nil {
		return err
	}
	defer arrivedAttr.Free()

	payloadAttr, err := tiledb.NewAttribute(ctx, "payload", tiledb.TILEDB_UINT8)
	if err != nil {
		return err
	}
	defer payloadAttr.Free()
	if err := payloadAttr.SetCellValNum(tiledb.TILEDB_VAR_NUM); err != nil {
		return err
	}

	zstd, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_ZSTD)
	if err != nil {
		return err
	}
	defer zstd.Free()
	if err := zstd.SetOption(tiledb.TILEDB_COMPRESSION_LEVEL, zstdLevel); err != nil {
		return err
	}
	filters, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return err
	}
	defer filters.Free()
	if err := filters.AddFilter(zstd); err != nil {
		return err
	}
	if err := payloadAttr.SetFilterList(filters); err != nil {
		return err
	}

	for _, attr := range []*tiledb.Attribute{kindAttr, pingAttr, arrivedAttr, payloadAttr} {
		if err := schema.AddAttributes(attr); err != nil {
			return fmt.Errorf("archive: add attribute: %w", err)
		}
	}

	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return err
	}
	defer array.Free()
	return array.Create(schema)
}

// OpenTileDBBackend opens a previously created archive array for
// writing.
func OpenTileDBBackend(ctx *tiledb.Context, uri string) (*TileDBBackend, error) {
	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return nil, err
	}
	if err := array.Open(tiledb.TILEDB_WRITE); err != nil {
		array.Free()
		return nil, err
	}
	return &TileDBBackend{ctx: ctx, array: array}, nil
}

// Append writes one record as a single-cell sparse write at the next
// sequence coordinate. Each call is its own TileDB query: archival
// throughput is secondary to the publish/log paths it must never
// block, so batching writes is left as a future optimization.
func (b *TileDBBackend) Append(rec Record) error {
	b.mu.Lock()
	seq := b.seq
	b.seq++
	b.mu.Unlock()

	query, err := tiledb.NewQuery(b.ctx, b.array)
	if err != nil {
		return err
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_UNORDERED); err != nil {
		return err
	}

	coords := []uint64{seq}
	kinds := []uint8{uint8(rec.Kind)}
	pings := []uint32{rec.PingNumber}
	arrived := []int64{rec.ArrivedAt}
	payload := append([]byte(nil), rec.Payload...)
	payloadOffsets := []uint64{0}

	if _, err := query.SetDataBuffer("seq", coords); err != nil {
		return err
	}
	if _, err := query.SetDataBuffer("kind", kinds); err != nil {
		return err
	}
	if _, err := query.SetDataBuffer("ping_number", pings); err != nil {
		return err
	}
	if _, err := query.SetDataBuffer("arrived_at", arrived); err != nil {
		return err
	}
	if _, err := query.SetDataBuffer("payload", payload); err != nil {
		return err
	}
	if _, err := query.SetOffsetsBuffer("payload", payloadOffsets); err != nil {
		return err
	}

	return query.Submit()
}

func (b *TileDBBackend) Close() error {
	return b.array.Close()
}

var _ Backend = (*TileDBBackend)(nil)
