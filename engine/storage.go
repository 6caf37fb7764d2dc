package engine

import (
	"bytes"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"

	"github.com/dot5enko/local-query-driver/block"
	"github.com/dot5enko/local-query-driver/memtrack"
	"github.com/dot5enko/local-query-driver/profile"
)

// partColumn holds one column of an immutable part. Numeric data is kept
// lz4-compressed, strings are kept raw since they are variable-width.
type partColumn struct {
	compressed       []byte
	uncompressedSize int

	strings []string
}

// part is one immutable batch of rows appended to a table.
type part struct {
	id   uuid.UUID
	rows int
	cols []partColumn

	compressedBytes int
}

func compressColumn(raw []byte) ([]byte, error) {

	var out bytes.Buffer

	zw := lz4.NewWriter(&out)

	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Flush(); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

func decompressColumn(compressed []byte, uncompressedSize int) ([]byte, error) {

	zr := lz4.NewReader(bytes.NewReader(compressed))

	out := make([]byte, uncompressedSize)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("lz4 read : %s", err.Error())
	}

	return out, nil
}

func numericColumnBytes(col *block.Column) []byte {
	switch data := col.Data.(type) {
	case *block.NumericColumnData[uint64]:
		return block.NumbersToBytes(data.Values)
	case *block.NumericColumnData[uint32]:
		return block.NumbersToBytes(data.Values)
	case *block.NumericColumnData[uint16]:
		return block.NumbersToBytes(data.Values)
	case *block.NumericColumnData[uint8]:
		return block.NumbersToBytes(data.Values)
	case *block.NumericColumnData[int64]:
		return block.NumbersToBytes(data.Values)
	case *block.NumericColumnData[int32]:
		return block.NumbersToBytes(data.Values)
	case *block.NumericColumnData[int16]:
		return block.NumbersToBytes(data.Values)
	case *block.NumericColumnData[int8]:
		return block.NumbersToBytes(data.Values)
	case *block.NumericColumnData[float64]:
		return block.NumbersToBytes(data.Values)
	case *block.NumericColumnData[float32]:
		return block.NumbersToBytes(data.Values)
	default:
		panic("not a numeric column")
	}
}

func numericColumnFromBytes(typ block.FieldType, raw []byte, rows int) block.ColumnData {
	switch typ {
	case block.Uint64FieldType:
		return &block.NumericColumnData[uint64]{Values: block.BytesToNumbers[uint64](raw, rows)}
	case block.Uint32FieldType:
		return &block.NumericColumnData[uint32]{Values: block.BytesToNumbers[uint32](raw, rows)}
	case block.Uint16FieldType:
		return &block.NumericColumnData[uint16]{Values: block.BytesToNumbers[uint16](raw, rows)}
	case block.Uint8FieldType:
		return &block.NumericColumnData[uint8]{Values: block.BytesToNumbers[uint8](raw, rows)}
	case block.Int64FieldType:
		return &block.NumericColumnData[int64]{Values: block.BytesToNumbers[int64](raw, rows)}
	case block.Int32FieldType:
		return &block.NumericColumnData[int32]{Values: block.BytesToNumbers[int32](raw, rows)}
	case block.Int16FieldType:
		return &block.NumericColumnData[int16]{Values: block.BytesToNumbers[int16](raw, rows)}
	case block.Int8FieldType:
		return &block.NumericColumnData[int8]{Values: block.BytesToNumbers[int8](raw, rows)}
	case block.Float64FieldType:
		return &block.NumericColumnData[float64]{Values: block.BytesToNumbers[float64](raw, rows)}
	case block.Float32FieldType:
		return &block.NumericColumnData[float32]{Values: block.BytesToNumbers[float32](raw, rows)}
	default:
		panic("not a numeric column type " + typ.String())
	}
}

// buildPart compresses a block into an immutable part.
func buildPart(b *block.Block) (*part, error) {

	uid, _ := uuid.NewV7()

	p := &part{
		id:   uid,
		rows: b.Rows(),
		cols: make([]partColumn, len(b.Columns)),
	}

	for i := range b.Columns {

		col := &b.Columns[i]

		if col.Type == block.StringFieldType {
			data := col.Data.(*block.StringColumnData)
			// keep a private copy, the source block may be reused
			p.cols[i].strings = append([]string(nil), data.Values...)
			continue
		}

		raw := numericColumnBytes(col)

		compressed, err := compressColumn(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to compress column '%s' : %s", col.Name, err.Error())
		}

		p.cols[i].compressed = compressed
		p.cols[i].uncompressedSize = len(raw)
		p.compressedBytes += len(compressed)
	}

	return p, nil
}

// readPart decompresses a part back into a block matching header.
// Scratch allocations are accounted to the ambient query scope when one
// is active.
func readPart(p *part, header *block.Block, counters *profile.Counters) (*block.Block, error) {

	out := header.Header()

	for i := range out.Columns {

		col := &out.Columns[i]

		if col.Type == block.StringFieldType {
			col.Data = &block.StringColumnData{Values: p.cols[i].strings}
			continue
		}

		if scope := memtrack.Current(); scope != nil {
			scope.Alloc(int64(p.cols[i].uncompressedSize))
		}

		raw, err := decompressColumn(p.cols[i].compressed, p.cols[i].uncompressedSize)
		if err != nil {
			return nil, fmt.Errorf("part %s column '%s' : %s", p.id.String(), col.Name, err.Error())
		}

		if counters != nil {
			counters.Increment(profile.CompressedReadBytes, int64(len(p.cols[i].compressed)))
			counters.Increment(profile.DecompressedBytes, int64(len(raw)))
		}

		col.Data = numericColumnFromBytes(col.Type, raw, p.rows)
	}

	return out, nil
}
