package pipeline

import (
	"github.com/dot5enko/local-query-driver/block"
)

// extremesCollector tracks per-column min/max over every data block the
// executor hands out. Only numeric columns participate.
type extremesCollector struct {
	header *block.Block

	seen bool
	min  []float64
	max  []float64
}

func newExtremesCollector(header *block.Block) *extremesCollector {
	return &extremesCollector{
		header: header,
		min:    make([]float64, len(header.Columns)),
		max:    make([]float64, len(header.Columns)),
	}
}

func (c *extremesCollector) update(b *block.Block) {

	rows := b.Rows()
	if rows == 0 {
		return
	}

	init := !c.seen

	for colIdx := range b.Columns {

		col := &b.Columns[colIdx]
		if col.Type == block.StringFieldType {
			continue
		}

		start := 0
		if init {
			v0 := numericAsFloat(col.Data.Value(0))
			c.min[colIdx] = v0
			c.max[colIdx] = v0
			start = 1
		}

		for i := start; i < rows; i++ {

			v := numericAsFloat(col.Data.Value(i))

			if v < c.min[colIdx] {
				c.min[colIdx] = v
			}
			if v > c.max[colIdx] {
				c.max[colIdx] = v
			}
		}
	}

	c.seen = true
}

// block returns a two-row block (min row, max row), nil when nothing was
// collected.
func (c *extremesCollector) block() *block.Block {

	if !c.seen {
		return nil
	}

	out := c.header.Header()

	for _, row := range [][]float64{c.min, c.max} {
		for colIdx := range out.Columns {

			col := &out.Columns[colIdx]
			if col.Type == block.StringFieldType {
				col.Data.Append("")
				continue
			}

			col.Data.Append(floatAsNumeric(row[colIdx], col.Type))
		}
	}

	return out
}

func numericAsFloat(v any) float64 {
	switch typed := v.(type) {
	case uint64:
		return float64(typed)
	case uint32:
		return float64(typed)
	case uint16:
		return float64(typed)
	case uint8:
		return float64(typed)
	case int64:
		return float64(typed)
	case int32:
		return float64(typed)
	case int16:
		return float64(typed)
	case int8:
		return float64(typed)
	case float64:
		return typed
	case float32:
		return float64(typed)
	default:
		return 0
	}
}

func floatAsNumeric(v float64, typ block.FieldType) any {
	switch typ {
	case block.Uint64FieldType:
		return uint64(v)
	case block.Uint32FieldType:
		return uint32(v)
	case block.Uint16FieldType:
		return uint16(v)
	case block.Uint8FieldType:
		return uint8(v)
	case block.Int64FieldType:
		return int64(v)
	case block.Int32FieldType:
		return int32(v)
	case block.Int16FieldType:
		return int16(v)
	case block.Int8FieldType:
		return int8(v)
	case block.Float32FieldType:
		return float32(v)
	default:
		return v
	}
}
