package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dot5enko/local-query-driver/block"
	"github.com/dot5enko/local-query-driver/pipeline"
	"github.com/dot5enko/local-query-driver/profile"
	"github.com/dot5enko/local-query-driver/protocol"
)

// valuesSource emits one pre-built block.
type valuesSource struct {
	name string
	b    *block.Block
	done bool
}

func (s *valuesSource) Name() string {
	return s.name
}

func (s *valuesSource) Read(ctx context.Context, counters *profile.Counters) (*block.Block, error) {

	if s.done {
		return nil, nil
	}
	s.done = true

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counters.Increment(profile.SelectedRows, int64(s.b.Rows()))
	counters.Increment(profile.SelectedBytes, int64(s.b.ByteSize()))

	return s.b, nil
}

// numbersSource generates the [from, to) range of the numbers(N) table
// function, one partition per worker. The filter and limit mirror the
// scan source: blocks are filtered as they are produced and the limit
// counts surviving rows.
type numbersSource struct {
	from      uint64
	to        uint64
	blockSize uint64

	// total rows of the whole generator, reported with the first block of
	// this partition only
	reportTotal uint64

	filter *condition
	limit  int64

	pipe *pipeline.Pipeline

	scratch []uint32
}

func (s *numbersSource) Name() string {
	return "numbers"
}

func (s *numbersSource) Read(ctx context.Context, counters *profile.Counters) (*block.Block, error) {

	for {
		if s.limit == 0 {
			return nil, nil
		}

		if s.from >= s.to {
			return nil, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n := s.to - s.from
		if n > s.blockSize {
			n = s.blockSize
		}

		values := make([]uint64, n)
		for i := uint64(0); i < n; i++ {
			values[i] = s.from + i
		}
		s.from += n

		b := block.New(block.Column{
			Name: "number",
			Type: block.Uint64FieldType,
			Data: &block.NumericColumnData[uint64]{Values: values},
		})

		counters.Increment(profile.SelectedRows, int64(n))
		counters.Increment(profile.SelectedBytes, int64(b.ByteSize()))

		progress := protocol.ProgressValues{
			ReadRows:        n,
			ReadBytes:       n * 8,
			TotalRowsToRead: s.reportTotal,
		}
		s.reportTotal = 0

		s.pipe.ReportProgress(progress)

		filtered, err := filterBlock(b, s.filter, s.scratch)
		if err != nil {
			return nil, err
		}

		if s.filter != nil {
			counters.Increment(profile.FilteredRows, int64(b.Rows()-filtered.Rows()))
		}

		if filtered.Rows() == 0 {
			continue
		}

		if s.limit > 0 && int64(filtered.Rows()) > s.limit {
			filtered = filtered.Slice(0, int(s.limit))
		}
		if s.limit > 0 {
			s.limit -= int64(filtered.Rows())
		}

		return filtered, nil
	}
}

// scanSource walks a set of table parts, applying the filter, projection
// and limit of the plan.
type scanSource struct {
	table *Table
	parts []*part

	columns []string
	filter  *condition
	limit   int64

	pipe *pipeline.Pipeline

	partIdx int
	scratch []uint32
}

func (s *scanSource) Name() string {
	return "scan(" + s.table.Name + ")"
}

func (s *scanSource) Read(ctx context.Context, counters *profile.Counters) (*block.Block, error) {

	for {
		if s.limit == 0 {
			return nil, nil
		}

		if s.partIdx >= len(s.parts) {
			return nil, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := s.parts[s.partIdx]
		s.partIdx++

		raw, err := readPart(p, s.table.Header(), counters)
		if err != nil {
			return nil, err
		}

		s.pipe.ReportProgress(protocol.ProgressValues{
			ReadRows:  uint64(raw.Rows()),
			ReadBytes: uint64(raw.ByteSize()),
		})

		counters.Increment(profile.SelectedRows, int64(raw.Rows()))
		counters.Increment(profile.SelectedBytes, int64(raw.ByteSize()))

		filtered, err := filterBlock(raw, s.filter, s.scratch)
		if err != nil {
			return nil, err
		}

		if s.filter != nil {
			counters.Increment(profile.FilteredRows, int64(raw.Rows()-filtered.Rows()))
		}

		if filtered.Rows() == 0 {
			continue
		}

		if s.limit > 0 && int64(filtered.Rows()) > s.limit {
			filtered = filtered.Slice(0, int(s.limit))
		}
		if s.limit > 0 {
			s.limit -= int64(filtered.Rows())
		}

		projected, err := projectBlock(filtered, s.columns)
		if err != nil {
			return nil, err
		}

		return projected, nil
	}
}

func projectBlock(b *block.Block, columns []string) (*block.Block, error) {

	if len(columns) == 0 {
		return b, nil
	}

	out := &block.Block{Columns: make([]block.Column, 0, len(columns))}

	for _, name := range columns {
		col, err := b.ColumnByName(name)
		if err != nil {
			return nil, err
		}
		out.Columns = append(out.Columns, *col)
	}

	return out, nil
}

// aggregateSource drains its child completely on first read and emits a
// single row. With totals requested the same row doubles as the totals
// block.
type aggregateSource struct {
	child pipeline.Source

	fn     string
	column string

	withTotals bool
	pipe       *pipeline.Pipeline

	done bool
}

func (s *aggregateSource) Name() string {
	return s.fn + "()"
}

func (s *aggregateSource) Read(ctx context.Context, counters *profile.Counters) (*block.Block, error) {

	if s.done {
		return nil, nil
	}
	s.done = true

	var count uint64
	var sum float64

	for {
		b, err := s.child.Read(ctx, counters)
		if err != nil {
			return nil, err
		}
		if b == nil {
			break
		}

		count += uint64(b.Rows())

		if s.fn == "sum" {
			col, err := b.ColumnByName(s.column)
			if err != nil {
				return nil, err
			}
			for i := 0; i < b.Rows(); i++ {
				sum += numericValueAsFloat(col.Data.Value(i))
			}
		}
	}

	var out *block.Block

	switch s.fn {
	case "count":
		out = block.New(block.Column{
			Name: "count()",
			Type: block.Uint64FieldType,
			Data: &block.NumericColumnData[uint64]{Values: []uint64{count}},
		})
	case "sum":
		out = block.New(block.Column{
			Name: fmt.Sprintf("sum(%s)", s.column),
			Type: block.Float64FieldType,
			Data: &block.NumericColumnData[float64]{Values: []float64{sum}},
		})
	default:
		return nil, fmt.Errorf("%w : unknown aggregate '%s'", ErrSyntax, s.fn)
	}

	if s.withTotals {
		s.pipe.SetTotals(out.Slice(0, out.Rows()))
	}

	return out, nil
}

func numericValueAsFloat(v any) float64 {
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

// sleepSource naps in small slices so cancellation is observed promptly,
// then emits a single zero row.
type sleepSource struct {
	seconds float64
	done    bool
}

func (s *sleepSource) Name() string {
	return "sleep"
}

const sleepSliceMs = 50

func (s *sleepSource) Read(ctx context.Context, counters *profile.Counters) (*block.Block, error) {

	if s.done {
		return nil, nil
	}
	s.done = true

	remaining := time.Duration(s.seconds * float64(time.Second))

	for remaining > 0 {

		slice := time.Duration(sleepSliceMs) * time.Millisecond
		if slice > remaining {
			slice = remaining
		}

		select {
		case <-time.After(slice):
			remaining -= slice
			counters.Increment(profile.SleepMicroseconds, int64(slice.Microseconds()))
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return block.New(block.Column{
		Name: fmt.Sprintf("sleep(%g)", s.seconds),
		Type: block.Uint8FieldType,
		Data: &block.NumericColumnData[uint8]{Values: []uint8{0}},
	}), nil
}
