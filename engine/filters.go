package engine

import (
	"fmt"
	"math"

	"github.com/dot5enko/local-query-driver/block"
)

type CondOp uint8

const (
	CondEq CondOp = iota
	CondNe
	CondGt
	CondLt
	CondGe
	CondLe
)

func (op CondOp) String() string {
	switch op {
	case CondEq:
		return "="
	case CondNe:
		return "!="
	case CondGt:
		return ">"
	case CondLt:
		return "<"
	case CondGe:
		return ">="
	case CondLe:
		return "<="
	default:
		return "?"
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// FilterEqualIndices collects indices of values equal to cmp into out,
// branchless over 8-wide strides.
func FilterEqualIndices[T block.NumericTypes](arr []T, cmp T, out []uint32) int {

	n := len(arr)
	filled := 0
	i := 0

	for ; i+7 < n; i += 8 {

		im0 := b2i(arr[i+0] == cmp)
		im1 := b2i(arr[i+1] == cmp)
		im2 := b2i(arr[i+2] == cmp)
		im3 := b2i(arr[i+3] == cmp)
		im4 := b2i(arr[i+4] == cmp)
		im5 := b2i(arr[i+5] == cmp)
		im6 := b2i(arr[i+6] == cmp)
		im7 := b2i(arr[i+7] == cmp)

		out[filled] = uint32(i + 0)
		filled += im0
		out[filled] = uint32(i + 1)
		filled += im1
		out[filled] = uint32(i + 2)
		filled += im2
		out[filled] = uint32(i + 3)
		filled += im3
		out[filled] = uint32(i + 4)
		filled += im4
		out[filled] = uint32(i + 5)
		filled += im5
		out[filled] = uint32(i + 6)
		filled += im6
		out[filled] = uint32(i + 7)
		filled += im7
	}

	// Tail element
	for ; i < n; i++ {
		if arr[i] == cmp {
			out[filled] = uint32(i)
			filled++
		}
	}

	return filled
}

func FilterGreaterIndices[T block.NumericTypes](arr []T, cmp T, out []uint32) int {

	n := len(arr)
	filled := 0
	i := 0

	for ; i+7 < n; i += 8 {

		im0 := b2i(arr[i+0] > cmp)
		im1 := b2i(arr[i+1] > cmp)
		im2 := b2i(arr[i+2] > cmp)
		im3 := b2i(arr[i+3] > cmp)
		im4 := b2i(arr[i+4] > cmp)
		im5 := b2i(arr[i+5] > cmp)
		im6 := b2i(arr[i+6] > cmp)
		im7 := b2i(arr[i+7] > cmp)

		out[filled] = uint32(i + 0)
		filled += im0
		out[filled] = uint32(i + 1)
		filled += im1
		out[filled] = uint32(i + 2)
		filled += im2
		out[filled] = uint32(i + 3)
		filled += im3
		out[filled] = uint32(i + 4)
		filled += im4
		out[filled] = uint32(i + 5)
		filled += im5
		out[filled] = uint32(i + 6)
		filled += im6
		out[filled] = uint32(i + 7)
		filled += im7
	}

	for ; i < n; i++ {
		if arr[i] > cmp {
			out[filled] = uint32(i)
			filled++
		}
	}

	return filled
}

func FilterSmallerIndices[T block.NumericTypes](arr []T, cmp T, out []uint32) int {

	n := len(arr)
	filled := 0
	i := 0

	for ; i+7 < n; i += 8 {

		im0 := b2i(arr[i+0] < cmp)
		im1 := b2i(arr[i+1] < cmp)
		im2 := b2i(arr[i+2] < cmp)
		im3 := b2i(arr[i+3] < cmp)
		im4 := b2i(arr[i+4] < cmp)
		im5 := b2i(arr[i+5] < cmp)
		im6 := b2i(arr[i+6] < cmp)
		im7 := b2i(arr[i+7] < cmp)

		out[filled] = uint32(i + 0)
		filled += im0
		out[filled] = uint32(i + 1)
		filled += im1
		out[filled] = uint32(i + 2)
		filled += im2
		out[filled] = uint32(i + 3)
		filled += im3
		out[filled] = uint32(i + 4)
		filled += im4
		out[filled] = uint32(i + 5)
		filled += im5
		out[filled] = uint32(i + 6)
		filled += im6
		out[filled] = uint32(i + 7)
		filled += im7
	}

	for ; i < n; i++ {
		if arr[i] < cmp {
			out[filled] = uint32(i)
			filled++
		}
	}

	return filled
}

// FilterIndices dispatches on the condition operator. out must have room
// for len(arr) indices.
func FilterIndices[T block.NumericTypes](arr []T, op CondOp, cmp T, out []uint32) int {

	switch op {
	case CondEq:
		return FilterEqualIndices(arr, cmp, out)
	case CondGt:
		return FilterGreaterIndices(arr, cmp, out)
	case CondLt:
		return FilterSmallerIndices(arr, cmp, out)
	}

	// the rare operators go through the plain loop
	filled := 0
	for i, v := range arr {

		keep := false
		switch op {
		case CondNe:
			keep = v != cmp
		case CondGe:
			keep = v >= cmp
		case CondLe:
			keep = v <= cmp
		}

		if keep {
			out[filled] = uint32(i)
			filled++
		}
	}

	return filled
}

// condition is one parsed WHERE predicate over a single column.
type condition struct {
	column string
	op     CondOp
	value  float64
}

func typedCmp[T block.NumericTypes](v float64) T {
	return T(v)
}

const (
	matchRewritten = iota
	matchNone
	matchAll
)

// wholeCondition rewrites a fractional comparison literal into the
// equivalent whole-number condition. An integer column can never hold the
// fractional value itself, so equality matches nothing, inequality
// matches everything, and the orderings snap to ceil/floor.
func wholeCondition(op CondOp, v float64) (CondOp, float64, int) {

	if v == math.Trunc(v) {
		return op, v, matchRewritten
	}

	switch op {
	case CondEq:
		return op, v, matchNone
	case CondNe:
		return op, v, matchAll
	case CondGt, CondGe:
		return CondGe, math.Ceil(v), matchRewritten
	default:
		return CondLe, math.Floor(v), matchRewritten
	}
}

// filterBlock returns the rows of b matching cond, or b itself when cond
// is nil.
func filterBlock(b *block.Block, cond *condition, scratch []uint32) (*block.Block, error) {

	if cond == nil {
		return b, nil
	}

	col, err := b.ColumnByName(cond.column)
	if err != nil {
		return nil, err
	}

	op, cmp := cond.op, cond.value

	switch col.Type {
	case block.Float64FieldType, block.Float32FieldType, block.StringFieldType:
	default:
		var verdict int
		op, cmp, verdict = wholeCondition(op, cmp)
		switch verdict {
		case matchNone:
			return b.Header(), nil
		case matchAll:
			return b, nil
		}
	}

	if cap(scratch) < b.Rows() {
		scratch = make([]uint32, b.Rows())
	}
	scratch = scratch[:b.Rows()]

	var selected int

	switch data := col.Data.(type) {
	case *block.NumericColumnData[uint64]:
		selected = FilterIndices(data.Values, op, typedCmp[uint64](cmp), scratch)
	case *block.NumericColumnData[uint32]:
		selected = FilterIndices(data.Values, op, typedCmp[uint32](cmp), scratch)
	case *block.NumericColumnData[uint16]:
		selected = FilterIndices(data.Values, op, typedCmp[uint16](cmp), scratch)
	case *block.NumericColumnData[uint8]:
		selected = FilterIndices(data.Values, op, typedCmp[uint8](cmp), scratch)
	case *block.NumericColumnData[int64]:
		selected = FilterIndices(data.Values, op, typedCmp[int64](cmp), scratch)
	case *block.NumericColumnData[int32]:
		selected = FilterIndices(data.Values, op, typedCmp[int32](cmp), scratch)
	case *block.NumericColumnData[int16]:
		selected = FilterIndices(data.Values, op, typedCmp[int16](cmp), scratch)
	case *block.NumericColumnData[int8]:
		selected = FilterIndices(data.Values, op, typedCmp[int8](cmp), scratch)
	case *block.NumericColumnData[float64]:
		selected = FilterIndices(data.Values, op, cmp, scratch)
	case *block.NumericColumnData[float32]:
		selected = FilterIndices(data.Values, op, typedCmp[float32](cmp), scratch)
	default:
		return nil, fmt.Errorf("column '%s' is not filterable", cond.column)
	}

	if selected == b.Rows() {
		return b, nil
	}

	out := b.Header()
	for _, idx := range scratch[:selected] {
		for colIdx := range b.Columns {
			out.Columns[colIdx].Data.Append(b.Columns[colIdx].Data.Value(int(idx)))
		}
	}

	return out, nil
}
