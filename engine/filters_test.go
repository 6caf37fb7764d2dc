package engine

import (
	"math/rand"
	"testing"

	"github.com/dot5enko/local-query-driver/block"
)

func TestFilterEqualBlockAndTail(t *testing.T) {

	input := []uint64{5, 0, 0, 5, 0, 0, 0, 5, 5, 0, 5}

	out := make([]uint32, len(input))

	resultSize := FilterEqualIndices(input, 5, out)

	if resultSize != 5 {
		t.Errorf("Expected %d but got %d", 5, resultSize)
	} else if out[4] != 10 {
		t.Errorf("Expected tail index %d but got %d", 10, out[4])
	}
}

func TestFilterGreater(t *testing.T) {

	input := []int64{-5, 10, 3, 99, -1, 7, 7, 8, 100}

	out := make([]uint32, len(input))

	resultSize := FilterGreaterIndices(input, 7, out)

	if resultSize != 4 {
		t.Errorf("Expected %d but got %d", 4, resultSize)
	}
	if out[0] != 1 || out[3] != 8 {
		t.Errorf("Expected indices 1 and 8 but got %d and %d", out[0], out[3])
	}
}

func TestFilterSmallerFloat(t *testing.T) {

	input := []float64{0.5, 2.5, 1.0, 3.0, 0.1}

	out := make([]uint32, len(input))

	resultSize := FilterSmallerIndices(input, 1.0, out)

	if resultSize != 2 {
		t.Errorf("Expected %d but got %d", 2, resultSize)
	}
}

func TestFilterDispatchRareOps(t *testing.T) {

	input := []uint64{1, 2, 3, 4, 5}
	out := make([]uint32, len(input))

	if n := FilterIndices(input, CondNe, 3, out); n != 4 {
		t.Errorf("Expected 4 but got %d", n)
	}
	if n := FilterIndices(input, CondGe, 3, out); n != 3 {
		t.Errorf("Expected 3 but got %d", n)
	}
	if n := FilterIndices(input, CondLe, 3, out); n != 3 {
		t.Errorf("Expected 3 but got %d", n)
	}
}

func TestFilterBlockKeepsMatchingRows(t *testing.T) {

	b := block.NewOfTypes(
		[]string{"id", "tag"},
		[]block.FieldType{block.Uint64FieldType, block.StringFieldType},
	)
	b.AppendRow(uint64(1), "a")
	b.AppendRow(uint64(2), "b")
	b.AppendRow(uint64(3), "c")

	filtered, err := filterBlock(b, &condition{column: "id", op: CondGt, value: 1}, nil)
	if err != nil {
		t.Fatalf("filter : %s", err.Error())
	}

	if filtered.Rows() != 2 {
		t.Fatalf("Expected 2 rows but got %d", filtered.Rows())
	}
	if got := filtered.Columns[1].Data.Value(0); got != "b" {
		t.Errorf("Expected b but got %v", got)
	}
}

func TestFilterBlockFullMatchReturnsSameBlock(t *testing.T) {

	b := block.NewOfTypes([]string{"id"}, []block.FieldType{block.Uint64FieldType})
	b.AppendRow(uint64(1))
	b.AppendRow(uint64(2))

	filtered, err := filterBlock(b, &condition{column: "id", op: CondGe, value: 0}, nil)
	if err != nil {
		t.Fatalf("filter : %s", err.Error())
	}

	if filtered != b {
		t.Errorf("Expected the input block to be reused on a full match")
	}
}

func TestFilterFractionalLiteralOnIntegerColumn(t *testing.T) {

	b := block.NewOfTypes([]string{"id"}, []block.FieldType{block.Int64FieldType})
	b.AppendRow(int64(-6))
	b.AppendRow(int64(-5))
	b.AppendRow(int64(4))
	b.AppendRow(int64(5))

	check := func(op CondOp, value float64, expected int) {
		t.Helper()
		filtered, err := filterBlock(b, &condition{column: "id", op: op, value: value}, nil)
		if err != nil {
			t.Fatalf("filter %s %g : %s", op.String(), value, err.Error())
		}
		if filtered.Rows() != expected {
			t.Errorf("Expected %d rows for %s %g but got %d", expected, op.String(), value, filtered.Rows())
		}
	}

	// no integer equals 5.5, every integer differs from it
	check(CondEq, 5.5, 0)
	check(CondNe, 5.5, 4)

	check(CondGt, 4.5, 1)
	check(CondGe, 4.5, 1)
	check(CondLt, 4.5, 3)
	check(CondLe, 4.5, 3)

	// negative literals truncate toward zero, snapping must not
	check(CondGt, -5.5, 3)
	check(CondLt, -5.5, 1)
}

func BenchmarkFilterEqual(b *testing.B) {

	size := 1 << 16
	input := make([]uint64, size)
	for i := range input {
		input[i] = uint64(rand.Int63n(1000))
	}

	out := make([]uint32, size)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		FilterEqualIndices(input, 500, out)
	}
}
