package block

import (
	"errors"
	"testing"
)

func TestAppendRowAndValues(t *testing.T) {

	b := NewOfTypes(
		[]string{"id", "name"},
		[]FieldType{Uint64FieldType, StringFieldType},
	)

	if err := b.AppendRow(uint64(1), "first"); err != nil {
		t.Fatalf("append : %s", err.Error())
	}
	if err := b.AppendRow(uint64(2), "second"); err != nil {
		t.Fatalf("append : %s", err.Error())
	}

	if b.Rows() != 2 {
		t.Errorf("Expected 2 rows but got %d", b.Rows())
	}
	if got := b.Columns[1].Data.Value(1); got != "second" {
		t.Errorf("Expected second but got %v", got)
	}
}

func TestAppendRowTypeMismatch(t *testing.T) {

	b := NewOfTypes([]string{"id"}, []FieldType{Uint64FieldType})

	err := b.AppendRow("not a number")
	if !errors.Is(err, ErrColumnTypeMismatch) {
		t.Errorf("Expected a type mismatch but got %v", err)
	}
}

func TestColumnByName(t *testing.T) {

	b := NewOfTypes([]string{"a", "b"}, []FieldType{Uint64FieldType, Uint64FieldType})

	col, err := b.ColumnByName("b")
	if err != nil {
		t.Fatalf("lookup : %s", err.Error())
	}
	if col.Name != "b" {
		t.Errorf("Expected b but got %s", col.Name)
	}

	if _, err := b.ColumnByName("missing"); !errors.Is(err, ErrNoSuchColumn) {
		t.Errorf("Expected ErrNoSuchColumn but got %v", err)
	}
}

func TestSlice(t *testing.T) {

	b := NewOfTypes([]string{"n"}, []FieldType{Uint64FieldType})
	for i := 0; i < 10; i++ {
		b.AppendRow(uint64(i))
	}

	s := b.Slice(3, 7)

	if s.Rows() != 4 {
		t.Fatalf("Expected 4 rows but got %d", s.Rows())
	}
	if got := s.Columns[0].Data.Value(0); got != uint64(3) {
		t.Errorf("Expected 3 but got %v", got)
	}
}

func TestHeaderIsEmptyCopy(t *testing.T) {

	b := NewOfTypes([]string{"n"}, []FieldType{Float64FieldType})
	b.AppendRow(1.5)

	h := b.Header()

	if h.Rows() != 0 {
		t.Errorf("Expected an empty header but got %d rows", h.Rows())
	}
	if h.Columns[0].Type != Float64FieldType {
		t.Errorf("Expected Float64 but got %s", h.Columns[0].Type.String())
	}

	// appending to the header must not touch the source block
	h.AppendRow(2.5)
	if b.Rows() != 1 {
		t.Errorf("Expected the source block to stay at 1 row but got %d", b.Rows())
	}
}

func TestByteSize(t *testing.T) {

	b := NewOfTypes([]string{"n"}, []FieldType{Uint64FieldType})
	for i := 0; i < 8; i++ {
		b.AppendRow(uint64(i))
	}

	if got := b.ByteSize(); got != 64 {
		t.Errorf("Expected 64 bytes but got %d", got)
	}
}

func TestParseFieldType(t *testing.T) {

	typ, ok := ParseFieldType("UInt64")
	if !ok || typ != Uint64FieldType {
		t.Errorf("Expected UInt64 but got %v %v", typ, ok)
	}

	if _, ok := ParseFieldType("Decimal"); ok {
		t.Errorf("Expected Decimal to be rejected")
	}
}
