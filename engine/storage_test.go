package engine

import (
	"testing"

	"github.com/dot5enko/local-query-driver/block"
	"github.com/dot5enko/local-query-driver/profile"
)

func sampleBlock(t *testing.T, rows int) *block.Block {

	t.Helper()

	b := block.NewOfTypes(
		[]string{"id", "score", "tag"},
		[]block.FieldType{block.Uint64FieldType, block.Float64FieldType, block.StringFieldType},
	)

	for i := 0; i < rows; i++ {
		if err := b.AppendRow(uint64(i), float64(i)*0.5, "tag"); err != nil {
			t.Fatalf("append : %s", err.Error())
		}
	}

	return b
}

func TestPartRoundtrip(t *testing.T) {

	b := sampleBlock(t, 1000)

	p, err := buildPart(b)
	if err != nil {
		t.Fatalf("buildPart : %s", err.Error())
	}

	if p.rows != 1000 {
		t.Errorf("Expected 1000 rows but got %d", p.rows)
	}
	if p.compressedBytes <= 0 {
		t.Errorf("Expected compressed bytes to be accounted")
	}

	counters := &profile.Counters{}

	restored, err := readPart(p, b.Header(), counters)
	if err != nil {
		t.Fatalf("readPart : %s", err.Error())
	}

	if restored.Rows() != 1000 {
		t.Fatalf("Expected 1000 rows but got %d", restored.Rows())
	}
	if got := restored.Columns[0].Data.Value(999); got != uint64(999) {
		t.Errorf("Expected 999 but got %v", got)
	}
	if got := restored.Columns[1].Data.Value(10); got != 5.0 {
		t.Errorf("Expected 5.0 but got %v", got)
	}
	if got := restored.Columns[2].Data.Value(0); got != "tag" {
		t.Errorf("Expected tag but got %v", got)
	}

	snap := counters.Snapshot()
	if snap[profile.CompressedReadBytes] <= 0 {
		t.Errorf("Expected compressed read bytes to be counted")
	}
	if snap[profile.DecompressedBytes] <= 0 {
		t.Errorf("Expected decompressed bytes to be counted")
	}
}

func TestCompressionShrinksRepetitiveData(t *testing.T) {

	values := make([]uint64, 10000)

	col := block.Column{
		Name: "zeros",
		Type: block.Uint64FieldType,
		Data: &block.NumericColumnData[uint64]{Values: values},
	}
	raw := numericColumnBytes(&col)

	compressed, err := compressColumn(raw)
	if err != nil {
		t.Fatalf("compress : %s", err.Error())
	}

	if len(compressed) >= len(raw) {
		t.Errorf("Expected %d compressed bytes to be smaller than %d raw", len(compressed), len(raw))
	}

	restored, err := decompressColumn(compressed, len(raw))
	if err != nil {
		t.Fatalf("decompress : %s", err.Error())
	}
	if len(restored) != len(raw) {
		t.Errorf("Expected %d bytes but got %d", len(raw), len(restored))
	}
}

func TestTablePartsAccumulate(t *testing.T) {

	table := NewTable("default", "t", sampleBlock(t, 0).Header())

	for i := 0; i < 3; i++ {
		p, err := buildPart(sampleBlock(t, 10))
		if err != nil {
			t.Fatalf("buildPart : %s", err.Error())
		}
		table.appendPart(p)
	}

	if table.Rows() != 30 {
		t.Errorf("Expected 30 rows but got %d", table.Rows())
	}
	if parts := table.snapshotParts(); len(parts) != 3 {
		t.Errorf("Expected 3 parts but got %d", len(parts))
	}
}
