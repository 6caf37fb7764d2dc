package block

import (
	"errors"
	"fmt"
)

var (
	ErrColumnCountMismatch = errors.New("row arity does not match block columns")
	ErrNoSuchColumn        = errors.New("no such column in block")
)

// Block is a columnar batch of rows, the unit of data movement through
// the pipeline.
type Block struct {
	Columns []Column
}

func New(cols ...Column) *Block {
	return &Block{Columns: cols}
}

// NewOfTypes builds an empty block with the given header.
func NewOfTypes(names []string, types []FieldType) *Block {

	b := &Block{Columns: make([]Column, len(names))}

	for i := range names {
		b.Columns[i] = Column{
			Name: names[i],
			Type: types[i],
			Data: NewColumnData(types[i]),
		}
	}

	return b
}

func (b *Block) Rows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].Data.Len()
}

func (b *Block) ByteSize() int {

	total := 0
	for i := range b.Columns {
		total += b.Columns[i].Data.ByteSize()
	}

	return total
}

// Empty reports a block with no rows and no header.
func (b *Block) Empty() bool {
	return b == nil || (len(b.Columns) == 0)
}

func (b *Block) AppendRow(values ...any) error {

	if len(values) != len(b.Columns) {
		return fmt.Errorf("%w : %d != %d", ErrColumnCountMismatch, len(values), len(b.Columns))
	}

	for i, v := range values {
		if err := b.Columns[i].Data.Append(v); err != nil {
			return fmt.Errorf("column '%s' : %w", b.Columns[i].Name, err)
		}
	}

	return nil
}

func (b *Block) ColumnByName(name string) (*Column, error) {

	for i := range b.Columns {
		if b.Columns[i].Name == name {
			return &b.Columns[i], nil
		}
	}

	return nil, fmt.Errorf("%w : '%s'", ErrNoSuchColumn, name)
}

// Header returns a zero-row block carrying only column names and types.
func (b *Block) Header() *Block {

	names := make([]string, len(b.Columns))
	types := make([]FieldType, len(b.Columns))

	for i := range b.Columns {
		names[i] = b.Columns[i].Name
		types[i] = b.Columns[i].Type
	}

	return NewOfTypes(names, types)
}

// Slice returns a view over rows [from, to).
func (b *Block) Slice(from, to int) *Block {

	out := &Block{Columns: make([]Column, len(b.Columns))}

	for i := range b.Columns {
		out.Columns[i] = Column{
			Name: b.Columns[i].Name,
			Type: b.Columns[i].Type,
			Data: b.Columns[i].Data.Slice(from, to),
		}
	}

	return out
}
