package block

import (
	"errors"
	"fmt"
)

var ErrColumnTypeMismatch = errors.New("column value type mismatch")

// ColumnData is the storage behind one column of a block.
type ColumnData interface {
	Len() int
	ByteSize() int
	Value(i int) any
	Append(v any) error
	Slice(from, to int) ColumnData
}

type NumericColumnData[T NumericTypes] struct {
	Values []T
}

func (c *NumericColumnData[T]) Len() int {
	return len(c.Values)
}

func (c *NumericColumnData[T]) ByteSize() int {
	var sample T
	return len(c.Values) * int(sizeOf(sample))
}

func (c *NumericColumnData[T]) Value(i int) any {
	return c.Values[i]
}

func (c *NumericColumnData[T]) Append(v any) error {

	typed, ok := v.(T)
	if !ok {
		return fmt.Errorf("%w : got %T", ErrColumnTypeMismatch, v)
	}

	c.Values = append(c.Values, typed)
	return nil
}

func (c *NumericColumnData[T]) Slice(from, to int) ColumnData {
	return &NumericColumnData[T]{Values: c.Values[from:to]}
}

type StringColumnData struct {
	Values []string
}

func (c *StringColumnData) Len() int {
	return len(c.Values)
}

func (c *StringColumnData) ByteSize() int {
	total := 0
	for _, v := range c.Values {
		total += len(v)
	}
	return total
}

func (c *StringColumnData) Value(i int) any {
	return c.Values[i]
}

func (c *StringColumnData) Append(v any) error {

	typed, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w : got %T", ErrColumnTypeMismatch, v)
	}

	c.Values = append(c.Values, typed)
	return nil
}

func (c *StringColumnData) Slice(from, to int) ColumnData {
	return &StringColumnData{Values: c.Values[from:to]}
}

// Column is one named, typed column of a block.
type Column struct {
	Name string
	Type FieldType
	Data ColumnData
}

func NewColumnData(typ FieldType) ColumnData {
	switch typ {
	case Int8FieldType:
		return &NumericColumnData[int8]{}
	case Int16FieldType:
		return &NumericColumnData[int16]{}
	case Int32FieldType:
		return &NumericColumnData[int32]{}
	case Int64FieldType:
		return &NumericColumnData[int64]{}
	case Float32FieldType:
		return &NumericColumnData[float32]{}
	case Float64FieldType:
		return &NumericColumnData[float64]{}
	case Uint8FieldType:
		return &NumericColumnData[uint8]{}
	case Uint16FieldType:
		return &NumericColumnData[uint16]{}
	case Uint32FieldType:
		return &NumericColumnData[uint32]{}
	case Uint64FieldType:
		return &NumericColumnData[uint64]{}
	case StringFieldType:
		return &StringColumnData{}
	default:
		panic("unknown field type " + typ.String())
	}
}

func sizeOf[T NumericTypes](sample T) uintptr {
	switch any(sample).(type) {
	case uint8, int8:
		return 1
	case uint16, int16:
		return 2
	case uint32, int32, float32:
		return 4
	default:
		return 8
	}
}
