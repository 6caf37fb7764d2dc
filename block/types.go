package block

type FieldType uint8

const (
	Int8FieldType FieldType = iota
	Int16FieldType
	Int32FieldType
	Int64FieldType

	Float64FieldType
	Float32FieldType

	Uint64FieldType
	Uint8FieldType
	Uint32FieldType
	Uint16FieldType

	StringFieldType
)

func (f FieldType) String() string {
	switch f {
	case Int8FieldType:
		return "Int8"
	case Int16FieldType:
		return "Int16"
	case Int32FieldType:
		return "Int32"
	case Int64FieldType:
		return "Int64"
	case Float64FieldType:
		return "Float64"
	case Float32FieldType:
		return "Float32"
	case Uint64FieldType:
		return "UInt64"
	case Uint8FieldType:
		return "UInt8"
	case Uint32FieldType:
		return "UInt32"
	case Uint16FieldType:
		return "UInt16"
	case StringFieldType:
		return "String"
	default:
		return ""
	}
}

// Size is the fixed per-value byte size, -1 for variable-size types.
func (f FieldType) Size() int {
	switch f {

	case Int8FieldType, Uint8FieldType:
		return 1
	case Int16FieldType, Uint16FieldType:
		return 2
	case Int32FieldType, Float32FieldType, Uint32FieldType:
		return 4
	case Int64FieldType, Float64FieldType, Uint64FieldType:
		return 8
	case StringFieldType:
		return -1

	default:
		panic("unknown field type " + f.String())
	}
}

func ParseFieldType(name string) (FieldType, bool) {
	switch name {
	case "Int8":
		return Int8FieldType, true
	case "Int16":
		return Int16FieldType, true
	case "Int32":
		return Int32FieldType, true
	case "Int64":
		return Int64FieldType, true
	case "Float64":
		return Float64FieldType, true
	case "Float32":
		return Float32FieldType, true
	case "UInt64":
		return Uint64FieldType, true
	case "UInt8":
		return Uint8FieldType, true
	case "UInt32":
		return Uint32FieldType, true
	case "UInt16":
		return Uint16FieldType, true
	case "String":
		return StringFieldType, true
	default:
		return 0, false
	}
}

type NumericTypes interface {
	uint64 | uint16 | uint8 | uint32 | int64 | int32 | int16 | int8 | float64 | float32
}
