package block

import "unsafe"

// NumbersToBytes views a numeric slice as its raw bytes without copying.
// The result aliases the input.
func NumbersToBytes[T NumericTypes](vals []T) []byte {

	if len(vals) == 0 {
		return nil
	}

	var sample T
	valueSize := sizeOf(sample)

	return unsafe.Slice((*byte)(unsafe.Pointer(&vals[0])), len(vals)*int(valueSize))
}

// BytesToNumbers maps raw bytes back to a typed slice of count values.
func BytesToNumbers[T NumericTypes](data []byte, count int) []T {

	if count == 0 {
		return nil
	}

	var sample T
	valueSize := sizeOf(sample)

	if len(data) < count*int(valueSize) {
		panic("not enough data")
	}

	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), count)
}
