package lir

// Type enumerates the value types carried by the IR. Word and Ptr are both
// native-word sized; the split keeps the pointer/integer coercions explicit
// in the builder.
type Type uint8

const (
	// I8 is an 8-bit integer.
	I8 Type = iota
	// I16 is a 16-bit integer.
	I16
	// I32 is a 32-bit integer.
	I32
	// I64 is a 64-bit integer.
	I64
	// F32 is a 32-bit float.
	F32
	// F64 is a 64-bit float.
	F64
	// Word is the native machine-word integer.
	Word
	// Ptr is a heap or code pointer (native word sized).
	Ptr
)

func (t Type) String() string {
	switch t {
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Word:
		return "word"
	case Ptr:
		return "ptr"
	}
	return "?"
}

// SizeB returns the size of the type in bytes. Only 64-bit targets are
// supported, so Word and Ptr are 8 bytes.
func (t Type) SizeB() int {
	switch t {
	case I8:
		return 1
	case I16:
		return 2
	case I32, F32:
		return 4
	}
	return 8
}

// IsFloat reports whether the type is a floating-point type.
func (t Type) IsFloat() bool { return t == F32 || t == F64 }

// IsInt reports whether the type is an integer (including Word).
func (t Type) IsInt() bool {
	return t == I8 || t == I16 || t == I32 || t == I64 || t == Word
}

// IntType returns the integer type of the given bit size.
func IntType(bits int) Type {
	switch bits {
	case 64:
		return I64
	case 32:
		return I32
	case 16:
		return I16
	}
	return I8
}

// FloatType returns the float type of the given bit size.
func FloatType(bits int) Type {
	if bits == 64 {
		return F64
	}
	return F32
}
