package cfg

// ExpKind enumerates expression forms.
type ExpKind uint8

const (
	// ExpVar reads a bound local value.
	ExpVar ExpKind = iota
	// ExpLabel evaluates a code label to an address.
	ExpLabel
	// ExpNum is an integer literal.
	ExpNum
	// ExpSelect loads the i-th word field of a heap record.
	ExpSelect
	// ExpPure applies a pure (non-trapping) primitive.
	ExpPure
	// ExpLooker applies a memory-reading primitive.
	ExpLooker
)

// Exp is a Kind-discriminated expression node.
type Exp struct {
	Kind ExpKind `msgpack:"kind"`

	// ExpVar, ExpLabel
	Name LVar `msgpack:"name"`

	// ExpNum
	IntVal int64  `msgpack:"int_val"`
	Sz     int    `msgpack:"sz"` // size in bits
	Tagged bool   `msgpack:"tagged"`
	FltVal string `msgpack:"flt_val"` // decimal literal for float pures

	// ExpSelect
	Idx int `msgpack:"idx"`

	// ExpPure, ExpLooker
	Pure   PureOp   `msgpack:"pure"`
	Looker LookerOp `msgpack:"looker"`

	Args []*Exp `msgpack:"args"`
}

// PureOp enumerates non-trapping primitives.
type PureOp uint8

const (
	// PAdd is wrapping integer addition.
	PAdd PureOp = iota
	// PSub is wrapping integer subtraction.
	PSub
	// PMul is wrapping integer multiplication.
	PMul
	// PUDiv is unsigned division (divisor known non-zero).
	PUDiv
	// PURem is unsigned remainder (divisor known non-zero).
	PURem
	// PAnd is bitwise and.
	PAnd
	// POr is bitwise or.
	POr
	// PXor is bitwise exclusive or.
	PXor
	// PShl is a left shift.
	PShl
	// PLShr is a logical right shift.
	PLShr
	// PAShr is an arithmetic right shift.
	PAShr
	// POrb sets the low tag bit.
	POrb
	// PFAdd is float addition.
	PFAdd
	// PFSub is float subtraction.
	PFSub
	// PFMul is float multiplication.
	PFMul
	// PFDiv is float division.
	PFDiv
	// PFNeg is float negation.
	PFNeg
	// PFAbs is float absolute value.
	PFAbs
	// PFSqrt is float square root.
	PFSqrt
	// PIntToFloat converts a signed integer to a float.
	PIntToFloat
	// PExtend sign-extends to the word size.
	PExtend
	// PTrunc truncates to a smaller size.
	PTrunc
)

var pureNames = [...]string{
	PAdd: "add", PSub: "sub", PMul: "mul", PUDiv: "udiv", PURem: "urem",
	PAnd: "and", POr: "or", PXor: "xor", PShl: "shl", PLShr: "lshr",
	PAShr: "ashr", POrb: "orb", PFAdd: "fadd", PFSub: "fsub",
	PFMul: "fmul", PFDiv: "fdiv", PFNeg: "fneg", PFAbs: "fabs",
	PFSqrt: "fsqrt", PIntToFloat: "int_to_float", PExtend: "extend",
	PTrunc: "trunc",
}

func (op PureOp) String() string {
	if int(op) < len(pureNames) && pureNames[op] != "" {
		return pureNames[op]
	}
	return "pure?"
}

// LookerOp enumerates memory-reading primitives.
type LookerOp uint8

const (
	// LDeref loads a word through a pointer.
	LDeref LookerOp = iota
	// LRawLoad loads a raw value of the given size.
	LRawLoad
	// LGetHdlr reads the current exception handler.
	LGetHdlr
	// LGetVar reads the var-pointer register.
	LGetVar
)

func (op LookerOp) String() string {
	switch op {
	case LDeref:
		return "deref"
	case LRawLoad:
		return "raw_load"
	case LGetHdlr:
		return "get_hdlr"
	case LGetVar:
		return "get_var"
	}
	return "looker?"
}
