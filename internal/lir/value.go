package lir

// ValueID is a dense per-function value identifier.
type ValueID int32

// Value is an SSA-style value: a block parameter, an instruction result,
// or a constant. Constants are interned per function.
type Value struct {
	ID   ValueID
	Type Type

	// Constant payload. Const distinguishes a genuine zero constant from
	// a non-constant value.
	Const  bool
	IntVal int64
	FltVal float64

	// Fn is set for function-address values.
	Fn *Func
}

// IsFnAddr reports whether the value is the address of a function.
func (v *Value) IsFnAddr() bool { return v.Fn != nil }

// Op enumerates instruction kinds.
type Op uint8

const (
	// OpAdd is integer addition.
	OpAdd Op = iota
	// OpSub is integer subtraction.
	OpSub
	// OpMul is integer multiplication.
	OpMul
	// OpSDiv is signed integer division.
	OpSDiv
	// OpUDiv is unsigned integer division.
	OpUDiv
	// OpSRem is signed integer remainder.
	OpSRem
	// OpURem is unsigned integer remainder.
	OpURem
	// OpAnd is bitwise and.
	OpAnd
	// OpOr is bitwise or.
	OpOr
	// OpXor is bitwise exclusive or.
	OpXor
	// OpShl is a left shift.
	OpShl
	// OpLShr is a logical right shift.
	OpLShr
	// OpAShr is an arithmetic right shift.
	OpAShr
	// OpICmp is an integer comparison; Pred selects the predicate.
	OpICmp
	// OpAddOvflw is signed addition with an overflow flag result.
	OpAddOvflw
	// OpSubOvflw is signed subtraction with an overflow flag result.
	OpSubOvflw
	// OpMulOvflw is signed multiplication with an overflow flag result.
	OpMulOvflw
	// OpFAdd is float addition.
	OpFAdd
	// OpFSub is float subtraction.
	OpFSub
	// OpFMul is float multiplication.
	OpFMul
	// OpFDiv is float division.
	OpFDiv
	// OpFNeg is float negation.
	OpFNeg
	// OpFAbs is float absolute value.
	OpFAbs
	// OpFSqrt is float square root.
	OpFSqrt
	// OpFCmp is a float comparison; Pred selects the predicate.
	OpFCmp
	// OpLoad loads Ty from the address operand.
	OpLoad
	// OpStore stores operand 0 to address operand 1.
	OpStore
	// OpPtrToInt reinterprets a pointer as a Word.
	OpPtrToInt
	// OpIntToPtr reinterprets an integer as a pointer.
	OpIntToPtr
	// OpSExt sign-extends to Ty.
	OpSExt
	// OpZExt zero-extends to Ty.
	OpZExt
	// OpTrunc truncates to Ty.
	OpTrunc
	// OpSIToFP converts a signed integer to Ty (float).
	OpSIToFP
	// OpFPToSI converts a float to Ty (signed integer).
	OpFPToSI
	// OpAddrOffset computes address operand 0 plus byte offset operand 1.
	OpAddrOffset
	// OpReadSP reads the hardware stack pointer.
	OpReadSP
	// OpCallGC calls the collector entry held in the runtime frame. The
	// operands are the live roots; Results receives the rebound roots
	// followed by the refreshed pinned heap registers.
	OpCallGC
)

var opNames = [...]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpSDiv: "sdiv",
	OpUDiv: "udiv", OpSRem: "srem", OpURem: "urem", OpAnd: "and",
	OpOr: "or", OpXor: "xor", OpShl: "shl", OpLShr: "lshr",
	OpAShr: "ashr", OpICmp: "icmp", OpAddOvflw: "add.ovflw",
	OpSubOvflw: "sub.ovflw", OpMulOvflw: "mul.ovflw", OpFAdd: "fadd",
	OpFSub: "fsub", OpFMul: "fmul", OpFDiv: "fdiv", OpFNeg: "fneg",
	OpFAbs: "fabs", OpFSqrt: "fsqrt", OpFCmp: "fcmp", OpLoad: "load",
	OpStore: "store", OpPtrToInt: "ptrtoint", OpIntToPtr: "inttoptr",
	OpSExt: "sext", OpZExt: "zext", OpTrunc: "trunc", OpSIToFP: "sitofp",
	OpFPToSI: "fptosi", OpAddrOffset: "addroff", OpReadSP: "readsp",
	OpCallGC: "callgc",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "op?"
}

// HasResult reports whether the op produces a primary result value.
func (op Op) HasResult() bool {
	return op != OpStore && op != OpCallGC
}

// Pred enumerates comparison predicates for OpICmp and OpFCmp.
type Pred uint8

const (
	// PredEQ tests equality.
	PredEQ Pred = iota
	// PredNE tests inequality.
	PredNE
	// PredSLT tests signed less-than.
	PredSLT
	// PredSLE tests signed less-or-equal.
	PredSLE
	// PredSGT tests signed greater-than.
	PredSGT
	// PredSGE tests signed greater-or-equal.
	PredSGE
	// PredULT tests unsigned less-than.
	PredULT
	// PredULE tests unsigned less-or-equal.
	PredULE
	// PredUGT tests unsigned greater-than.
	PredUGT
	// PredUGE tests unsigned greater-or-equal.
	PredUGE
)

var predNames = [...]string{
	PredEQ: "eq", PredNE: "ne", PredSLT: "slt", PredSLE: "sle",
	PredSGT: "sgt", PredSGE: "sge", PredULT: "ult", PredULE: "ule",
	PredUGT: "ugt", PredUGE: "uge",
}

func (p Pred) String() string {
	if int(p) < len(predNames) {
		return predNames[p]
	}
	return "pred?"
}

// Instr is a non-terminator instruction.
type Instr struct {
	Op    Op
	Pred  Pred     // for OpICmp/OpFCmp
	Ty    Type     // result type for casts/loads; stored type for stores
	Align int      // for OpLoad/OpStore; 0 means natural alignment
	Args  []*Value // operands

	Res     *Value   // primary result (nil for OpStore/OpCallGC)
	Flag    *Value   // overflow flag for the checked-arithmetic ops
	Results []*Value // rebound roots for OpCallGC
}
