package cfg

// StmKind enumerates statement forms. Statements are a linear chain ending
// in a control transfer (Apply/Throw/Goto) or a fork (Switch/Branch).
type StmKind uint8

const (
	// StmLet binds an expression and continues.
	StmLet StmKind = iota
	// StmAlloc allocates a heap record and continues.
	StmAlloc
	// StmApply tail-calls a standard function.
	StmApply
	// StmThrow tail-calls a continuation.
	StmThrow
	// StmGoto transfers to an internal fragment of the same cluster.
	StmGoto
	// StmSwitch is an indexed multi-way fork.
	StmSwitch
	// StmBranch is a two-way comparison fork.
	StmBranch
	// StmArith applies an overflow-trapping primitive, binds the result,
	// and continues.
	StmArith
	// StmSetter applies a memory-writing primitive and continues.
	StmSetter
	// StmCallGC invokes the collector with the live roots and continues.
	StmCallGC
)

// Stm is a Kind-discriminated statement node.
type Stm struct {
	Kind StmKind `msgpack:"kind"`

	// StmLet: Exp, Bind, Cont.
	// StmAlloc: Desc, Args (exps), Bind, Cont.
	// StmApply/StmThrow: Fn, Args.
	// StmGoto: Lab, Args.
	// StmSwitch: Exp, Arms.
	// StmBranch: Cmp, Args (two), Prob, TrueArm, FalseArm.
	// StmArith: Arith, Args, Bind, Cont.
	// StmSetter: Setter, Args, Cont.
	// StmCallGC: Roots, NewRoots, Cont.

	Exp  *Exp   `msgpack:"exp"`
	Desc *Exp   `msgpack:"desc"`
	Fn   *Exp   `msgpack:"fn"`
	Args []*Exp `msgpack:"args"`

	Bind Param `msgpack:"bind"`
	Lab  LVar  `msgpack:"lab"`

	Arms     []*Stm `msgpack:"arms"`
	TrueArm  *Stm   `msgpack:"true_arm"`
	FalseArm *Stm   `msgpack:"false_arm"`

	Cmp  CmpOp `msgpack:"cmp"`
	Prob int   `msgpack:"prob"`

	Arith  ArithOp  `msgpack:"arith"`
	Setter SetterOp `msgpack:"setter"`

	Roots    []*Exp `msgpack:"roots"`
	NewRoots []LVar `msgpack:"new_roots"`

	Cont *Stm `msgpack:"cont"`
}

// ArithOp enumerates overflow-trapping primitives.
type ArithOp uint8

const (
	// AIAdd is checked signed addition.
	AIAdd ArithOp = iota
	// AISub is checked signed subtraction.
	AISub
	// AIMul is checked signed multiplication.
	AIMul
	// AIDiv is checked signed division.
	AIDiv
	// AIRem is checked signed remainder.
	AIRem
	// AFloatToInt converts a float to a signed integer.
	AFloatToInt
)

var arithNames = [...]string{
	AIAdd: "iadd", AISub: "isub", AIMul: "imul", AIDiv: "idiv",
	AIRem: "irem", AFloatToInt: "float_to_int",
}

func (op ArithOp) String() string {
	if int(op) < len(arithNames) && arithNames[op] != "" {
		return arithNames[op]
	}
	return "arith?"
}

// CmpOp enumerates branch comparisons.
type CmpOp uint8

const (
	// CEql tests equality.
	CEql CmpOp = iota
	// CNeq tests inequality.
	CNeq
	// CLt tests signed less-than.
	CLt
	// CLte tests signed less-or-equal.
	CLte
	// CGt tests signed greater-than.
	CGt
	// CGte tests signed greater-or-equal.
	CGte
	// CULt tests unsigned less-than.
	CULt
	// CULte tests unsigned less-or-equal.
	CULte
	// CFEql tests float equality.
	CFEql
	// CFLt tests float less-than.
	CFLt
	// CLimit compares the allocation pointer against the heap limit.
	CLimit
)

var cmpNames = [...]string{
	CEql: "eql", CNeq: "neq", CLt: "lt", CLte: "lte", CGt: "gt",
	CGte: "gte", CULt: "ult", CULte: "ulte", CFEql: "feql",
	CFLt: "flt", CLimit: "limit",
}

func (op CmpOp) String() string {
	if int(op) < len(cmpNames) && cmpNames[op] != "" {
		return cmpNames[op]
	}
	return "cmp?"
}

// SetterOp enumerates memory-writing primitives.
type SetterOp uint8

const (
	// SUpdate stores a value into a record field and logs the store.
	SUpdate SetterOp = iota
	// SUnboxedUpdate stores an unboxed value into a record field.
	SUnboxedUpdate
	// SRawUpdate stores a raw value of the given size.
	SRawUpdate
	// SSetHdlr installs a new exception handler.
	SSetHdlr
	// SSetVar writes the var-pointer register.
	SSetVar
)

func (op SetterOp) String() string {
	switch op {
	case SUpdate:
		return "update"
	case SUnboxedUpdate:
		return "unboxed_update"
	case SRawUpdate:
		return "raw_update"
	case SSetHdlr:
		return "set_hdlr"
	case SSetVar:
		return "set_var"
	}
	return "setter?"
}
