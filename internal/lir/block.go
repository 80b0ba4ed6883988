package lir

// BlockID is a dense per-function block identifier.
type BlockID int32

// Block is a basic block. Values do not flow across blocks implicitly;
// they are passed as block arguments, matching the fragment-parameter
// model of the input CFG.
type Block struct {
	ID     BlockID
	Name   string
	Params []*Value
	Instrs []Instr
	Term   Terminator
}

// Terminated reports whether the block already has a terminator.
func (b *Block) Terminated() bool { return b.Term.Kind != TermNone }

// TermKind enumerates block terminators.
type TermKind uint8

const (
	// TermNone marks an unterminated block.
	TermNone TermKind = iota
	// TermBr is an unconditional branch with block arguments.
	TermBr
	// TermCondBr is a two-way conditional branch.
	TermCondBr
	// TermSwitch is an indexed multi-way branch via a jump table.
	TermSwitch
	// TermTailCall transfers control out of the cluster.
	TermTailCall
	// TermRet returns a value to the caller.
	TermRet
	// TermRaiseOvflw calls the runtime overflow entry and does not return.
	TermRaiseOvflw
	// TermUnreachable marks a block that control never reaches.
	TermUnreachable
)

// Terminator is the Kind-discriminated terminator payload.
type Terminator struct {
	Kind TermKind

	Br       BrTerm
	CondBr   CondBrTerm
	Switch   SwitchTerm
	TailCall TailCallTerm
	Ret      RetTerm
}

// BrTerm is an unconditional branch.
type BrTerm struct {
	Target *Block
	Args   []*Value
}

// CondBrTerm is a conditional branch. Prob, when non-zero, is the
// probability of the true edge in the range 1..999.
type CondBrTerm struct {
	Cond     *Value
	Then     *Block
	Else     *Block
	ThenArgs []*Value
	ElseArgs []*Value
	Prob     int
}

// SwitchTerm branches to Targets[index]. The index is assumed in range;
// the encoders emit a jump table in the read-only data section.
type SwitchTerm struct {
	Index   *Value
	Targets []*Block
}

// TailCallTerm transfers control to a function or computed address using
// the cluster calling convention. Args is the full physical argument list.
type TailCallTerm struct {
	Callee *Value
	Args   []*Value
}

// RetTerm returns Value (may be nil) to the caller.
type RetTerm struct {
	Value *Value
}

// Succs returns the successor blocks of a terminator.
func (t *Terminator) Succs() []*Block {
	switch t.Kind {
	case TermBr:
		return []*Block{t.Br.Target}
	case TermCondBr:
		return []*Block{t.CondBr.Then, t.CondBr.Else}
	case TermSwitch:
		return t.Switch.Targets
	}
	return nil
}
