package lir

import "fmt"

// Validate checks the structural invariants the encoders rely on: every
// block is terminated, branch arguments match target parameter counts,
// and instruction operands are defined before use within the function.
func (f *Func) Validate() error {
	if len(f.Blocks) == 0 {
		return fmt.Errorf("lir: func %s has no blocks", f.Name)
	}
	defined := make(map[ValueID]bool)
	// Block params and constants are definitions; constants carry their
	// payload so they are always valid operands.
	for _, b := range f.Blocks {
		for _, p := range b.Params {
			defined[p.ID] = true
		}
	}
	checkUse := func(b *Block, v *Value) error {
		if v == nil {
			return fmt.Errorf("lir: func %s block %s: nil operand", f.Name, blockName(b))
		}
		if v.Const {
			return nil
		}
		if !defined[v.ID] {
			return fmt.Errorf("lir: func %s block %s: use of undefined v%d", f.Name, blockName(b), v.ID)
		}
		return nil
	}
	for _, b := range f.Blocks {
		for i := range b.Instrs {
			ins := &b.Instrs[i]
			for _, a := range ins.Args {
				if err := checkUse(b, a); err != nil {
					return err
				}
			}
			if ins.Res != nil {
				defined[ins.Res.ID] = true
			}
			if ins.Flag != nil {
				defined[ins.Flag.ID] = true
			}
			for _, r := range ins.Results {
				defined[r.ID] = true
			}
			if ins.Op.HasResult() && ins.Res == nil {
				return fmt.Errorf("lir: func %s: %s without result", f.Name, ins.Op)
			}
		}
		if !b.Terminated() {
			return fmt.Errorf("lir: func %s block %s not terminated", f.Name, blockName(b))
		}
		if err := f.validateTerm(b, defined); err != nil {
			return err
		}
	}
	return nil
}

func (f *Func) validateTerm(b *Block, defined map[ValueID]bool) error {
	t := &b.Term
	switch t.Kind {
	case TermBr:
		if got, want := len(t.Br.Args), len(t.Br.Target.Params); got != want {
			return fmt.Errorf("lir: func %s block %s: br passes %d args, target %s takes %d",
				f.Name, blockName(b), got, blockName(t.Br.Target), want)
		}
	case TermCondBr:
		if got, want := len(t.CondBr.ThenArgs), len(t.CondBr.Then.Params); got != want {
			return fmt.Errorf("lir: func %s block %s: condbr then-args %d, want %d",
				f.Name, blockName(b), got, want)
		}
		if got, want := len(t.CondBr.ElseArgs), len(t.CondBr.Else.Params); got != want {
			return fmt.Errorf("lir: func %s block %s: condbr else-args %d, want %d",
				f.Name, blockName(b), got, want)
		}
		if p := t.CondBr.Prob; p != 0 && (p < 1 || p > 999) {
			return fmt.Errorf("lir: func %s block %s: branch prob %d out of range", f.Name, blockName(b), p)
		}
	case TermSwitch:
		if len(t.Switch.Targets) == 0 {
			return fmt.Errorf("lir: func %s block %s: switch with no targets", f.Name, blockName(b))
		}
		for _, tgt := range t.Switch.Targets {
			if len(tgt.Params) != 0 {
				return fmt.Errorf("lir: func %s block %s: switch target %s takes params",
					f.Name, blockName(b), blockName(tgt))
			}
		}
	case TermTailCall:
		if t.TailCall.Callee == nil {
			return fmt.Errorf("lir: func %s block %s: tailcall without callee", f.Name, blockName(b))
		}
	}
	return nil
}

// Validate checks every function in the module.
func (m *Module) Validate() error {
	for _, f := range m.Funcs {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}
