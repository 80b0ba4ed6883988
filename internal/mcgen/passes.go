package mcgen

import (
	"math"

	"cgen/internal/lir"
)

// Pass is one function-level rewrite. Passes run in a fixed order and
// must leave the function valid; they never need to see the module.
type Pass struct {
	Name string
	Run  func(*lir.Func)
}

// replacer accumulates value substitutions. Chains are resolved so a
// pass may replace a value with another value it later replaces itself.
type replacer map[*lir.Value]*lir.Value

func (r replacer) resolve(v *lir.Value) *lir.Value {
	w, ok := r[v]
	if !ok {
		return nil
	}
	for {
		next, ok := r[w]
		if !ok {
			return w
		}
		w = next
	}
}

func (r replacer) apply(f *lir.Func) {
	if len(r) == 0 {
		return
	}
	rewriteUses(f, r.resolve)
}

// rewriteUses visits every operand slot of the function. get returns the
// replacement for a value, or nil to keep it.
func rewriteUses(f *lir.Func, get func(*lir.Value) *lir.Value) {
	sub := func(vs []*lir.Value) {
		for i, v := range vs {
			if r := get(v); r != nil {
				vs[i] = r
			}
		}
	}
	one := func(vp **lir.Value) {
		if *vp == nil {
			return
		}
		if r := get(*vp); r != nil {
			*vp = r
		}
	}
	for _, b := range f.Blocks {
		for i := range b.Instrs {
			sub(b.Instrs[i].Args)
		}
		t := &b.Term
		switch t.Kind {
		case lir.TermBr:
			sub(t.Br.Args)
		case lir.TermCondBr:
			one(&t.CondBr.Cond)
			sub(t.CondBr.ThenArgs)
			sub(t.CondBr.ElseArgs)
		case lir.TermSwitch:
			one(&t.Switch.Index)
		case lir.TermTailCall:
			one(&t.TailCall.Callee)
			sub(t.TailCall.Args)
		case lir.TermRet:
			one(&t.Ret.Value)
		}
	}
}

// isIntConst reports whether v is the plain integer constant n.
func isIntConst(v *lir.Value, n int64) bool {
	return v.Const && v.Fn == nil && !v.Type.IsFloat() && v.IntVal == n
}

// simplifyCFG folds branches on known conditions, threads jumps through
// empty forwarding blocks, and drops blocks that became unreachable.
func simplifyCFG(f *lir.Func) {
	for _, b := range f.Blocks {
		if b.Term.Kind != lir.TermCondBr {
			continue
		}
		cond := b.Term.CondBr.Cond
		if !cond.Const || cond.Fn != nil {
			continue
		}
		cb := b.Term.CondBr
		tgt, args := cb.Else, cb.ElseArgs
		if cond.IntVal != 0 {
			tgt, args = cb.Then, cb.ThenArgs
		}
		b.Term = lir.Terminator{Kind: lir.TermBr, Br: lir.BrTerm{Target: tgt, Args: args}}
	}

	fwd := make(map[*lir.Block]*lir.Block)
	for _, b := range f.Blocks[1:] {
		if len(b.Params) == 0 && len(b.Instrs) == 0 &&
			b.Term.Kind == lir.TermBr && len(b.Term.Br.Args) == 0 &&
			b.Term.Br.Target != b {
			fwd[b] = b.Term.Br.Target
		}
	}
	resolve := func(b *lir.Block) *lir.Block {
		for hops := 0; hops <= len(fwd); hops++ {
			t, ok := fwd[b]
			if !ok {
				break
			}
			b = t
		}
		return b
	}
	for _, b := range f.Blocks {
		t := &b.Term
		switch t.Kind {
		case lir.TermBr:
			t.Br.Target = resolve(t.Br.Target)
		case lir.TermCondBr:
			t.CondBr.Then = resolve(t.CondBr.Then)
			t.CondBr.Else = resolve(t.CondBr.Else)
		case lir.TermSwitch:
			for i := range t.Switch.Targets {
				t.Switch.Targets[i] = resolve(t.Switch.Targets[i])
			}
		}
	}

	reach := map[*lir.Block]bool{f.Entry(): true}
	work := []*lir.Block{f.Entry()}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range b.Term.Succs() {
			if !reach[s] {
				reach[s] = true
				work = append(work, s)
			}
		}
	}
	kept := f.Blocks[:1]
	for _, b := range f.Blocks[1:] {
		if reach[b] {
			kept = append(kept, b)
		}
	}
	f.Blocks = kept
}

// instCombine applies local algebraic identities.
func instCombine(f *lir.Func) {
	repl := replacer{}
	for _, b := range f.Blocks {
		kept := b.Instrs[:0]
		for i := range b.Instrs {
			ins := b.Instrs[i]
			for j, a := range ins.Args {
				if r := repl.resolve(a); r != nil {
					ins.Args[j] = r
				}
			}
			if r := combine(f, &ins); r != nil {
				repl[ins.Res] = r
				continue
			}
			kept = append(kept, ins)
		}
		b.Instrs = kept
	}
	repl.apply(f)
}

func combine(f *lir.Func, ins *lir.Instr) *lir.Value {
	if ins.Res == nil || len(ins.Args) != 2 {
		return nil
	}
	x, y := ins.Args[0], ins.Args[1]
	switch ins.Op {
	case lir.OpAdd:
		if isIntConst(x, 0) {
			return y
		}
		if isIntConst(y, 0) {
			return x
		}
	case lir.OpSub:
		if isIntConst(y, 0) {
			return x
		}
		if x == y {
			return f.IConst(ins.Res.Type, 0)
		}
	case lir.OpMul:
		if isIntConst(x, 1) {
			return y
		}
		if isIntConst(y, 1) {
			return x
		}
		if isIntConst(x, 0) || isIntConst(y, 0) {
			return f.IConst(ins.Res.Type, 0)
		}
	case lir.OpAnd:
		if x == y || isIntConst(y, -1) {
			return x
		}
		if isIntConst(x, -1) {
			return y
		}
		if isIntConst(x, 0) || isIntConst(y, 0) {
			return f.IConst(ins.Res.Type, 0)
		}
	case lir.OpOr:
		if x == y || isIntConst(y, 0) {
			return x
		}
		if isIntConst(x, 0) {
			return y
		}
	case lir.OpXor:
		if isIntConst(y, 0) {
			return x
		}
		if isIntConst(x, 0) {
			return y
		}
		if x == y {
			return f.IConst(ins.Res.Type, 0)
		}
	case lir.OpShl, lir.OpLShr, lir.OpAShr:
		if isIntConst(y, 0) {
			return x
		}
	}
	return nil
}

// reassociate canonicalizes commutative operations so the constant sits
// on the right, then folds (x op c1) op c2 into x op (c1 op c2). The
// inner operation stays; dce removes it when it has no other use.
func reassociate(f *lir.Func) {
	defs := make(map[*lir.Value]*lir.Instr)
	for _, b := range f.Blocks {
		for i := range b.Instrs {
			if r := b.Instrs[i].Res; r != nil {
				defs[r] = &b.Instrs[i]
			}
		}
	}
	plainConst := func(v *lir.Value) bool {
		return v.Const && v.Fn == nil && !v.Type.IsFloat()
	}
	for _, b := range f.Blocks {
		for i := range b.Instrs {
			ins := &b.Instrs[i]
			switch ins.Op {
			case lir.OpAdd, lir.OpMul, lir.OpAnd, lir.OpOr, lir.OpXor:
			default:
				continue
			}
			if plainConst(ins.Args[0]) && !ins.Args[1].Const {
				ins.Args[0], ins.Args[1] = ins.Args[1], ins.Args[0]
			}
			if !plainConst(ins.Args[1]) {
				continue
			}
			inner := defs[ins.Args[0]]
			if inner == nil || inner.Op != ins.Op || !plainConst(inner.Args[1]) {
				continue
			}
			c1, c2 := inner.Args[1].IntVal, ins.Args[1].IntVal
			var folded int64
			switch ins.Op {
			case lir.OpAdd:
				folded = c1 + c2
			case lir.OpMul:
				folded = c1 * c2
			case lir.OpAnd:
				folded = c1 & c2
			case lir.OpOr:
				folded = c1 | c2
			case lir.OpXor:
				folded = c1 ^ c2
			}
			ins.Args[0] = inner.Args[0]
			ins.Args[1] = f.IConst(ins.Args[1].Type, folded)
		}
	}
}

// constProp folds instructions whose operands are all constant.
func constProp(f *lir.Func) {
	repl := replacer{}
	for _, b := range f.Blocks {
		kept := b.Instrs[:0]
		for i := range b.Instrs {
			ins := b.Instrs[i]
			for j, a := range ins.Args {
				if r := repl.resolve(a); r != nil {
					ins.Args[j] = r
				}
			}
			if c := fold(f, &ins); c != nil {
				repl[ins.Res] = c
				continue
			}
			kept = append(kept, ins)
		}
		b.Instrs = kept
	}
	repl.apply(f)
}

func allPlainConst(args []*lir.Value) bool {
	for _, a := range args {
		if !a.Const || a.Fn != nil {
			return false
		}
	}
	return true
}

func fold(f *lir.Func, ins *lir.Instr) *lir.Value {
	if ins.Res == nil || len(ins.Args) == 0 || !allPlainConst(ins.Args) {
		return nil
	}
	ty := ins.Res.Type
	switch ins.Op {
	case lir.OpAdd, lir.OpSub, lir.OpMul, lir.OpSDiv, lir.OpUDiv,
		lir.OpSRem, lir.OpURem, lir.OpAnd, lir.OpOr, lir.OpXor,
		lir.OpShl, lir.OpLShr, lir.OpAShr:
		v, ok := foldInt(ins.Op, ins.Args[0].IntVal, ins.Args[1].IntVal)
		if !ok {
			return nil
		}
		return f.IConst(ty, v)
	case lir.OpICmp:
		if foldCmp(ins.Pred, ins.Args[0].IntVal, ins.Args[1].IntVal) {
			return f.IConst(ty, 1)
		}
		return f.IConst(ty, 0)
	case lir.OpPtrToInt, lir.OpIntToPtr:
		return f.IConst(ty, ins.Args[0].IntVal)
	case lir.OpSExt:
		if sh := 64 - 8*ins.Args[0].Type.SizeB(); sh > 0 {
			return f.IConst(ty, ins.Args[0].IntVal<<sh>>sh)
		}
		return f.IConst(ty, ins.Args[0].IntVal)
	case lir.OpZExt:
		if w := 8 * ins.Args[0].Type.SizeB(); w < 64 {
			return f.IConst(ty, ins.Args[0].IntVal&(1<<w-1))
		}
		return f.IConst(ty, ins.Args[0].IntVal)
	case lir.OpTrunc:
		if w := 8 * ty.SizeB(); w < 64 {
			return f.IConst(ty, ins.Args[0].IntVal&(1<<w-1))
		}
		return f.IConst(ty, ins.Args[0].IntVal)
	case lir.OpFAdd:
		return f.FConst(ty, ins.Args[0].FltVal+ins.Args[1].FltVal)
	case lir.OpFSub:
		return f.FConst(ty, ins.Args[0].FltVal-ins.Args[1].FltVal)
	case lir.OpFMul:
		return f.FConst(ty, ins.Args[0].FltVal*ins.Args[1].FltVal)
	case lir.OpFDiv:
		if ins.Args[1].FltVal == 0 {
			return nil
		}
		return f.FConst(ty, ins.Args[0].FltVal/ins.Args[1].FltVal)
	case lir.OpFNeg:
		return f.FConst(ty, -ins.Args[0].FltVal)
	case lir.OpFAbs:
		return f.FConst(ty, math.Abs(ins.Args[0].FltVal))
	case lir.OpFSqrt:
		if ins.Args[0].FltVal < 0 {
			return nil
		}
		return f.FConst(ty, math.Sqrt(ins.Args[0].FltVal))
	}
	return nil
}

func foldInt(op lir.Op, x, y int64) (int64, bool) {
	switch op {
	case lir.OpAdd:
		return x + y, true
	case lir.OpSub:
		return x - y, true
	case lir.OpMul:
		return x * y, true
	case lir.OpAnd:
		return x & y, true
	case lir.OpOr:
		return x | y, true
	case lir.OpXor:
		return x ^ y, true
	case lir.OpSDiv:
		if y == 0 || (x == math.MinInt64 && y == -1) {
			return 0, false
		}
		return x / y, true
	case lir.OpSRem:
		if y == 0 || (x == math.MinInt64 && y == -1) {
			return 0, false
		}
		return x % y, true
	case lir.OpUDiv:
		if y == 0 {
			return 0, false
		}
		return int64(uint64(x) / uint64(y)), true
	case lir.OpURem:
		if y == 0 {
			return 0, false
		}
		return int64(uint64(x) % uint64(y)), true
	case lir.OpShl:
		return x << (uint64(y) & 63), true
	case lir.OpLShr:
		return int64(uint64(x) >> (uint64(y) & 63)), true
	case lir.OpAShr:
		return x >> (uint64(y) & 63), true
	}
	return 0, false
}

func foldCmp(p lir.Pred, x, y int64) bool {
	switch p {
	case lir.PredEQ:
		return x == y
	case lir.PredNE:
		return x != y
	case lir.PredSLT:
		return x < y
	case lir.PredSLE:
		return x <= y
	case lir.PredSGT:
		return x > y
	case lir.PredSGE:
		return x >= y
	case lir.PredULT:
		return uint64(x) < uint64(y)
	case lir.PredULE:
		return uint64(x) <= uint64(y)
	case lir.PredUGT:
		return uint64(x) > uint64(y)
	case lir.PredUGE:
		return uint64(x) >= uint64(y)
	}
	return false
}

// dce removes instructions whose results are unused and whose operation
// has no side effect, iterating until nothing more dies.
func dce(f *lir.Func) {
	removable := func(ins *lir.Instr) bool {
		return ins.Op != lir.OpStore && ins.Op != lir.OpCallGC
	}
	for {
		used := make(map[*lir.Value]bool)
		markAll := func(vs []*lir.Value) {
			for _, v := range vs {
				used[v] = true
			}
		}
		for _, b := range f.Blocks {
			for i := range b.Instrs {
				markAll(b.Instrs[i].Args)
			}
			t := &b.Term
			switch t.Kind {
			case lir.TermBr:
				markAll(t.Br.Args)
			case lir.TermCondBr:
				used[t.CondBr.Cond] = true
				markAll(t.CondBr.ThenArgs)
				markAll(t.CondBr.ElseArgs)
			case lir.TermSwitch:
				used[t.Switch.Index] = true
			case lir.TermTailCall:
				used[t.TailCall.Callee] = true
				markAll(t.TailCall.Args)
			case lir.TermRet:
				if t.Ret.Value != nil {
					used[t.Ret.Value] = true
				}
			}
		}
		removed := false
		for _, b := range f.Blocks {
			kept := b.Instrs[:0]
			for i := range b.Instrs {
				ins := b.Instrs[i]
				if removable(&ins) && !used[ins.Res] && (ins.Flag == nil || !used[ins.Flag]) {
					removed = true
					continue
				}
				kept = append(kept, ins)
			}
			b.Instrs = kept
		}
		if !removed {
			return
		}
	}
}
