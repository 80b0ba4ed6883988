package mcgen

import (
	"math"

	"cgen/internal/lir"
)

// valnum assigns value numbers so structurally equal constants and
// expressions compare equal even when the builder allocated distinct
// Value handles for them.
type valnum struct {
	num    map[*lir.Value]int32
	consts map[constKey]int32
	next   int32
}

type constKey struct {
	ty    lir.Type
	ival  int64
	fbits uint64
	fn    *lir.Func
}

func newValnum() *valnum {
	return &valnum{
		num:    make(map[*lir.Value]int32),
		consts: make(map[constKey]int32),
	}
}

func (vn *valnum) of(v *lir.Value) int32 {
	if n, ok := vn.num[v]; ok {
		return n
	}
	var n int32
	if v.Const {
		k := constKey{v.Type, v.IntVal, math.Float64bits(v.FltVal), v.Fn}
		if m, ok := vn.consts[k]; ok {
			n = m
		} else {
			n = vn.next
			vn.next++
			vn.consts[k] = n
		}
	} else {
		n = vn.next
		vn.next++
	}
	vn.num[v] = n
	return n
}

type exprKey struct {
	op     lir.Op
	pred   lir.Pred
	ty     lir.Type
	a0, a1 int32
}

func (vn *valnum) key(ins *lir.Instr) exprKey {
	k := exprKey{op: ins.Op, pred: ins.Pred, ty: ins.Ty, a0: -1, a1: -1}
	if len(ins.Args) > 0 {
		k.a0 = vn.of(ins.Args[0])
	}
	if len(ins.Args) > 1 {
		k.a1 = vn.of(ins.Args[1])
	}
	switch ins.Op {
	case lir.OpAdd, lir.OpMul, lir.OpAnd, lir.OpOr, lir.OpXor,
		lir.OpFAdd, lir.OpFMul:
		if k.a1 < k.a0 {
			k.a0, k.a1 = k.a1, k.a0
		}
	}
	return k
}

// pureExpr reports whether an instruction can be shared between uses.
// Loads are excluded: sharing one across a store needs alias reasoning
// this pipeline does not do. The overflow-checked ops are excluded
// because they carry a second result.
func pureExpr(ins *lir.Instr) bool {
	switch ins.Op {
	case lir.OpLoad, lir.OpStore, lir.OpCallGC,
		lir.OpAddOvflw, lir.OpSubOvflw, lir.OpMulOvflw:
		return false
	}
	return ins.Res != nil
}

// earlyCSE removes duplicate pure expressions within each block.
func earlyCSE(f *lir.Func) {
	vn := newValnum()
	repl := replacer{}
	for _, b := range f.Blocks {
		avail := make(map[exprKey]*lir.Value)
		kept := b.Instrs[:0]
		for i := range b.Instrs {
			ins := b.Instrs[i]
			for j, a := range ins.Args {
				if r := repl.resolve(a); r != nil {
					ins.Args[j] = r
				}
			}
			if !pureExpr(&ins) {
				kept = append(kept, ins)
				continue
			}
			k := vn.key(&ins)
			if prev, ok := avail[k]; ok {
				repl[ins.Res] = prev
				continue
			}
			avail[k] = ins.Res
			kept = append(kept, ins)
		}
		b.Instrs = kept
	}
	repl.apply(f)
}

// gvn extends the same numbering across blocks: an expression available
// in a dominator is reused instead of recomputed.
func gvn(f *lir.Func) {
	idom := dominators(f)
	children := make(map[*lir.Block][]*lir.Block)
	for b, d := range idom {
		if b != f.Entry() {
			children[d] = append(children[d], b)
		}
	}

	vn := newValnum()
	repl := replacer{}
	avail := make(map[exprKey]*lir.Value)
	var walk func(b *lir.Block)
	walk = func(b *lir.Block) {
		var added []exprKey
		kept := b.Instrs[:0]
		for i := range b.Instrs {
			ins := b.Instrs[i]
			for j, a := range ins.Args {
				if r := repl.resolve(a); r != nil {
					ins.Args[j] = r
				}
			}
			if !pureExpr(&ins) {
				kept = append(kept, ins)
				continue
			}
			k := vn.key(&ins)
			if prev, ok := avail[k]; ok {
				repl[ins.Res] = prev
				continue
			}
			avail[k] = ins.Res
			added = append(added, k)
			kept = append(kept, ins)
		}
		b.Instrs = kept
		for _, c := range children[b] {
			walk(c)
		}
		for _, k := range added {
			delete(avail, k)
		}
	}
	walk(f.Entry())
	repl.apply(f)
}

// dominators computes the immediate-dominator tree with the iterative
// Cooper-Harvey-Kennedy algorithm. Only reachable blocks appear in the
// result; the entry maps to itself.
func dominators(f *lir.Func) map[*lir.Block]*lir.Block {
	var post []*lir.Block
	seen := map[*lir.Block]bool{f.Entry(): true}
	var dfs func(*lir.Block)
	dfs = func(b *lir.Block) {
		for _, s := range b.Term.Succs() {
			if !seen[s] {
				seen[s] = true
				dfs(s)
			}
		}
		post = append(post, b)
	}
	dfs(f.Entry())

	rpo := make([]*lir.Block, len(post))
	index := make(map[*lir.Block]int, len(post))
	for i, b := range post {
		j := len(post) - 1 - i
		rpo[j] = b
		index[b] = j
	}
	preds := make(map[*lir.Block][]*lir.Block)
	for _, b := range rpo {
		for _, s := range b.Term.Succs() {
			preds[s] = append(preds[s], b)
		}
	}

	idom := map[*lir.Block]*lir.Block{f.Entry(): f.Entry()}
	intersect := func(a, b *lir.Block) *lir.Block {
		for a != b {
			for index[a] > index[b] {
				a = idom[a]
			}
			for index[b] > index[a] {
				b = idom[b]
			}
		}
		return a
	}
	for changed := true; changed; {
		changed = false
		for _, b := range rpo[1:] {
			var ni *lir.Block
			for _, p := range preds[b] {
				if idom[p] == nil {
					continue
				}
				if ni == nil {
					ni = p
				} else {
					ni = intersect(ni, p)
				}
			}
			if ni != nil && idom[b] != ni {
				idom[b] = ni
				changed = true
			}
		}
	}
	return idom
}
