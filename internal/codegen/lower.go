package codegen

import (
	"fmt"
	"path/filepath"
	"strings"

	"cgen/internal/cfg"
	"cgen/internal/lir"
	"cgen/internal/regs"
)

// lirType maps a CFG parameter type onto its IR representation. Tagged
// integers are native words; the tag bit is the generator's business.
func lirType(k cfg.TyKind) lir.Type {
	switch k {
	case cfg.TyPtr, cfg.TyLabel:
		return lir.Ptr
	case cfg.TyI32:
		return lir.I32
	case cfg.TyI64:
		return lir.I64
	case cfg.TyF32:
		return lir.F32
	case cfg.TyF64:
		return lir.F64
	default:
		return lir.Word
	}
}

func moduleName(srcFile string) string {
	base := filepath.Base(srcFile)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." {
		return "unit"
	}
	return base
}

func fnName(lab cfg.LVar) string { return fmt.Sprintf("fn%d", lab) }

// LowerUnit translates a compilation unit into IR, leaving the module
// available through Module until EndModule. The unit must have passed
// cfg.Validate.
func (cx *Context) LowerUnit(unit *cfg.CompUnit) error {
	all := unit.All()
	cx.BeginModule(moduleName(unit.SrcFile), len(all))
	cx.module.Triple = cx.tgt.Triple

	// Pre-pass: every label and fragment is visible before any body is
	// lowered, so forward references resolve.
	for _, c := range all {
		cx.InsertCluster(c.Entry().Label, c)
		for _, frag := range c.Frags {
			cx.InsertFrag(frag.Label, frag)
		}
	}
	for i, c := range all {
		entry := c.Entry()
		tys := make([]lir.Type, len(entry.Params))
		for pi, p := range entry.Params {
			tys[pi] = lirType(p.Ty)
		}
		cx.fnMap[entry.Label] = cx.NewFunction(entry.Kind, tys, fnName(entry.Label), i == 0)
	}

	for _, c := range all {
		if err := cx.lowerCluster(c, cx.fnMap[c.Entry().Label]); err != nil {
			return err
		}
	}
	return cx.CompleteModule()
}

func (cx *Context) lowerCluster(c *cfg.Cluster, fn *lir.Func) error {
	cx.BeginCluster(c, fn)
	defer cx.EndCluster()

	cx.blockMap[c.Entry().Label] = fn.Entry()
	for _, frag := range c.Frags[1:] {
		blk := fn.NewBlock(fmt.Sprintf("L%d", frag.Label))
		for _, ty := range cx.ParamTys(cfg.Internal, len(frag.Params)) {
			fn.AddParam(blk, ty)
		}
		for _, p := range frag.Params {
			fn.AddParam(blk, lirType(p.Ty))
		}
		cx.blockMap[frag.Label] = blk
	}

	for _, frag := range c.Frags {
		if err := cx.lowerFrag(frag, cx.blockMap[frag.Label]); err != nil {
			return fmt.Errorf("codegen: fragment %d: %w", frag.Label, err)
		}
	}
	return nil
}

// lowerFrag binds the fragment's physical parameters (special registers,
// base pointer, explicit parameters) and lowers its body.
func (cx *Context) lowerFrag(frag *cfg.Frag, blk *lir.Block) error {
	cx.BeginFrag()
	cx.SetInsertBlock(blk)

	ai := cx.argInfoFor(frag.Kind)
	params := blk.Params
	if got, want := len(params), ai.total(len(frag.Params)); got != want {
		return fmt.Errorf("block has %d params, convention needs %d", got, want)
	}
	idx := 0
	for _, ri := range cx.conv.MachineRegs() {
		cx.state.Set(ri.ID(), params[idx])
		idx++
	}
	if ai.basePtr == 1 {
		cx.state.SetBasePtr(params[idx])
		idx++
	} else if frag.Kind.IsEntry() && cx.usesBasePtr() {
		// The cluster wants a base address but the convention does not
		// carry one; rederive it from the entry's own address.
		cx.state.SetBasePtr(cx.build.AsInt(cx.curFn.FnAddr(cx.curFn)))
	}
	idx += ai.nUnused
	for _, p := range frag.Params {
		cx.InsertVal(p.Name, params[idx])
		idx++
	}

	return cx.lowerStm(frag.Body)
}

func (cx *Context) lowerStm(s *cfg.Stm) error {
	switch s.Kind {
	case cfg.StmLet:
		v, err := cx.lowerExp(s.Exp)
		if err != nil {
			return err
		}
		cx.InsertVal(s.Bind.Name, cx.coerce(v, s.Bind.Ty))
		return cx.lowerStm(s.Cont)

	case cfg.StmAlloc:
		return cx.lowerAlloc(s)

	case cfg.StmApply:
		return cx.lowerCall(s, cfg.StdFun)

	case cfg.StmThrow:
		return cx.lowerCall(s, cfg.StdCont)

	case cfg.StmGoto:
		return cx.lowerGoto(s)

	case cfg.StmSwitch:
		return cx.lowerSwitch(s)

	case cfg.StmBranch:
		return cx.lowerBranch(s)

	case cfg.StmArith:
		return cx.lowerArith(s)

	case cfg.StmSetter:
		return cx.lowerSetter(s)

	case cfg.StmCallGC:
		return cx.lowerCallGC(s)
	}
	return fmt.Errorf("unknown statement kind %d", s.Kind)
}

// coerce adjusts a value's representation to the binding type.
func (cx *Context) coerce(v *lir.Value, ty cfg.TyKind) *lir.Value {
	want := lirType(ty)
	if v.Type == want || want.IsFloat() || v.Type.IsFloat() {
		return v
	}
	if want == lir.Ptr {
		return cx.build.AsPtr(v)
	}
	if v.Type == lir.Ptr {
		return cx.build.AsInt(v)
	}
	return v
}

func (cx *Context) lowerAlloc(s *cfg.Stm) error {
	var desc *lir.Value
	if s.Desc != nil {
		d, err := cx.lowerExp(s.Desc)
		if err != nil {
			return err
		}
		desc = d
	}
	fields := make([]*lir.Value, len(s.Args))
	for i, a := range s.Args {
		v, err := cx.lowerExp(a)
		if err != nil {
			return err
		}
		fields[i] = v
	}
	cx.InsertVal(s.Bind.Name, cx.AllocRecord(desc, fields))
	return cx.lowerStm(s.Cont)
}

// lowerCall lowers a tail transfer to a standard function or continuation.
// The callee convention comes from the callee cluster when the target is a
// known label, otherwise from the statement form.
func (cx *Context) lowerCall(s *cfg.Stm, kind cfg.FragKind) error {
	var callee *lir.Value
	if s.Fn.Kind == cfg.ExpLabel {
		c := cx.LookupCluster(s.Fn.Name)
		if c == nil {
			return fmt.Errorf("call to label %d, which names no cluster", s.Fn.Name)
		}
		kind = c.Entry().Kind
		callee = cx.curFn.FnAddr(cx.fnMap[s.Fn.Name])
	} else {
		v, err := cx.lowerExp(s.Fn)
		if err != nil {
			return err
		}
		callee = cx.build.AsPtr(v)
	}
	args, err := cx.Args(kind, len(s.Args))
	if err != nil {
		return err
	}
	for _, a := range s.Args {
		v, err := cx.lowerExp(a)
		if err != nil {
			return err
		}
		args = append(args, v)
	}
	cx.build.TailCall(callee, args)
	return nil
}

func (cx *Context) lowerGoto(s *cfg.Stm) error {
	frag := cx.LookupFrag(s.Lab)
	blk := cx.blockMap[s.Lab]
	if frag == nil || blk == nil {
		return fmt.Errorf("goto to unknown label %d", s.Lab)
	}
	args, err := cx.Args(frag.Kind, len(s.Args))
	if err != nil {
		return err
	}
	if len(s.Args) != len(frag.Params) {
		return fmt.Errorf("goto to label %d passes %d args, fragment has %d params",
			s.Lab, len(s.Args), len(frag.Params))
	}
	for i, a := range s.Args {
		v, err := cx.lowerExp(a)
		if err != nil {
			return err
		}
		args = append(args, cx.coerce(v, frag.Params[i].Ty))
	}
	cx.build.Br(blk, args)
	return nil
}

func (cx *Context) lowerSwitch(s *cfg.Stm) error {
	idxV, err := cx.lowerExp(s.Exp)
	if err != nil {
		return err
	}
	targets := make([]*lir.Block, len(s.Arms))
	for i := range s.Arms {
		targets[i] = cx.NewBlock(fmt.Sprintf("case%d.b%d", i, len(cx.curFn.Blocks)))
	}
	cx.build.Switch(idxV, targets)

	// Each arm sees the register state as it was at the fork.
	var snap regs.State
	cx.SaveRegState(&snap)
	for i, arm := range s.Arms {
		cx.RestoreRegState(&snap)
		cx.SetInsertBlock(targets[i])
		if err := cx.lowerStm(arm); err != nil {
			return err
		}
	}
	return nil
}

func (cx *Context) lowerBranch(s *cfg.Stm) error {
	cond, err := cx.branchCond(s)
	if err != nil {
		return err
	}
	prob := s.Prob
	if prob == 0 {
		prob = 500
	}
	thenBlk := cx.NewBlock(fmt.Sprintf("then.b%d", len(cx.curFn.Blocks)))
	elseBlk := cx.NewBlock(fmt.Sprintf("else.b%d", len(cx.curFn.Blocks)))
	cx.build.CondBr(cond, thenBlk, elseBlk, prob)

	var snap regs.State
	cx.SaveRegState(&snap)
	cx.SetInsertBlock(thenBlk)
	if err := cx.lowerStm(s.TrueArm); err != nil {
		return err
	}
	cx.RestoreRegState(&snap)
	cx.SetInsertBlock(elseBlk)
	return cx.lowerStm(s.FalseArm)
}

func (cx *Context) branchCond(s *cfg.Stm) (*lir.Value, error) {
	if s.Cmp == cfg.CLimit {
		return cx.limitCheck(s)
	}
	if len(s.Args) != 2 {
		return nil, fmt.Errorf("branch %v needs 2 args, got %d", s.Cmp, len(s.Args))
	}
	a, err := cx.lowerExp(s.Args[0])
	if err != nil {
		return nil, err
	}
	b, err := cx.lowerExp(s.Args[1])
	if err != nil {
		return nil, err
	}
	switch s.Cmp {
	case cfg.CEql:
		return cx.build.ICmp(lir.PredEQ, a, b), nil
	case cfg.CNeq:
		return cx.build.ICmp(lir.PredNE, a, b), nil
	case cfg.CLt:
		return cx.build.ICmp(lir.PredSLT, a, b), nil
	case cfg.CLte:
		return cx.build.ICmp(lir.PredSLE, a, b), nil
	case cfg.CGt:
		return cx.build.ICmp(lir.PredSGT, a, b), nil
	case cfg.CGte:
		return cx.build.ICmp(lir.PredSGE, a, b), nil
	case cfg.CULt:
		return cx.build.ICmp(lir.PredULT, a, b), nil
	case cfg.CULte:
		return cx.build.ICmp(lir.PredULE, a, b), nil
	case cfg.CFEql:
		return cx.build.FCmp(lir.PredEQ, a, b), nil
	case cfg.CFLt:
		return cx.build.FCmp(lir.PredSLT, a, b), nil
	}
	return nil, fmt.Errorf("unknown branch comparison %d", s.Cmp)
}

// limitCheck emits the heap-limit test. The limit pointer sits an
// allocation-slop below the true heap end, so allocations of up to the
// slop need only the plain compare; larger ones add the excess first.
func (cx *Context) limitCheck(s *cfg.Stm) (*lir.Value, error) {
	var amount int64
	if len(s.Args) == 1 {
		if s.Args[0].Kind != cfg.ExpNum {
			return nil, fmt.Errorf("limit check amount must be a literal")
		}
		amount = s.Args[0].IntVal
	} else if len(s.Args) != 0 {
		return nil, fmt.Errorf("limit check takes at most one arg, got %d", len(s.Args))
	}
	alloc := cx.build.AsInt(cx.Reg(regs.AllocPtr))
	limit := cx.build.AsInt(cx.Reg(regs.LimitPtr))
	slop := int64(cx.tgt.AllocSlopSzB)
	if amount > slop {
		alloc = cx.build.Add(alloc, cx.curFn.WordConst(amount-slop))
	}
	return cx.build.ICmp(lir.PredUGE, alloc, limit), nil
}

func (cx *Context) lowerArith(s *cfg.Stm) error {
	args := make([]*lir.Value, len(s.Args))
	for i, a := range s.Args {
		v, err := cx.lowerExp(a)
		if err != nil {
			return err
		}
		args[i] = v
	}
	var res *lir.Value
	switch s.Arith {
	case cfg.AIAdd, cfg.AISub, cfg.AIMul:
		op := map[cfg.ArithOp]lir.Op{
			cfg.AIAdd: lir.OpAddOvflw,
			cfg.AISub: lir.OpSubOvflw,
			cfg.AIMul: lir.OpMulOvflw,
		}[s.Arith]
		var flag *lir.Value
		res, flag = cx.build.ArithOvflw(op, args[0], args[1])
		cont := cx.NewBlock(fmt.Sprintf("ok.b%d", len(cx.curFn.Blocks)))
		cx.build.CondBr(flag, cx.OverflowBB(), cont, 1)
		cx.SetInsertBlock(cont)
	case cfg.AIDiv:
		// The hardware traps on division overflow and zero divisors; the
		// runtime maps the trap to the overflow/div exceptions.
		res = cx.build.SDiv(args[0], args[1])
	case cfg.AIRem:
		res = cx.build.SRem(args[0], args[1])
	case cfg.AFloatToInt:
		res = cx.build.Cast(lir.OpFPToSI, args[0], lir.Word)
	default:
		return fmt.Errorf("unknown arith op %d", s.Arith)
	}
	cx.InsertVal(s.Bind.Name, cx.coerce(res, s.Bind.Ty))
	return cx.lowerStm(s.Cont)
}

func (cx *Context) lowerSetter(s *cfg.Stm) error {
	w := cx.tgt.WordSzB
	switch s.Setter {
	case cfg.SUpdate:
		addr, err := cx.lowerExp(s.Args[0])
		if err != nil {
			return err
		}
		v, err := cx.lowerExp(s.Args[1])
		if err != nil {
			return err
		}
		cx.build.Store(v, addr, w)
		// Log the mutation on the store list so the minor collection can
		// find old-to-new pointers.
		rec := cx.AllocRecord(nil, []*lir.Value{
			cx.build.AsInt(addr),
			cx.build.AsInt(cx.Reg(regs.StorePtr)),
		})
		cx.SetReg(regs.StorePtr, rec)
	case cfg.SUnboxedUpdate, cfg.SRawUpdate:
		addr, err := cx.lowerExp(s.Args[0])
		if err != nil {
			return err
		}
		v, err := cx.lowerExp(s.Args[1])
		if err != nil {
			return err
		}
		align := w
		if v.Type.IsFloat() || v.Type == lir.I32 {
			align = v.Type.SizeB()
		}
		cx.build.Store(v, addr, align)
	case cfg.SSetHdlr:
		v, err := cx.lowerExp(s.Args[0])
		if err != nil {
			return err
		}
		cx.SetReg(regs.ExnPtr, cx.build.AsPtr(v))
	case cfg.SSetVar:
		v, err := cx.lowerExp(s.Args[0])
		if err != nil {
			return err
		}
		cx.SetReg(regs.VarPtr, cx.build.AsPtr(v))
	default:
		return fmt.Errorf("unknown setter op %d", s.Setter)
	}
	return cx.lowerStm(s.Cont)
}

func (cx *Context) lowerCallGC(s *cfg.Stm) error {
	if len(s.Roots) != len(s.NewRoots) {
		return fmt.Errorf("callgc has %d roots but %d rebinds", len(s.Roots), len(s.NewRoots))
	}
	roots := make([]*lir.Value, len(s.Roots))
	for i, r := range s.Roots {
		v, err := cx.lowerExp(r)
		if err != nil {
			return err
		}
		roots[i] = cx.build.AsPtr(v)
	}
	// The collector call is the one non-tail transfer; the register state
	// save/restore must strictly bracket it.
	var snap regs.State
	cx.SaveRegState(&snap)
	reloadIDs := cx.gcReloadRegs()
	rebound, reloaded := cx.build.CallGC(roots, len(reloadIDs))
	cx.RestoreRegState(&snap)
	// The collection moved the heap: the allocation and limit pointers
	// come back fresh from the call, never from the snapshot — restoring
	// the pre-call values would address the stale frontier. Every root is
	// rebound the same way.
	for i, id := range reloadIDs {
		cx.SetReg(id, reloaded[i])
	}
	for i, lv := range s.NewRoots {
		cx.InsertVal(lv, rebound[i])
	}
	return cx.lowerStm(s.Cont)
}
