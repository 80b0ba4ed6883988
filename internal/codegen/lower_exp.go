package codegen

import (
	"fmt"
	"strconv"

	"cgen/internal/cfg"
	"cgen/internal/lir"
	"cgen/internal/regs"
)

func (cx *Context) lowerExp(e *cfg.Exp) (*lir.Value, error) {
	switch e.Kind {
	case cfg.ExpVar:
		v := cx.LookupVal(e.Name)
		if v == nil {
			return nil, fmt.Errorf("unbound value %d", e.Name)
		}
		return v, nil

	case cfg.ExpLabel:
		if cx.LookupCluster(e.Name) == nil {
			return nil, fmt.Errorf("label %d does not name a cluster", e.Name)
		}
		return cx.curFn.FnAddr(cx.fnMap[e.Name]), nil

	case cfg.ExpNum:
		return cx.lowerNum(e)

	case cfg.ExpSelect:
		p, err := cx.lowerExp(e.Args[0])
		if err != nil {
			return nil, err
		}
		w := cx.tgt.WordSzB
		addr := cx.build.AddrOffset(p, cx.curFn.WordConst(int64(e.Idx*w)))
		return cx.build.Load(lir.Word, addr, w), nil

	case cfg.ExpPure:
		return cx.lowerPure(e)

	case cfg.ExpLooker:
		return cx.lowerLooker(e)
	}
	return nil, fmt.Errorf("unknown expression kind %d", e.Kind)
}

func (cx *Context) lowerNum(e *cfg.Exp) (*lir.Value, error) {
	if e.FltVal != "" {
		f, err := strconv.ParseFloat(e.FltVal, 64)
		if err != nil {
			return nil, fmt.Errorf("bad float literal %q: %w", e.FltVal, err)
		}
		return cx.curFn.FConst(lir.FloatType(e.Sz), f), nil
	}
	if e.Tagged {
		// Tagged integers are shifted left one with the low bit set.
		return cx.curFn.WordConst(2*e.IntVal + 1), nil
	}
	if e.Sz != 0 && e.Sz < cx.tgt.WordSz() {
		return cx.curFn.IConst(lir.IntType(e.Sz), e.IntVal), nil
	}
	return cx.curFn.WordConst(e.IntVal), nil
}

func (cx *Context) lowerArgs(args []*cfg.Exp) ([]*lir.Value, error) {
	vals := make([]*lir.Value, len(args))
	for i, a := range args {
		v, err := cx.lowerExp(a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// pureArity gives the operand count of each pure op.
var pureArity = map[cfg.PureOp]int{
	cfg.PAdd: 2, cfg.PSub: 2, cfg.PMul: 2, cfg.PUDiv: 2, cfg.PURem: 2,
	cfg.PAnd: 2, cfg.POr: 2, cfg.PXor: 2, cfg.PShl: 2, cfg.PLShr: 2,
	cfg.PAShr: 2, cfg.POrb: 1, cfg.PFAdd: 2, cfg.PFSub: 2, cfg.PFMul: 2,
	cfg.PFDiv: 2, cfg.PFNeg: 1, cfg.PFAbs: 1, cfg.PFSqrt: 1,
	cfg.PIntToFloat: 1, cfg.PExtend: 1, cfg.PTrunc: 1,
}

func (cx *Context) lowerPure(e *cfg.Exp) (*lir.Value, error) {
	want, ok := pureArity[e.Pure]
	if !ok {
		return nil, fmt.Errorf("unknown pure op %d", e.Pure)
	}
	if len(e.Args) != want {
		return nil, fmt.Errorf("pure %v needs %d args, got %d", e.Pure, want, len(e.Args))
	}
	args, err := cx.lowerArgs(e.Args)
	if err != nil {
		return nil, err
	}
	switch e.Pure {
	case cfg.PAdd:
		return cx.build.Add(args[0], args[1]), nil
	case cfg.PSub:
		return cx.build.Sub(args[0], args[1]), nil
	case cfg.PMul:
		return cx.build.Mul(args[0], args[1]), nil
	case cfg.PUDiv:
		return cx.build.UDiv(args[0], args[1]), nil
	case cfg.PURem:
		return cx.build.URem(args[0], args[1]), nil
	case cfg.PAnd:
		return cx.build.And(args[0], args[1]), nil
	case cfg.POr:
		return cx.build.Or(args[0], args[1]), nil
	case cfg.PXor:
		return cx.build.Xor(args[0], args[1]), nil
	case cfg.PShl:
		return cx.build.Shl(args[0], args[1]), nil
	case cfg.PLShr:
		return cx.build.LShr(args[0], args[1]), nil
	case cfg.PAShr:
		return cx.build.AShr(args[0], args[1]), nil
	case cfg.POrb:
		return cx.build.Or(args[0], cx.curFn.WordConst(1)), nil
	case cfg.PFAdd:
		return cx.build.FAdd(args[0], args[1]), nil
	case cfg.PFSub:
		return cx.build.FSub(args[0], args[1]), nil
	case cfg.PFMul:
		return cx.build.FMul(args[0], args[1]), nil
	case cfg.PFDiv:
		return cx.build.FDiv(args[0], args[1]), nil
	case cfg.PFNeg:
		return cx.build.FNeg(args[0]), nil
	case cfg.PFAbs:
		return cx.build.FAbs(args[0]), nil
	case cfg.PFSqrt:
		return cx.build.FSqrt(args[0]), nil
	case cfg.PIntToFloat:
		return cx.build.Cast(lir.OpSIToFP, cx.build.AsInt(args[0]), lir.FloatType(e.Sz)), nil
	case cfg.PExtend:
		return cx.build.Cast(lir.OpSExt, args[0], lir.Word), nil
	default: // PTrunc
		return cx.build.Cast(lir.OpTrunc, cx.build.AsInt(args[0]), lir.IntType(e.Sz)), nil
	}
}

func (cx *Context) lowerLooker(e *cfg.Exp) (*lir.Value, error) {
	switch e.Looker {
	case cfg.LDeref:
		p, err := cx.lowerExp(e.Args[0])
		if err != nil {
			return nil, err
		}
		return cx.build.Load(lir.Word, p, cx.tgt.WordSzB), nil
	case cfg.LRawLoad:
		p, err := cx.lowerExp(e.Args[0])
		if err != nil {
			return nil, err
		}
		ty := lir.IntType(e.Sz)
		if e.Sz == 0 || e.Sz == cx.tgt.WordSz() {
			ty = lir.Word
		}
		return cx.build.Load(ty, p, ty.SizeB()), nil
	case cfg.LGetHdlr:
		return cx.Reg(regs.ExnPtr), nil
	case cfg.LGetVar:
		return cx.Reg(regs.VarPtr), nil
	}
	return nil, fmt.Errorf("unknown looker op %d", e.Looker)
}
