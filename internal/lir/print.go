package lir

import (
	"fmt"
	"io"
	"strings"
)

// Print writes a textual rendering of the module, used by --emit-ir.
func (m *Module) Print(w io.Writer) {
	fmt.Fprintf(w, "module %q", m.Name)
	if m.Triple != "" {
		fmt.Fprintf(w, " triple %q", m.Triple)
	}
	fmt.Fprintln(w)
	for _, f := range m.Funcs {
		f.Print(w)
	}
}

// Print writes a textual rendering of the function.
func (f *Func) Print(w io.Writer) {
	linkage := "local"
	if f.Exported {
		linkage = "export"
	}
	fmt.Fprintf(w, "\n%s func %s(%s):\n", linkage, f.Name, valueList(f.Entry().Params))
	for _, b := range f.Blocks {
		if b != f.Entry() {
			fmt.Fprintf(w, "%s(%s):\n", blockName(b), valueList(b.Params))
		}
		for i := range b.Instrs {
			fmt.Fprintf(w, "  %s\n", formatInstr(&b.Instrs[i]))
		}
		fmt.Fprintf(w, "  %s\n", formatTerm(&b.Term))
	}
}

func blockName(b *Block) string {
	if b.Name != "" {
		return b.Name
	}
	return fmt.Sprintf("b%d", b.ID)
}

func valueName(v *Value) string {
	if v == nil {
		return "_"
	}
	if v.Fn != nil {
		return "@" + v.Fn.Name
	}
	if v.Const {
		if v.Type.IsFloat() {
			return fmt.Sprintf("%s %g", v.Type, v.FltVal)
		}
		return fmt.Sprintf("%s %d", v.Type, v.IntVal)
	}
	return fmt.Sprintf("v%d:%s", v.ID, v.Type)
}

func valueList(vs []*Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = valueName(v)
	}
	return strings.Join(parts, ", ")
}

func formatInstr(ins *Instr) string {
	var sb strings.Builder
	if ins.Res != nil {
		fmt.Fprintf(&sb, "v%d = ", ins.Res.ID)
	}
	sb.WriteString(ins.Op.String())
	if ins.Op == OpICmp || ins.Op == OpFCmp {
		sb.WriteByte('.')
		sb.WriteString(ins.Pred.String())
	}
	if len(ins.Args) > 0 {
		sb.WriteByte(' ')
		sb.WriteString(valueList(ins.Args))
	}
	if ins.Flag != nil {
		fmt.Fprintf(&sb, " flag v%d", ins.Flag.ID)
	}
	if len(ins.Results) > 0 {
		fmt.Fprintf(&sb, " -> %s", valueList(ins.Results))
	}
	return sb.String()
}

func formatTerm(t *Terminator) string {
	switch t.Kind {
	case TermBr:
		return fmt.Sprintf("br %s(%s)", blockName(t.Br.Target), valueList(t.Br.Args))
	case TermCondBr:
		s := fmt.Sprintf("condbr %s, %s, %s",
			valueName(t.CondBr.Cond), blockName(t.CondBr.Then), blockName(t.CondBr.Else))
		if t.CondBr.Prob != 0 {
			s += fmt.Sprintf(" prob %d", t.CondBr.Prob)
		}
		return s
	case TermSwitch:
		names := make([]string, len(t.Switch.Targets))
		for i, blk := range t.Switch.Targets {
			names[i] = blockName(blk)
		}
		return fmt.Sprintf("switch %s [%s]", valueName(t.Switch.Index), strings.Join(names, ", "))
	case TermTailCall:
		return fmt.Sprintf("tailcall %s(%s)", valueName(t.TailCall.Callee), valueList(t.TailCall.Args))
	case TermRet:
		return fmt.Sprintf("ret %s", valueName(t.Ret.Value))
	case TermRaiseOvflw:
		return "raise.ovflw"
	case TermUnreachable:
		return "unreachable"
	}
	return "<unterminated>"
}
