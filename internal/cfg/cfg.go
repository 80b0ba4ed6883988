// Package cfg defines the control-flow-graph compilation unit consumed by
// the code generator, together with its serialized form. The tree arrives
// fully decoded; the generator never mutates it.
package cfg

// LVar is a unique-per-unit integer identifier naming labels and local
// values.
type LVar int32

// TyKind enumerates the parameter/value types that appear in the tree.
type TyKind uint8

const (
	// TyWord is an untagged native-word integer.
	TyWord TyKind = iota
	// TyTagged is a tagged integer (value shifted left with the low tag
	// bit set).
	TyTagged
	// TyPtr is a heap pointer.
	TyPtr
	// TyLabel is a code address.
	TyLabel
	// TyI32 is a raw 32-bit integer.
	TyI32
	// TyI64 is a raw 64-bit integer.
	TyI64
	// TyF32 is a raw 32-bit float.
	TyF32
	// TyF64 is a raw 64-bit float.
	TyF64
)

func (k TyKind) String() string {
	switch k {
	case TyWord:
		return "word"
	case TyTagged:
		return "tagged"
	case TyPtr:
		return "ptr"
	case TyLabel:
		return "label"
	case TyI32:
		return "i32"
	case TyI64:
		return "i64"
	case TyF32:
		return "f32"
	case TyF64:
		return "f64"
	}
	return "?"
}

// Param is a fragment parameter.
type Param struct {
	Name LVar   `msgpack:"name"`
	Ty   TyKind `msgpack:"ty"`
}

// FragKind distinguishes the entry conventions of a fragment. StdFun and
// StdCont may only appear on the entry fragment of a cluster; every other
// fragment is Internal (or KnownFun for known entry points).
type FragKind uint8

const (
	// StdFun is the standard-function entry convention.
	StdFun FragKind = iota
	// StdCont is the standard-continuation entry convention.
	StdCont
	// KnownFun is an entry with a known, specialized convention.
	KnownFun
	// Internal is a fragment reached only from within its cluster.
	Internal
)

func (k FragKind) String() string {
	switch k {
	case StdFun:
		return "STD_FUN"
	case StdCont:
		return "STD_CONT"
	case KnownFun:
		return "KNOWN_FUN"
	case Internal:
		return "INTERNAL"
	}
	return "?"
}

// IsEntry reports whether the kind is a cluster-entry convention.
func (k FragKind) IsEntry() bool { return k != Internal }

// Frag is a unit of code reachable through a label: a basic block with its
// own parameter list.
type Frag struct {
	Kind   FragKind `msgpack:"kind"`
	Label  LVar     `msgpack:"label"`
	Params []Param  `msgpack:"params"`
	Body   *Stm     `msgpack:"body"`
}

// Attrs carries per-cluster attributes.
type Attrs struct {
	AlignHP      int  `msgpack:"align_hp"`
	NeedsBasePtr bool `msgpack:"needs_base_ptr"`
	ReqdFPRegs   int  `msgpack:"reqd_fp_regs"`
}

// Cluster is a maximal set of fragments compiled into one machine
// function. Frags[0] is the externally visible entry.
type Cluster struct {
	Attrs Attrs   `msgpack:"attrs"`
	Frags []*Frag `msgpack:"frags"`
}

// Entry returns the cluster's entry fragment.
func (c *Cluster) Entry() *Frag { return c.Frags[0] }

// CompUnit is one compilation unit: the entry cluster plus the other
// clusters it references.
type CompUnit struct {
	SrcFile  string     `msgpack:"src_file"`
	Entry    *Cluster   `msgpack:"entry"`
	Clusters []*Cluster `msgpack:"clusters"`
}

// All returns every cluster with the entry cluster first.
func (u *CompUnit) All() []*Cluster {
	all := make([]*Cluster, 0, len(u.Clusters)+1)
	all = append(all, u.Entry)
	return append(all, u.Clusters...)
}
