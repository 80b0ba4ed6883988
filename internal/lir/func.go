package lir

// Func is one machine function: the compiled form of a cluster. Blocks[0]
// is the entry block; its parameters are the full physical parameter list
// of the calling convention (special registers first, then the explicit
// arguments).
type Func struct {
	Name string
	// NSpecialParams is the number of leading entry parameters that are
	// bound to the convention's pinned registers. The encoders map
	// parameter i < NSpecialParams to special register i.
	NSpecialParams int
	// HasBaseParam marks a base-pointer parameter following the specials.
	HasBaseParam bool
	// Exported marks the module entry function, which alone gets external
	// linkage in the emitted object file.
	Exported bool

	Blocks []*Block

	nextValue ValueID
	nextBlock BlockID
}

// Entry returns the entry block.
func (f *Func) Entry() *Block { return f.Blocks[0] }

// NewBlock appends a fresh, empty block to the function.
func (f *Func) NewBlock(name string) *Block {
	b := &Block{ID: f.nextBlock, Name: name}
	f.nextBlock++
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewValue allocates a fresh value of the given type.
func (f *Func) NewValue(ty Type) *Value {
	v := &Value{ID: f.nextValue, Type: ty}
	f.nextValue++
	return v
}

// AddParam appends a parameter value to a block.
func (f *Func) AddParam(b *Block, ty Type) *Value {
	v := f.NewValue(ty)
	b.Params = append(b.Params, v)
	return v
}

// IConst returns an integer constant of the given type.
func (f *Func) IConst(ty Type, val int64) *Value {
	v := f.NewValue(ty)
	v.Const = true
	v.IntVal = val
	return v
}

// WordConst returns a native-word integer constant.
func (f *Func) WordConst(val int64) *Value { return f.IConst(Word, val) }

// FConst returns a float constant of the given type.
func (f *Func) FConst(ty Type, val float64) *Value {
	v := f.NewValue(ty)
	v.Const = true
	v.FltVal = val
	return v
}

// FnAddr returns a value holding the address of fn.
func (f *Func) FnAddr(fn *Func) *Value {
	v := f.NewValue(Ptr)
	v.Const = true
	v.Fn = fn
	return v
}

// Module is one compilation module: the functions for all clusters of a
// compilation unit. It is created fresh per unit and discarded at module
// end.
type Module struct {
	Name   string
	Triple string
	Funcs  []*Func
}

// NewModule creates a module sized with a cluster-count capacity hint.
func NewModule(name string, nClusters int) *Module {
	return &Module{Name: name, Funcs: make([]*Func, 0, nClusters)}
}

// NewFunc creates a function and appends it to the module.
func (m *Module) NewFunc(name string, nSpecial int, hasBase, exported bool) *Func {
	f := &Func{
		Name:           name,
		NSpecialParams: nSpecial,
		HasBaseParam:   hasBase,
		Exported:       exported,
	}
	f.NewBlock("entry")
	m.Funcs = append(m.Funcs, f)
	return f
}
