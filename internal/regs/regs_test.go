package regs

import (
	"errors"
	"testing"

	"cgen/internal/lir"
	"cgen/internal/target"
)

func lookup(t *testing.T, name string) *target.Info {
	t.Helper()
	target.Initialize()
	info, err := target.Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	return info
}

func TestConventionBindings(t *testing.T) {
	amd64 := NewConventions(lookup(t, "x86_64"))
	arm64 := NewConventions(lookup(t, "aarch64"))

	// amd64 keeps storePtr/exnPtr/varPtr in the runtime frame.
	if got := amd64.NumMachineRegs(); got != 2 {
		t.Fatalf("amd64 machine regs = %d, want 2", got)
	}
	for _, id := range []ID{StorePtr, ExnPtr, VarPtr} {
		if !amd64.Info(id).IsMemReg() {
			t.Errorf("amd64 %v should be memory resident", id)
		}
		if amd64.Info(id).Offset() == 0 {
			t.Errorf("amd64 %v has zero stack offset", id)
		}
	}
	// arm64 binds all five to machine registers.
	if got := arm64.NumMachineRegs(); got != int(NumSpecial) {
		t.Fatalf("arm64 machine regs = %d, want %d", got, NumSpecial)
	}
	// Machine-resident specials occupy a dense parameter prefix.
	for i, ri := range arm64.MachineRegs() {
		if ri.Index() != i {
			t.Errorf("arm64 %v index = %d, want %d", ri.ID(), ri.Index(), i)
		}
	}
}

func TestStateRoundTrip(t *testing.T) {
	m := lir.NewModule("t", 1)
	f := m.NewFunc("f", 0, false, false)

	var st State
	for id := ID(0); id < NumSpecial; id++ {
		v := f.WordConst(int64(id) + 100)
		st.Set(id, v)
		if got := st.Get(id); got != v {
			t.Fatalf("Get(%v) after Set did not return the same value", id)
		}
	}

	var snap State
	st.CopyTo(&snap)
	var restored State
	restored.CopyFrom(&snap)
	for id := ID(0); id < NumSpecial; id++ {
		if restored.Get(id) != st.Get(id) {
			t.Errorf("snapshot round-trip lost %v", id)
		}
	}
}

func TestBasePtrInvariant(t *testing.T) {
	m := lir.NewModule("t", 1)
	f := m.NewFunc("f", 0, false, false)

	var st State
	if _, err := st.BasePtr(); !errors.Is(err, ErrNoBasePtr) {
		t.Fatalf("BasePtr on empty state: err = %v, want ErrNoBasePtr", err)
	}

	base := f.WordConst(0x1000)
	st.SetBasePtr(base)

	// CopyFrom must not clobber the base pointer: it is invariant per
	// cluster and is never part of a snapshot.
	var snap State
	st.CopyFrom(&snap)
	got, err := st.BasePtr()
	if err != nil || got != base {
		t.Fatalf("base pointer lost across CopyFrom: %v, %v", got, err)
	}
}
