package target

import "testing"

func TestLookupRequiresInitialize(t *testing.T) {
	registered = false
	byName = nil
	orderedInfo = nil
	if _, err := Lookup("x86_64"); err == nil {
		t.Fatal("expected error before Initialize")
	}
	Initialize()
	if _, err := Lookup("x86_64"); err != nil {
		t.Fatalf("Lookup after Initialize: %v", err)
	}
}

func TestLookupAliases(t *testing.T) {
	Initialize()
	tests := []struct {
		name string
		want Arch
	}{
		{"x86_64", AMD64},
		{"amd64", AMD64},
		{"x86-64", AMD64},
		{"aarch64", ARM64},
		{"arm64", ARM64},
	}
	for _, tt := range tests {
		info, err := Lookup(tt.name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", tt.name, err)
		}
		if info.Arch != tt.want {
			t.Errorf("Lookup(%q).Arch = %v, want %v", tt.name, info.Arch, tt.want)
		}
	}
	if _, err := Lookup("riscv64"); err == nil {
		t.Error("expected error for unsupported target")
	}
}

func TestRoundToWordSz(t *testing.T) {
	Initialize()
	info, err := Lookup("x86_64")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		in, want uint64
	}{
		{0, 0},
		{1, 8},
		{7, 8},
		{8, 8},
		{9, 16},
		{24, 24},
	}
	for _, tt := range tests {
		if got := info.RoundToWordSz(tt.in); got != tt.want {
			t.Errorf("RoundToWordSz(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDescriptorInvariants(t *testing.T) {
	Initialize()
	for _, name := range Names() {
		info, err := Lookup(name)
		if err != nil {
			t.Fatal(err)
		}
		if info.WordSz() != 8*info.WordSzB {
			t.Errorf("%s: WordSz mismatch", name)
		}
		if info.NumGCRoots() != info.NumCalleeSaves+4 {
			t.Errorf("%s: NumGCRoots mismatch", name)
		}
		// The call-gc and raise-overflow slots must not collide with any
		// memory-resident special register.
		for i, off := range info.StkOffset {
			if off == 0 {
				continue
			}
			if off == info.CallGCOffset || off == info.RaiseOvflwOffset {
				t.Errorf("%s: special register %d overlaps runtime slot", name, i)
			}
		}
	}
}
