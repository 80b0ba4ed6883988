package main

import "testing"

func TestStemOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"unit.pkl", "unit"},
		{"dir/sub/unit.pkl", "dir/sub/unit"},
		{"unit.bin", "out"},
		{"unit", "out"},
	}
	for _, tt := range tests {
		if got := stemOf(tt.in); got != tt.want {
			t.Errorf("stemOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSelectEmit(t *testing.T) {
	tests := []struct {
		asm, obj, code, bits bool
		want                 emitMode
		wantErr              bool
	}{
		{want: emitListing},
		{asm: true, want: emitAsmFile},
		{obj: true, want: emitObjFile},
		{code: true, want: emitCode},
		// A bare bits dump needs the materialized object.
		{bits: true, want: emitCode},
		{code: true, bits: true, want: emitCode},
		{asm: true, bits: true, wantErr: true},
		{obj: true, bits: true, wantErr: true},
	}
	for _, tt := range tests {
		got, err := selectEmit(tt.asm, tt.obj, tt.code, tt.bits)
		if (err != nil) != tt.wantErr {
			t.Errorf("selectEmit(%v,%v,%v,%v) error = %v, wantErr %v",
				tt.asm, tt.obj, tt.code, tt.bits, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("selectEmit(%v,%v,%v,%v) = %v, want %v",
				tt.asm, tt.obj, tt.code, tt.bits, got, tt.want)
		}
	}
}
