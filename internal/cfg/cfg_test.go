package cfg

import (
	"bytes"
	"strings"
	"testing"
)

// ret builds a THROW to the first parameter, the usual way a fragment
// hands its result to the caller's continuation.
func ret(k LVar, v *Exp) *Stm {
	return &Stm{
		Kind: StmThrow,
		Fn:   &Exp{Kind: ExpVar, Name: k},
		Args: []*Exp{v},
	}
}

func simpleUnit() *CompUnit {
	return &CompUnit{
		SrcFile: "simple.sml",
		Entry: &Cluster{
			Frags: []*Frag{{
				Kind:   StdFun,
				Label:  1,
				Params: []Param{{Name: 2, Ty: TyPtr}},
				Body:   ret(2, &Exp{Kind: ExpNum, IntVal: 42, Sz: 64, Tagged: true}),
			}},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	unit := simpleUnit()
	var buf bytes.Buffer
	if err := Encode(&buf, unit); err != nil {
		t.Fatal(err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.SrcFile != unit.SrcFile {
		t.Errorf("SrcFile = %q, want %q", got.SrcFile, unit.SrcFile)
	}
	frag := got.Entry.Entry()
	if frag.Kind != StdFun || frag.Label != 1 {
		t.Errorf("entry frag = %v/%d", frag.Kind, frag.Label)
	}
	if frag.Body.Kind != StmThrow || frag.Body.Args[0].IntVal != 42 {
		t.Errorf("body did not round-trip: %+v", frag.Body)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode(strings.NewReader("\x00garbage")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestValidateRejectsInternalEntry(t *testing.T) {
	unit := simpleUnit()
	unit.Entry.Frags[0].Kind = Internal
	if err := unit.Validate(); err == nil {
		t.Fatal("expected error for internal entry fragment")
	}
}

func TestValidateRejectsCrossClusterGoto(t *testing.T) {
	unit := simpleUnit()
	unit.Entry.Frags[0].Body = &Stm{Kind: StmGoto, Lab: 99}
	err := unit.Validate()
	if err == nil || !strings.Contains(err.Error(), "goto") {
		t.Fatalf("Validate = %v, want goto error", err)
	}
}

func TestValidateRejectsDuplicateLabels(t *testing.T) {
	unit := simpleUnit()
	unit.Clusters = []*Cluster{{
		Frags: []*Frag{{
			Kind:  StdCont,
			Label: 1, // clashes with the entry cluster
			Body:  &Stm{Kind: StmThrow, Fn: &Exp{Kind: ExpVar, Name: 3}},
		}},
	}}
	if err := unit.Validate(); err == nil {
		t.Fatal("expected duplicate-label error")
	}
}
