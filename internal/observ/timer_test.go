package observ

import (
	"testing"
	"time"
)

func TestReportOrdersPhases(t *testing.T) {
	tm := NewTimer()
	a := tm.Begin("decode")
	time.Sleep(time.Millisecond)
	tm.End(a, "unit.pkl")
	b := tm.Begin("emit")
	tm.End(b, "")

	r := tm.Report()
	if len(r.Phases) != 2 || r.Phases[0].Name != "decode" || r.Phases[1].Name != "emit" {
		t.Fatalf("phases = %+v", r.Phases)
	}
	if r.Phases[0].Note != "unit.pkl" {
		t.Errorf("note = %q, want unit.pkl", r.Phases[0].Note)
	}
	if r.Phases[0].DurationMS <= 0 {
		t.Errorf("decode duration = %v, want > 0", r.Phases[0].DurationMS)
	}
	if r.TotalMS < r.Phases[0].DurationMS {
		t.Errorf("total %v < decode %v", r.TotalMS, r.Phases[0].DurationMS)
	}
}

func TestOpenSpanReportsZero(t *testing.T) {
	tm := NewTimer()
	tm.Begin("lower")
	if r := tm.Report(); r.Phases[0].DurationMS != 0 {
		t.Errorf("open span duration = %v, want 0", r.Phases[0].DurationMS)
	}
}

func TestEndIgnoresBadHandle(t *testing.T) {
	tm := NewTimer()
	tm.End(3, "")
	if r := tm.Report(); len(r.Phases) != 0 {
		t.Errorf("report = %+v, want empty", r)
	}
}
