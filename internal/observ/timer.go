// Package observ times the phases of one compilation for the --timings
// output.
package observ

import "time"

// span is one timed pipeline phase. The note carries a phase-specific
// detail, such as the input path on the decode phase.
type span struct {
	name  string
	start time.Time
	dur   time.Duration
	note  string
}

// Timer accumulates the spans of a compilation in pipeline order.
type Timer struct {
	spans []span
}

// NewTimer returns a timer sized for the standard pipeline: decode,
// lower, optimize, emit.
func NewTimer() *Timer { return &Timer{spans: make([]span, 0, 4)} }

// Begin opens a span and returns the handle to pass to End.
func (t *Timer) Begin(name string) int {
	t.spans = append(t.spans, span{name: name, start: time.Now()})
	return len(t.spans) - 1
}

// End closes the span. A span left open reports a zero duration.
func (t *Timer) End(idx int, note string) {
	if idx < 0 || idx >= len(t.spans) {
		return
	}
	s := &t.spans[idx]
	s.dur = time.Since(s.start)
	s.note = note
}

// PhaseReport is the serializable form of one timed phase.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

// Report aggregates the phase durations of one compilation.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

// Report collects the closed spans and the total in milliseconds.
func (t *Timer) Report() Report {
	if len(t.spans) == 0 {
		return Report{}
	}
	r := Report{Phases: make([]PhaseReport, len(t.spans))}
	var total time.Duration
	for i, s := range t.spans {
		total += s.dur
		r.Phases[i] = PhaseReport{
			Name:       s.name,
			DurationMS: millis(s.dur),
			Note:       s.note,
		}
	}
	r.TotalMS = millis(total)
	return r
}

func millis(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
