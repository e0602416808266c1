package param_test

import (
	"math"
	"testing"

	"github.com/firehorse/darkmix/param"
)

const sampleRate = 44100

func TestRampValueAt(t *testing.T) {
	r := param.Ramp{From: 1, To: 3, Start: 2, Duration: 0.5}
	testCases := []struct {
		t, want float64
	}{
		{0, 1}, {2, 1}, {2.25, 2}, {2.5, 3}, {10, 3},
	}
	for _, tc := range testCases {
		if got := r.ValueAt(tc.t); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("ValueAt(%v) = %v, want %v", tc.t, got, tc.want)
		}
	}
	if r.End() != 2.5 {
		t.Errorf("End() = %v", r.End())
	}
	if got := (param.Ramp{From: 0, To: 1, Duration: 0}).ValueAt(0.001); got != 1 {
		t.Errorf("zero length ramp should reach target immediately, got %v", got)
	}
}

func TestParamNeverJumps(t *testing.T) {
	const rampTime = 0.03
	p := param.New(0)
	p.Set(1, 0.1, rampTime)
	// retarget halfway through the first ramp
	p.Set(-1, 0.115, rampTime)
	bound := param.Ramp{From: 1, To: -1, Duration: rampTime}.MaxStep(sampleRate) + 1e-9
	prev := p.ValueAt(0)
	for i := 1; i < sampleRate/2; i++ {
		v := p.ValueAt(float64(i) / sampleRate)
		if d := math.Abs(v - prev); d > bound {
			t.Fatalf("sample %d: jump of %v exceeds %v", i, d, bound)
		}
		prev = v
	}
	if math.Abs(prev+1) > 1e-12 {
		t.Errorf("expected to settle at -1, got %v", prev)
	}
	if !p.Settled(0.5) || p.Target() != -1 {
		t.Errorf("expected settled at -1, target %v", p.Target())
	}
}

func TestParamSetReplacesLaterRamps(t *testing.T) {
	p := param.New(0)
	p.Set(1, 1, 0)
	p.Set(2, 2, 0)
	p.Set(5, 1.5, 0)
	if p.Target() != 5 {
		t.Fatalf("expected the ramp at 2s to be replaced, target %v", p.Target())
	}
	if v := p.ValueAt(3); v != 5 {
		t.Errorf("ValueAt(3) = %v", v)
	}
}

func TestParamLateRampStartsFromCurrentValue(t *testing.T) {
	p := param.New(0)
	p.Set(1, 0, 1)
	if v := p.ValueAt(0.5); math.Abs(v-0.5) > 1e-12 {
		t.Fatalf("ValueAt(0.5) = %v", v)
	}
	p.Set(0, 0.1, 1) // already in the past
	if v := p.ValueAt(0.5 + 1.0/sampleRate); math.Abs(v-0.5) > 1e-3 {
		t.Errorf("late ramp jumped to %v", v)
	}
}
