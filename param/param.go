// Package param implements smoothed parameters driven by explicit ramp
// descriptors. Times are seconds on the engine clock.
package param

import "math"

type (
	// Ramp moves a value linearly from From to To, starting at Start and
	// lasting Duration seconds. Before Start the value is From, after the
	// end it is To.
	Ramp struct {
		From     float64
		To       float64
		Start    float64
		Duration float64
	}

	// Param is a parameter whose changes are applied as ramps. Ramps can be
	// scheduled ahead of time; a ramp starting while another one is in
	// progress begins from the value the parameter has at that moment, so the
	// output never jumps.
	//
	// Param is not safe for concurrent use: it lives on the render goroutine
	// and ValueAt must be called with non-decreasing times.
	Param struct {
		current Ramp
		pending []Ramp // sorted by Start; From is filled in when the ramp begins
		last    float64
	}
)

// ValueAt evaluates the ramp at time t.
func (r Ramp) ValueAt(t float64) float64 {
	if t < r.Start || (t == r.Start && r.Duration > 0) {
		return r.From
	}
	if r.Duration <= 0 || t >= r.Start+r.Duration {
		return r.To
	}
	return r.From + (r.To-r.From)*(t-r.Start)/r.Duration
}

// End is the time the ramp reaches its target.
func (r Ramp) End() float64 {
	return r.Start + math.Max(r.Duration, 0)
}

// MaxStep is the largest change between two consecutive samples at the given
// sample rate.
func (r Ramp) MaxStep(sampleRate int) float64 {
	d := math.Abs(r.To - r.From)
	samples := r.Duration * float64(sampleRate)
	if samples <= 1 {
		return d
	}
	return d / samples
}

func New(value float64) *Param {
	return &Param{current: Ramp{From: value, To: value}}
}

// Set schedules a ramp to value starting at time at and lasting dur seconds.
// Ramps scheduled at or after at replace earlier scheduled ones from that
// point on.
func (p *Param) Set(value, at, dur float64) {
	r := Ramp{To: value, Start: at, Duration: dur}
	i := len(p.pending)
	for i > 0 && p.pending[i-1].Start >= at {
		i--
	}
	p.pending = append(p.pending[:i], r)
}

// ValueAt returns the value at time t, starting any ramps that are due. A
// ramp scheduled in the past starts from the last evaluated time instead.
func (p *Param) ValueAt(t float64) float64 {
	for len(p.pending) > 0 && p.pending[0].Start <= t {
		next := p.pending[0]
		next.Start = math.Max(next.Start, p.last)
		next.From = p.current.ValueAt(next.Start)
		p.current = next
		p.pending = p.pending[1:]
	}
	p.last = t
	return p.current.ValueAt(t)
}

// Target is the value the parameter ends up with once all scheduled ramps
// are done.
func (p *Param) Target() float64 {
	if n := len(p.pending); n > 0 {
		return p.pending[n-1].To
	}
	return p.current.To
}

// Settled reports whether the parameter is constant from time t on.
func (p *Param) Settled(t float64) bool {
	return len(p.pending) == 0 && t >= p.current.End()
}

// Current returns the ramp in effect.
func (p *Param) Current() Ramp {
	return p.current
}
