package effects

import (
	"math"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/dsp"
)

type (
	// ParamSpec declares a stage parameter: its name, range and default.
	ParamSpec struct {
		Name     string
		Min, Max float64
		Default  float64
	}

	// processor is the signal path of one stage. tick is called once per
	// frame with the current (smoothed) parameter values in ParamSpec order.
	processor interface {
		tick(x [2]float64, p []float64) [2]float64
		reset()
	}

	filterStage struct {
		sampleRate int
		svf        [2]dsp.SVF
		coeffs     dsp.SVFCoeffs
		cutoff, q  float64
	}

	distortionStage struct{}

	eqStage struct {
		sampleRate    int
		bands         [3][2]dsp.Biquad
		coeffs        [3]dsp.BiquadCoeffs
		low, mid, top float64
	}

	reverbStage struct {
		combs     [2][]comb
		allpasses [2][]allpass
	}

	comb struct {
		buf   []float64
		idx   int
		store float64
	}

	allpass struct {
		buf []float64
		idx int
	}
)

// EQ corner frequencies.
const (
	EQLowFreq  = 120.0
	EQMidFreq  = 1000.0
	EQMidQ     = 0.7
	EQHighFreq = 8000.0
)

var stageSpecs = map[darkmix.StageType][]ParamSpec{
	darkmix.StageFilter: {
		{Name: "cutoff", Min: 20, Max: 20000, Default: 20000},
		{Name: "resonance", Min: 0.5, Max: 10, Default: 0.707},
	},
	darkmix.StageDistortion: {
		{Name: "drive", Min: 0, Max: 1, Default: 0},
		{Name: "mix", Min: 0, Max: 1, Default: 1},
		{Name: "gain", Min: 0, Max: 2, Default: 1},
	},
	darkmix.StageEQ: {
		{Name: "low", Min: -24, Max: 12, Default: 0},
		{Name: "mid", Min: -24, Max: 12, Default: 0},
		{Name: "high", Min: -24, Max: 12, Default: 0},
	},
	darkmix.StageReverb: {
		{Name: "mix", Min: 0, Max: 1, Default: 0.2},
		{Name: "room", Min: 0, Max: 1, Default: 0.8},
		{Name: "damp", Min: 0, Max: 1, Default: 0.5},
	},
}

// Specs returns the parameters of a stage type.
func Specs(t darkmix.StageType) ([]ParamSpec, bool) {
	s, ok := stageSpecs[t]
	return s, ok
}

func newProcessor(t darkmix.StageType, sampleRate int) processor {
	switch t {
	case darkmix.StageFilter:
		return &filterStage{sampleRate: sampleRate, cutoff: -1}
	case darkmix.StageDistortion:
		return distortionStage{}
	case darkmix.StageEQ:
		return &eqStage{sampleRate: sampleRate, low: math.NaN()}
	case darkmix.StageReverb:
		return newReverb(sampleRate)
	}
	return nil
}

func (f *filterStage) tick(x [2]float64, p []float64) [2]float64 {
	if p[0] != f.cutoff || p[1] != f.q {
		f.cutoff, f.q = p[0], p[1]
		f.coeffs = dsp.NewSVFCoeffs(f.cutoff, f.q, f.sampleRate)
	}
	for c := range x {
		x[c], _, _ = f.svf[c].Process(x[c], f.coeffs)
	}
	return x
}

func (f *filterStage) reset() {
	f.svf[0].Reset()
	f.svf[1].Reset()
}

func (distortionStage) tick(x [2]float64, p []float64) [2]float64 {
	amount := dsp.DriveAmount(p[0])
	for c := range x {
		wet := dsp.Waveshape(x[c], amount)
		x[c] = (x[c]*(1-p[1]) + wet*p[1]) * p[2]
	}
	return x
}

func (distortionStage) reset() {}

func (e *eqStage) tick(x [2]float64, p []float64) [2]float64 {
	if p[0] != e.low || p[1] != e.mid || p[2] != e.top {
		e.low, e.mid, e.top = p[0], p[1], p[2]
		e.coeffs[0] = dsp.LowShelf(EQLowFreq, e.low, e.sampleRate)
		e.coeffs[1] = dsp.Peaking(EQMidFreq, EQMidQ, e.mid, e.sampleRate)
		e.coeffs[2] = dsp.HighShelf(EQHighFreq, e.top, e.sampleRate)
	}
	for c := range x {
		for b := range e.bands {
			x[c] = e.bands[b][c].Process(x[c], e.coeffs[b])
		}
	}
	return x
}

func (e *eqStage) reset() {
	for b := range e.bands {
		e.bands[b][0].Reset()
		e.bands[b][1].Reset()
	}
}

// Freeverb style tunings at 44.1 kHz, scaled to the engine rate.
var (
	combTunings    = []int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
	allpassTunings = []int{556, 441, 341, 225}
)

const (
	stereoSpread = 23
	reverbInput  = 0.015
)

func newReverb(sampleRate int) *reverbStage {
	scale := float64(sampleRate) / 44100
	r := &reverbStage{}
	for c := 0; c < 2; c++ {
		spread := c * stereoSpread
		for _, n := range combTunings {
			r.combs[c] = append(r.combs[c], comb{buf: make([]float64, int(float64(n+spread)*scale))})
		}
		for _, n := range allpassTunings {
			r.allpasses[c] = append(r.allpasses[c], allpass{buf: make([]float64, int(float64(n+spread)*scale))})
		}
	}
	return r
}

func (r *reverbStage) tick(x [2]float64, p []float64) [2]float64 {
	mix, feedback, damp := p[0], 0.7+0.28*p[1], 0.4*p[2]
	in := (x[0] + x[1]) * reverbInput
	for c := range x {
		var out float64
		for i := range r.combs[c] {
			out += r.combs[c][i].process(in, feedback, damp)
		}
		for i := range r.allpasses[c] {
			out = r.allpasses[c][i].process(out)
		}
		x[c] = x[c]*(1-mix) + out*mix
	}
	return x
}

func (r *reverbStage) reset() {
	for c := range r.combs {
		for i := range r.combs[c] {
			clear(r.combs[c][i].buf)
			r.combs[c][i].store = 0
		}
		for i := range r.allpasses[c] {
			clear(r.allpasses[c][i].buf)
		}
	}
}

func (c *comb) process(in, feedback, damp float64) float64 {
	out := c.buf[c.idx]
	c.store = out*(1-damp) + c.store*damp
	c.buf[c.idx] = in + c.store*feedback
	if c.idx++; c.idx >= len(c.buf) {
		c.idx = 0
	}
	return out
}

func (a *allpass) process(in float64) float64 {
	buffered := a.buf[a.idx]
	out := buffered - in
	a.buf[a.idx] = in + buffered*0.5
	if a.idx++; a.idx >= len(a.buf) {
		a.idx = 0
	}
	return out
}
