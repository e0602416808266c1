package voice

import (
	"math"
	"sync/atomic"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/dsp"
)

type (
	// Instance is one triggered note of a voice: a graph node that renders
	// the voice's signal chain from its start frame until its envelope and
	// release tail are over, then lets the graph release it.
	Instance struct {
		Voice    darkmix.VoiceID
		Start    float64 // seconds
		Pitch    float64
		Velocity float64

		def        *darkmix.VoiceDefinition
		sampleRate int
		startFrame int64
		endFrame   int64
		hold       float64 // seconds until the release stage
		freq       float64
		panL, panR float64

		stealer   atomic.Pointer[Instance]
		stealFade int64
		state     atomic.Int32
		endedAt   atomic.Int64

		oscs   []dsp.Osc
		ratios []float64
		noise  dsp.Rand
		filter [1]dsp.SVF
	}

	State int32
)

const (
	Scheduled State = iota
	Playing
	Finished
	Cancelled
)

func (s State) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Playing:
		return "playing"
	case Finished:
		return "finished"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

func newInstance(def *darkmix.VoiceDefinition, sampleRate int, at, pitch, velocity, gate float64, seed uint32) *Instance {
	sr := float64(sampleRate)
	in := &Instance{
		Voice:      def.Name,
		Start:      at,
		Pitch:      pitch,
		Velocity:   velocity,
		def:        def,
		sampleRate: sampleRate,
		startFrame: int64(math.Round(at * sr)),
		hold:       def.EnvelopeDuration(gate),
		freq:       def.Frequency(pitch),
		noise:      dsp.NewRand(seed),
	}
	in.endFrame = in.startFrame + int64(math.Ceil(def.Lifetime(gate)*sr))
	in.stealFade = max(int64(def.StealFadeTime()*sr), 1)
	in.endedAt.Store(-1)
	in.panL, in.panR = dsp.PanGains(def.Pan)
	n := max(def.Unison, 1)
	in.oscs = make([]dsp.Osc, n)
	in.ratios = make([]float64, n)
	for k := range in.oscs {
		cents := 0.0
		if n > 1 {
			cents = def.Detune * (2*float64(k)/float64(n-1) - 1)
			in.oscs[k].Phase = float64(k) / float64(n)
		}
		in.ratios[k] = math.Exp2(cents / 1200)
	}
	return in
}

// End is the time (seconds) the instance stops sounding, unless stolen
// earlier.
func (in *Instance) End() float64 {
	return float64(in.endFrame) / float64(in.sampleRate)
}

// State returns the lifecycle state. Safe to call from any goroutine.
func (in *Instance) State() State {
	return State(in.state.Load())
}

// Done reports whether the graph has let go of the instance, either because
// it finished or because it was cancelled before starting.
func (in *Instance) Done() bool {
	s := in.State()
	return s == Finished || s == Cancelled
}

// EndedAt is the frame the instance stopped rendering, or -1.
func (in *Instance) EndedAt() int64 {
	return in.endedAt.Load()
}

// StealBy fades the instance out over the voice's steal fade when next
// starts. If next is cancelled before it starts, the instance plays on. Safe
// to call from the control goroutine while rendering.
func (in *Instance) StealBy(next *Instance) {
	in.stealer.Store(next)
}

// stealFrame is the frame the steal fade starts, or math.MaxInt64.
func (in *Instance) stealFrame() int64 {
	next := in.stealer.Load()
	if next == nil || next.State() == Cancelled {
		return math.MaxInt64
	}
	return next.startFrame
}

// Released implements graph.Releaser.
func (in *Instance) Released(cancelled bool) {
	if cancelled {
		in.state.Store(int32(Cancelled))
		return
	}
	in.state.Store(int32(Finished))
}

func (in *Instance) Render(buf darkmix.AudioBuffer, frame int64) bool {
	if in.State() == Scheduled {
		in.state.Store(int32(Playing))
	}
	def := in.def
	sr := float64(in.sampleRate)
	steal := in.stealFrame()
	end := in.endFrame
	if steal != math.MaxInt64 {
		end = min(end, steal+in.stealFade)
	}
	amp := def.Gain * in.Velocity
	for i := range buf {
		f := frame + int64(i)
		if f >= end {
			in.endedAt.Store(f)
			return false
		}
		t := float64(f-in.startFrame) / sr
		env := dsp.EnvelopeLevel(def.Envelope, in.hold, t)
		if f >= steal {
			env *= 1 - float64(f-steal)/float64(in.stealFade)
		}
		s := in.oscillate(t)
		if def.Drive > 0 {
			s = dsp.Waveshape(s, dsp.DriveAmount(def.Drive))
		}
		if def.Filter.Mode != darkmix.FilterNone {
			s = in.filterSample(s, env)
		}
		out := s * env * amp
		buf[i][0] += float32(out * in.panL)
		buf[i][1] += float32(out * in.panR)
	}
	if frame+int64(len(buf)) >= end {
		in.endedAt.Store(end)
		return false
	}
	return true
}

func (in *Instance) oscillate(t float64) float64 {
	def := in.def
	if def.Waveform == darkmix.Noise {
		return in.noise.Next()
	}
	freq := in.freq
	if pe := def.PitchEnv; pe.Amount != 0 && pe.Decay > 0 {
		freq *= math.Exp2(pe.Amount * math.Exp(-t/pe.Decay) / 12)
	}
	var s float64
	for k := range in.oscs {
		s += in.oscs[k].Next(def.Waveform, freq*in.ratios[k], in.sampleRate)
	}
	return s / float64(len(in.oscs))
}

// filterSample sweeps the cutoff exponentially between the voice's range,
// driven by the envelope and the velocity.
func (in *Instance) filterSample(s, env float64) float64 {
	fr := in.def.Filter
	mod := fr.EnvAmount*env + (1-fr.EnvAmount)*0.5
	mod = darkmix.Clamp(mod*in.Velocity, 0, 1)
	cutoff := fr.CutoffMin * math.Pow(fr.CutoffMax/fr.CutoffMin, mod)
	q := 0.5 + fr.Resonance*4
	low, band, high := in.filter[0].Process(s, dsp.NewSVFCoeffs(cutoff, q, in.sampleRate))
	switch fr.Mode {
	case darkmix.FilterHighpass:
		return high
	case darkmix.FilterBandpass:
		return band
	}
	return low
}
