package darkmix

import (
	"errors"
	"fmt"
	"math"
)

type (
	// VoiceID names a voice of the patch, e.g. "kick" or "bass".
	VoiceID string

	// Waveform is the oscillator shape of a voice.
	Waveform string

	// FilterMode selects the output of a state variable filter.
	FilterMode string

	// VoiceDefinition is the static description of a synthesizer voice. It is
	// immutable after the patch has been loaded and shared read-only by every
	// triggered instance of the voice.
	VoiceDefinition struct {
		Name     VoiceID
		Waveform Waveform
		// Root is the MIDI note number a PatternEvent with Pitch 0 plays.
		Root int
		// Unison oscillators spread by Detune cents. 0 and 1 both mean a
		// single oscillator.
		Unison int     `yaml:",omitempty"`
		Detune float64 `yaml:",omitempty"`

		PitchEnv PitchEnvelope `yaml:",omitempty"`
		Envelope Envelope
		Filter   FilterRange `yaml:",omitempty"`

		Drive float64 `yaml:",omitempty"` // pre-filter saturation, 0..1
		Gain  float64
		Pan   float64 `yaml:",omitempty"` // -1 (left) .. 1 (right)

		// Monophonic voices steal the previous instance with a fade of
		// StealFade seconds when triggered again.
		Monophonic bool    `yaml:",omitempty"`
		StealFade  float64 `yaml:",omitempty"`

		// OneShot voices ignore the gate length: the envelope runs attack and
		// decay, then releases.
		OneShot bool `yaml:",omitempty"`
	}

	// PitchEnvelope bends the oscillator from Amount semitones above the note
	// down to the note with an exponential decay time constant of Decay
	// seconds. Used for kick drums.
	PitchEnvelope struct {
		Amount float64
		Decay  float64
	}

	// Envelope is a linear ADSR envelope. Times are in seconds, Sustain is a
	// level in [0, 1].
	Envelope struct {
		Attack  float64
		Decay   float64
		Sustain float64
		Release float64
	}

	// FilterRange is the per-voice filter: the cutoff moves between CutoffMin
	// and CutoffMax (Hz) following the amplitude envelope by EnvAmount and the
	// velocity.
	FilterRange struct {
		Mode      FilterMode `yaml:",omitempty"`
		CutoffMin float64
		CutoffMax float64
		Resonance float64
		EnvAmount float64
	}

	// Patch is the list of voice definitions. The index of a voice in the
	// patch is its priority: lower index wins ties.
	Patch []VoiceDefinition
)

const (
	Sine     Waveform = "sine"
	Triangle Waveform = "triangle"
	Saw      Waveform = "saw"
	Square   Waveform = "square"
	Noise    Waveform = "noise"
)

const (
	FilterNone     FilterMode = ""
	FilterLowpass  FilterMode = "lowpass"
	FilterHighpass FilterMode = "highpass"
	FilterBandpass FilterMode = "bandpass"
)

// DefaultStealFade is used for monophonic voices that do not set StealFade.
const DefaultStealFade = 0.005

var ErrInvalidVoice = errors.New("invalid voice definition")

// EnvelopeDuration is the time from trigger to the start of the release
// stage, given the gate length in seconds.
func (v *VoiceDefinition) EnvelopeDuration(gate float64) float64 {
	if v.OneShot {
		return v.Envelope.Attack + v.Envelope.Decay
	}
	return math.Max(gate, v.Envelope.Attack)
}

// ReleaseTail is the time the voice keeps sounding after EnvelopeDuration.
func (v *VoiceDefinition) ReleaseTail() float64 {
	return v.Envelope.Release
}

// Lifetime is the total time an instance triggered with the given gate
// sounds, i.e. EnvelopeDuration + ReleaseTail.
func (v *VoiceDefinition) Lifetime(gate float64) float64 {
	return v.EnvelopeDuration(gate) + v.ReleaseTail()
}

// StealFadeTime returns the fade used when a monophonic voice is stolen.
func (v *VoiceDefinition) StealFadeTime() float64 {
	if v.StealFade > 0 {
		return v.StealFade
	}
	return DefaultStealFade
}

// Frequency returns the frequency in Hz for a pitch in semitones relative to
// the voice's root note.
func (v *VoiceDefinition) Frequency(pitch float64) float64 {
	return NoteFrequency(float64(v.Root) + pitch)
}

// NoteFrequency converts a (fractional) MIDI note number to Hz, A4 = 69 = 440 Hz.
func NoteFrequency(note float64) float64 {
	return 440 * math.Exp2((note-69)/12)
}

func (v *VoiceDefinition) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidVoice)
	}
	switch v.Waveform {
	case Sine, Triangle, Saw, Square, Noise:
	default:
		return fmt.Errorf("%w: %s: unknown waveform %q", ErrInvalidVoice, v.Name, v.Waveform)
	}
	switch v.Filter.Mode {
	case FilterNone, FilterLowpass, FilterHighpass, FilterBandpass:
	default:
		return fmt.Errorf("%w: %s: unknown filter mode %q", ErrInvalidVoice, v.Name, v.Filter.Mode)
	}
	e := v.Envelope
	if e.Attack < 0 || e.Decay < 0 || e.Release < 0 || e.Sustain < 0 || e.Sustain > 1 {
		return fmt.Errorf("%w: %s: envelope %+v", ErrInvalidVoice, v.Name, e)
	}
	if e.Attack+e.Decay+e.Release <= 0 {
		return fmt.Errorf("%w: %s: envelope has zero length", ErrInvalidVoice, v.Name)
	}
	if v.Filter.Mode != FilterNone && (v.Filter.CutoffMin <= 0 || v.Filter.CutoffMax < v.Filter.CutoffMin) {
		return fmt.Errorf("%w: %s: filter range %v..%v", ErrInvalidVoice, v.Name, v.Filter.CutoffMin, v.Filter.CutoffMax)
	}
	if v.Pan < -1 || v.Pan > 1 {
		return fmt.Errorf("%w: %s: pan %v", ErrInvalidVoice, v.Name, v.Pan)
	}
	return nil
}

// Find returns the index of the voice with the given name.
func (p Patch) Find(id VoiceID) (int, bool) {
	for i := range p {
		if p[i].Name == id {
			return i, true
		}
	}
	return -1, false
}

func (p Patch) Validate() error {
	seen := make(map[VoiceID]bool, len(p))
	for i := range p {
		if err := p[i].Validate(); err != nil {
			return err
		}
		if seen[p[i].Name] {
			return fmt.Errorf("%w: duplicate voice %s", ErrInvalidVoice, p[i].Name)
		}
		seen[p[i].Name] = true
	}
	return nil
}

func (p Patch) Copy() Patch {
	ret := make(Patch, len(p))
	copy(ret, p)
	return ret
}
