package darkmix

import (
	"errors"
	"fmt"
)

type (
	// Tempo is the playback speed in beats per minute. One beat is
	// StepsPerBeat steps, so a step is a 16th note.
	Tempo float64

	// StepPos is a position in the endless sequence: the bar counter and the
	// step within the bar. Step is always in [0, PatternLength).
	StepPos struct {
		Bar  int
		Step int
	}
)

const (
	MinTempo     Tempo = 20
	MaxTempo     Tempo = 400
	DefaultTempo Tempo = 130
)

var ErrInvalidTempo = errors.New("tempo out of range")

// SecondsPerStep is the duration of one step (16th note) in seconds.
func (t Tempo) SecondsPerStep() float64 {
	return 60 / (float64(t) * StepsPerBeat)
}

// SecondsPerBar is the duration of one bar in seconds.
func (t Tempo) SecondsPerBar() float64 {
	return t.SecondsPerStep() * PatternLength
}

func (t Tempo) Validate() error {
	if t < MinTempo || t > MaxTempo {
		return fmt.Errorf("%w: %.2f bpm (valid %v..%v)", ErrInvalidTempo, float64(t), float64(MinTempo), float64(MaxTempo))
	}
	return nil
}

// Next returns the position one step later, wrapping the step to zero and
// advancing the bar at the end of the pattern.
func (p StepPos) Next() StepPos {
	p.Step++
	if p.Step >= PatternLength {
		p.Step = 0
		p.Bar++
	}
	return p
}

// Add returns the position n steps later. n must be non-negative.
func (p StepPos) Add(n int) StepPos {
	total := p.Step + n
	p.Bar += total / PatternLength
	p.Step = total % PatternLength
	return p
}

// Steps returns the absolute step count since bar 0, step 0.
func (p StepPos) Steps() int {
	return p.Bar*PatternLength + p.Step
}

// BarStart reports whether the position is the first step of a bar.
func (p StepPos) BarStart() bool {
	return p.Step == 0
}

func (p StepPos) String() string {
	return fmt.Sprintf("%d.%02d", p.Bar, p.Step)
}
