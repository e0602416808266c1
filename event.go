package darkmix

import "fmt"

// PatternEvent is one note decided by the pattern generator for a step. It is
// a value: produced fresh for each step, consumed once by the voice bank.
type PatternEvent struct {
	Voice    VoiceID
	Step     int
	Velocity float64 // 0..1
	Pitch    float64 // semitones relative to the voice root
	Duration float64 // gate length in steps
}

func (e PatternEvent) String() string {
	return fmt.Sprintf("%s@%d v=%.2f p=%+.0f d=%.2f", e.Voice, e.Step, e.Velocity, e.Pitch, e.Duration)
}
