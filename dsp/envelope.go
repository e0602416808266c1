package dsp

import "github.com/firehorse/darkmix"

// EnvelopeLevel returns the amplitude of a linear ADSR envelope t seconds
// after the trigger. hold is the time the release stage starts (see
// VoiceDefinition.EnvelopeDuration); the level reaches exactly zero at
// hold + e.Release and stays there.
func EnvelopeLevel(e darkmix.Envelope, hold, t float64) float64 {
	if t < 0 {
		return 0
	}
	if t < hold {
		return gateLevel(e, t)
	}
	rt := t - hold
	if rt >= e.Release {
		return 0
	}
	return gateLevel(e, hold) * (1 - rt/e.Release)
}

func gateLevel(e darkmix.Envelope, t float64) float64 {
	if t < e.Attack {
		return t / e.Attack
	}
	t -= e.Attack
	if t < e.Decay {
		return 1 - (1-e.Sustain)*t/e.Decay
	}
	return e.Sustain
}
