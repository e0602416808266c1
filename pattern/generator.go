// Package pattern decides, step by step, which voices play. A Generator is a
// pure function of the step position, the section state and its seed: the
// same inputs always give the same events, so a seed identifies a track.
package pattern

import (
	"math/rand/v2"

	"github.com/firehorse/darkmix"
)

type Generator struct {
	seed  uint64
	rules []Rule
}

// New returns a generator for the given rules. The order of the rules is the
// voice priority used to break ties, first is highest.
func New(seed uint64, rules ...Rule) *Generator {
	r := make([]Rule, len(rules))
	copy(r, rules)
	return &Generator{seed: seed, rules: r}
}

func (g *Generator) Seed() uint64 { return g.seed }

// NextStep returns the events of the step at pos. Intensity outside [0, 1]
// is clamped.
func (g *Generator) NextStep(pos darkmix.StepPos, st State) []darkmix.PatternEvent {
	st.Intensity = darkmix.Clamp(st.Intensity, 0, 1)
	step := pos.Step
	rng := g.source(pos, st.Section)
	var taken map[string]bool
	events := make([]darkmix.PatternEvent, 0, len(g.rules))
	for i := range g.rules {
		r := &g.rules[i]
		// every rule draws the same numbers whether it plays or not, so one
		// voice's outcome never shifts another's
		ghostRoll, velRoll, pitchRoll, pickRoll := rng.Float64(), rng.Float64(), rng.Float64(), rng.Float64()
		if r.Mute[st.Section] {
			continue
		}
		vel := r.Steps[step]
		randomized := vel == 0
		if randomized {
			if ghostRoll >= r.ghostProbability(step, st) {
				continue
			}
			vel = r.GhostVelocity * (0.8 + 0.2*velRoll)
		} else {
			vel *= 1 - r.Humanize*velRoll
		}
		if randomized && r.Group != "" {
			if taken[r.Group] {
				continue
			}
			if taken == nil {
				taken = make(map[string]bool)
			}
			taken[r.Group] = true
		}
		vel *= 1 - r.Dynamics*(1-st.Intensity)
		pitch := r.Notes[step]
		if len(r.Variations) > 0 && pitchRoll < r.PitchVariation*st.Intensity {
			pitch += r.Variations[int(pickRoll*float64(len(r.Variations)))%len(r.Variations)]
		}
		events = append(events, darkmix.PatternEvent{
			Voice:    r.Voice,
			Step:     step,
			Velocity: darkmix.Clamp(vel, 0, 1),
			Pitch:    pitch,
			Duration: r.Duration,
		})
	}
	return events
}

func (g *Generator) source(pos darkmix.StepPos, sec Section) *rand.Rand {
	key := uint64(pos.Bar)<<16 | uint64(pos.Step)<<8 | uint64(sec)
	return rand.New(rand.NewPCG(mix(g.seed), mix(key^g.seed)))
}

// mix is the splitmix64 finalizer; it spreads neighbouring keys over the
// whole seed space.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
