package pattern

import "github.com/firehorse/darkmix"

// Rule describes how one voice plays. The base mask is deterministic; ghost
// notes, fills, humanized velocity and pitch variation are drawn from the
// step's seeded random source.
type Rule struct {
	Voice darkmix.VoiceID

	// Steps is the base velocity per step; 0 means no base hit.
	Steps [darkmix.PatternLength]float64
	// Notes is the pitch per step in semitones relative to the voice root.
	Notes [darkmix.PatternLength]float64
	// Duration is the gate length in steps.
	Duration float64

	// Ghosts is the probability, at full intensity and density, of a ghost
	// note on an empty step. GhostVelocity is the velocity of those notes.
	Ghosts        [darkmix.PatternLength]float64
	GhostVelocity float64
	// Fill is added to the ghost probability of the last four steps in the
	// last bar of a section.
	Fill float64

	// Density scales randomized hits per section; Mute silences the voice.
	Density [NumSections]float64
	Mute    [NumSections]bool

	// Humanize is the maximum relative velocity reduction of base hits.
	Humanize float64
	// Dynamics is how much low intensity lowers velocity, in [0, 1].
	Dynamics float64

	// Variations are pitch offsets added with probability PitchVariation
	// (scaled by intensity).
	Variations     []float64
	PitchVariation float64

	// Randomized hits of rules sharing a Group are exclusive on a step: the
	// rule listed first wins.
	Group string
}

// DefaultRules returns rules for the voices of the default patch, in
// priority order.
func DefaultRules() []Rule {
	return []Rule{kickRule(), bassRule(), percRule(), leadRule(), noiseRule()}
}

func every(steps []int, v float64) (ret [darkmix.PatternLength]float64) {
	for _, s := range steps {
		ret[s] = v
	}
	return
}

func kickRule() Rule {
	return Rule{
		Voice:         "kick",
		Steps:         every([]int{0, 4, 8, 12}, 1),
		Duration:      1,
		Ghosts:        every([]int{14, 15}, 0.25),
		GhostVelocity: 0.7,
		Fill:          0.3,
		Density:       [NumSections]float64{Intro: 0, Build: 0.6, Drop: 1, Break: 0},
		Mute:          [NumSections]bool{Break: true},
	}
}

func bassRule() Rule {
	r := Rule{
		Voice:          "bass",
		Steps:          every([]int{2, 3, 6, 7, 10, 11, 14, 15}, 0.85),
		Duration:       0.8,
		Ghosts:         every([]int{1, 5, 9, 13}, 0.3),
		GhostVelocity:  0.55,
		Density:        [NumSections]float64{Intro: 0.3, Build: 0.7, Drop: 1, Break: 0.4},
		Humanize:       0.15,
		Dynamics:       0.3,
		Variations:     []float64{-2, 3, 5, 7, 12},
		PitchVariation: 0.25,
	}
	r.Steps[3], r.Steps[7], r.Steps[11], r.Steps[15] = 0.65, 0.65, 0.65, 0.65
	r.Notes[14], r.Notes[15] = 3, 3
	return r
}

func percRule() Rule {
	return Rule{
		Voice:         "perc",
		Steps:         every([]int{2, 6, 10, 14}, 0.8),
		Duration:      0.5,
		Ghosts:        every([]int{1, 3, 5, 7, 9, 11, 13, 15}, 0.35),
		GhostVelocity: 0.4,
		Fill:          0.6,
		Density:       [NumSections]float64{Intro: 0.2, Build: 0.8, Drop: 1, Break: 0.3},
		Humanize:      0.25,
		Dynamics:      0.5,
		Group:         "top",
	}
}

func leadRule() Rule {
	return Rule{
		Voice:          "lead",
		Duration:       2,
		Ghosts:         every([]int{0, 3, 6, 10}, 0.3),
		GhostVelocity:  0.7,
		Density:        [NumSections]float64{Build: 0.5, Drop: 1, Break: 0.6},
		Mute:           [NumSections]bool{Intro: true},
		Dynamics:       0.4,
		Variations:     []float64{-5, 3, 7, 10},
		PitchVariation: 0.4,
	}
}

func noiseRule() Rule {
	return Rule{
		Voice:         "noise",
		Duration:      darkmix.PatternLength,
		Ghosts:        every([]int{0}, 0.5),
		GhostVelocity: 0.8,
		Fill:          0.2,
		Density:       [NumSections]float64{Intro: 0.3, Build: 1, Drop: 0.2, Break: 0.8},
		Dynamics:      0.2,
		Group:         "top",
	}
}

// probability of a randomized hit on an empty step
func (r *Rule) ghostProbability(step int, st State) float64 {
	p := r.Ghosts[step]
	if st.LastBar() && step >= darkmix.PatternLength-4 {
		p += r.Fill
	}
	d := r.Density[st.Section]
	if st.Section == Build {
		d *= 0.5 + 0.5*st.Progress()
	}
	return darkmix.Clamp(p*d*st.Intensity, 0, 1)
}
