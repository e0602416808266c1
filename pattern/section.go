package pattern

import (
	"fmt"
	"strings"
)

type (
	// Section is the arrangement state of the endless mix.
	Section int

	// Sections is the section state machine. It starts in Intro, advances one
	// bar at a time and never terminates: Intro → Build → Drop → Break → Build
	// → … An explicit Request overrides the bar count at the next bar
	// boundary.
	Sections struct {
		current   Section
		bar       int // bars elapsed in current
		lengths   [NumSections]int
		request   Section
		requested bool
	}

	// State is what the generator reads from the arrangement for one step.
	State struct {
		Section       Section
		SectionBar    int // bar index within the section, from 0
		SectionLength int // bars the section lasts unless interrupted
		Intensity     float64
	}
)

const (
	Intro Section = iota
	Build
	Drop
	Break
	NumSections
)

// DefaultLengths are the section lengths in bars.
var DefaultLengths = [NumSections]int{Intro: 8, Build: 8, Drop: 16, Break: 8}

var sectionNames = [NumSections]string{"intro", "build", "drop", "break"}

func (s Section) String() string {
	if s >= 0 && s < NumSections {
		return sectionNames[s]
	}
	return fmt.Sprintf("section(%d)", int(s))
}

// ParseSection parses a section name, case-insensitively.
func ParseSection(name string) (Section, error) {
	for i, n := range sectionNames {
		if strings.EqualFold(n, name) {
			return Section(i), nil
		}
	}
	return 0, fmt.Errorf("unknown section %q", name)
}

// Next is the section that follows s when its bar count runs out.
func (s Section) Next() Section {
	switch s {
	case Intro, Break:
		return Build
	case Build:
		return Drop
	default:
		return Break
	}
}

func NewSections() *Sections {
	return &Sections{lengths: DefaultLengths}
}

// NewSectionsWithLengths returns a state machine with custom section lengths.
// Lengths below one bar are raised to one.
func NewSectionsWithLengths(lengths [NumSections]int) *Sections {
	for i := range lengths {
		lengths[i] = max(lengths[i], 1)
	}
	return &Sections{lengths: lengths}
}

func (s *Sections) Current() Section { return s.current }

// Bar returns the bar index within the current section.
func (s *Sections) Bar() int { return s.bar }

func (s *Sections) Length(sec Section) int { return s.lengths[sec] }

// Request asks for sec to start at the next bar boundary. A later request
// replaces an earlier one that has not been applied yet.
func (s *Sections) Request(sec Section) error {
	if sec < 0 || sec >= NumSections {
		return fmt.Errorf("unknown section %d", int(sec))
	}
	s.request, s.requested = sec, true
	return nil
}

// Pending returns the requested section, if there is one waiting.
func (s *Sections) Pending() (Section, bool) {
	return s.request, s.requested
}

// Advance moves to the next bar and reports whether a section started. A
// request for the section already playing restarts it.
func (s *Sections) Advance() (Section, bool) {
	switch {
	case s.requested:
		s.current, s.bar, s.requested = s.request, 0, false
	case s.bar+1 >= s.lengths[s.current]:
		s.current, s.bar = s.current.Next(), 0
	default:
		s.bar++
		return s.current, false
	}
	return s.current, true
}

// Reset returns to bar 0 of the intro and drops any pending request.
func (s *Sections) Reset() {
	s.current, s.bar, s.requested = Intro, 0, false
}

// State returns the generator state for the current bar.
func (s *Sections) State(intensity float64) State {
	return State{
		Section:       s.current,
		SectionBar:    s.bar,
		SectionLength: s.lengths[s.current],
		Intensity:     intensity,
	}
}

// LastBar reports whether the state is in the final bar of its section.
func (st State) LastBar() bool {
	return st.SectionBar >= st.SectionLength-1
}

// Progress is how far into the section the state is, in [0, 1).
func (st State) Progress() float64 {
	if st.SectionLength <= 0 {
		return 0
	}
	return float64(st.SectionBar) / float64(st.SectionLength)
}
