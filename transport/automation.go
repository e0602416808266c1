package transport

import (
	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/effects"
	"github.com/firehorse/darkmix/pattern"
)

// Section automation, applied to the effects chain at the first step of
// each section.
const (
	buildCutoffStart = 600.0 // Hz
	breakCutoff      = 2500.0
	breakReverbBoost = 2.5
	automationRamp   = 0.03
)

// baseParameter is the configured value of a stage parameter, or its
// default when the config does not set it.
func (c *Controller) baseParameter(t darkmix.StageType, name string) (stage int, value float64, ok bool) {
	stage = c.engine.Chain.Index(t)
	if stage < 0 {
		return -1, 0, false
	}
	for _, s := range c.cfg.Effects {
		if v, ok := s.Parameters[name]; ok && s.Type == t {
			return stage, v, true
		}
	}
	specs, _ := effects.Specs(t)
	for _, p := range specs {
		if p.Name == name {
			return stage, p.Default, true
		}
	}
	return -1, 0, false
}

func (c *Controller) automate(t darkmix.StageType, name string, value, at, ramp float64) {
	stage, _, ok := c.baseParameter(t, name)
	if !ok {
		return
	}
	if err := c.engine.Chain.SetParameterAt(stage, name, value, at, ramp); err != nil {
		c.logger.Error("section automation", "stage", string(t), "param", name, "err", err)
	}
}

// sectionStarted runs the DJ moves of a section: the build sweeps the
// filter open over its length, the drop snaps back to the configured sound,
// the break closes the filter and washes the reverb out.
func (c *Controller) sectionStarted(sec pattern.Section, at float64) {
	tempo, _ := c.scheduler.Tempo()
	length := float64(c.sections.Length(sec)) * tempo.SecondsPerBar()
	_, cutoff, _ := c.baseParameter(darkmix.StageFilter, "cutoff")
	_, reverb, _ := c.baseParameter(darkmix.StageReverb, "mix")
	switch sec {
	case pattern.Build:
		c.automate(darkmix.StageFilter, "cutoff", buildCutoffStart, at, automationRamp)
		c.automate(darkmix.StageFilter, "cutoff", cutoff, at+automationRamp, length-automationRamp)
		c.automate(darkmix.StageReverb, "mix", reverb, at, automationRamp)
	case pattern.Break:
		c.automate(darkmix.StageFilter, "cutoff", breakCutoff, at, tempo.SecondsPerBar())
		c.automate(darkmix.StageReverb, "mix", reverb*breakReverbBoost, at, 2*tempo.SecondsPerBar())
	default:
		c.automate(darkmix.StageFilter, "cutoff", cutoff, at, automationRamp)
		c.automate(darkmix.StageReverb, "mix", reverb, at, automationRamp)
	}
	c.logger.Info("section", "section", sec.String(), "at", at, "bars", c.sections.Length(sec))
}
