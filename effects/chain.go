// Package effects implements the effects chain every voice is routed
// through: filter, distortion, EQ and reverb, in that fixed order. All
// parameter and bypass changes are applied as ramps on the render goroutine.
package effects

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/param"
)

type (
	// Chain is the ordered list of effect stages. The Set methods are called
	// from the control goroutine and never block; Process runs on the render
	// goroutine.
	Chain struct {
		sampleRate int
		rampTime   float64
		bypassFade float64
		stages     []*stage
		commands   chan command
		logger     *slog.Logger
		alert      func(darkmix.Alert)
	}

	// StageState is the control side view of a stage: the target value of
	// every parameter and the bypass flag.
	StageState struct {
		Type       darkmix.StageType
		Parameters map[string]float64
		Bypass     bool
	}

	Option func(*Chain)

	stage struct {
		typ   darkmix.StageType
		specs []ParamSpec
		proc  processor

		// render side
		params []*param.Param
		bypass *param.Param // 0 = processing, 1 = bypassed
		values []float64
		idle   bool

		// control side mirror
		targets  []float64
		bypassed bool
	}

	command struct {
		stage, param int // param -1: bypass
		value        float64
		at           float64 // < 0: at the start of the next block
		ramp         float64
	}
)

const (
	DefaultRampTime   = 0.03
	DefaultBypassFade = 0.03
	// MinRampTime is the shortest ramp any parameter change gets.
	MinRampTime = 0.02

	commandQueueSize = 1024
)

func WithLogger(l *slog.Logger) Option {
	return func(c *Chain) { c.logger = l }
}

// WithRampTime sets the ramp used by SetParameter, clamped to 20..50 ms.
func WithRampTime(seconds float64) Option {
	return func(c *Chain) { c.rampTime = darkmix.Clamp(seconds, MinRampTime, 0.05) }
}

// WithAlerts sets the callback for dropped commands. It must not block.
func WithAlerts(f func(darkmix.Alert)) Option {
	return func(c *Chain) { c.alert = f }
}

// New builds the chain from stage configs, which must follow
// darkmix.StageOrder. Unknown parameters in a config are an error.
func New(sampleRate int, configs []darkmix.StageConfig, opts ...Option) (*Chain, error) {
	c := &Chain{
		sampleRate: sampleRate,
		rampTime:   DefaultRampTime,
		bypassFade: DefaultBypassFade,
		commands:   make(chan command, commandQueueSize),
		logger:     slog.Default(),
		alert:      func(darkmix.Alert) {},
	}
	for _, o := range opts {
		o(c)
	}
	if len(configs) != len(darkmix.StageOrder) {
		return nil, darkmix.InitializationError(fmt.Errorf("%w: %d effect stages, need %d", darkmix.ErrInvalidConfig, len(configs), len(darkmix.StageOrder)), "building effects chain")
	}
	for i, cfg := range configs {
		if cfg.Type != darkmix.StageOrder[i] {
			return nil, darkmix.InitializationError(fmt.Errorf("%w: stage %d is %q, expected %q", darkmix.ErrInvalidConfig, i, cfg.Type, darkmix.StageOrder[i]), "building effects chain")
		}
		s, err := newStage(cfg, sampleRate)
		if err != nil {
			return nil, darkmix.InitializationError(err, "building effects chain")
		}
		c.stages = append(c.stages, s)
	}
	return c, nil
}

func newStage(cfg darkmix.StageConfig, sampleRate int) (*stage, error) {
	specs := stageSpecs[cfg.Type]
	s := &stage{
		typ:      cfg.Type,
		specs:    specs,
		proc:     newProcessor(cfg.Type, sampleRate),
		values:   make([]float64, len(specs)),
		targets:  make([]float64, len(specs)),
		bypassed: cfg.Bypass,
	}
	for name := range cfg.Parameters {
		if s.paramIndex(name) < 0 {
			return nil, fmt.Errorf("%w: %s has no parameter %q", darkmix.ErrUnknownParameter, cfg.Type, name)
		}
	}
	for i, spec := range specs {
		v := spec.Default
		if cv, ok := cfg.Parameters[spec.Name]; ok {
			v = darkmix.Clamp(cv, spec.Min, spec.Max)
		}
		s.targets[i] = v
		s.params = append(s.params, param.New(v))
	}
	b := 0.0
	if cfg.Bypass {
		b = 1
	}
	s.bypass = param.New(b)
	return s, nil
}

func (s *stage) paramIndex(name string) int {
	for i, spec := range s.specs {
		if spec.Name == name {
			return i
		}
	}
	return -1
}

// Len is the number of stages.
func (c *Chain) Len() int {
	return len(c.stages)
}

// Stage returns the control side state of stage i.
func (c *Chain) Stage(i int) (StageState, error) {
	if i < 0 || i >= len(c.stages) {
		return StageState{}, darkmix.ProgrammingError(darkmix.ErrStageIndex, "stage %d of %d", i, len(c.stages))
	}
	s := c.stages[i]
	st := StageState{Type: s.typ, Parameters: make(map[string]float64, len(s.specs)), Bypass: s.bypassed}
	for k, spec := range s.specs {
		st.Parameters[spec.Name] = s.targets[k]
	}
	return st, nil
}

// Index returns the position of the stage with the given type.
func (c *Chain) Index(t darkmix.StageType) int {
	for i, s := range c.stages {
		if s.typ == t {
			return i
		}
	}
	return -1
}

// SetParameter ramps a parameter to value over the chain's ramp time,
// starting with the next rendered block. value is clamped to the parameter
// range.
func (c *Chain) SetParameter(stage int, name string, value float64) error {
	return c.set(stage, name, value, -1, c.rampTime)
}

// SetParameterAt ramps a parameter to value starting at time at (engine
// seconds) over ramp seconds. Ramps shorter than MinRampTime are lengthened.
func (c *Chain) SetParameterAt(stage int, name string, value, at, ramp float64) error {
	return c.set(stage, name, value, at, ramp)
}

func (c *Chain) set(stage int, name string, value, at, ramp float64) error {
	if stage < 0 || stage >= len(c.stages) {
		return darkmix.ProgrammingError(darkmix.ErrStageIndex, "set %s on stage %d of %d", name, stage, len(c.stages))
	}
	s := c.stages[stage]
	p := s.paramIndex(name)
	if p < 0 {
		return darkmix.NotFoundError(darkmix.ErrUnknownParameter, "%s stage has no parameter %q", s.typ, name)
	}
	value = darkmix.Clamp(value, s.specs[p].Min, s.specs[p].Max)
	s.targets[p] = value
	c.send(command{stage: stage, param: p, value: value, at: at, ramp: math.Max(ramp, MinRampTime)})
	return nil
}

// SetBypass crossfades a stage in or out.
func (c *Chain) SetBypass(stage int, bypass bool) error {
	if stage < 0 || stage >= len(c.stages) {
		return darkmix.ProgrammingError(darkmix.ErrStageIndex, "bypass stage %d of %d", stage, len(c.stages))
	}
	c.stages[stage].bypassed = bypass
	v := 0.0
	if bypass {
		v = 1
	}
	c.send(command{stage: stage, param: -1, value: v, at: -1, ramp: c.bypassFade})
	return nil
}

func (c *Chain) send(cmd command) {
	if !darkmix.TrySend(c.commands, cmd) {
		c.logger.Warn("effects command dropped", "stage", cmd.stage, "param", cmd.param)
		c.alert(darkmix.Alert{Name: darkmix.AlertQueueFull, Priority: darkmix.Warning, Message: "effects parameter change dropped"})
	}
}

// Process runs buf through every stage in order, in place. frame is the
// engine frame of buf[0].
func (c *Chain) Process(buf darkmix.AudioBuffer, frame int64) {
	sr := float64(c.sampleRate)
	c.processCommands(float64(frame) / sr)
	for _, s := range c.stages {
		s.process(buf, frame, sr)
	}
}

func (c *Chain) processCommands(now float64) {
	for {
		select {
		case cmd := <-c.commands:
			s := c.stages[cmd.stage]
			at := cmd.at
			if at < 0 {
				at = now
			}
			if cmd.param < 0 {
				s.bypass.Set(cmd.value, at, cmd.ramp)
			} else {
				s.params[cmd.param].Set(cmd.value, at, cmd.ramp)
			}
		default:
			return
		}
	}
}

func (s *stage) process(buf darkmix.AudioBuffer, frame int64, sr float64) {
	start := float64(frame) / sr
	if s.bypass.ValueAt(start) == 1 && s.bypass.Settled(start) {
		if !s.idle {
			s.proc.reset()
			s.idle = true
		}
		return
	}
	s.idle = false
	for i := range buf {
		t := float64(frame+int64(i)) / sr
		for k, p := range s.params {
			s.values[k] = p.ValueAt(t)
		}
		dry := [2]float64{float64(buf[i][0]), float64(buf[i][1])}
		wet := s.proc.tick(dry, s.values)
		b := s.bypass.ValueAt(t)
		buf[i][0] = float32(wet[0]*(1-b) + dry[0]*b)
		buf[i][1] = float32(wet[1]*(1-b) + dry[1]*b)
	}
}
