// Package transport is the user-facing control of the engine: start, stop,
// intensity, master volume, tempo and section requests. The Controller owns
// the EngineState and drives the clock scheduler, pattern generator and
// voice bank from a single control goroutine.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/clock"
	"github.com/firehorse/darkmix/engine"
	"github.com/firehorse/darkmix/pattern"
	"github.com/firehorse/darkmix/voice"
)

type (
	// Transport is the run state of the controller.
	Transport int

	// EngineState is the whole control-side state of a session, returned by
	// value.
	EngineState struct {
		Transport  Transport
		Tempo      darkmix.Tempo
		Intensity  float64
		Section    pattern.Section
		SectionBar int
		Pos        darkmix.StepPos // last step handed to the voices
		Seed       uint64
		MasterGain float64
		Session    int
		Triggers   int64 // voices triggered in this session
	}

	// TriggerFunc observes every triggered pattern event and the voice
	// instance it started.
	TriggerFunc func(ev darkmix.PatternEvent, in *voice.Instance)

	Controller struct {
		engine    *engine.Engine
		cfg       darkmix.Config
		scheduler *clock.Scheduler
		sections  *pattern.Sections
		rules     []pattern.Rule
		generator *pattern.Generator
		logger    *slog.Logger
		onTrigger TriggerFunc
		onAlert   func(darkmix.Alert)

		mu    sync.Mutex
		state EngineState
	}

	Option func(*Controller)
)

const (
	Stopped Transport = iota
	Running
	Stopping
)

func (t Transport) String() string {
	switch t {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("transport(%d)", int(t))
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithRules replaces the default pattern rules. Rule order is voice
// priority.
func WithRules(rules ...pattern.Rule) Option {
	return func(c *Controller) { c.rules = rules }
}

// WithSections replaces the section state machine, e.g. to shorten sections.
func WithSections(s *pattern.Sections) Option {
	return func(c *Controller) { c.sections = s }
}

func WithTrigger(f TriggerFunc) Option {
	return func(c *Controller) { c.onTrigger = f }
}

// WithAlertHandler receives every alert drained from the engine, after it
// has been logged.
func WithAlertHandler(f func(darkmix.Alert)) Option {
	return func(c *Controller) { c.onAlert = f }
}

// New returns a stopped controller for e. cfg supplies the initial tempo,
// intensity, seed and the scheduler timing; an unreadable audio clock or a
// rule naming an unknown voice is an initialization error.
func New(e *engine.Engine, cfg darkmix.Config, opts ...Option) (*Controller, error) {
	c := &Controller{
		engine:    e,
		cfg:       cfg,
		sections:  pattern.NewSections(),
		rules:     pattern.DefaultRules(),
		logger:    slog.Default(),
		onTrigger: func(darkmix.PatternEvent, *voice.Instance) {},
		onAlert:   func(darkmix.Alert) {},
	}
	for _, o := range opts {
		o(c)
	}
	if err := cfg.Tempo.Validate(); err != nil {
		return nil, darkmix.InitializationError(err, "invalid start tempo")
	}
	for _, r := range c.rules {
		if _, ok := e.Bank.Definition(r.Voice); !ok {
			return nil, darkmix.InitializationError(fmt.Errorf("%w: pattern rule for %q", darkmix.ErrUnknownVoice, r.Voice), "pattern rules do not match the patch")
		}
	}
	s, err := clock.New(e.Graph,
		clock.WithLookahead(cfg.Lookahead),
		clock.WithInterval(cfg.PollInterval),
		clock.WithLogger(c.logger),
		clock.WithAlerts(e.Broker.Alert))
	if err != nil {
		return nil, err
	}
	c.scheduler = s
	c.state = EngineState{
		Transport:  Stopped,
		Tempo:      cfg.Tempo,
		Intensity:  darkmix.Clamp(cfg.Intensity, 0, 1),
		Seed:       cfg.Seed,
		MasterGain: e.Bus.MasterGain(),
	}
	return c, nil
}

// Start begins a new session from bar 0, step 0 in the intro. It fails if
// the transport is already running or the audio clock is unavailable.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Transport == Running {
		return darkmix.ErrAlreadyRunning
	}
	seed := c.cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	c.generator = pattern.New(seed, c.rules...)
	c.sections.Reset()
	if err := c.scheduler.Start(c.state.Tempo, c.step); err != nil {
		c.logger.Error("could not start transport", "err", err)
		return err
	}
	_, first := c.scheduler.Next()
	c.state.Transport = Running
	c.state.Seed = seed
	c.state.Session++
	c.state.Pos = darkmix.StepPos{}
	c.state.Triggers = 0
	c.startAmbience(first)
	c.sectionStarted(pattern.Intro, first)
	c.logger.Info("transport started", "session", c.state.Session, "seed", seed, "tempo", float64(c.state.Tempo), "intensity", c.state.Intensity)
	return c.pollLocked()
}

func (c *Controller) startAmbience(first float64) {
	a := c.engine.Ambience
	a.NewSession()
	if a.Has(darkmix.BedTrack) {
		if err := a.PlayLoop(darkmix.BedTrack); err != nil {
			c.logger.Error("ambience bed", "err", err)
		}
	}
	if a.Has(darkmix.SpeechTrack) {
		at := first + float64(c.cfg.SpeechDelayBars)*c.state.Tempo.SecondsPerBar()
		if err := a.PlayOnceAt(darkmix.SpeechTrack, at); err != nil {
			c.logger.Error("speech", "err", err)
		}
	}
}

// Stop cancels every step and voice that has not started yet, fades the
// ambience out and lets sounding voices ring out. The transport is Stopping
// until the last voice has been released, then Stopped.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Transport != Running {
		return
	}
	c.halt("transport stopping")
}

// halt stops the scheduler and moves to Stopping. Without a clock, pending
// voices are cancelled from the last rendered frame.
func (c *Controller) halt(msg string) {
	c.scheduler.Stop()
	g := c.engine.Graph
	now, err := g.CurrentTime()
	if err != nil {
		c.logger.Warn("stopping without a clock", "err", err)
		now = float64(g.Frame()) / float64(g.SampleRate())
	}
	if err := g.CancelFrom(now); err != nil {
		c.logger.Error("could not cancel pending voices", "err", err)
	}
	c.engine.Ambience.StopAll()
	c.engine.Bank.Reset()
	c.state.Transport = Stopping
	c.logger.Info(msg, "at", now, "pos", c.state.Pos.String(), "sounding", g.Outstanding())
	c.settle()
}

// settle moves Stopping to Stopped once nothing is left in the graph.
func (c *Controller) settle() {
	if c.state.Transport == Stopping && c.engine.Graph.Outstanding() == 0 {
		c.state.Transport = Stopped
		c.logger.Info("transport stopped", "session", c.state.Session)
	}
}

// SetIntensity sets the pattern intensity, clamped to [0, 1]. While stopped
// the value is kept for the next Start.
func (c *Controller) SetIntensity(v float64) {
	v = darkmix.Clamp(v, 0, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Intensity = v
	c.logger.Debug("intensity", "value", v, "transport", c.state.Transport.String())
}

// SetMasterVolume ramps the master gain to v, clamped to [0, 1].
func (c *Controller) SetMasterVolume(v float64) {
	c.engine.Bus.SetMasterGain(v)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.MasterGain = c.engine.Bus.MasterGain()
}

// SetTempo changes the tempo from the next bar.
func (c *Controller) SetTempo(t darkmix.Tempo) error {
	if err := c.scheduler.SetTempo(t); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Tempo = t
	return nil
}

// RequestSection switches to s at the next bar. It does nothing while
// stopped: every session starts with the intro.
func (c *Controller) RequestSection(s pattern.Section) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Transport != Running {
		c.logger.Debug("section request ignored while stopped", "section", s.String())
		return nil
	}
	return c.sections.Request(s)
}

// Poll drains engine alerts, fires due steps and completes a pending stop.
// It is called on every tick of Run.
func (c *Controller) Poll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollLocked()
}

func (c *Controller) pollLocked() error {
	c.engine.Broker.Drain(c.handleAlert)
	switch c.state.Transport {
	case Running:
		if err := c.scheduler.Poll(); err != nil {
			c.logger.Error("scheduler failed, stopping", "err", err)
			c.halt("transport stopping after clock failure")
			return err
		}
	case Stopping:
		c.settle()
	}
	return nil
}

func (c *Controller) handleAlert(a darkmix.Alert) {
	switch a.Priority {
	case darkmix.Error:
		c.logger.Error("engine alert", "name", a.Name, "message", a.Message)
	case darkmix.Warning:
		c.logger.Warn("engine alert", "name", a.Name, "message", a.Message)
	default:
		c.logger.Info("engine alert", "name", a.Name, "message", a.Message)
	}
	c.onAlert(a)
}

// Run polls at the configured interval until ctx is done or the clock
// fails. The transport is stopped on return.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return ctx.Err()
		case <-ticker.C:
			if err := c.Poll(); err != nil {
				return err
			}
		}
	}
}

// State returns a copy of the current state.
func (c *Controller) State() EngineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.Section = c.sections.Current()
	st.SectionBar = c.sections.Bar()
	return st
}

// step is the scheduler callback; it runs inside Poll with c.mu held.
func (c *Controller) step(pos darkmix.StepPos, at float64) {
	// A stalled scheduler skips steps; every bar boundary crossed since the
	// last handled step still counts.
	if crossed := pos.Bar - c.state.Pos.Bar; crossed > 0 {
		sec, started := c.sections.Current(), false
		for range crossed {
			if s, ok := c.sections.Advance(); ok {
				sec, started = s, true
			}
		}
		if started {
			c.sectionStarted(sec, at)
		}
	}
	tempo, _ := c.scheduler.Tempo()
	st := c.sections.State(c.state.Intensity)
	for _, ev := range c.generator.NextStep(pos, st) {
		gate := ev.Duration * tempo.SecondsPerStep()
		in, err := c.engine.Bank.Trigger(ev.Voice, at, ev.Pitch, ev.Velocity, gate)
		if err != nil {
			c.logger.Error("trigger failed", "event", ev.String(), "err", err)
			continue
		}
		c.state.Triggers++
		c.onTrigger(ev, in)
	}
	c.state.Pos = pos
}
