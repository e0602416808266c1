// Package clock implements the lookahead step scheduler. It converts the
// tempo into absolute timestamps on the audio clock and fires each step a
// little ahead of playback, polling on a short interval instead of relying
// on one timer per step.
package clock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/firehorse/darkmix"
)

type (
	// Clock is the audio device clock, in seconds since the engine started.
	Clock interface {
		CurrentTime() (float64, error)
	}

	// StepFunc receives every step with the exact time its notes must start.
	StepFunc func(pos darkmix.StepPos, at float64)

	Scheduler struct {
		clock      Clock
		lookahead  time.Duration
		interval   time.Duration
		startDelay time.Duration
		logger     *slog.Logger
		alert      func(darkmix.Alert)

		mu           sync.Mutex
		running      bool
		generation   int
		onStep       StepFunc
		tempo        darkmix.Tempo
		pendingTempo darkmix.Tempo
		tempoPending bool
		pos          darkmix.StepPos // next step to fire
		next         float64         // time of pos
	}

	Option func(*Scheduler)

	firing struct {
		pos darkmix.StepPos
		at  float64
	}
)

const (
	DefaultLookahead  = 100 * time.Millisecond
	DefaultInterval   = 25 * time.Millisecond
	DefaultStartDelay = 50 * time.Millisecond
)

func WithLookahead(d time.Duration) Option {
	return func(s *Scheduler) { s.lookahead = d }
}

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithStartDelay sets the gap between Start and the first step.
func WithStartDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.startDelay = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func WithAlerts(f func(darkmix.Alert)) Option {
	return func(s *Scheduler) { s.alert = f }
}

// New returns a stopped scheduler reading time from c. It fails with an
// initialization error if the clock cannot be read.
func New(c Clock, opts ...Option) (*Scheduler, error) {
	if c == nil {
		return nil, darkmix.InitializationError(darkmix.ErrClockUnavailable, "no audio clock")
	}
	if _, err := c.CurrentTime(); err != nil {
		return nil, darkmix.InitializationError(fmt.Errorf("%w: %w", darkmix.ErrClockUnavailable, err), "audio clock unreadable")
	}
	s := &Scheduler{
		clock:      c,
		lookahead:  DefaultLookahead,
		interval:   DefaultInterval,
		startDelay: DefaultStartDelay,
		logger:     slog.Default(),
		alert:      func(darkmix.Alert) {},
		tempo:      darkmix.DefaultTempo,
	}
	for _, o := range opts {
		o(s)
	}
	if s.interval <= 0 || s.lookahead <= s.interval {
		return nil, darkmix.InitializationError(fmt.Errorf("%w: lookahead %v, interval %v", darkmix.ErrInvalidConfig, s.lookahead, s.interval), "bad scheduler timing")
	}
	return s, nil
}

// Start begins firing steps from bar 0, step 0 at the given tempo. Only one
// run may be active at a time.
func (s *Scheduler) Start(tempo darkmix.Tempo, onStep StepFunc) error {
	if err := tempo.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return darkmix.ErrAlreadyRunning
	}
	now, err := s.clock.CurrentTime()
	if err != nil {
		return darkmix.InitializationError(fmt.Errorf("%w: %w", darkmix.ErrClockUnavailable, err), "audio clock unreadable")
	}
	s.running = true
	s.generation++
	s.onStep = onStep
	s.tempo, s.tempoPending = tempo, false
	s.pos = darkmix.StepPos{}
	s.next = now + s.startDelay.Seconds()
	s.logger.Info("scheduler started", "tempo", float64(tempo), "firstStep", s.next)
	return nil
}

// Stop cancels every step that has not fired yet. Steps already handed to
// the callback are not affected.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.generation++
	s.onStep = nil
	s.logger.Info("scheduler stopped", "at", s.pos.String())
}

// SetTempo changes the tempo from the next bar boundary. While stopped it
// sets the tempo of the next Start.
func (s *Scheduler) SetTempo(t darkmix.Tempo) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.tempo, s.tempoPending = t, false
		return nil
	}
	s.pendingTempo, s.tempoPending = t, true
	return nil
}

// Tempo returns the tempo in effect and the one waiting for the next bar,
// which equals the first when there is none.
func (s *Scheduler) Tempo() (current, next darkmix.Tempo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tempoPending {
		return s.tempo, s.pendingTempo
	}
	return s.tempo, s.tempo
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Next returns the position and time of the next step to fire.
func (s *Scheduler) Next() (darkmix.StepPos, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, s.next
}

// Poll fires every step due within the lookahead window. Callbacks run on
// the calling goroutine, outside the scheduler lock; a callback may call
// Stop, which cancels the steps after it.
func (s *Scheduler) Poll() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	now, err := s.clock.CurrentTime()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", darkmix.ErrClockUnavailable, err)
	}
	if late := now - s.next; late > s.tempo.SecondsPerStep() {
		from := s.pos
		skipped := 0
		for s.next < now {
			s.advance()
			skipped++
		}
		s.logger.Warn("scheduler stalled, skipping ahead", "late", late, "from", from.String(), "to", s.pos.String(), "skipped", skipped)
		s.alert(darkmix.DegradedPlaybackWarning("stalled %.0f ms, skipped %d steps", late*1000, skipped))
	}
	var due []firing
	horizon := now + s.lookahead.Seconds()
	for s.next < horizon {
		due = append(due, firing{s.pos, s.next})
		s.advance()
	}
	gen, cb := s.generation, s.onStep
	s.mu.Unlock()
	for _, f := range due {
		if !s.current(gen) {
			break
		}
		cb(f.pos, f.at)
	}
	return nil
}

func (s *Scheduler) current(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.generation == gen
}

// advance moves to the following step. A pending tempo takes over at the
// bar boundary.
func (s *Scheduler) advance() {
	s.next += s.tempo.SecondsPerStep()
	s.pos = s.pos.Next()
	if s.pos.BarStart() && s.tempoPending {
		s.logger.Debug("tempo change", "from", float64(s.tempo), "to", float64(s.pendingTempo), "bar", s.pos.Bar)
		s.tempo, s.tempoPending = s.pendingTempo, false
	}
}

// Run polls until ctx is done or the clock fails.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Poll(); err != nil {
				return err
			}
		}
	}
}
