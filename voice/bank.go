// Package voice implements the synthesizer voices: a Bank of voice
// definitions that turns triggers into sample-accurate Instances scheduled on
// the render graph.
package voice

import (
	"fmt"
	"log/slog"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/graph"
)

type (
	// Scheduler is the render side capability the bank needs: starting a
	// node at an absolute time.
	Scheduler interface {
		ScheduleAt(at float64, node graph.Node) error
		SampleRate() int
	}

	// Bank owns the voice definitions and triggers instances of them. It is
	// used from the control goroutine only.
	Bank struct {
		patch      darkmix.Patch
		scheduler  Scheduler
		sampleRate int
		mono       map[darkmix.VoiceID]*Instance
		seed       uint32
		logger     *slog.Logger
	}

	Option func(*Bank)
)

func WithLogger(l *slog.Logger) Option {
	return func(b *Bank) { b.logger = l }
}

// NewBank validates the patch and returns a bank scheduling on s. The patch
// is copied; later changes to it have no effect.
func NewBank(patch darkmix.Patch, s Scheduler, opts ...Option) (*Bank, error) {
	if err := patch.Validate(); err != nil {
		return nil, darkmix.InitializationError(err, "invalid voice patch")
	}
	b := &Bank{
		patch:      patch.Copy(),
		scheduler:  s,
		sampleRate: s.SampleRate(),
		mono:       make(map[darkmix.VoiceID]*Instance),
		seed:       1,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	b.logger.Debug("voice bank ready", "voices", len(b.patch), "sampleRate", b.sampleRate)
	return b, nil
}

// Definition returns the definition of a voice.
func (b *Bank) Definition(id darkmix.VoiceID) (*darkmix.VoiceDefinition, bool) {
	i, ok := b.patch.Find(id)
	if !ok {
		return nil, false
	}
	return &b.patch[i], true
}

// Patch returns a copy of the voice definitions.
func (b *Bank) Patch() darkmix.Patch {
	return b.patch.Copy()
}

// Trigger starts voice id at time at (seconds on the engine clock, never
// "now"), with pitch in semitones relative to the voice root, velocity in
// [0, 1] and gate length in seconds. The instance releases itself at
// at + envelope duration + release tail. Monophonic voices fade out their
// previous instance at at.
//
// An unknown id is a caller error and returns a NotFound error.
func (b *Bank) Trigger(id darkmix.VoiceID, at, pitch, velocity, gate float64) (*Instance, error) {
	i, ok := b.patch.Find(id)
	if !ok {
		return nil, darkmix.NotFoundError(darkmix.ErrUnknownVoice, "trigger voice %q", id)
	}
	def := &b.patch[i]
	b.seed++
	in := newInstance(def, b.sampleRate, at, pitch, darkmix.Clamp(velocity, 0, 1), gate, b.seed)
	if err := b.scheduler.ScheduleAt(at, in); err != nil {
		return nil, fmt.Errorf("trigger %s at %.3fs: %w", id, at, err)
	}
	if def.Monophonic {
		if prev := b.mono[id]; prev != nil && !prev.Done() && prev.End() > at {
			prev.StealBy(in)
		}
		b.mono[id] = in
	}
	return in, nil
}

// Reset forgets the monophonic voice owners, e.g. after the transport was
// stopped and pending instances were cancelled.
func (b *Bank) Reset() {
	clear(b.mono)
}
