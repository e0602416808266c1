// Package midi maps a MIDI control surface onto the transport: control
// changes for intensity, master volume and tempo, notes for start, stop and
// section requests.
package midi

import (
	"context"
	"errors"
	"log/slog"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/pattern"
	"gitlab.com/gomidi/midi/v2"
)

type (
	// Controls is what the surface drives; transport.Controller implements
	// it.
	Controls interface {
		Start() error
		Stop()
		SetIntensity(v float64)
		SetMasterVolume(v float64)
		SetTempo(t darkmix.Tempo) error
		RequestSection(s pattern.Section) error
	}

	// Mapping assigns controllers and notes. A zero controller or note
	// number disables the control.
	Mapping struct {
		Channel     int // 1-16, 0 listens on all channels
		IntensityCC uint8
		VolumeCC    uint8
		TempoCC     uint8
		// TempoCC sweeps linearly from MinTempo to MaxTempo.
		MinTempo, MaxTempo darkmix.Tempo

		StartNote, StopNote uint8
		SectionNotes        [pattern.NumSections]uint8
	}

	// Surface decodes MIDI messages and applies them to the controls. The
	// driver callback only queues messages; Run applies them.
	Surface struct {
		mapping  Mapping
		controls Controls
		messages chan midi.Message
		logger   *slog.Logger
	}

	Option func(*Surface)
)

const messageQueueSize = 1024

// DefaultMapping: mod wheel for intensity, channel volume for the master,
// CC 20 for tempo, notes from C1 for the transport and sections.
func DefaultMapping() Mapping {
	return Mapping{
		IntensityCC:  1,
		VolumeCC:     7,
		TempoCC:      20,
		MinTempo:     100,
		MaxTempo:     160,
		StartNote:    36,
		StopNote:     37,
		SectionNotes: [pattern.NumSections]uint8{38, 39, 40, 41},
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Surface) { s.logger = l }
}

func NewSurface(c Controls, m Mapping, opts ...Option) *Surface {
	s := &Surface{
		mapping:  m,
		controls: c,
		messages: make(chan midi.Message, messageQueueSize),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// HandleMessage is the driver callback. It never blocks; messages arriving
// with a full queue are dropped.
func (s *Surface) HandleMessage(msg midi.Message, timestampms int32) {
	darkmix.TrySend(s.messages, msg)
}

// Run applies queued messages until ctx is done.
func (s *Surface) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.messages:
			s.Apply(msg)
		}
	}
}

// Apply decodes one message and drives the controls. It reports whether the
// message was mapped to anything.
func (s *Surface) Apply(msg midi.Message) bool {
	var channel, key, value uint8
	switch {
	case msg.GetControlChange(&channel, &key, &value):
		if !s.listens(channel) || key == 0 {
			return false
		}
		v := float64(value) / 127
		switch key {
		case s.mapping.IntensityCC:
			s.controls.SetIntensity(v)
		case s.mapping.VolumeCC:
			s.controls.SetMasterVolume(v)
		case s.mapping.TempoCC:
			t := s.mapping.MinTempo + darkmix.Tempo(v)*(s.mapping.MaxTempo-s.mapping.MinTempo)
			if err := s.controls.SetTempo(t); err != nil {
				s.logger.Warn("midi tempo", "tempo", float64(t), "err", err)
			}
		default:
			return false
		}
		return true
	case msg.GetNoteOn(&channel, &key, &value):
		if !s.listens(channel) || key == 0 || value == 0 {
			return false
		}
		return s.note(key)
	}
	return false
}

func (s *Surface) note(key uint8) bool {
	switch key {
	case s.mapping.StartNote:
		if err := s.controls.Start(); err != nil {
			s.logger.Warn("midi start", "err", err)
		}
		return true
	case s.mapping.StopNote:
		s.controls.Stop()
		return true
	}
	for sec, n := range s.mapping.SectionNotes {
		if n != 0 && n == key {
			if err := s.controls.RequestSection(pattern.Section(sec)); err != nil {
				s.logger.Warn("midi section", "err", err)
			}
			return true
		}
	}
	return false
}

// listens reports whether channel (0-15 on the wire) is mapped.
func (s *Surface) listens(channel uint8) bool {
	return s.mapping.Channel == 0 || int(channel)+1 == s.mapping.Channel
}

// ErrNoInput is returned by OpenInput when no port matches.
var ErrNoInput = errors.New("no MIDI input")
