// Package ambience plays the pre-rendered recordings mixed in parallel with
// the synthesized voices: the ambience bed, seam-looped forever, and the
// speech, played once per session.
package ambience

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/param"
)

type (
	// Track pairs a track configuration with its decoded asset.
	Track struct {
		Config darkmix.AmbienceTrack
		Asset  *Asset
	}

	// Layer owns the ambience players. The control methods never block and
	// must be called from one goroutine; Render runs on the render
	// goroutine.
	Layer struct {
		sampleRate int
		tracks     map[string]*track
		commands   chan command
		logger     *slog.Logger
		alert      func(darkmix.Alert)
		active     atomic.Int32

		// control side
		played  map[string]bool // PlayOnce in the current session
		looping map[string]bool
		session int

		// render side
		players []*player
	}

	Option func(*Layer)

	track struct {
		cfg       darkmix.AmbienceTrack
		samples   darkmix.AudioBuffer
		loopStart int
		loopEnd   int
	}

	player struct {
		track      *track
		loop       bool
		pos        int
		startFrame int64
		gain       *param.Param
		fade       *param.Param
		stopAt     float64 // time the fade out ends, +Inf while playing
	}

	commandKind int

	command struct {
		kind  commandKind
		track *track
		value float64
		at    float64 // < 0: next block
		dur   float64
	}
)

const (
	cmdPlayLoop commandKind = iota
	cmdPlayOnce
	cmdSetGain
	cmdStop

	commandQueueSize = 256
	// GainRampTime is the ramp used by SetGain.
	GainRampTime = 0.03
)

func WithLogger(l *slog.Logger) Option {
	return func(a *Layer) { a.logger = l }
}

// WithAlerts sets the callback for dropped commands. It must not block.
func WithAlerts(f func(darkmix.Alert)) Option {
	return func(a *Layer) { a.alert = f }
}

// NewLayer validates the tracks' loop points against their assets.
func NewLayer(sampleRate int, tracks []Track, opts ...Option) (*Layer, error) {
	l := &Layer{
		sampleRate: sampleRate,
		tracks:     make(map[string]*track, len(tracks)),
		commands:   make(chan command, commandQueueSize),
		logger:     slog.Default(),
		alert:      func(darkmix.Alert) {},
		played:     make(map[string]bool),
		looping:    make(map[string]bool),
	}
	for _, o := range opts {
		o(l)
	}
	for _, t := range tracks {
		if t.Asset == nil || len(t.Asset.Samples) == 0 {
			return nil, darkmix.InitializationError(fmt.Errorf("%w: track %s has no audio", darkmix.ErrAssetDecode, t.Config.Name), "building ambience layer")
		}
		n := len(t.Asset.Samples)
		end := t.Config.LoopEnd
		if end == 0 {
			end = n
		}
		if t.Config.LoopStart < 0 || end > n || end <= t.Config.LoopStart {
			return nil, darkmix.InitializationError(fmt.Errorf("%w: track %s loop %d..%d outside asset of %d samples", darkmix.ErrInvalidConfig, t.Config.Name, t.Config.LoopStart, end, n), "building ambience layer")
		}
		l.tracks[t.Config.Name] = &track{cfg: t.Config, samples: t.Asset.Samples, loopStart: t.Config.LoopStart, loopEnd: end}
	}
	return l, nil
}

func (l *Layer) lookup(name string) (*track, error) {
	t, ok := l.tracks[name]
	if !ok {
		return nil, darkmix.NotFoundError(darkmix.ErrUnknownTrack, "ambience track %q", name)
	}
	return t, nil
}

// Has reports whether a track with the name exists.
func (l *Layer) Has(name string) bool {
	_, ok := l.tracks[name]
	return ok
}

// PlayLoop starts the track looping between its loop points, fading in over
// the track's FadeIn. It is a no-op if the track is already looping.
func (l *Layer) PlayLoop(name string) error {
	t, err := l.lookup(name)
	if err != nil {
		return err
	}
	if l.looping[name] {
		return nil
	}
	l.looping[name] = true
	l.send(command{kind: cmdPlayLoop, track: t, at: -1, dur: t.cfg.FadeIn})
	return nil
}

// PlayOnce plays the track from the start to the end, once per session.
// Calls after the first one in the same session do nothing.
func (l *Layer) PlayOnce(name string) error {
	return l.PlayOnceAt(name, -1)
}

// PlayOnceAt is PlayOnce starting at engine time at (seconds).
func (l *Layer) PlayOnceAt(name string, at float64) error {
	t, err := l.lookup(name)
	if err != nil {
		return err
	}
	if l.played[name] {
		return nil
	}
	l.played[name] = true
	l.send(command{kind: cmdPlayOnce, track: t, at: at})
	return nil
}

// SetGain ramps the gain of every player of the track. The value is a
// multiplier on top of the configured track gain, clamped to [0, 2].
func (l *Layer) SetGain(name string, value float64) error {
	t, err := l.lookup(name)
	if err != nil {
		return err
	}
	l.send(command{kind: cmdSetGain, track: t, value: darkmix.Clamp(value, 0, 2), at: -1, dur: GainRampTime})
	return nil
}

// Stop fades the track out over fade seconds (the track's FadeOut if fade
// is negative) and removes it.
func (l *Layer) Stop(name string, fade float64) error {
	t, err := l.lookup(name)
	if err != nil {
		return err
	}
	if fade < 0 {
		fade = t.cfg.FadeOut
	}
	delete(l.looping, name)
	l.send(command{kind: cmdStop, track: t, at: -1, dur: fade})
	return nil
}

// StopAll fades out every track with its FadeOut.
func (l *Layer) StopAll() {
	for name := range l.tracks {
		l.Stop(name, -1)
	}
}

// Crossfade fades from out while to fades in, both over dur seconds. to
// loops.
func (l *Layer) Crossfade(from, to string, dur float64) error {
	ft, err := l.lookup(from)
	if err != nil {
		return err
	}
	tt, err := l.lookup(to)
	if err != nil {
		return err
	}
	delete(l.looping, from)
	l.send(command{kind: cmdStop, track: ft, at: -1, dur: dur})
	if !l.looping[to] {
		l.looping[to] = true
		l.send(command{kind: cmdPlayLoop, track: tt, at: -1, dur: dur})
	}
	return nil
}

// NewSession allows once-per-session tracks to play again.
func (l *Layer) NewSession() {
	clear(l.played)
	l.session++
	l.logger.Debug("ambience session", "session", l.session)
}

// Active is the number of players currently in the render side.
func (l *Layer) Active() int {
	return int(l.active.Load())
}

func (l *Layer) send(c command) {
	if !darkmix.TrySend(l.commands, c) {
		l.logger.Warn("ambience command dropped", "track", c.track.cfg.Name)
		l.alert(darkmix.Alert{Name: darkmix.AlertQueueFull, Priority: darkmix.Warning, Message: "ambience command dropped: " + c.track.cfg.Name})
	}
}

// Render clears buf and mixes every player into it. frame is the engine
// frame of buf[0].
func (l *Layer) Render(buf darkmix.AudioBuffer, frame int64) {
	sr := float64(l.sampleRate)
	l.processCommands(frame, sr)
	buf.Clear()
	kept := l.players[:0]
	for _, p := range l.players {
		if p.render(buf, frame, sr) {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(l.players); i++ {
		l.players[i] = nil
	}
	l.players = kept
	l.active.Store(int32(len(l.players)))
}

func (l *Layer) processCommands(frame int64, sr float64) {
	now := float64(frame) / sr
	for {
		select {
		case c := <-l.commands:
			at := c.at
			if at < now {
				at = now
			}
			switch c.kind {
			case cmdPlayLoop, cmdPlayOnce:
				l.players = append(l.players, newPlayer(c, at, sr))
			case cmdSetGain:
				for _, p := range l.players {
					if p.track == c.track {
						p.gain.Set(c.track.cfg.Gain*c.value, at, c.dur)
					}
				}
			case cmdStop:
				for _, p := range l.players {
					if p.track != c.track {
						continue
					}
					if float64(p.startFrame) >= at*sr {
						p.stopAt = at // not started yet
					} else if at+c.dur < p.stopAt {
						p.fade.Set(0, at, c.dur)
						p.stopAt = at + c.dur
					}
				}
			}
		default:
			return
		}
	}
}

func newPlayer(c command, at, sr float64) *player {
	t := c.track
	p := &player{
		track:      t,
		loop:       c.kind == cmdPlayLoop,
		startFrame: int64(math.Round(at * sr)),
		gain:       param.New(t.cfg.Gain),
		fade:       param.New(0),
		stopAt:     math.Inf(1),
	}
	fadeIn := t.cfg.FadeIn
	if c.kind == cmdPlayLoop {
		fadeIn = c.dur
	}
	p.fade.Set(1, at, fadeIn)
	if !p.loop {
		length := float64(len(t.samples)) / sr
		fadeOut := math.Min(t.cfg.FadeOut, length/2)
		p.fade.Set(0, at+length-fadeOut, fadeOut)
		p.stopAt = at + length
	}
	return p
}

// render adds the player to buf and reports whether it is still playing.
func (p *player) render(buf darkmix.AudioBuffer, frame int64, sr float64) bool {
	t := p.track
	for i := range buf {
		f := frame + int64(i)
		now := float64(f) / sr
		if now >= p.stopAt {
			return false
		}
		if f < p.startFrame {
			continue
		}
		if !p.loop && p.pos >= len(t.samples) {
			return false
		}
		g := float32(p.gain.ValueAt(now) * p.fade.ValueAt(now))
		s := t.samples[p.pos]
		buf[i][0] += s[0] * g
		buf[i][1] += s[1] * g
		p.pos++
		if p.loop && p.pos >= t.loopEnd {
			p.pos = t.loopStart
		}
	}
	return true
}
