// Package engine assembles the render side of the mix from a configuration:
// graph, voice bank, effects chain, ambience layer and mix bus, plus the
// broker that carries alerts back to the control goroutine.
package engine

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/ambience"
	"github.com/firehorse/darkmix/effects"
	"github.com/firehorse/darkmix/graph"
	"github.com/firehorse/darkmix/mixbus"
	"github.com/firehorse/darkmix/voice"
)

type (
	Engine struct {
		Config   darkmix.Config
		Graph    *graph.Graph
		Bank     *voice.Bank
		Chain    *effects.Chain
		Ambience *ambience.Layer
		Bus      *mixbus.Bus
		Broker   *Broker
		Renderer *Renderer
	}

	Option func(*options)

	options struct {
		logger    *slog.Logger
		queueSize int
	}
)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithQueueSize sets the capacity of the graph's schedule queue.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// New builds an engine from a validated config and the decoded ambience
// tracks. Nothing renders until the Renderer is handed to an output device.
func New(cfg darkmix.Config, tracks []ambience.Track, opts ...Option) (*Engine, error) {
	o := options{logger: slog.Default(), queueSize: graph.DefaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, darkmix.InitializationError(err, "invalid engine config")
	}
	broker := NewBroker()
	sr := cfg.SampleRate
	g := graph.New(sr, graph.WithAlerts(broker.Alert), graph.WithQueueSize(o.queueSize))
	bank, err := voice.NewBank(cfg.Voices, g, voice.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	chain, err := effects.New(sr, cfg.Effects,
		effects.WithLogger(o.logger),
		effects.WithRampTime(cfg.RampTime.Seconds()),
		effects.WithAlerts(broker.Alert))
	if err != nil {
		return nil, err
	}
	layer, err := ambience.NewLayer(sr, tracks, ambience.WithLogger(o.logger), ambience.WithAlerts(broker.Alert))
	if err != nil {
		return nil, err
	}
	bus := mixbus.New(sr,
		mixbus.WithCeiling(cfg.Limiter),
		mixbus.WithMasterGain(cfg.MasterGain),
		mixbus.WithAlerts(broker.Alert))
	e := &Engine{
		Config:   cfg,
		Graph:    g,
		Bank:     bank,
		Chain:    chain,
		Ambience: layer,
		Bus:      bus,
		Broker:   broker,
		Renderer: NewRenderer(g, chain, layer, bus, broker),
	}
	o.logger.Info("engine ready", "sampleRate", sr, "voices", len(cfg.Voices), "stages", chain.Len(), "tracks", len(tracks))
	return e, nil
}

// LoadTracks decodes the ambience assets named in cfg. Relative file names
// are resolved against dir. Any missing or undecodable asset is an
// initialization error.
func LoadTracks(cfg darkmix.Config, dir string) ([]ambience.Track, error) {
	tracks := make([]ambience.Track, 0, len(cfg.Ambience))
	for _, t := range cfg.Ambience {
		if t.File == "" {
			return nil, darkmix.InitializationError(fmt.Errorf("%w: track %s has no file", darkmix.ErrAssetDecode, t.Name), "loading ambience")
		}
		path := t.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		a, err := ambience.Load(t.Name, path, cfg.SampleRate)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, ambience.Track{Config: t, Asset: a})
	}
	return tracks, nil
}

// Close stops the clock; the scheduler fails its next poll.
func (e *Engine) Close() {
	e.Graph.Close()
}
