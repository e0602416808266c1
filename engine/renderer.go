package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/ambience"
	"github.com/firehorse/darkmix/effects"
	"github.com/firehorse/darkmix/graph"
	"github.com/firehorse/darkmix/mixbus"
)

// Renderer is the render side of the engine: voices from the graph through
// the effects chain, ambience in parallel, both into the mix bus. The output
// device calls ReadAudio from its own goroutine.
type Renderer struct {
	graph    *graph.Graph
	chain    *effects.Chain
	ambience *ambience.Layer
	bus      *mixbus.Bus
	broker   *Broker

	voices  darkmix.AudioBuffer
	amb     darkmix.AudioBuffer
	crashed atomic.Bool
}

// MaxBlock is the longest block rendered in one pass; larger reads are split.
const MaxBlock = 512

func NewRenderer(g *graph.Graph, c *effects.Chain, a *ambience.Layer, b *mixbus.Bus, broker *Broker) *Renderer {
	return &Renderer{
		graph:    g,
		chain:    c,
		ambience: a,
		bus:      b,
		broker:   broker,
		voices:   make(darkmix.AudioBuffer, MaxBlock),
		amb:      make(darkmix.AudioBuffer, MaxBlock),
	}
}

// ReadAudio fills buf with the next len(buf) frames. It never fails: after a
// panic in the render path it reports an alert and outputs silence.
func (r *Renderer) ReadAudio(buf darkmix.AudioBuffer) (n int, err error) {
	if r.crashed.Load() {
		buf.Clear()
		return len(buf), nil
	}
	defer func() {
		if e := recover(); e != nil {
			r.crashed.Store(true)
			buf.Clear()
			r.broker.Alert(darkmix.Alert{Name: darkmix.AlertRenderCrash, Priority: darkmix.Error, Message: fmt.Sprintf("render panicked: %v", e)})
			n, err = len(buf), nil
		}
	}()
	for off := 0; off < len(buf); off += MaxBlock {
		out := buf[off:min(off+MaxBlock, len(buf))]
		frame := r.graph.Frame()
		voices := r.voices.Resize(len(out))
		amb := r.amb.Resize(len(out))
		r.graph.Render(voices)
		r.chain.Process(voices, frame)
		r.ambience.Render(amb, frame)
		r.bus.Mix(out, voices, amb, frame)
	}
	return len(buf), nil
}

// Crashed reports whether a render panic silenced the output.
func (r *Renderer) Crashed() bool {
	return r.crashed.Load()
}
