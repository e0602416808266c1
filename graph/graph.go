// Package graph is the render side of the engine: it owns every scheduled and
// sounding node and renders them sample-accurately. The control goroutine
// talks to it only through non-blocking scheduling calls.
package graph

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/firehorse/darkmix"
)

type (
	// Node is something that sounds for a while once started, e.g. a voice
	// instance. Render adds the node output for frames [frame,
	// frame+len(buf)) to buf and returns false when the node has finished;
	// the graph then releases it and never calls it again.
	Node interface {
		Render(buf darkmix.AudioBuffer, frame int64) bool
	}

	// Releaser is implemented by nodes that want to know when the graph
	// lets go of them. cancelled is true if the node was removed before it
	// ever started.
	Releaser interface {
		Released(cancelled bool)
	}

	// Graph schedules nodes at absolute frames and renders the active ones.
	// ScheduleAt, CancelFrom and the query methods may be called from any
	// goroutine; Render must only be called from the render goroutine.
	Graph struct {
		sampleRate int
		frame      atomic.Int64 // frames rendered so far: the engine clock
		closed     atomic.Bool

		commands chan command
		seq      atomic.Uint64

		outstanding atomic.Int64 // scheduled, not yet released
		playing     atomic.Int64 // started, not yet released
		stats       stats

		alert func(darkmix.Alert)

		// owned by the render goroutine
		pending eventHeap
		active  []event
	}

	// Stats counts node lifecycle events since the graph was created.
	Stats struct {
		Scheduled int64
		Started   int64
		Released  int64
		Cancelled int64
		Late      int64
		Dropped   int64
	}

	// Option configures a Graph.
	Option func(*Graph)

	stats struct {
		scheduled, started, released, cancelled, late, dropped atomic.Int64
	}

	event struct {
		frame int64
		seq   uint64
		node  Node
	}

	command struct {
		cancel bool
		ev     event
	}

	eventHeap []event
)

// DefaultQueueSize is the capacity of the scheduling queue.
const DefaultQueueSize = 4096

var ErrQueueFull = errors.New("render queue full")

func New(sampleRate int, opts ...Option) *Graph {
	g := &Graph{
		sampleRate: sampleRate,
		commands:   make(chan command, DefaultQueueSize),
		alert:      func(darkmix.Alert) {},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// WithAlerts sets the callback used to report late events. It is called on
// the render goroutine and must not block.
func WithAlerts(f func(darkmix.Alert)) Option {
	return func(g *Graph) { g.alert = f }
}

// WithQueueSize sets the capacity of the scheduling queue.
func WithQueueSize(n int) Option {
	return func(g *Graph) { g.commands = make(chan command, n) }
}

func (g *Graph) SampleRate() int {
	return g.sampleRate
}

// Frame is the number of frames rendered so far.
func (g *Graph) Frame() int64 {
	return g.frame.Load()
}

// CurrentTime returns the engine clock in seconds: the time of the next frame
// to be rendered.
func (g *Graph) CurrentTime() (float64, error) {
	if g.closed.Load() {
		return 0, darkmix.ErrClockUnavailable
	}
	return float64(g.frame.Load()) / float64(g.sampleRate), nil
}

// FrameAt converts engine time in seconds to a frame index.
func (g *Graph) FrameAt(t float64) int64 {
	return int64(math.Round(t * float64(g.sampleRate)))
}

// Close stops the clock; CurrentTime returns an error afterwards.
func (g *Graph) Close() {
	g.closed.Store(true)
}

// ScheduleAt starts node at time at (seconds). It never blocks: if the queue
// is full the node is dropped and ErrQueueFull returned. Nodes scheduled for
// the same frame start in call order.
func (g *Graph) ScheduleAt(at float64, node Node) error {
	return g.ScheduleAtFrame(g.FrameAt(at), node)
}

func (g *Graph) ScheduleAtFrame(frame int64, node Node) error {
	ev := event{frame: frame, seq: g.seq.Add(1), node: node}
	g.outstanding.Add(1)
	if !darkmix.TrySend(g.commands, command{ev: ev}) {
		g.outstanding.Add(-1)
		g.stats.dropped.Add(1)
		return fmt.Errorf("scheduling at frame %d: %w", frame, ErrQueueFull)
	}
	g.stats.scheduled.Add(1)
	return nil
}

// CancelFrom removes every node scheduled before this call whose start time
// is at or after at. Nodes that have already started keep sounding.
func (g *Graph) CancelFrom(at float64) error {
	ev := event{frame: g.FrameAt(at), seq: g.seq.Add(1)}
	if !darkmix.TrySend(g.commands, command{cancel: true, ev: ev}) {
		return fmt.Errorf("cancelling from %.3fs: %w", at, ErrQueueFull)
	}
	return nil
}

// Outstanding is the number of nodes scheduled or sounding, i.e. not yet
// released.
func (g *Graph) Outstanding() int {
	return int(g.outstanding.Load())
}

// Playing is the number of started nodes that have not finished.
func (g *Graph) Playing() int {
	return int(g.playing.Load())
}

func (g *Graph) Stats() Stats {
	return Stats{
		Scheduled: g.stats.scheduled.Load(),
		Started:   g.stats.started.Load(),
		Released:  g.stats.released.Load(),
		Cancelled: g.stats.cancelled.Load(),
		Late:      g.stats.late.Load(),
		Dropped:   g.stats.dropped.Load(),
	}
}

// Render clears buf, renders every node sounding during the block into it and
// advances the clock by len(buf) frames. The block is split at node start
// frames so that nodes start exactly on their frame.
func (g *Graph) Render(buf darkmix.AudioBuffer) {
	g.processCommands()
	buf.Clear()
	start := g.frame.Load()
	late := 0
	for pos := 0; pos < len(buf); {
		now := start + int64(pos)
		for len(g.pending) > 0 && g.pending[0].frame <= now {
			ev := heap.Pop(&g.pending).(event)
			if ev.frame < now {
				late++
			}
			g.active = append(g.active, ev)
			g.playing.Add(1)
			g.stats.started.Add(1)
		}
		end := len(buf)
		if len(g.pending) > 0 {
			if d := g.pending[0].frame - start; d < int64(end) {
				end = int(d)
			}
		}
		g.renderActive(buf[pos:end], now)
		pos = end
	}
	g.frame.Add(int64(len(buf)))
	if late > 0 {
		g.stats.late.Add(int64(late))
		a := darkmix.DegradedPlaybackWarning("%d events started late at frame %d", late, start)
		a.Name = darkmix.AlertLateEvent
		g.alert(a)
	}
}

func (g *Graph) renderActive(buf darkmix.AudioBuffer, frame int64) {
	if len(buf) == 0 {
		return
	}
	kept := g.active[:0]
	for _, ev := range g.active {
		if ev.node.Render(buf, frame) {
			kept = append(kept, ev)
			continue
		}
		g.playing.Add(-1)
		g.release(ev, false)
	}
	for i := len(kept); i < len(g.active); i++ {
		g.active[i] = event{}
	}
	g.active = kept
}

func (g *Graph) processCommands() {
	for {
		select {
		case c := <-g.commands:
			if c.cancel {
				g.cancel(c.ev)
			} else {
				heap.Push(&g.pending, c.ev)
			}
		default:
			return
		}
	}
}

// cancel drops pending events issued before c with a start frame >= c.frame.
func (g *Graph) cancel(c event) {
	kept := g.pending[:0]
	for _, ev := range g.pending {
		if ev.seq < c.seq && ev.frame >= c.frame {
			g.release(ev, true)
			continue
		}
		kept = append(kept, ev)
	}
	for i := len(kept); i < len(g.pending); i++ {
		g.pending[i] = event{}
	}
	g.pending = kept
	heap.Init(&g.pending)
}

func (g *Graph) release(ev event, cancelled bool) {
	if r, ok := ev.node.(Releaser); ok {
		r.Released(cancelled)
	}
	if cancelled {
		g.stats.cancelled.Add(1)
	} else {
		g.stats.released.Add(1)
	}
	g.outstanding.Add(-1)
}

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].frame != h[j].frame {
		return h[i].frame < h[j].frame
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = event{}
	*h = old[:n-1]
	return x
}
