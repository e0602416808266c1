//go:build !headless

package oto

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/firehorse/darkmix"
)

// Context is the audio output device. It implements darkmix.AudioContext.
type Context struct {
	ctx        *oto.Context
	sampleRate int

	mu      sync.Mutex
	players []*player
}

type player struct {
	p *oto.Player
	r *reader
}

// DefaultBufferSize is the device buffer; it bounds output latency.
const DefaultBufferSize = 40 * time.Millisecond

// NewContext opens the default output device at sampleRate. oto allows one
// context per process.
func NewContext(sampleRate int, bufferSize time.Duration) (*Context, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return nil, darkmix.InitializationError(fmt.Errorf("%w: %w", darkmix.ErrDeviceUnavailable, err), "cannot create oto context")
	}
	<-ready
	return &Context{ctx: ctx, sampleRate: sampleRate}, nil
}

// Play starts pulling src from the device goroutine.
func (c *Context) Play(src darkmix.AudioSource) error {
	if err := c.ctx.Err(); err != nil {
		return darkmix.InitializationError(fmt.Errorf("%w: %w", darkmix.ErrDeviceUnavailable, err), "oto context failed")
	}
	r := &reader{src: src}
	p := c.ctx.NewPlayer(r)
	p.Play()
	c.mu.Lock()
	c.players = append(c.players, &player{p: p, r: r})
	c.mu.Unlock()
	return nil
}

// Err returns the first error of the device or of a played source.
func (c *Context) Err() error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.players {
		if err := p.p.Err(); err != nil {
			return err
		}
		if err := p.r.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close stops every player and suspends the device.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.players {
		if err := p.p.Close(); err != nil {
			return fmt.Errorf("cannot close oto player: %w", err)
		}
	}
	c.players = nil
	if err := c.ctx.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}
