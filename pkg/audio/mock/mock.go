// Package mock provides in-memory implementations of [audio.CaptureDevice]
// and [audio.Player] for tests and local development without sound hardware.
package mock

import (
	"context"
	"sync"

	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/audio"
)

// Capture is a scripted capture device. Tests push samples via [Capture.Push]
// and the pipeline consumes them from the channel returned by Start.
type Capture struct {
	mu     sync.Mutex
	ch     chan audio.Sample
	closed bool
}

// NewCapture creates a Capture with the given channel buffer depth.
func NewCapture(buffer int) *Capture {
	return &Capture{ch: make(chan audio.Sample, buffer)}
}

// Start implements [audio.CaptureDevice].
func (c *Capture) Start(_ context.Context) (<-chan audio.Sample, error) {
	return c.ch, nil
}

// Push delivers one sample to the pipeline. Pushing to a closed capture is
// a no-op so tests can race Close against their feed goroutine safely.
func (c *Capture) Push(s audio.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.ch <- s
}

// Close implements [audio.CaptureDevice].
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
	return nil
}

// Player is a controllable playback device. Each Play call records the clip
// and returns a handle whose completion the test drives via [Clip.Complete]
// or, for non-test use, completes immediately when AutoComplete is set.
type Player struct {
	mu           sync.Mutex
	clips        []*Clip
	AutoComplete bool
}

// NewPlayer creates an idle mock player.
func NewPlayer() *Player { return &Player{} }

// Clip is one recorded Play invocation.
type Clip struct {
	Audio []byte

	mu      sync.Mutex
	done    chan error
	settled bool
	stopped bool
}

// Done implements [audio.Playback].
func (c *Clip) Done() <-chan error { return c.done }

// Stop implements [audio.Playback].
func (c *Clip) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settled {
		return
	}
	c.settled = true
	c.stopped = true
	c.done <- context.Canceled
	close(c.done)
}

// Complete finishes the clip as if playback ran to its natural end.
func (c *Clip) Complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settled {
		return
	}
	c.settled = true
	c.done <- nil
	close(c.done)
}

// Stopped reports whether the clip was halted via Stop.
func (c *Clip) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Play implements [audio.Player].
func (p *Player) Play(_ context.Context, clip []byte) (audio.Playback, error) {
	c := &Clip{Audio: clip, done: make(chan error, 1)}
	p.mu.Lock()
	p.clips = append(p.clips, c)
	auto := p.AutoComplete
	p.mu.Unlock()
	if auto {
		c.Complete()
	}
	return c, nil
}

// Clips returns a snapshot of all recorded Play invocations.
func (p *Player) Clips() []*Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Clip, len(p.clips))
	copy(out, p.clips)
	return out
}

// Close implements [audio.Player].
func (p *Player) Close() error { return nil }

var (
	_ audio.CaptureDevice = (*Capture)(nil)
	_ audio.Player        = (*Player)(nil)
	_ audio.Playback      = (*Clip)(nil)
)
