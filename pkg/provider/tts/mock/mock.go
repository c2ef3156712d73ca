// Package mock provides a scripted tts.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/provider/tts"
)

// Provider is a deterministic synthesis backend: each call records the text
// and returns the text bytes as the "clip", so tests can assert on what was
// spoken without decoding audio.
type Provider struct {
	mu    sync.Mutex
	texts []string
	err   error
}

// New creates a mock synthesizer.
func New() *Provider { return &Provider{} }

// Fail makes all subsequent calls return err.
func (p *Provider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, _ tts.Voice) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.texts = append(p.texts, text)
	return []byte(text), nil
}

// Texts returns all synthesized texts in call order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.texts))
	copy(out, p.texts)
	return out
}

var _ tts.Provider = (*Provider)(nil)
