// Package mock provides a scripted asr.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/provider/asr"
)

// Provider is a scripted transcription backend. Results are served in FIFO
// order; when the script is exhausted the last entry repeats.
type Provider struct {
	mu      sync.Mutex
	results []scripted
	calls   []asr.Request

	// Block, when non-nil, is closed by the test to release an in-flight
	// Transcribe call. Used to exercise the cancel-on-new-speech path.
	Block chan struct{}
}

type scripted struct {
	text string
	err  error
}

// New creates an empty mock.
func New() *Provider { return &Provider{} }

// Enqueue appends a successful transcription to the script.
func (p *Provider) Enqueue(text string) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, scripted{text: text})
	return p
}

// EnqueueErr appends a failing transcription to the script.
func (p *Provider) EnqueueErr(err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, scripted{err: err})
	return p
}

// Transcribe implements asr.Provider.
func (p *Provider) Transcribe(ctx context.Context, req asr.Request) (asr.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return asr.Result{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return asr.Result{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.results) == 0 {
		return asr.Result{}, nil
	}
	next := p.results[0]
	if len(p.results) > 1 {
		p.results = p.results[1:]
	}
	if next.err != nil {
		return asr.Result{}, next.err
	}
	return asr.Result{Text: next.text}, nil
}

// CallCount returns the number of Transcribe invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

var _ asr.Provider = (*Provider)(nil)
