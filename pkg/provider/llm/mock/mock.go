// Package mock provides a scripted llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/provider/llm"
)

// Provider is a scripted chat backend. Responses are served in FIFO order;
// when the script is exhausted the last entry repeats.
type Provider struct {
	mu        sync.Mutex
	responses []scripted
	calls     []llm.Request
}

type scripted struct {
	content string
	err     error
}

// New creates an empty mock. Enqueue responses before use.
func New() *Provider { return &Provider{} }

// Enqueue appends a successful response to the script.
func (p *Provider) Enqueue(content string) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, scripted{content: content})
	return p
}

// EnqueueErr appends a failing response to the script.
func (p *Provider) EnqueueErr(err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, scripted{err: err})
	return p
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)

	if len(p.responses) == 0 {
		return &llm.Response{}, nil
	}
	next := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	if next.err != nil {
		return nil, next.err
	}
	return &llm.Response{Content: next.content}, nil
}

// Calls returns a snapshot of all requests received so far.
func (p *Provider) Calls() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of Complete invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

var _ llm.Provider = (*Provider)(nil)
