// Package llm defines the chat-completion provider contract used by the
// conversation orchestrator.
//
// The orchestrator issues one single-shot completion per interview turn,
// always constrained to a compact request (system prompt plus at most a
// handful of messages) and expecting a JSON object body. Providers are
// implemented per backend under llm/openai and llm/anyllm; a hand mock for
// tests lives under llm/mock.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
)

// Sentinel errors for the failure taxonomy of a completion call. Providers
// wrap these so callers can classify with [errors.Is]; cancellation is
// reported via [context.Canceled].
var (
	// ErrUnauthorized indicates the API rejected the credentials.
	ErrUnauthorized = errors.New("llm: unauthorized")

	// ErrServer indicates the provider returned a server-side failure.
	ErrServer = errors.New("llm: server error")
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in the completion request history.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser], or [RoleAssistant].
	Role string

	// Content is the text content of the message.
	Content string
}

// Request describes one completion call.
type Request struct {
	// System is the system prompt. Always set by the orchestrator.
	System string

	// Messages is the compact history, never more than a handful of
	// entries — the orchestrator sends a context summary, not the full
	// transcript.
	Messages []Message

	// Temperature controls sampling randomness. Zero means provider default.
	Temperature float64

	// MaxTokens bounds the completion length. Zero means provider default.
	MaxTokens int

	// JSONResponse requests a JSON-object constrained response body.
	JSONResponse bool
}

// Usage reports token accounting when the backend supplies it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the raw completion result. The conversation layer parses and
// validates Content as a mode-dependent JSON document.
type Response struct {
	Content string
	Usage   Usage
}

// Provider is the chat-completion backend contract.
type Provider interface {
	// Complete issues one completion call. It honours ctx cancellation,
	// returns [ErrUnauthorized] or [ErrServer] (wrapped) on API failures,
	// and never retries internally — retry policy belongs to the caller.
	Complete(ctx context.Context, req Request) (*Response, error)
}
