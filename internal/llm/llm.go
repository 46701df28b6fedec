// Package llm provides completion adapters for OpenAI-compatible servers.
package llm

import "context"

// Options tune one completion call.
type Options struct {
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// Delta is one piece of a streamed completion. A non-nil Err is the last
// value sent before the channel closes.
type Delta struct {
	Text string
	Err  error
}

// Completer generates text from a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
	// StreamComplete returns a channel that is closed when the completion
	// ends, fails, or ctx is cancelled.
	StreamComplete(ctx context.Context, prompt string, opts Options) (<-chan Delta, error)
}
