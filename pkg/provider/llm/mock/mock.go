// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the orchestrator sends correct
// CompletionRequests and to feed controlled responses without a live LLM
// backend. The Script field supports per-call outcomes (two failures, then
// a tool call); once exhausted the provider falls back to
// CompleteResponse/CompleteErr.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: "Hello!"},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vocepta/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// StreamCall records a single invocation of StreamComplete.
type StreamCall struct {
	// Ctx is the context passed to StreamComplete.
	Ctx context.Context
	// Req is the CompletionRequest passed to StreamComplete.
	Req llm.CompletionRequest
}

// Outcome is one scripted Complete result.
type Outcome struct {
	Response *llm.CompletionResponse
	Err      error
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return canned values and
// nil errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Script holds per-call Complete outcomes consumed in order before
	// CompleteResponse and CompleteErr apply.
	Script []Outcome

	// CompleteResponse is returned by Complete once the script is
	// exhausted. If nil, a canned text response is returned.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned by Complete once the script is
	// exhausted.
	CompleteErr error

	// StreamChunks is the sequence of Chunk values emitted on the channel
	// returned by StreamComplete. All chunks are sent before the channel
	// is closed.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned as the error from StreamComplete
	// instead of opening a channel.
	StreamErr error

	// Usage is returned by TokenUsage.
	Usage llm.Usage

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	// StreamCalls records every invocation of StreamComplete in order.
	StreamCalls []StreamCall
}

// Complete records the call and returns the next scripted outcome.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if len(p.Script) > 0 {
		next := p.Script[0]
		p.Script = p.Script[1:]
		return next.Response, next.Err
	}
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if p.CompleteResponse != nil {
		return p.CompleteResponse, nil
	}
	return &llm.CompletionResponse{
		Content:      "mock reply",
		FinishReason: llm.FinishStop,
		Model:        "mock",
	}, nil
}

// StreamComplete records the call and returns a channel that emits
// StreamChunks. If StreamErr is set, it returns nil, StreamErr without
// opening a channel.
func (p *Provider) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: req})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// TokenUsage returns the configured Usage.
func (p *Provider) TokenUsage() llm.Usage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Usage
}

// CompleteCallCount returns the number of Complete calls. Thread-safe.
func (p *Provider) CompleteCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// Reset clears all recorded calls and the remaining script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.StreamCalls = nil
	p.Script = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
