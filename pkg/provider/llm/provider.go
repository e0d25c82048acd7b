// Package llm defines the Provider interface for large language model
// backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI, or any
// backend reachable through any-llm) and exposes a uniform interface for the
// session orchestrator to perform completions with tool calling, without
// coupling to any specific SDK. Vendor errors are converted to the shared
// provider taxonomy at the adapter boundary.
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamComplete must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import "context"

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Rate-limit and timeout failures carry retryable provider-error
	// kinds; authentication and context-length failures do not.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// StreamComplete sends req to the model and returns a read-only
	// channel emitting Chunk values as they arrive. Tool-call deltas are
	// reassembled inside the implementation: the final chunk of a
	// tool-calling response has FinishReason == FinishToolCalls and
	// carries the complete ToolCalls list.
	//
	// Callers must drain the channel. Errors after the stream has started
	// surface as a final Chunk with FinishReason == FinishError; the error
	// return is non-nil only when the stream cannot start at all.
	StreamComplete(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// TokenUsage returns the cumulative token accounting across every
	// request this provider instance has served. Used to attribute model
	// cost to a call at session end.
	TokenUsage() Usage
}
