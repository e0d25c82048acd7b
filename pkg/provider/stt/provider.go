// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a hosted transcription service (e.g., Deepgram) and
// exposes two entry points: a one-shot Transcribe for a complete utterance,
// used by the per-call turn pipeline, and a streaming TranscribeStream for
// transports that deliver audio incrementally. Both operate on raw audio
// bytes; the byte-level format is whatever the telephony leg produces and is
// agreed with the provider out of band.
//
// Implementations must be safe for concurrent use. Multiple calls may
// transcribe simultaneously, one stream per call.
package stt

import (
	"context"

	"github.com/MrWong99/vocepta/pkg/types"
)

// DefaultConfidenceThreshold is the confidence score below which a result
// is considered low quality. The pipeline surfaces low-confidence results
// to its metrics but does not filter them; the LLM sees the text either way.
const DefaultConfidenceThreshold = 0.8

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts one complete utterance into text.
	//
	// A zero-length audio slice fails with a provider error of kind
	// EmptyAudio; a language other than en/es fails with
	// UnsupportedLanguage. Transient vendor conditions (rate limits,
	// timeouts) are reported with retryable kinds so the caller's retry
	// policy can act on them.
	Transcribe(ctx context.Context, audio []byte, lang types.Language) (*Result, error)

	// TranscribeStream opens a streaming transcription session. Audio
	// chunks are read from the audio channel until it is closed, and
	// recognition results are emitted on the returned channel: zero or
	// more interim chunks followed by exactly one final chunk, after
	// which the channel is closed. The final chunk carries the committed
	// transcript for the whole utterance.
	//
	// The stream is torn down when ctx is cancelled, when the audio
	// channel closes, or on a provider error; the result channel is
	// always closed on exit.
	TranscribeStream(ctx context.Context, audio <-chan []byte, lang types.Language) (<-chan StreamChunk, error)
}
