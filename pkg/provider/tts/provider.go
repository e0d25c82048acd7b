// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service and turns one assistant
// utterance into playable audio. The per-call pipeline synthesizes at most
// one utterance per turn, so the contract is a simple request/response; the
// wrapping [Cache] keeps repeated prompts (greetings, state prompts) from
// hitting the vendor twice.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel, one per active call.
package tts

import (
	"context"

	"github.com/MrWong99/vocepta/pkg/types"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into audio in the requested format.
	//
	// Empty or whitespace-only text fails with a provider error of kind
	// InvalidText. A voiceID the backend does not recognize falls back to
	// the default voice for lang rather than failing; the chosen voice is
	// not reported back. Transient vendor conditions carry retryable
	// kinds per the shared taxonomy.
	Synthesize(ctx context.Context, text string, lang types.Language, voiceID string, format Format) (*Result, error)

	// AvailableVoices returns the voices the backend offers for the given
	// language. LanguageUnknown returns every voice.
	AvailableVoices(ctx context.Context, lang types.Language) ([]Voice, error)
}
