package stt

import (
	"time"

	"github.com/MrWong99/vocepta/pkg/types"
)

// Result is a committed speech-to-text result for one utterance.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// Language is the language the audio was transcribed as.
	Language types.Language

	// Duration is the length of the utterance as measured by the provider.
	Duration time.Duration
}

// LowConfidence reports whether the result falls below the given threshold.
// A zero threshold applies [DefaultConfidenceThreshold].
func (r *Result) LowConfidence(threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return r.Confidence > 0 && r.Confidence < threshold
}

// StreamChunk is one recognition update from a streaming session. Interim
// chunks carry the provider's running guess; the single final chunk carries
// the committed transcript.
type StreamChunk struct {
	// Text is the partial or final transcript text.
	Text string

	// IsFinal marks the last chunk of the stream. Exactly one final chunk
	// is emitted per stream, always last.
	IsFinal bool

	// Confidence is the provider's score for this chunk, when reported.
	Confidence float64
}
