package tts

import (
	"fmt"
	"time"

	"github.com/MrWong99/vocepta/pkg/types"
)

// DefaultSampleRate is the PCM sample rate synthesized audio is produced at
// unless the backend dictates otherwise.
const DefaultSampleRate = 24000

// Format identifies the audio container/encoding of synthesized speech.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
	FormatPCM Format = "pcm"
)

// ParseFormat converts a config string into a [Format]. The empty string
// defaults to MP3.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatMP3, FormatWAV, FormatPCM:
		return Format(s), nil
	case "":
		return FormatMP3, nil
	default:
		return "", fmt.Errorf("tts: unknown audio format %q", s)
	}
}

// Gender describes a voice's presentation, as reported by the backend.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderNeutral Gender = "neutral"
)

// Voice describes one synthesis voice a backend offers.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Language is the language this voice is tuned for.
	Language types.Language

	// Gender is the voice's presentation.
	Gender Gender
}

// Result is one synthesized utterance.
type Result struct {
	// Audio is the encoded audio payload.
	Audio []byte

	// Format is the encoding Audio is in.
	Format Format

	// Duration is the playback length, when the backend reports or derives it.
	Duration time.Duration

	// SampleRate is the sample rate in Hz (24000 unless overridden).
	SampleRate int
}
