// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio to consumers and to verify the text,
// language and voice passed to the TTS backend. The Script field supports
// per-call outcomes for retry tests.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: &tts.Result{Audio: []byte("pcm"), Format: tts.FormatPCM},
//	}
//	res, _ := p.Synthesize(ctx, "Hello!", types.LanguageEnglish, "alloy", tts.FormatPCM)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vocepta/pkg/provider/tts"
	"github.com/MrWong99/vocepta/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
	// Language is the language passed to Synthesize.
	Language types.Language
	// VoiceID is the voice identifier passed to Synthesize.
	VoiceID string
	// Format is the audio format passed to Synthesize.
	Format tts.Format
}

// Outcome is one scripted Synthesize result.
type Outcome struct {
	Result *tts.Result
	Err    error
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Script holds per-call Synthesize outcomes consumed in order before
	// Result and SynthesizeErr apply.
	Script []Outcome

	// Result is returned by Synthesize once the script is exhausted. If
	// nil, a canned result carrying the input text as audio is returned.
	Result *tts.Result

	// SynthesizeErr, if non-nil, is returned by Synthesize once the script
	// is exhausted.
	SynthesizeErr error

	// Voices is returned by AvailableVoices.
	Voices []tts.Voice

	// VoicesErr, if non-nil, is returned as the error from AvailableVoices.
	VoicesErr error

	// --- Call records (read after test) ---

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	// VoicesCalls counts invocations of AvailableVoices.
	VoicesCalls int
}

// Synthesize records the call and returns the next scripted outcome.
func (p *Provider) Synthesize(ctx context.Context, text string, lang types.Language, voiceID string, format tts.Format) (*tts.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{
		Ctx:      ctx,
		Text:     text,
		Language: lang,
		VoiceID:  voiceID,
		Format:   format,
	})

	if len(p.Script) > 0 {
		next := p.Script[0]
		p.Script = p.Script[1:]
		return next.Result, next.Err
	}
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	if p.Result != nil {
		res := *p.Result
		return &res, nil
	}
	return &tts.Result{
		Audio:      []byte(text),
		Format:     format,
		SampleRate: tts.DefaultSampleRate,
	}, nil
}

// AvailableVoices records the call and returns Voices, VoicesErr.
func (p *Provider) AvailableVoices(_ context.Context, _ types.Language) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.VoicesCalls++
	return p.Voices, p.VoicesErr
}

// SynthesizeCallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) SynthesizeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears all recorded calls and the remaining script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.VoicesCalls = 0
	p.Script = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
