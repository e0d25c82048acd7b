// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to script transcription outcomes and inspect the audio and
// language each call carried. The Script field supports per-call outcomes
// (fail twice, then succeed); once the script is exhausted the provider
// falls back to Result/TranscribeErr.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vocepta/pkg/provider/stt"
	"github.com/MrWong99/vocepta/pkg/types"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Audio is a copy of the audio bytes passed in.
	Audio []byte
	// Language is the language passed in.
	Language types.Language
}

// Outcome is one scripted Transcribe result.
type Outcome struct {
	Result *stt.Result
	Err    error
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when the script is exhausted and
	// TranscribeErr is nil. If nil, a canned result is returned.
	Result *stt.Result

	// TranscribeErr, if non-nil, is returned by Transcribe once the script
	// is exhausted.
	TranscribeErr error

	// Script holds per-call outcomes consumed in order before Result and
	// TranscribeErr apply.
	Script []Outcome

	// StreamChunks are emitted in order by the channel TranscribeStream
	// returns; the channel is closed afterwards.
	StreamChunks []stt.StreamChunk

	// StreamErr, if non-nil, is returned by TranscribeStream.
	StreamErr error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall

	// StreamCalls counts calls to TranscribeStream.
	StreamCalls int
}

// Transcribe records the call and returns the next scripted outcome.
func (p *Provider) Transcribe(_ context.Context, audio []byte, lang types.Language) (*stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := make([]byte, len(audio))
	copy(cp, audio)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Audio: cp, Language: lang})

	if len(p.Script) > 0 {
		next := p.Script[0]
		p.Script = p.Script[1:]
		return next.Result, next.Err
	}
	if p.TranscribeErr != nil {
		return nil, p.TranscribeErr
	}
	if p.Result != nil {
		return p.Result, nil
	}
	return &stt.Result{Text: "mock transcript", Confidence: 0.95, Language: lang}, nil
}

// TranscribeStream records the call and emits StreamChunks on a fresh channel.
func (p *Provider) TranscribeStream(_ context.Context, _ <-chan []byte, _ types.Language) (<-chan stt.StreamChunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.StreamCalls++
	if p.StreamErr != nil {
		return nil, p.StreamErr
	}
	out := make(chan stt.StreamChunk, len(p.StreamChunks)+1)
	for _, c := range p.StreamChunks {
		out <- c
	}
	close(out)
	return out, nil
}

// TranscribeCallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) TranscribeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls and the remaining script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.StreamCalls = 0
	p.Script = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
