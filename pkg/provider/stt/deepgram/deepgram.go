// Package deepgram provides a Deepgram-backed STT provider. It implements
// the stt.Provider interface using the prerecorded REST API for one-shot
// transcription and the streaming WebSocket API for incremental audio.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/vocepta/pkg/provider"
	"github.com/MrWong99/vocepta/pkg/provider/stt"
	"github.com/MrWong99/vocepta/pkg/types"
	"github.com/coder/websocket"
)

const (
	restEndpoint      = "https://api.deepgram.com/v1/listen"
	streamEndpoint    = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultSampleRate = 16000
	defaultTimeout    = 30 * time.Second

	providerName = "deepgram"
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "nova-2-phonecall").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithSampleRate sets the audio sample rate in Hz for streaming sessions.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithTimeout sets the per-request deadline for one-shot transcription.
// The default is 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for REST calls. Intended for
// tests that point the provider at a local server.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.http = c
	}
}

// WithBaseURL overrides both API endpoints. Intended for tests.
func WithBaseURL(restURL, wsURL string) Option {
	return func(p *Provider) {
		p.restURL = restURL
		p.wsURL = wsURL
	}
}

// Provider implements stt.Provider backed by the Deepgram API.
type Provider struct {
	apiKey     string
	model      string
	sampleRate int
	timeout    time.Duration
	restURL    string
	wsURL      string
	http       *http.Client
}

var _ stt.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		sampleRate: defaultSampleRate,
		timeout:    defaultTimeout,
		restURL:    restEndpoint,
		wsURL:      streamEndpoint,
		http:       &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ─── one-shot transcription ───

// restResponse is the JSON structure of a prerecorded transcription result.
type restResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe sends one complete utterance to the prerecorded endpoint.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, lang types.Language) (*stt.Result, error) {
	if len(audio) == 0 {
		return nil, provider.Errorf(provider.KindEmptyAudio, providerName, "transcribe", "audio is empty")
	}
	if !lang.Valid() {
		return nil, provider.Errorf(provider.KindUnsupportedLanguage, providerName, "transcribe", "language %q", lang)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	u, err := url.Parse(p.restURL)
	if err != nil {
		return nil, provider.Wrap(provider.KindGeneric, providerName, "transcribe", err)
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", string(lang))
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio))
	if err != nil {
		return nil, provider.Wrap(provider.KindGeneric, providerName, "transcribe", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, mapTransportErr("transcribe", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, mapStatusErr("transcribe", resp.StatusCode, body)
	}

	var parsed restResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, provider.Wrap(provider.KindGeneric, providerName, "transcribe", err)
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return nil, provider.Errorf(provider.KindGeneric, providerName, "transcribe", "no alternatives in response")
	}

	alt := parsed.Results.Channels[0].Alternatives[0]
	return &stt.Result{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Language:   lang,
		Duration:   time.Duration(parsed.Metadata.Duration * float64(time.Second)),
	}, nil
}

// mapTransportErr converts HTTP client errors into provider errors.
func mapTransportErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return provider.Wrap(provider.KindTimeout, providerName, op, err)
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return provider.Wrap(provider.KindTimeout, providerName, op, err)
	}
	return provider.Wrap(provider.KindGeneric, providerName, op, err)
}

// mapStatusErr converts non-200 API responses into provider errors.
func mapStatusErr(op string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	switch {
	case status == http.StatusTooManyRequests:
		return provider.Errorf(provider.KindRateLimit, providerName, op, "status 429: %s", msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return provider.Errorf(provider.KindAuth, providerName, op, "status %d: %s", status, msg)
	case status == http.StatusBadRequest || status == http.StatusUnsupportedMediaType:
		return provider.Errorf(provider.KindInvalidAudio, providerName, op, "status %d: %s", status, msg)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return provider.Errorf(provider.KindTimeout, providerName, op, "status %d: %s", status, msg)
	default:
		return provider.Errorf(provider.KindGeneric, providerName, op, "status %d: %s", status, msg)
	}
}

// ─── streaming transcription ───

// streamResponse is the JSON structure of a Results event on the socket.
type streamResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// TranscribeStream opens a realtime session and bridges the audio channel
// onto it. Interim results are forwarded as they arrive; when the audio
// channel closes the stream is flushed and a single final chunk carrying
// the committed transcript is emitted before the result channel closes.
func (p *Provider) TranscribeStream(ctx context.Context, audio <-chan []byte, lang types.Language) (<-chan stt.StreamChunk, error) {
	if !lang.Valid() {
		return nil, provider.Errorf(provider.KindUnsupportedLanguage, providerName, "stream", "language %q", lang)
	}

	u, err := url.Parse(p.wsURL)
	if err != nil {
		return nil, provider.Wrap(provider.KindGeneric, providerName, "stream", err)
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", string(lang))
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(p.sampleRate))
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, provider.Wrap(provider.KindGeneric, providerName, "stream", err)
	}

	s := &session{
		conn:  conn,
		audio: audio,
		out:   make(chan stt.StreamChunk, 64),
		done:  make(chan struct{}),
	}
	s.wg.Add(2)
	go s.writeLoop(ctx)
	go s.readLoop(ctx)

	return s.out, nil
}

// session is a live streaming session.
type session struct {
	conn  *websocket.Conn
	audio <-chan []byte
	out   chan stt.StreamChunk

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	mu     sync.Mutex
	finals []string
	conf   float64
}

// writeLoop forwards audio chunks as binary frames. When the audio channel
// closes it asks Deepgram to flush pending audio and commit the transcript.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				s.shutdown()
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			s.shutdown()
			return
		}
	}
}

// readLoop receives Results events, forwards interims, and accumulates
// committed segments until the socket closes.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer s.finish(ctx)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		var resp streamResponse
		if err := json.Unmarshal(msg, &resp); err != nil || resp.Type != "Results" {
			continue
		}
		if len(resp.Channel.Alternatives) == 0 {
			continue
		}
		alt := resp.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}

		if resp.IsFinal {
			s.mu.Lock()
			s.finals = append(s.finals, alt.Transcript)
			s.conf = alt.Confidence
			s.mu.Unlock()
			continue
		}

		select {
		case s.out <- stt.StreamChunk{Text: alt.Transcript, Confidence: alt.Confidence}:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// finish emits the single final chunk and closes the result channel.
func (s *session) finish(ctx context.Context) {
	s.mu.Lock()
	text := strings.Join(s.finals, " ")
	conf := s.conf
	s.mu.Unlock()

	select {
	case s.out <- stt.StreamChunk{Text: text, IsFinal: true, Confidence: conf}:
	case <-ctx.Done():
	}
	close(s.out)
	s.shutdown()
}

func (s *session) shutdown() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close(websocket.StatusNormalClosure, "stream ended")
	})
}
