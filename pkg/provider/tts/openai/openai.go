// Package openai provides an OpenAI-backed TTS provider using the
// /v1/audio/speech endpoint. It implements the tts.Provider interface.
package openai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/vocepta/pkg/provider"
	"github.com/MrWong99/vocepta/pkg/provider/tts"
	"github.com/MrWong99/vocepta/pkg/types"
)

const (
	defaultModel   = "tts-1"
	defaultSpeed   = 1.0
	defaultTimeout = 30 * time.Second
	providerName   = "openai"

	// maxInputLen is the character limit the speech endpoint accepts.
	maxInputLen = 4096

	// The speech endpoint emits 24 kHz mono audio; PCM is 16-bit samples.
	pcmSampleRate     = 24000
	pcmBytesPerSecond = pcmSampleRate * 2
)

// catalog is the fixed voice set the speech endpoint offers. Every voice is
// multilingual, so the same IDs serve English and Spanish callers.
var catalog = []tts.Voice{
	{ID: "alloy", Name: "Alloy", Gender: tts.GenderNeutral},
	{ID: "ash", Name: "Ash", Gender: tts.GenderMale},
	{ID: "coral", Name: "Coral", Gender: tts.GenderFemale},
	{ID: "echo", Name: "Echo", Gender: tts.GenderMale},
	{ID: "fable", Name: "Fable", Gender: tts.GenderNeutral},
	{ID: "nova", Name: "Nova", Gender: tts.GenderFemale},
	{ID: "onyx", Name: "Onyx", Gender: tts.GenderMale},
	{ID: "sage", Name: "Sage", Gender: tts.GenderFemale},
	{ID: "shimmer", Name: "Shimmer", Gender: tts.GenderFemale},
}

// defaultVoices maps each supported language to the voice used when the
// caller names no voice or an unknown one.
var defaultVoices = map[types.Language]string{
	types.LanguageEnglish: "alloy",
	types.LanguageSpanish: "nova",
}

// Option is a functional option for configuring the OpenAI TTS Provider.
type Option func(*config)

type config struct {
	model      string
	speed      float64
	timeout    time.Duration
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// WithModel sets the speech model (e.g. "tts-1", "tts-1-hd",
// "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithSpeed sets the playback speed multiplier (0.25 to 4.0).
func WithSpeed(speed float64) Option {
	return func(c *config) {
		c.speed = speed
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithBaseURL overrides the API base URL. Useful for tests and proxies.
func WithBaseURL(u string) Option {
	return func(c *config) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Provider implements tts.Provider backed by the OpenAI speech API.
type Provider struct {
	client oai.Client
	model  string
	speed  float64
	logger *slog.Logger
}

// New creates a new OpenAI TTS Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	cfg := config{
		model:   defaultModel,
		speed:   defaultSpeed,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(&cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(cfg.timeout),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
		speed:  cfg.speed,
		logger: logger,
	}, nil
}

// Synthesize converts text to speech in the requested format. An empty or
// oversized text yields an invalid_text error; an unknown voiceID falls back
// to the default voice for lang.
func (p *Provider) Synthesize(ctx context.Context, text string, lang types.Language, voiceID string, format tts.Format) (*tts.Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, provider.Errorf(provider.KindInvalidText, providerName, "synthesize", "text must not be empty")
	}
	if len(text) > maxInputLen {
		return nil, provider.Errorf(provider.KindInvalidText, providerName, "synthesize", "text exceeds %d characters", maxInputLen)
	}

	voice := p.resolveVoice(voiceID, lang)

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat(format),
		Speed:          param.NewOpt(p.speed),
	})
	if err != nil {
		return nil, p.mapErr("synthesize", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Wrap(provider.KindGeneric, providerName, "synthesize: read audio", err)
	}
	if len(audio) == 0 {
		return nil, provider.Errorf(provider.KindGeneric, providerName, "synthesize", "backend returned no audio")
	}

	res := &tts.Result{
		Audio:      audio,
		Format:     format,
		SampleRate: pcmSampleRate,
	}
	// Only raw PCM has a byte count that maps directly to playback time.
	if format == tts.FormatPCM {
		res.Duration = time.Duration(len(audio)) * time.Second / pcmBytesPerSecond
	}
	return res, nil
}

// AvailableVoices returns the static voice catalog tagged with lang. The
// speech endpoint has no voice-listing API and all voices are multilingual.
func (p *Provider) AvailableVoices(_ context.Context, lang types.Language) ([]tts.Voice, error) {
	voices := make([]tts.Voice, len(catalog))
	copy(voices, catalog)
	for i := range voices {
		voices[i].Language = lang
	}
	return voices, nil
}

// resolveVoice returns voiceID if it names a known voice, otherwise the
// default voice for lang (English's default when lang is unknown too).
func (p *Provider) resolveVoice(voiceID string, lang types.Language) string {
	for _, v := range catalog {
		if v.ID == voiceID {
			return voiceID
		}
	}
	fallback, ok := defaultVoices[lang]
	if !ok {
		fallback = defaultVoices[types.LanguageEnglish]
	}
	if voiceID != "" {
		p.logger.Debug("unknown voice, using language default",
			"requested", voiceID, "voice", fallback, "language", lang)
	}
	return fallback
}

// mapErr converts SDK and transport errors into the shared provider error
// taxonomy.
func (p *Provider) mapErr(op string, err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		kind := provider.KindGeneric
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			kind = provider.KindRateLimit
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = provider.KindAuth
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			kind = provider.KindInvalidText
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			kind = provider.KindTimeout
		}
		return provider.Wrap(kind, providerName, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return provider.Wrap(provider.KindTimeout, providerName, op, err)
	}
	return provider.Wrap(provider.KindGeneric, providerName, op, err)
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
