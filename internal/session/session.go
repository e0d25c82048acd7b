// Package session drives a single phone call end to end. Each caller turn
// runs speech-to-text, a language-model exchange with tool dispatch,
// text-to-speech and a call-flow state update, in that order.
//
// A [Session] owns the per-call state: the [callflow.Machine], the message
// history fed to the model, the transcript document and the latency record
// of every turn. One turn runs at a time; concurrent calls serialize on the
// session mutex. The [Registry] tracks the live sessions of the process and
// reaps the ones whose calls never ended cleanly.
package session

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/vocepta/internal/callflow"
	"github.com/MrWong99/vocepta/internal/observe"
	"github.com/MrWong99/vocepta/internal/resilience"
	"github.com/MrWong99/vocepta/internal/tools"
	"github.com/MrWong99/vocepta/internal/transcript"
	"github.com/MrWong99/vocepta/pkg/callstore"
	"github.com/MrWong99/vocepta/pkg/provider"
	"github.com/MrWong99/vocepta/pkg/provider/llm"
	"github.com/MrWong99/vocepta/pkg/provider/stt"
	"github.com/MrWong99/vocepta/pkg/provider/tts"
	"github.com/MrWong99/vocepta/pkg/types"
)

// ─────────────────────────────────────────────────────────────────────────────
// Errors
// ─────────────────────────────────────────────────────────────────────────────

var (
	// ErrSessionActive is returned by [Session.Start] when the session was
	// already started, and by [Registry.StartSession] when the call id
	// already has a live session.
	ErrSessionActive = errors.New("session: already started")

	// ErrNotStarted is returned when a turn is processed before Start.
	ErrNotStarted = errors.New("session: not started")

	// ErrTimeout is returned by [Session.ProcessAudio] once the call has
	// been live longer than [Config.MaxDuration].
	ErrTimeout = errors.New("session: max call duration exceeded")
)

// Pipeline phase names carried by [PhaseError].
const (
	PhaseSTT = "stt"
	PhaseLLM = "llm"
	PhaseTTS = "tts"
)

// PhaseError reports which pipeline phase exhausted its retries. The webhook
// layer inspects the phase to pick an apology the caller can hear.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string { return "session: " + e.Phase + " failed: " + e.Err.Error() }

func (e *PhaseError) Unwrap() error { return e.Err }

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Defaults applied by Config.withDefaults.
const (
	// DefaultMaxDuration caps a call at five minutes.
	DefaultMaxDuration = 5 * time.Minute

	// DefaultTargetLatency is the observational per-turn latency target.
	// Turns above it are logged, never failed.
	DefaultTargetLatency = 2 * time.Second
)

// Config tunes one session. The zero value is usable; every field has a
// default.
type Config struct {
	// MaxDuration is the hard cap on call length. Once exceeded,
	// ProcessAudio ends the session and fails with [ErrTimeout].
	MaxDuration time.Duration

	// TargetLatency is the per-turn latency goal. Purely observational:
	// slower turns are logged with a warning.
	TargetLatency time.Duration

	// MaxRetryAttempts bounds the STT/LLM/TTS retry loops.
	MaxRetryAttempts int

	// RetryDelay is the fixed pause between retry attempts.
	RetryDelay time.Duration

	// DefaultVoiceEN and DefaultVoiceES pick the synthesis voice per
	// language. Empty values use the TTS provider's default voice.
	DefaultVoiceEN string
	DefaultVoiceES string

	// AudioFormat is the synthesis output format. Defaults to MP3.
	AudioFormat tts.Format

	// BusinessName is interpolated into the fallback greeting.
	BusinessName string
}

func (c Config) withDefaults() Config {
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	if c.TargetLatency <= 0 {
		c.TargetLatency = DefaultTargetLatency
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = resilience.DefaultMaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = resilience.DefaultRetryDelay
	}
	if c.AudioFormat == "" {
		c.AudioFormat = tts.FormatMP3
	}
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// Turn record
// ─────────────────────────────────────────────────────────────────────────────

// Latency records the wall time of each pipeline phase of one turn, in
// milliseconds. LLM covers the first completion and the tool follow-up
// together.
type Latency struct {
	STT   int64
	LLM   int64
	TTS   int64
	Tool  int64
	Total int64
}

// Turn is the record of one caller exchange.
type Turn struct {
	// UserText is the (corrected) transcript of the caller's audio.
	UserText string

	// AssistantText is the reply spoken back to the caller.
	AssistantText string

	// ToolCalls lists the tool names the model invoked, in order.
	ToolCalls []string

	// ToolResults holds the dispatcher outcome for each tool call.
	ToolResults []tools.Result

	// Timestamp is when the turn started.
	Timestamp time.Time

	// Latency is the per-phase timing of the turn.
	Latency Latency
}

// AudioSink receives the synthesized reply audio of a turn. It is invoked
// exactly once per turn that produced audio. A function wrapping a channel
// send satisfies it.
type AudioSink func(audio []byte)

// StatusNoActiveSession marks the [Summary] of an End call on a session
// that already ended.
const StatusNoActiveSession = "no_active_session"

// Summary is the wrap-up record End returns.
type Summary struct {
	CallID          string         `json:"call_id"`
	DurationSeconds float64        `json:"duration_seconds"`
	TurnsCount      int            `json:"turns_count"`
	FinalState      callflow.State `json:"final_state"`
	Language        types.Language `json:"language"`

	// Status is empty for the first End and "no_active_session" after.
	Status string `json:"status,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Session
// ─────────────────────────────────────────────────────────────────────────────

// Options wires a [Session]. STT, LLM, TTS and Dispatcher are required.
type Options struct {
	// CallID identifies the call, preferably the telephony provider's SID.
	CallID string

	// FromNumber is the caller's phone number.
	FromNumber string

	// Language is the initial session language; LanguageUnknown is fine,
	// the language-select step fills it in.
	Language types.Language

	// STT, LLM and TTS are the pipeline providers.
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider

	// STTName, LLMName and TTSName label the providers in metrics. They
	// default to the phase names.
	STTName string
	LLMName string
	TTSName string

	// Dispatcher executes the model's tool calls.
	Dispatcher *tools.Dispatcher

	// Store persists the transcript and token costs. Optional; nil skips
	// persistence.
	Store callstore.Store

	// Corrector normalizes domain terms in caller transcripts before the
	// model sees them. Optional.
	Corrector *transcript.Corrector

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Config tunes timeouts, retries and voices.
	Config Config
}

// Session orchestrates one call. Create it with [New], activate it with
// [Session.Start] and drive it with [Session.ProcessAudio]. Safe for
// concurrent use; one turn runs at a time.
type Session struct {
	callID     string
	fromNumber string
	language   types.Language

	stt        stt.Provider
	llm        llm.Provider
	tts        tts.Provider
	sttName    string
	llmName    string
	ttsName    string
	dispatcher *tools.Dispatcher
	store      callstore.Store
	corrector  *transcript.Corrector
	metrics    *observe.Metrics
	cfg        Config

	lastActive atomic.Int64 // unix nanos of the last caller interaction

	mu        sync.Mutex
	started   bool
	ended     bool
	startedAt time.Time
	machine   *callflow.Machine
	doc       *transcript.Document
	history   []llm.Message
	turns     []Turn
	usage     llm.Usage
}

// New validates opts and builds an idle session. Call [Session.Start] to
// activate it.
func New(opts Options) (*Session, error) {
	if strings.TrimSpace(opts.CallID) == "" {
		return nil, errors.New("session: CallID must not be empty")
	}
	if opts.STT == nil || opts.LLM == nil || opts.TTS == nil {
		return nil, errors.New("session: STT, LLM and TTS providers are required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("session: Dispatcher is required")
	}
	m := opts.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Session{
		callID:     opts.CallID,
		fromNumber: opts.FromNumber,
		language:   opts.Language,
		stt:        opts.STT,
		llm:        opts.LLM,
		tts:        opts.TTS,
		sttName:    cmp.Or(opts.STTName, PhaseSTT),
		llmName:    cmp.Or(opts.LLMName, PhaseLLM),
		ttsName:    cmp.Or(opts.TTSName, PhaseTTS),
		dispatcher: opts.Dispatcher,
		store:      opts.Store,
		corrector:  opts.Corrector,
		metrics:    m,
		cfg:        opts.Config.withDefaults(),
	}, nil
}

// Start activates the session: the call-flow machine is created in INIT
// with the initial language and the transcript document is opened. Must be
// called exactly once; a second call fails with [ErrSessionActive].
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("session %s: %w", s.callID, ErrSessionActive)
	}
	s.started = true
	s.startedAt = time.Now()
	s.machine = callflow.New(s.language)
	s.machine.SetCallerNumber(s.fromNumber)
	s.doc = transcript.New(s.language)
	s.touch()

	slog.Info("session: started",
		"call_id", s.callID,
		"from", s.fromNumber,
		"language", string(s.language),
	)
	return nil
}

// CallID returns the call identifier.
func (s *Session) CallID() string { return s.callID }

// State returns the current call-flow state.
func (s *Session) State() callflow.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil {
		return callflow.StateInit
	}
	return s.machine.Current()
}

// Language returns the current session language.
func (s *Session) Language() types.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil {
		return s.language
	}
	return s.machine.Language()
}

// LastActive reports when the caller last interacted with the session. The
// registry reaper reads it without taking the turn mutex.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() { s.lastActive.Store(time.Now().UnixNano()) }

// SetLanguage switches the caller's language. Only English and Spanish are
// accepted.
func (s *Session) SetLanguage(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	lang, err := types.ParseLanguage(code)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	s.machine.SetLanguage(lang)
	s.doc.Language = lang
	s.touch()
	slog.Info("session: language set", "call_id", s.callID, "language", string(lang))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Greeting
// ─────────────────────────────────────────────────────────────────────────────

// Greeting synthesizes the opening line without consulting STT or the
// model: the state prompt for the current state and language, or the
// business-name literal when the state has none (INIT does not). The text
// is appended as an assistant message so the model knows what was said.
func (s *Session) Greeting(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	if s.ended {
		return nil, nil
	}
	s.touch()

	lang := s.machine.Language().Or(types.LanguageEnglish)
	text := s.greetingText(lang)
	s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: text})
	s.appendAgent(text)

	start := time.Now()
	res, err := s.synthesize(ctx, text, lang)
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("language", string(lang))))
	if err != nil {
		return nil, &PhaseError{Phase: PhaseTTS, Err: err}
	}
	s.flushTranscript(ctx)
	return res.Audio, nil
}

func (s *Session) greetingText(lang types.Language) string {
	if text, ok := callflow.Prompt(s.machine.Current(), lang); ok {
		return text
	}
	name := s.cfg.BusinessName
	if name == "" {
		text, _ := callflow.Prompt(callflow.StateGreet, lang)
		return text
	}
	if lang == types.LanguageSpanish {
		return fmt.Sprintf("¡Gracias por llamar a %s! ¿Cómo puedo ayudarle hoy?", name)
	}
	return fmt.Sprintf("Thank you for calling %s! How can I help you today?", name)
}

// ─────────────────────────────────────────────────────────────────────────────
// Turn pipeline
// ─────────────────────────────────────────────────────────────────────────────

// dispatched pairs one tool call with its outcome for the state update.
type dispatched struct {
	call   llm.ToolCall
	result tools.Result
}

// ProcessAudio runs one caller turn: transcribe audio, complete against the
// model with the tool loop, synthesize the reply and update the call-flow
// state. The synthesized audio is delivered to sink exactly once when sink
// is non-nil. Returns the turn record, or nil twice over when the session
// already ended.
//
// A session past [Config.MaxDuration] is ended and the call fails with
// [ErrTimeout]. Exhausted provider retries fail with a [PhaseError] naming
// the phase.
func (s *Session) ProcessAudio(ctx context.Context, audio []byte, sink AudioSink) (*Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, ErrNotStarted
	}
	if !s.ended && time.Since(s.startedAt) > s.cfg.MaxDuration {
		s.expire()
		return nil, fmt.Errorf("session %s: %w", s.callID, ErrTimeout)
	}
	if s.ended {
		return nil, nil
	}
	s.touch()

	ctx, span := observe.StartSpan(ctx, "session.turn")
	defer span.End()

	turnStart := time.Now()
	turn := &Turn{Timestamp: turnStart}
	lang := s.machine.Language().Or(types.LanguageEnglish)
	span.SetAttributes(observe.Attr("language", string(lang)))

	// Speech to text.
	sttStart := time.Now()
	heard, err := s.transcribe(ctx, audio, lang)
	sttDur := time.Since(sttStart)
	turn.Latency.STT = sttDur.Milliseconds()
	s.metrics.STTDuration.Record(ctx, sttDur.Seconds(),
		metric.WithAttributes(observe.Attr("language", string(lang))))
	if err != nil {
		return nil, &PhaseError{Phase: PhaseSTT, Err: err}
	}

	userText := heard.Text
	if s.corrector != nil {
		corrected, fixes := s.corrector.Correct(userText)
		if len(fixes) > 0 {
			slog.Debug("session: transcript corrected",
				"call_id", s.callID, "corrections", len(fixes))
		}
		userText = corrected
	}
	turn.UserText = userText
	s.history = append(s.history, llm.Message{Role: llm.RoleUser, Content: userText})
	s.appendCaller(userText, heard.Confidence, heard.Duration)

	// Completion, with at most one tool round.
	llmStart := time.Now()
	resp, err := s.complete(ctx)
	llmDur := time.Since(llmStart)
	if err != nil {
		turn.Latency.LLM = llmDur.Milliseconds()
		s.metrics.LLMDuration.Record(ctx, llmDur.Seconds(),
			metric.WithAttributes(observe.Attr("language", string(lang))))
		return nil, &PhaseError{Phase: PhaseLLM, Err: err}
	}

	assistantText := resp.Content
	var round []dispatched
	if len(resp.ToolCalls) > 0 {
		s.history = append(s.history, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		toolStart := time.Now()
		round = s.dispatchAll(ctx, resp.ToolCalls)
		turn.Latency.Tool = time.Since(toolStart).Milliseconds()
		for _, d := range round {
			turn.ToolCalls = append(turn.ToolCalls, d.call.Name)
			turn.ToolResults = append(turn.ToolResults, d.result)
		}

		// One follow-up so the model can phrase the tool outcomes. A
		// failure here degrades to the error prompt instead of looping.
		followStart := time.Now()
		follow, err := s.complete(ctx)
		llmDur += time.Since(followStart)
		if err != nil {
			slog.Error("session: follow-up completion failed",
				"call_id", s.callID, "err", err)
			assistantText = s.errorPrompt(lang)
			s.tryTransition(callflow.StateError)
		} else {
			assistantText = follow.Content
		}
	}
	turn.Latency.LLM = llmDur.Milliseconds()
	s.metrics.LLMDuration.Record(ctx, llmDur.Seconds(),
		metric.WithAttributes(observe.Attr("language", string(lang))))

	turn.AssistantText = assistantText
	if assistantText != "" {
		s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: assistantText})
		s.appendAgent(assistantText)
	}

	// Call-flow update: tool-driven transitions first, then the opening
	// auto-progress, then the farewell check on what is about to be said.
	s.applyToolEffects(round)
	s.autoProgress()
	if isFarewell(assistantText) {
		s.tryTransition(callflow.StateEnd)
	}

	// Text to speech.
	if assistantText != "" {
		voiceLang := s.machine.Language().Or(types.LanguageEnglish)
		ttsStart := time.Now()
		spoken, err := s.synthesize(ctx, assistantText, voiceLang)
		ttsDur := time.Since(ttsStart)
		turn.Latency.TTS = ttsDur.Milliseconds()
		s.metrics.TTSDuration.Record(ctx, ttsDur.Seconds(),
			metric.WithAttributes(observe.Attr("language", string(voiceLang))))
		if err != nil {
			return nil, &PhaseError{Phase: PhaseTTS, Err: err}
		}
		if sink != nil {
			sink(spoken.Audio)
		}
	}

	total := time.Since(turnStart)
	turn.Latency.Total = total.Milliseconds()
	s.metrics.TurnDuration.Record(ctx, total.Seconds(),
		metric.WithAttributes(observe.Attr("language", string(lang))))
	s.metrics.RecordTurn(ctx, string(lang))
	if total > s.cfg.TargetLatency {
		slog.Warn("session: turn exceeded latency target",
			"call_id", s.callID,
			"total_ms", turn.Latency.Total,
			"target_ms", s.cfg.TargetLatency.Milliseconds(),
		)
	}

	s.turns = append(s.turns, *turn)
	s.flushTranscript(ctx)
	slog.Info("session: turn complete",
		"call_id", s.callID,
		"state", string(s.machine.Current()),
		"tools", len(turn.ToolCalls),
		"total_ms", turn.Latency.Total,
	)
	return turn, nil
}

// expire marks the session ended once the call outlived MaxDuration. The
// machine moves to END when the current state allows it; mid-flow states
// simply stop where they are.
func (s *Session) expire() {
	s.tryTransition(callflow.StateEnd)
	s.ended = true
	slog.Warn("session: max duration exceeded",
		"call_id", s.callID,
		"state", string(s.machine.Current()),
	)
}

func (s *Session) retryConfig(name string) resilience.RetryConfig {
	return resilience.RetryConfig{
		Name:        name,
		MaxAttempts: s.cfg.MaxRetryAttempts,
		Delay:       s.cfg.RetryDelay,
	}
}

func (s *Session) transcribe(ctx context.Context, audio []byte, lang types.Language) (*stt.Result, error) {
	res, err := resilience.RetryResult(ctx, s.retryConfig(PhaseSTT), func(ctx context.Context) (*stt.Result, error) {
		return s.stt.Transcribe(ctx, audio, lang)
	})
	s.recordProviderCall(ctx, s.sttName, PhaseSTT, err)
	return res, err
}

// complete runs one model call over the full history with the system prompt
// rebuilt from the machine context, and accumulates token usage.
func (s *Session) complete(ctx context.Context) (*llm.CompletionResponse, error) {
	msgs := make([]llm.Message, 0, len(s.history)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: s.systemPrompt()})
	msgs = append(msgs, s.history...)

	resp, err := resilience.RetryResult(ctx, s.retryConfig(PhaseLLM), func(ctx context.Context) (*llm.CompletionResponse, error) {
		return s.llm.Complete(ctx, llm.CompletionRequest{
			Messages: msgs,
			Tools:    tools.Definitions(),
		})
	})
	s.recordProviderCall(ctx, s.llmName, PhaseLLM, err)
	if err != nil {
		return nil, err
	}
	s.usage.Add(resp.Usage)
	return resp, nil
}

func (s *Session) synthesize(ctx context.Context, text string, lang types.Language) (*tts.Result, error) {
	voice := s.cfg.DefaultVoiceEN
	if lang == types.LanguageSpanish {
		voice = s.cfg.DefaultVoiceES
	}
	res, err := resilience.RetryResult(ctx, s.retryConfig(PhaseTTS), func(ctx context.Context) (*tts.Result, error) {
		return s.tts.Synthesize(ctx, text, lang, voice, s.cfg.AudioFormat)
	})
	s.recordProviderCall(ctx, s.ttsName, PhaseTTS, err)
	return res, err
}

// recordProviderCall counts one provider exchange and, on failure, the
// error by kind. The vendor name on the error wins over the configured one.
func (s *Session) recordProviderCall(ctx context.Context, name, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		vendor := name
		var pe *provider.Error
		if errors.As(err, &pe) && pe.Provider != "" {
			vendor = pe.Provider
		}
		s.metrics.RecordProviderError(ctx, vendor, provider.KindOf(err).String())
	}
	s.metrics.RecordProviderRequest(ctx, name, kind, status)
}

func (s *Session) dispatchAll(ctx context.Context, calls []llm.ToolCall) []dispatched {
	out := make([]dispatched, 0, len(calls))
	for _, tc := range calls {
		start := time.Now()
		res := s.dispatcher.Dispatch(ctx, tc)
		s.metrics.ToolDispatchDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("tool", tc.Name)))
		s.metrics.RecordToolCall(ctx, tc.Name, string(res.Status))

		s.history = append(s.history, llm.Message{
			Role:       llm.RoleTool,
			Content:    res.LLMResponse(),
			Name:       tc.Name,
			ToolCallID: tc.ID,
		})
		out = append(out, dispatched{call: tc, result: res})
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Call-flow update
// ─────────────────────────────────────────────────────────────────────────────

// applyToolEffects advances the machine for the tool calls that imply a
// stage, and absorbs update_call_record fields into the machine context.
// Failed dispatches carry no effect.
func (s *Session) applyToolEffects(round []dispatched) {
	for _, d := range round {
		if d.result.Status == tools.StatusFailure {
			continue
		}
		switch d.call.Name {
		case tools.ToolCreateCallbackTask:
			s.tryTransition(callflow.StateCreateCallbackTask)
		case tools.ToolTransferCall:
			s.tryTransition(callflow.StateTransferOrWrapup)
		case tools.ToolUpdateCallRecord:
			s.absorbCallUpdate(d.call.Arguments)
		}
	}
}

// absorbCallUpdate mirrors an update_call_record into the machine context so
// the next system prompt reflects what the model just recorded.
func (s *Session) absorbCallUpdate(arguments string) {
	var args struct {
		Language     string `json:"language"`
		CustomerType string `json:"customer_type"`
		Intent       string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return
	}
	if args.Language != "" {
		if lang, err := types.ParseLanguage(args.Language); err == nil {
			s.machine.SetLanguage(lang)
			s.doc.Language = lang
		}
	}
	if args.CustomerType != "" {
		s.machine.SetCustomerType(args.CustomerType)
	}
	if args.Intent != "" {
		s.machine.SetIntent(args.Intent)
	}
}

// autoProgress advances the opening states that need no caller decision, so
// the first turns carry the flow into the interactive states.
func (s *Session) autoProgress() {
	switch s.machine.Current() {
	case callflow.StateInit:
		s.tryTransition(callflow.StateGreet)
	case callflow.StateGreet:
		s.tryTransition(callflow.StateLanguageSelect)
	}
}

// tryTransition commits target when the table allows it. Illegal targets
// are ignored.
func (s *Session) tryTransition(target callflow.State) {
	if !s.machine.CanTransitionTo(target) {
		return
	}
	if err := s.machine.TransitionTo(target); err != nil {
		slog.Warn("session: transition rejected",
			"call_id", s.callID, "target", string(target), "err", err)
	}
}

// farewellPhrases end the call when the reply says goodbye. The Spanish
// entry matches the "que tenga un buen día" family of closings.
var farewellPhrases = []string{"goodbye", "have a great day", "que tenga"}

func isFarewell(text string) bool {
	t := strings.ToLower(text)
	for _, p := range farewellPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

func (s *Session) errorPrompt(lang types.Language) string {
	text, _ := callflow.Prompt(callflow.StateError, lang)
	return text
}

// ─────────────────────────────────────────────────────────────────────────────
// System prompt
// ─────────────────────────────────────────────────────────────────────────────

// systemPrompt renders the model instructions for the current turn. Rebuilt
// every completion so the model always sees the latest state, language and
// caller facts.
func (s *Session) systemPrompt() string {
	business := s.cfg.BusinessName
	if business == "" {
		business = "the office"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are the phone receptionist for %s, an insurance office. ", business)
	b.WriteString("Replies are spoken aloud: keep them to one or two short sentences. ")
	switch s.machine.Language() {
	case types.LanguageSpanish:
		b.WriteString("The caller speaks Spanish; respond only in Spanish.")
	case types.LanguageEnglish:
		b.WriteString("The caller speaks English; respond only in English.")
	default:
		b.WriteString("The caller has not chosen a language yet; ask whether they prefer English or Spanish.")
	}

	fmt.Fprintf(&b, "\n\nCall id: %s. Pass it as call_id to every tool.", s.callID)
	fmt.Fprintf(&b, "\nConversation stage: %s.", s.machine.Current())
	fmt.Fprintf(&b, "\nCaller phone: %s.", s.fromNumber)
	if v, ok := s.machine.Get(callflow.CtxCallerName); ok {
		fmt.Fprintf(&b, "\nCaller name: %s.", v)
	}
	if v, ok := s.machine.Get(callflow.CtxCustomerType); ok {
		fmt.Fprintf(&b, "\nCustomer type: %s.", v)
	}
	if v, ok := s.machine.Get(callflow.CtxIntent); ok {
		fmt.Fprintf(&b, "\nStated intent: %s.", v)
	}

	b.WriteString("\n\nA call record with this id already exists. " +
		"Use update_call_record to store the caller's language, customer type and intent as you learn them. " +
		"Find out why they are calling, whether they are a new or existing customer, their name and a callback number. " +
		"File the callback with create_callback_task once the number and best time are confirmed. " +
		"Use transfer_call only when the caller needs a person right now. " +
		"Never ask for or repeat sensitive identifiers such as social security, date of birth or card numbers.")
	return b.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Transcript
// ─────────────────────────────────────────────────────────────────────────────

// appendCaller writes the caller's words into the transcript document.
// Turns carrying denylisted identifiers are withheld: the stored transcript
// must never contain them.
func (s *Session) appendCaller(text string, confidence float64, duration time.Duration) {
	if term, found := tools.ContainsSensitive(text); found {
		slog.Warn("session: caller turn withheld from transcript",
			"call_id", s.callID, "term", term)
		return
	}
	s.doc.AppendCaller(text, confidence, duration)
}

func (s *Session) appendAgent(text string) {
	if text == "" {
		return
	}
	if term, found := tools.ContainsSensitive(text); found {
		slog.Warn("session: agent turn withheld from transcript",
			"call_id", s.callID, "term", term)
		return
	}
	s.doc.AppendAgent(text)
}

// flushTranscript persists the document. A failed flush never fails the
// turn; the next one retries with the full document anyway.
func (s *Session) flushTranscript(ctx context.Context) {
	if s.store == nil {
		return
	}
	raw, err := s.doc.JSON()
	if err != nil {
		slog.Error("session: transcript marshal failed", "call_id", s.callID, "err", err)
		return
	}
	if err := s.store.SaveTranscript(ctx, s.callID, string(raw)); err != nil {
		slog.Warn("session: transcript flush failed", "call_id", s.callID, "err", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// End
// ─────────────────────────────────────────────────────────────────────────────

// End closes the session and returns its summary. Idempotent: ending an
// already-ended (or never-started) session returns a summary whose Status
// is [StatusNoActiveSession]. The transcript and accumulated token costs
// are flushed on the first End.
func (s *Session) End() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.ended {
		return Summary{CallID: s.callID, Status: StatusNoActiveSession}
	}
	s.ended = true

	sum := Summary{
		CallID:          s.callID,
		DurationSeconds: time.Since(s.startedAt).Seconds(),
		TurnsCount:      len(s.turns),
		FinalState:      s.machine.Current(),
		Language:        s.machine.Language(),
	}

	ctx := context.Background()
	s.flushTranscript(ctx)
	s.writeCosts(ctx)

	slog.Info("session: ended",
		"call_id", s.callID,
		"duration_s", fmt.Sprintf("%.1f", sum.DurationSeconds),
		"turns", sum.TurnsCount,
		"final_state", string(sum.FinalState),
	)
	return sum
}

// writeCosts merges the session's token totals into the call's cost map.
func (s *Session) writeCosts(ctx context.Context) {
	if s.store == nil || s.usage.TotalTokens == 0 {
		return
	}
	upd := callstore.CallUpdate{Costs: map[string]float64{
		"llm_prompt_tokens":     float64(s.usage.PromptTokens),
		"llm_completion_tokens": float64(s.usage.CompletionTokens),
	}}
	if _, err := s.store.UpdateCall(ctx, s.callID, upd); err != nil {
		slog.Warn("session: cost write failed", "call_id", s.callID, "err", err)
	}
}
