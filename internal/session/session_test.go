package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/vocepta/internal/callflow"
	"github.com/MrWong99/vocepta/internal/tools"
	"github.com/MrWong99/vocepta/internal/transcript"
	"github.com/MrWong99/vocepta/pkg/callstore"
	"github.com/MrWong99/vocepta/pkg/callstore/memstore"
	"github.com/MrWong99/vocepta/pkg/provider"
	"github.com/MrWong99/vocepta/pkg/provider/llm"
	llmmock "github.com/MrWong99/vocepta/pkg/provider/llm/mock"
	"github.com/MrWong99/vocepta/pkg/provider/stt"
	sttmock "github.com/MrWong99/vocepta/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/vocepta/pkg/provider/tts/mock"
	"github.com/MrWong99/vocepta/pkg/types"
)

const (
	testCallID = "CA100"
	testCaller = "+15551234567"
)

// fixture wires a session around mocks and an in-memory store with the
// call record already inserted.
type fixture struct {
	stt   *sttmock.Provider
	llm   *llmmock.Provider
	tts   *ttsmock.Provider
	store *memstore.Store
	sess  *Session
}

func newFixture(t *testing.T, lang types.Language) *fixture {
	t.Helper()

	f := &fixture{
		stt:   &sttmock.Provider{},
		llm:   &llmmock.Provider{},
		tts:   &ttsmock.Provider{},
		store: memstore.New(),
	}
	t.Cleanup(f.store.Close)

	call, err := callstore.NewCall(testCallID, testCaller)
	if err != nil {
		t.Fatalf("build call: %v", err)
	}
	if err := f.store.CreateCall(context.Background(), call); err != nil {
		t.Fatalf("insert call: %v", err)
	}

	f.sess, err = New(Options{
		CallID:     testCallID,
		FromNumber: testCaller,
		Language:   lang,
		STT:        f.stt,
		LLM:        f.llm,
		TTS:        f.tts,
		Dispatcher: tools.NewDispatcher(f.store, nil, nil),
		Store:      f.store,
		Config: Config{
			RetryDelay:   time.Millisecond,
			BusinessName: "Summit Insurance",
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

// walkTo drives the machine through states without running turns.
func (f *fixture) walkTo(t *testing.T, states ...callflow.State) {
	t.Helper()
	for _, st := range states {
		if err := f.sess.machine.TransitionTo(st); err != nil {
			t.Fatalf("walk to %s: %v", st, err)
		}
	}
}

func (f *fixture) storedTranscript(t *testing.T) *transcript.Document {
	t.Helper()
	call, err := f.store.GetCall(context.Background(), testCallID)
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	doc, err := transcript.Parse([]byte(call.Transcript))
	if err != nil {
		t.Fatalf("parse stored transcript: %v", err)
	}
	return doc
}

// ── construction and lifecycle ──

func TestNew_Validation(t *testing.T) {
	valid := Options{
		CallID:     testCallID,
		STT:        &sttmock.Provider{},
		LLM:        &llmmock.Provider{},
		TTS:        &ttsmock.Provider{},
		Dispatcher: tools.NewDispatcher(memstore.New(), nil, nil),
	}

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"empty call id", func(o *Options) { o.CallID = " " }},
		{"nil stt", func(o *Options) { o.STT = nil }},
		{"nil llm", func(o *Options) { o.LLM = nil }},
		{"nil tts", func(o *Options) { o.TTS = nil }},
		{"nil dispatcher", func(o *Options) { o.Dispatcher = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			if _, err := New(opts); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}

	if _, err := New(valid); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}
}

func TestSession_StartTwice(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)
	if err := f.sess.Start(); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Start = %v, want ErrSessionActive", err)
	}
}

func TestSession_ProcessAudio_BeforeStart(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	if _, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), nil); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("err = %v, want ErrNotStarted", err)
	}
	if _, err := f.sess.Greeting(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Greeting err = %v, want ErrNotStarted", err)
	}
	if err := f.sess.SetLanguage("en"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("SetLanguage err = %v, want ErrNotStarted", err)
	}
}

// ── greeting ──

func TestSession_Greeting_BusinessLiteral(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)

	audio, err := f.sess.Greeting(context.Background())
	if err != nil {
		t.Fatalf("Greeting: %v", err)
	}
	want := "Thank you for calling Summit Insurance! How can I help you today?"
	if got := string(audio); got != want {
		t.Fatalf("greeting audio = %q, want %q", got, want)
	}

	doc := f.storedTranscript(t)
	if len(doc.Turns) != 1 || doc.Turns[0].Speaker != transcript.SpeakerAgent {
		t.Fatalf("transcript turns = %+v, want one agent turn", doc.Turns)
	}
	if len(f.sess.history) != 1 || f.sess.history[0].Role != llm.RoleAssistant {
		t.Fatalf("history = %+v, want one assistant message", f.sess.history)
	}
}

func TestSession_Greeting_Spanish(t *testing.T) {
	f := newFixture(t, types.LanguageSpanish)
	f.start(t)

	audio, err := f.sess.Greeting(context.Background())
	if err != nil {
		t.Fatalf("Greeting: %v", err)
	}
	want := "¡Gracias por llamar a Summit Insurance! ¿Cómo puedo ayudarle hoy?"
	if got := string(audio); got != want {
		t.Fatalf("greeting audio = %q, want %q", got, want)
	}
	if calls := f.tts.SynthesizeCalls; len(calls) != 1 || calls[0].Language != types.LanguageSpanish {
		t.Fatalf("synthesize calls = %+v, want one Spanish call", calls)
	}
}

// ── plain turns ──

func TestSession_ProcessAudio_SimpleTurn(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)
	f.stt.Result = &stt.Result{
		Text:       "I need a quote for car insurance.",
		Confidence: 0.93,
		Language:   types.LanguageEnglish,
		Duration:   2 * time.Second,
	}
	f.llm.CompleteResponse = &llm.CompletionResponse{
		Content:      "Of course! Are you a new or existing customer?",
		FinishReason: llm.FinishStop,
	}

	var sunk [][]byte
	turn, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), func(a []byte) {
		sunk = append(sunk, a)
	})
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}

	if turn.UserText != "I need a quote for car insurance." {
		t.Fatalf("UserText = %q", turn.UserText)
	}
	if turn.AssistantText != "Of course! Are you a new or existing customer?" {
		t.Fatalf("AssistantText = %q", turn.AssistantText)
	}
	if turn.Timestamp.IsZero() {
		t.Fatal("turn timestamp not set")
	}
	if len(turn.ToolCalls) != 0 {
		t.Fatalf("ToolCalls = %v, want none", turn.ToolCalls)
	}

	// Reply audio delivered exactly once.
	if len(sunk) != 1 || string(sunk[0]) != turn.AssistantText {
		t.Fatalf("sink received %d deliveries", len(sunk))
	}

	// Opening auto-progress: INIT moves to GREET on the first turn.
	if got := f.sess.State(); got != callflow.StateGreet {
		t.Fatalf("state = %s, want GREET", got)
	}

	// The model saw the rebuilt system prompt and the tool definitions.
	req := f.llm.CompleteCalls[0].Req
	if req.Messages[0].Role != llm.RoleSystem {
		t.Fatalf("first message role = %s, want system", req.Messages[0].Role)
	}
	for _, needle := range []string{"Summit Insurance", "Call id: " + testCallID, "Caller phone: " + testCaller} {
		if !strings.Contains(req.Messages[0].Content, needle) {
			t.Fatalf("system prompt missing %q:\n%s", needle, req.Messages[0].Content)
		}
	}
	if len(req.Tools) != len(tools.Definitions()) {
		t.Fatalf("tools offered = %d, want %d", len(req.Tools), len(tools.Definitions()))
	}

	// Transcript flushed with both speakers.
	doc := f.storedTranscript(t)
	if len(doc.Turns) != 2 {
		t.Fatalf("stored turns = %d, want 2", len(doc.Turns))
	}
	if doc.Turns[0].Speaker != transcript.SpeakerCaller || doc.Turns[1].Speaker != transcript.SpeakerAgent {
		t.Fatalf("speakers = %s, %s", doc.Turns[0].Speaker, doc.Turns[1].Speaker)
	}
}

func TestSession_ProcessAudio_SecondTurnReachesLanguageSelect(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)

	for range 2 {
		if _, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), nil); err != nil {
			t.Fatalf("ProcessAudio: %v", err)
		}
	}
	if got := f.sess.State(); got != callflow.StateLanguageSelect {
		t.Fatalf("state = %s, want LANGUAGE_SELECT", got)
	}
}

// ── tool loop ──

const callbackArgs = `{"call_id": "CA100", "callback_number": "+15559876543", ` +
	`"priority": "HIGH", "name": "Maria Lopez", "best_time_window": "mornings"}`

func TestSession_ProcessAudio_ToolLoop(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)
	f.walkTo(t,
		callflow.StateGreet,
		callflow.StateLanguageSelect,
		callflow.StateClassifyCustomerType,
		callflow.StateIntentDiscovery,
		callflow.StateConfirmation,
	)

	f.llm.Script = []llmmock.Outcome{
		{Response: &llm.CompletionResponse{
			ToolCalls: []llm.ToolCall{{
				ID:        "call_1",
				Name:      tools.ToolCreateCallbackTask,
				Arguments: callbackArgs,
			}},
			FinishReason: llm.FinishToolCalls,
		}},
		{Response: &llm.CompletionResponse{
			Content:      "All set! Someone will call you back in the morning.",
			FinishReason: llm.FinishStop,
		}},
	}

	turn, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), nil)
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}

	if len(turn.ToolCalls) != 1 || turn.ToolCalls[0] != tools.ToolCreateCallbackTask {
		t.Fatalf("ToolCalls = %v", turn.ToolCalls)
	}
	if turn.ToolResults[0].Status != tools.StatusSuccess {
		t.Fatalf("tool result = %+v", turn.ToolResults[0])
	}
	if turn.AssistantText != "All set! Someone will call you back in the morning." {
		t.Fatalf("AssistantText = %q", turn.AssistantText)
	}

	// The dispatcher really filed the task.
	task, err := f.store.GetCallbackTaskByCall(context.Background(), testCallID)
	if err != nil {
		t.Fatalf("GetCallbackTaskByCall: %v", err)
	}
	if task.Name != "Maria Lopez" || task.Priority != callstore.PriorityHigh {
		t.Fatalf("task = %+v", task)
	}

	// Tool name drives the machine into CREATE_CALLBACK_TASK.
	if got := f.sess.State(); got != callflow.StateCreateCallbackTask {
		t.Fatalf("state = %s, want CREATE_CALLBACK_TASK", got)
	}

	// Follow-up request carried the tool result back to the model.
	if f.llm.CompleteCallCount() != 2 {
		t.Fatalf("complete calls = %d, want 2", f.llm.CompleteCallCount())
	}
	followMsgs := f.llm.CompleteCalls[1].Req.Messages
	last := followMsgs[len(followMsgs)-1]
	if last.Role != llm.RoleTool || last.ToolCallID != "call_1" {
		t.Fatalf("last follow-up message = %+v, want tool result for call_1", last)
	}
	if !strings.Contains(last.Content, "success") {
		t.Fatalf("tool message content = %q, want success line", last.Content)
	}
}

func TestSession_ProcessAudio_FollowUpFailureDegrades(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)
	f.walkTo(t,
		callflow.StateGreet,
		callflow.StateLanguageSelect,
		callflow.StateClassifyCustomerType,
		callflow.StateIntentDiscovery,
		callflow.StateConfirmation,
	)

	f.llm.Script = []llmmock.Outcome{
		{Response: &llm.CompletionResponse{
			ToolCalls: []llm.ToolCall{{
				ID:        "call_1",
				Name:      tools.ToolCreateCallbackTask,
				Arguments: callbackArgs,
			}},
			FinishReason: llm.FinishToolCalls,
		}},
		{Err: provider.Errorf(provider.KindAuth, "openai", "complete", "key revoked")},
	}

	var sunk [][]byte
	turn, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), func(a []byte) {
		sunk = append(sunk, a)
	})
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}

	apology, _ := callflow.Prompt(callflow.StateError, types.LanguageEnglish)
	if turn.AssistantText != apology {
		t.Fatalf("AssistantText = %q, want the error prompt", turn.AssistantText)
	}
	// The caller still hears the apology.
	if len(sunk) != 1 || string(sunk[0]) != apology {
		t.Fatalf("sink deliveries = %d", len(sunk))
	}
	// Tool side effects stand; the machine reflects the degraded turn.
	if _, err := f.store.GetCallbackTaskByCall(context.Background(), testCallID); err != nil {
		t.Fatalf("task missing after degraded turn: %v", err)
	}
	if got := f.sess.State(); got != callflow.StateError {
		t.Fatalf("state = %s, want ERROR", got)
	}
	// No further completion rounds beyond the failed follow-up.
	if f.llm.CompleteCallCount() != 2 {
		t.Fatalf("complete calls = %d, want 2", f.llm.CompleteCallCount())
	}
}

func TestSession_ProcessAudio_UpdateCallRecordAbsorbsContext(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)

	args := `{"call_id": "CA100", "language": "es", "customer_type": "EXISTING", "intent": "billing question"}`
	f.llm.Script = []llmmock.Outcome{
		{Response: &llm.CompletionResponse{
			ToolCalls: []llm.ToolCall{{
				ID:        "call_1",
				Name:      tools.ToolUpdateCallRecord,
				Arguments: args,
			}},
			FinishReason: llm.FinishToolCalls,
		}},
		{Response: &llm.CompletionResponse{Content: "Claro, le ayudo con su factura."}},
	}

	if _, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), nil); err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}

	if got := f.sess.Language(); got != types.LanguageSpanish {
		t.Fatalf("language = %s, want es", got)
	}
	if v, _ := f.sess.machine.Get(callflow.CtxCustomerType); v != "EXISTING" {
		t.Fatalf("customer_type = %q", v)
	}
	if v, _ := f.sess.machine.Get(callflow.CtxIntent); v != "billing question" {
		t.Fatalf("intent = %q", v)
	}

	// The store saw the update too, via the dispatcher.
	call, err := f.store.GetCall(context.Background(), testCallID)
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if call.Language != types.LanguageSpanish || call.CustomerType != callstore.CustomerExisting {
		t.Fatalf("stored call = %+v", call)
	}
}

// ── farewell ──

func TestSession_Farewell(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"english goodbye", "Thank you for calling. Goodbye!"},
		{"english day wish", "Thanks again, have a great day!"},
		{"spanish closing", "Gracias por llamar. ¡Que tenga un buen día!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, types.LanguageEnglish)
			f.start(t)
			f.walkTo(t,
				callflow.StateGreet,
				callflow.StateLanguageSelect,
				callflow.StateClassifyCustomerType,
				callflow.StateIntentDiscovery,
				callflow.StateTransferOrWrapup,
			)
			f.llm.CompleteResponse = &llm.CompletionResponse{Content: tt.reply}

			if _, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), nil); err != nil {
				t.Fatalf("ProcessAudio: %v", err)
			}
			if got := f.sess.State(); got != callflow.StateEnd {
				t.Fatalf("state = %s, want END", got)
			}
		})
	}
}

func TestSession_FarewellIgnoredWhenIllegal(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)
	f.llm.CompleteResponse = &llm.CompletionResponse{Content: "Goodbye!"}

	// First turn: machine is in INIT, where END is not reachable.
	if _, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), nil); err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if got := f.sess.State(); got != callflow.StateGreet {
		t.Fatalf("state = %s, want GREET (farewell silently ignored)", got)
	}
}

// ── retries and failures ──

func TestSession_ProcessAudio_STTRetriesTransientFailure(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)
	f.stt.Script = []sttmock.Outcome{
		{Err: provider.Errorf(provider.KindTimeout, "deepgram", "transcribe", "deadline")},
		{Result: &stt.Result{Text: "hello", Confidence: 0.9, Language: types.LanguageEnglish}},
	}

	turn, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), nil)
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if turn.UserText != "hello" {
		t.Fatalf("UserText = %q", turn.UserText)
	}
	if got := f.stt.TranscribeCallCount(); got != 2 {
		t.Fatalf("transcribe calls = %d, want 2", got)
	}
}

func TestSession_ProcessAudio_STTExhaustion(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)
	f.stt.TranscribeErr = provider.Errorf(provider.KindTimeout, "deepgram", "transcribe", "deadline")

	_, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), nil)
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseSTT {
		t.Fatalf("err = %v, want stt phase error", err)
	}
	if provider.KindOf(err) != provider.KindTimeout {
		t.Fatalf("kind = %v, want timeout", provider.KindOf(err))
	}
	if got := f.stt.TranscribeCallCount(); got != 3 {
		t.Fatalf("transcribe calls = %d, want 3", got)
	}
	// The model was never consulted.
	if f.llm.CompleteCallCount() != 0 {
		t.Fatalf("complete calls = %d, want 0", f.llm.CompleteCallCount())
	}
}

func TestSession_ProcessAudio_NonRetryableSTTShortCircuits(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)
	f.stt.TranscribeErr = provider.Errorf(provider.KindEmptyAudio, "deepgram", "transcribe", "no audio")

	_, err := f.sess.ProcessAudio(context.Background(), []byte{}, nil)
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseSTT {
		t.Fatalf("err = %v, want stt phase error", err)
	}
	if got := f.stt.TranscribeCallCount(); got != 1 {
		t.Fatalf("transcribe calls = %d, want 1 (empty audio must not be retried)", got)
	}
}

func TestSession_ProcessAudio_TTSExhaustion(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)
	f.tts.SynthesizeErr = provider.Errorf(provider.KindTimeout, "openai", "synthesize", "deadline")

	sinkCalled := false
	_, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), func([]byte) {
		sinkCalled = true
	})
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseTTS {
		t.Fatalf("err = %v, want tts phase error", err)
	}
	if got := f.tts.SynthesizeCallCount(); got != 3 {
		t.Fatalf("synthesize calls = %d, want 3", got)
	}
	if sinkCalled {
		t.Fatal("sink must not fire when synthesis failed")
	}
}

// ── session timeout and end ──

func TestSession_ProcessAudio_MaxDurationExceeded(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)
	f.sess.startedAt = time.Now().Add(-6 * time.Minute)

	_, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if got := f.stt.TranscribeCallCount(); got != 0 {
		t.Fatalf("transcribe calls = %d, want 0", got)
	}

	// The session is now ended: further audio is swallowed.
	turn, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), nil)
	if turn != nil || err != nil {
		t.Fatalf("after timeout: turn=%v err=%v, want nil, nil", turn, err)
	}
}

func TestSession_End(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)
	f.llm.CompleteResponse = &llm.CompletionResponse{
		Content: "Happy to help!",
		Usage:   llm.Usage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150},
	}
	if _, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), nil); err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}

	sum := f.sess.End()
	if sum.Status != "" {
		t.Fatalf("first End status = %q, want empty", sum.Status)
	}
	if sum.CallID != testCallID || sum.TurnsCount != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.FinalState != callflow.StateGreet {
		t.Fatalf("final state = %s, want GREET", sum.FinalState)
	}
	if sum.Language != types.LanguageEnglish {
		t.Fatalf("language = %s", sum.Language)
	}
	if sum.DurationSeconds < 0 {
		t.Fatalf("duration = %f", sum.DurationSeconds)
	}

	// Token totals land in the call's cost map.
	call, err := f.store.GetCall(context.Background(), testCallID)
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if call.Costs["llm_prompt_tokens"] != 120 || call.Costs["llm_completion_tokens"] != 30 {
		t.Fatalf("costs = %v", call.Costs)
	}

	// Second End is the idempotent no-op.
	again := f.sess.End()
	if again.Status != StatusNoActiveSession {
		t.Fatalf("second End status = %q, want %q", again.Status, StatusNoActiveSession)
	}
	if again.TurnsCount != 0 || again.DurationSeconds != 0 {
		t.Fatalf("second End carries data: %+v", again)
	}
}

// ── language ──

func TestSession_SetLanguage(t *testing.T) {
	f := newFixture(t, types.LanguageUnknown)
	f.start(t)

	if err := f.sess.SetLanguage("es"); err != nil {
		t.Fatalf("SetLanguage(es): %v", err)
	}
	if got := f.sess.Language(); got != types.LanguageSpanish {
		t.Fatalf("language = %s, want es", got)
	}
	if err := f.sess.SetLanguage("fr"); err == nil {
		t.Fatal("SetLanguage(fr) accepted, want error")
	}
	// The rejected code must not clobber the selection.
	if got := f.sess.Language(); got != types.LanguageSpanish {
		t.Fatalf("language after bad code = %s, want es", got)
	}
}

func TestSession_SpanishTurnUsesSpanishVoice(t *testing.T) {
	f := newFixture(t, types.LanguageSpanish)
	f.sess.cfg.DefaultVoiceEN = "alloy"
	f.sess.cfg.DefaultVoiceES = "nova"
	f.start(t)
	f.llm.CompleteResponse = &llm.CompletionResponse{Content: "¡Con gusto le ayudo!"}

	if _, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), nil); err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	calls := f.tts.SynthesizeCalls
	if len(calls) != 1 || calls[0].VoiceID != "nova" || calls[0].Language != types.LanguageSpanish {
		t.Fatalf("synthesize calls = %+v, want Spanish voice nova", calls)
	}
}

// ── transcript hygiene ──

func TestSession_SensitiveCallerTurnWithheldFromTranscript(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.start(t)
	f.stt.Result = &stt.Result{
		Text:       "My SSN is 123-45-6789, can you look me up?",
		Confidence: 0.92,
		Language:   types.LanguageEnglish,
	}

	if _, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), nil); err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}

	// The stored transcript only carries the agent's reply.
	doc := f.storedTranscript(t)
	for _, turn := range doc.Turns {
		if turn.Speaker == transcript.SpeakerCaller {
			t.Fatalf("caller turn reached the transcript: %q", turn.Text)
		}
	}

	// The model still received the words so it can steer the caller away.
	msgs := f.llm.CompleteCalls[0].Req.Messages
	if !strings.Contains(msgs[len(msgs)-1].Content, "SSN") {
		t.Fatal("model did not receive the caller text")
	}
}

func TestSession_CorrectorNormalizesCallerText(t *testing.T) {
	f := newFixture(t, types.LanguageEnglish)
	f.sess.corrector = transcript.NewCorrector([]string{"deductible"})
	f.start(t)
	f.stt.Result = &stt.Result{
		Text:       "What is my deductable this year?",
		Confidence: 0.85,
		Language:   types.LanguageEnglish,
	}

	turn, err := f.sess.ProcessAudio(context.Background(), []byte("pcm"), nil)
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if !strings.Contains(turn.UserText, "deductible") {
		t.Fatalf("UserText = %q, want corrected term", turn.UserText)
	}
}
