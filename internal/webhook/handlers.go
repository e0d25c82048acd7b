package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MrWong99/vocepta/internal/callflow"
	"github.com/MrWong99/vocepta/internal/twiml"
	"github.com/MrWong99/vocepta/pkg/callstore"
	"github.com/MrWong99/vocepta/pkg/types"
)

// gatherTimeoutSec is how long the language menu waits for a digit before
// falling through to the English default.
const gatherTimeoutSec = 5

// transferFailNotes marks callback tasks created because a live transfer
// never connected.
const transferFailNotes = "Transfer failed - urgent callback"

// Spoken when a transfer fails and the caller is about to be hung up on.
// Both languages play; at this point nobody has told us which one the
// caller picked on a retried call.
const (
	transferFallbackEN = "I'm sorry, no one is available to take your call right now. Someone from our office will call you back within 1 hour."
	transferFallbackES = "Lo sentimos, no hay nadie disponible para atender su llamada en este momento. Alguien de nuestra oficina le devolverá la llamada dentro de 1 hora."
)

// ─────────────────────────────────────────────────────────────────────────────
// POST /webhooks/twilio/voice
// ─────────────────────────────────────────────────────────────────────────────

// handleVoice answers a new inbound call: it records the call, opens a
// session when a registry is attached and plays the bilingual language
// menu. Persistence failures degrade silently; the greeting always plays.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	callSID := r.PostFormValue("CallSid")
	from := r.PostFormValue("From")
	if callSID == "" || from == "" {
		http.Error(w, "CallSid and From are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	call, err := callstore.NewCall(callSID, from)
	if err != nil {
		slog.Warn("webhook: inbound call failed validation",
			"call_id", callSID, "from", from, "err", err)
	} else if err := s.store.CreateCall(ctx, call); err != nil {
		slog.Error("webhook: create call record", "call_id", callSID, "err", err)
	}

	if s.registry != nil {
		if _, err := s.registry.StartSession(ctx, callSID, from, types.LanguageUnknown); err != nil {
			slog.Warn("webhook: start session", "call_id", callSID, "err", err)
		}
	}

	slog.Info("webhook: inbound call",
		"call_id", callSID,
		"from", from,
		"to", r.PostFormValue("To"),
		"call_status", r.PostFormValue("CallStatus"),
	)
	respondXML(w, s.greeting()...)
}

// greeting builds the opening menu: a welcome line and both language-select
// prompts inside a one-digit Gather posting to the language-select endpoint.
// A caller who never presses falls through the Redirect and lands on the
// English default there.
func (s *Server) greeting() []twiml.Verb {
	welcome := "Thank you for calling."
	if s.cfg.BusinessName != "" {
		welcome = "Thank you for calling " + s.cfg.BusinessName + "."
	}
	selectEN, _ := callflow.Prompt(callflow.StateLanguageSelect, types.LanguageEnglish)
	selectES, _ := callflow.Prompt(callflow.StateLanguageSelect, types.LanguageSpanish)

	return []twiml.Verb{
		twiml.Gather{
			NumDigits: 1,
			Action:    s.action(PathLanguageSelect),
			Input:     "dtmf",
			Timeout:   gatherTimeoutSec,
			Verbs: []twiml.Verb{
				twiml.Say{Language: types.LanguageEnglish.Locale(), Text: welcome},
				twiml.Say{Language: types.LanguageEnglish.Locale(), Text: selectEN},
				twiml.Say{Language: types.LanguageSpanish.Locale(), Text: selectES},
			},
		},
		twiml.Redirect{URL: s.action(PathLanguageSelect)},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// POST /webhooks/twilio/language-select
// ─────────────────────────────────────────────────────────────────────────────

// handleLanguageSelect applies the caller's DTMF choice. Digit 2 selects
// Spanish; every other input, including none at all, selects English. The
// choice is written to the call record and the live session, then
// acknowledged in the selected language.
func (s *Server) handleLanguageSelect(w http.ResponseWriter, r *http.Request) {
	callSID := r.PostFormValue("CallSid")
	digits := r.PostFormValue("Digits")

	lang := types.LanguageEnglish
	if digits == "2" {
		lang = types.LanguageSpanish
	}

	ctx := r.Context()
	if callSID != "" {
		if _, err := s.store.UpdateCall(ctx, callSID, callstore.CallUpdate{Language: &lang}); err != nil {
			slog.Warn("webhook: record language",
				"call_id", callSID, "language", string(lang), "err", err)
		}
		if s.registry != nil {
			if sess, ok := s.registry.Get(callSID); ok {
				if err := sess.SetLanguage(string(lang)); err != nil {
					slog.Warn("webhook: set session language", "call_id", callSID, "err", err)
				}
			}
		}
	}

	slog.Info("webhook: language selected",
		"call_id", callSID, "digits", digits, "language", string(lang))

	ack := "You have selected English."
	if lang == types.LanguageSpanish {
		ack = "Ha seleccionado español."
	}
	respondXML(w,
		twiml.Say{Language: lang.Locale(), Text: ack},
		twiml.Hangup{},
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// POST /webhooks/twilio/status
// ─────────────────────────────────────────────────────────────────────────────

// terminalCallStatuses maps provider lifecycle statuses to the stored
// outcome. Statuses absent from the map (queued, ringing, in-progress) are
// acknowledged without a write.
var terminalCallStatuses = map[string]callstore.CallStatus{
	"completed": callstore.StatusCompleted,
	"failed":    callstore.StatusFailed,
	"busy":      callstore.StatusFailed,
	"no-answer": callstore.StatusFailed,
	"canceled":  callstore.StatusFailed,
}

// handleStatus records the call's final outcome and closes its session.
// A completed call carries its duration into the cost map.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	callSID := r.PostFormValue("CallSid")
	callStatus := r.PostFormValue("CallStatus")

	outcome, terminal := terminalCallStatuses[callStatus]
	if !terminal || callSID == "" {
		respondXML(w)
		return
	}

	ctx := r.Context()
	upd := callstore.CallUpdate{Status: &outcome}
	if outcome == callstore.StatusCompleted {
		if secs, err := strconv.ParseFloat(r.PostFormValue("CallDuration"), 64); err == nil {
			upd.Costs = map[string]float64{"duration_sec": secs}
		}
	}
	if _, err := s.store.UpdateCall(ctx, callSID, upd); err != nil {
		logOutcomeWrite(callSID, string(outcome), err)
	}

	if s.registry != nil {
		if summary, ok := s.registry.EndSession(ctx, callSID); ok {
			slog.Info("webhook: session closed by status callback",
				"call_id", callSID, "turns", summary.TurnsCount)
		}
	}

	slog.Info("webhook: call ended",
		"call_id", callSID,
		"call_status", callStatus,
		"outcome", string(outcome),
		"duration_sec", r.PostFormValue("CallDuration"),
	)
	respondXML(w)
}

// logOutcomeWrite logs a failed outcome write. A row already parked on a
// terminal status rejects further moves; duplicate and late callbacks are
// expected traffic, so those land at debug level.
func logOutcomeWrite(callSID, outcome string, err error) {
	if errors.Is(err, callstore.ErrInvalidStatusChange) {
		slog.Debug("webhook: outcome already recorded",
			"call_id", callSID, "outcome", outcome, "err", err)
		return
	}
	slog.Warn("webhook: record call outcome",
		"call_id", callSID, "outcome", outcome, "err", err)
}

// ─────────────────────────────────────────────────────────────────────────────
// POST /webhooks/twilio/recording
// ─────────────────────────────────────────────────────────────────────────────

// handleRecording acknowledges recording callbacks. The metadata is logged
// for the office audit trail; nothing is persisted yet.
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	slog.Info("webhook: recording status",
		"call_id", r.PostFormValue("CallSid"),
		"recording_sid", r.PostFormValue("RecordingSid"),
		"recording_status", r.PostFormValue("RecordingStatus"),
		"duration_sec", r.PostFormValue("RecordingDuration"),
		"url", r.PostFormValue("RecordingUrl"),
	)
	respondXML(w)
}

// ─────────────────────────────────────────────────────────────────────────────
// POST /webhooks/twilio/transfer-status
// ─────────────────────────────────────────────────────────────────────────────

// failedDialStatuses are the dial outcomes where the caller never reached
// a human.
var failedDialStatuses = map[string]bool{
	"busy":      true,
	"no-answer": true,
	"failed":    true,
	"canceled":  true,
}

// handleTransferStatus receives the outcome of a staff transfer dial. A
// connected transfer closes the call; a failed one files an urgent callback
// task, pages the staff and promises the caller a call back before hanging
// up.
func (s *Server) handleTransferStatus(w http.ResponseWriter, r *http.Request) {
	callSID := r.PostFormValue("CallSid")
	dialStatus := r.PostFormValue("DialCallStatus")
	ctx := r.Context()

	switch {
	case dialStatus == "completed":
		st := callstore.StatusCompleted
		if _, err := s.store.UpdateCall(ctx, callSID, callstore.CallUpdate{Status: &st}); err != nil {
			// The transfer tool records TRANSFERRED the moment the vendor
			// accepts the redirect; that outcome stands.
			logOutcomeWrite(callSID, string(st), err)
		}
		slog.Info("webhook: transfer connected",
			"call_id", callSID,
			"called", r.PostFormValue("Called"),
			"duration_sec", r.PostFormValue("DialCallDuration"),
		)
		respondXML(w)

	case failedDialStatuses[dialStatus]:
		slog.Warn("webhook: transfer failed",
			"call_id", callSID,
			"dial_status", dialStatus,
			"called", r.PostFormValue("Called"),
		)
		s.fileUrgentCallback(ctx, callSID)
		respondXML(w,
			twiml.Say{Language: types.LanguageEnglish.Locale(), Text: transferFallbackEN},
			twiml.Say{Language: types.LanguageSpanish.Locale(), Text: transferFallbackES},
			twiml.Hangup{},
		)

	default:
		respondXML(w)
	}
}

// fileUrgentCallback inserts the transfer-failure callback task and pages
// the staff. A call that already has a task keeps it (one per call) with
// its priority raised instead. Every failure is logged and swallowed; the
// caller hears the fallback announcement regardless.
func (s *Server) fileUrgentCallback(ctx context.Context, callSID string) {
	call, err := s.store.GetCall(ctx, callSID)
	if err != nil {
		slog.Error("webhook: load call for urgent callback", "call_id", callSID, "err", err)
		return
	}

	task, err := callstore.NewCallbackTask(callSID, call.FromNumber, callstore.PriorityUrgent)
	if err != nil {
		slog.Error("webhook: build urgent callback task", "call_id", callSID, "err", err)
		return
	}
	task.Notes = transferFailNotes

	switch err := s.store.CreateCallbackTask(ctx, task); {
	case err == nil:
	case errors.Is(err, callstore.ErrTaskExists):
		task = s.escalateTask(ctx, callSID)
		if task == nil {
			return
		}
	default:
		slog.Error("webhook: create urgent callback task", "call_id", callSID, "err", err)
		return
	}

	slog.Info("webhook: urgent callback filed",
		"call_id", callSID,
		"task_id", task.ID,
		"callback_number", task.CallbackNumber,
	)

	if s.notifier == nil {
		return
	}
	sent := s.notifier.NotifyCallback(ctx, call, task)
	if !sent.SMS.Success || !sent.Email.Success {
		slog.Warn("webhook: staff page incomplete",
			"call_id", callSID,
			"sms_err", sent.SMS.Error,
			"email_err", sent.Email.Error,
		)
	}
}

// escalateTask raises the existing task for callSID to URGENT and stamps
// the transfer failure into its notes. Returns nil when the task could not
// be loaded or updated.
func (s *Server) escalateTask(ctx context.Context, callSID string) *callstore.CallbackTask {
	existing, err := s.store.GetCallbackTaskByCall(ctx, callSID)
	if err != nil {
		slog.Error("webhook: load existing callback task", "call_id", callSID, "err", err)
		return nil
	}

	urgent := callstore.PriorityUrgent
	notes := existing.Notes
	if notes != "" {
		notes += "; "
	}
	notes += transferFailNotes

	updated, err := s.store.UpdateCallbackTask(ctx, existing.ID, callstore.TaskUpdate{
		Priority: &urgent,
		Notes:    &notes,
	})
	if err != nil {
		slog.Error("webhook: escalate callback task", "call_id", callSID, "err", err)
		return nil
	}
	return updated
}
