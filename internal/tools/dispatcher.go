package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/MrWong99/vocepta/internal/notify"
	"github.com/MrWong99/vocepta/pkg/callstore"
	"github.com/MrWong99/vocepta/pkg/provider/llm"
	"github.com/MrWong99/vocepta/pkg/provider/telephony"
	"github.com/MrWong99/vocepta/pkg/types"
)

// directEmailSubject heads one-off staff emails sent via send_notification.
const directEmailSubject = "Receptionist notification"

// Dispatcher executes LLM-emitted tool calls against the store, the
// telephony vendor and the notification service. Safe for concurrent use.
type Dispatcher struct {
	store     callstore.Store
	telephony telephony.Provider
	notifier  *notify.Service
}

// NewDispatcher creates a dispatcher. tel may be nil, in which case
// transfer_call fails with a configuration error; notifier may be nil, in
// which case create_callback_task skips the staff fanout and
// send_notification fails.
func NewDispatcher(store callstore.Store, tel telephony.Provider, notifier *notify.Service) *Dispatcher {
	return &Dispatcher{store: store, telephony: tel, notifier: notifier}
}

// Dispatch validates and executes one tool call. It never panics across
// this boundary; a panicking handler is reported as a FAILURE.
func (d *Dispatcher) Dispatch(ctx context.Context, tc llm.ToolCall) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tools: handler panicked", "tool", tc.Name, "panic", r)
			res = Result{
				Status:   StatusFailure,
				Error:    fmt.Sprintf("internal error: %v", r),
				ToolName: tc.Name,
			}
		}
	}()

	entry, known := registry[tc.Name]
	if !known {
		return Result{
			Status:   StatusFailure,
			Error:    fmt.Sprintf("Unknown tool: %s", tc.Name),
			ToolName: tc.Name,
		}
	}

	raw := strings.TrimSpace(tc.Arguments)
	if raw == "" {
		raw = "{}"
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return fail(tc.Name, fmt.Sprintf("invalid JSON arguments: %v", err))
	}
	if err := entry.compiled.Validate(inst); err != nil {
		return fail(tc.Name, fmt.Sprintf("invalid arguments: %v", err))
	}

	res = d.handle(ctx, tc.Name, []byte(raw))
	res.ToolName = tc.Name

	slog.Info("tools: dispatched",
		"tool", tc.Name,
		"status", string(res.Status),
		"error", res.Error,
	)
	return res
}

func (d *Dispatcher) handle(ctx context.Context, name string, raw []byte) Result {
	switch name {
	case ToolCreateCallRecord:
		var args createCallArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return failf("decode arguments: %v", err)
		}
		return d.createCallRecord(ctx, args)
	case ToolUpdateCallRecord:
		var args updateCallArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return failf("decode arguments: %v", err)
		}
		return d.updateCallRecord(ctx, args)
	case ToolCreateCallbackTask:
		var args createCallbackArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return failf("decode arguments: %v", err)
		}
		return d.createCallbackTask(ctx, args)
	case ToolTransferCall:
		var args transferCallArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return failf("decode arguments: %v", err)
		}
		return d.transferCall(ctx, args)
	case ToolSendNotification:
		var args sendNotificationArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return failf("decode arguments: %v", err)
		}
		return d.sendNotification(ctx, args)
	default:
		return failf("Unknown tool: %s", name)
	}
}

func fail(tool, msg string) Result {
	return Result{Status: StatusFailure, Error: msg, ToolName: tool}
}

func failf(format string, args ...any) Result {
	return Result{Status: StatusFailure, Error: fmt.Sprintf(format, args...)}
}

// ─────────────────────────────────────────────────────────────────────────────
// create_call_record
// ─────────────────────────────────────────────────────────────────────────────

type createCallArgs struct {
	FromNumber   string `json:"from_number"`
	Language     string `json:"language"`
	CustomerType string `json:"customer_type"`
	Intent       string `json:"intent"`
	Status       string `json:"status"`
}

func (d *Dispatcher) createCallRecord(ctx context.Context, args createCallArgs) Result {
	if err := checkSensitive("intent", args.Intent); err != nil {
		return failf("%v", err)
	}

	call, err := callstore.NewCall("", args.FromNumber)
	if err != nil {
		return failf("%v", err)
	}
	if args.Language != "" {
		lang, err := types.ParseLanguage(args.Language)
		if err != nil {
			return failf("%v", err)
		}
		call.Language = lang
	}
	if args.CustomerType != "" {
		ct, err := callstore.ParseCustomerType(args.CustomerType)
		if err != nil {
			return failf("%v", err)
		}
		call.CustomerType = ct
	}
	call.Intent = args.Intent
	if args.Status != "" {
		st, err := callstore.ParseCallStatus(args.Status)
		if err != nil {
			return failf("%v", err)
		}
		call.Status = st
	}
	if err := call.Validate(); err != nil {
		return failf("%v", err)
	}

	if err := d.store.CreateCall(ctx, call); err != nil {
		return failf("%v", err)
	}
	return Result{
		Status: StatusSuccess,
		Data:   map[string]any{"call_id": call.ID, "status": string(call.Status)},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// update_call_record
// ─────────────────────────────────────────────────────────────────────────────

type updateCallArgs struct {
	CallID       string  `json:"call_id"`
	Language     *string `json:"language"`
	CustomerType *string `json:"customer_type"`
	Intent       *string `json:"intent"`
	Status       *string `json:"status"`
	Summary      *string `json:"summary"`
}

func (d *Dispatcher) updateCallRecord(ctx context.Context, args updateCallArgs) Result {
	var upd callstore.CallUpdate

	if args.Intent != nil {
		if err := checkSensitive("intent", *args.Intent); err != nil {
			return failf("%v", err)
		}
		upd.Intent = args.Intent
	}
	if args.Summary != nil {
		if err := checkSensitive("summary", *args.Summary); err != nil {
			return failf("%v", err)
		}
		upd.Summary = args.Summary
	}
	if args.Language != nil {
		lang, err := types.ParseLanguage(*args.Language)
		if err != nil {
			return failf("%v", err)
		}
		upd.Language = &lang
	}
	if args.CustomerType != nil {
		ct, err := callstore.ParseCustomerType(*args.CustomerType)
		if err != nil {
			return failf("%v", err)
		}
		upd.CustomerType = &ct
	}
	if args.Status != nil {
		st, err := callstore.ParseCallStatus(*args.Status)
		if err != nil {
			return failf("%v", err)
		}
		upd.Status = &st
	}

	call, err := d.store.UpdateCall(ctx, args.CallID, upd)
	if err != nil {
		return failf("%v", err)
	}
	return Result{
		Status: StatusSuccess,
		Data:   map[string]any{"call_id": call.ID, "status": string(call.Status)},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// create_callback_task
// ─────────────────────────────────────────────────────────────────────────────

type createCallbackArgs struct {
	CallID         string `json:"call_id"`
	CallbackNumber string `json:"callback_number"`
	Priority       string `json:"priority"`
	Name           string `json:"name"`
	BestTimeWindow string `json:"best_time_window"`
	Notes          string `json:"notes"`
}

func (d *Dispatcher) createCallbackTask(ctx context.Context, args createCallbackArgs) Result {
	if err := checkSensitive("notes", args.Notes); err != nil {
		return failf("%v", err)
	}
	priority, err := callstore.ParsePriority(args.Priority)
	if err != nil {
		return failf("%v", err)
	}

	call, err := d.store.GetCall(ctx, args.CallID)
	if err != nil {
		return failf("%v", err)
	}

	task, err := callstore.NewCallbackTask(args.CallID, args.CallbackNumber, priority)
	if err != nil {
		return failf("%v", err)
	}
	task.Name = args.Name
	task.BestTimeWindow = args.BestTimeWindow
	task.Notes = args.Notes

	if err := d.store.CreateCallbackTask(ctx, task); err != nil {
		return failf("%v", err)
	}

	res := Result{
		Status: StatusSuccess,
		Data:   map[string]any{"task_id": task.ID, "call_id": task.CallID},
	}

	// The task exists either way; failed notifications downgrade the result
	// so the model can tell the caller staff may not have been paged yet.
	if d.notifier != nil {
		sent := d.notifier.NotifyCallback(ctx, call, task)
		if !sent.SMS.Success || !sent.Email.Success {
			res.Status = StatusPartial
			res.Error = notifyFailureMessage(sent)
		}
	}
	return res
}

func notifyFailureMessage(r notify.Results) string {
	var parts []string
	if !r.SMS.Success {
		parts = append(parts, "sms: "+r.SMS.Error)
	}
	if !r.Email.Success {
		parts = append(parts, "email: "+r.Email.Error)
	}
	return "task created but notifications incomplete: " + strings.Join(parts, "; ")
}

// ─────────────────────────────────────────────────────────────────────────────
// transfer_call
// ─────────────────────────────────────────────────────────────────────────────

type transferCallArgs struct {
	CallID       string `json:"call_id"`
	TargetNumber string `json:"target_number"`
	QueueName    string `json:"queue_name"`
	Reason       string `json:"reason"`
}

func (d *Dispatcher) transferCall(ctx context.Context, args transferCallArgs) Result {
	if (args.TargetNumber == "") == (args.QueueName == "") {
		return failf("exactly one of target_number or queue_name must be provided")
	}
	if d.telephony == nil {
		return failf("telephony provider not configured")
	}
	target := args.TargetNumber
	if target == "" {
		target = args.QueueName
	}

	if _, err := d.store.GetCall(ctx, args.CallID); err != nil {
		return failf("%v", err)
	}

	accepted, err := d.telephony.TransferCall(ctx, args.CallID, target)
	if err != nil {
		return failf("%v", err)
	}
	if !accepted {
		return failf("transfer not accepted by telephony provider")
	}

	// Status is written only after the vendor acknowledged the redirect. A
	// failed write is logged, not compensated: the call really was moved.
	st := callstore.StatusTransferred
	if _, err := d.store.UpdateCall(ctx, args.CallID, callstore.CallUpdate{Status: &st}); err != nil {
		slog.Warn("tools: transfer status write failed", "call_id", args.CallID, "err", err)
	}

	slog.Info("tools: call transferred",
		"call_id", args.CallID,
		"target", target,
		"reason", args.Reason,
	)
	return Result{
		Status: StatusSuccess,
		Data:   map[string]any{"call_id": args.CallID, "transferred_to": target},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// send_notification
// ─────────────────────────────────────────────────────────────────────────────

type sendNotificationArgs struct {
	CallID           string `json:"call_id"`
	NotificationType string `json:"notification_type"`
	Recipient        string `json:"recipient"`
	Message          string `json:"message"`
}

func (d *Dispatcher) sendNotification(ctx context.Context, args sendNotificationArgs) Result {
	if err := checkSensitive("message", args.Message); err != nil {
		return failf("%v", err)
	}
	if d.notifier == nil {
		return failf("notification service not configured")
	}

	var sent notify.Result
	kind := strings.ToLower(strings.TrimSpace(args.NotificationType))
	switch kind {
	case "sms":
		sent = d.notifier.SendSMS(ctx, args.Recipient, args.Message)
	case "email":
		sent = d.notifier.SendEmail(ctx, args.Recipient, directEmailSubject, args.Message)
	default:
		return failf("unsupported notification_type %q, want sms or email", args.NotificationType)
	}
	if !sent.Success {
		return failf("%s", sent.Error)
	}

	slog.Info("tools: notification sent",
		"call_id", args.CallID,
		"type", kind,
		"provider", sent.Provider,
	)
	return Result{
		Status: StatusSuccess,
		Data:   map[string]any{"notification_type": kind, "recipient": args.Recipient, "sent": true},
	}
}
