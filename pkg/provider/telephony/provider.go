// Package telephony defines the adapter contract for the cloud telephony
// vendor: call control (answer, hangup, transfer, play) and outbound SMS.
//
// The receptionist drives calls mostly through webhook responses; the
// adapter covers the out-of-band operations a webhook response cannot
// express, such as transferring an in-progress call or sending a staff SMS.
package telephony

import (
	"context"
	"time"
)

// CallStatus is the vendor-reported position of a call leg.
type CallStatus string

const (
	StatusQueued     CallStatus = "queued"
	StatusRinging    CallStatus = "ringing"
	StatusInProgress CallStatus = "in-progress"
	StatusCompleted  CallStatus = "completed"
	StatusBusy       CallStatus = "busy"
	StatusFailed     CallStatus = "failed"
	StatusNoAnswer   CallStatus = "no-answer"
	StatusCanceled   CallStatus = "canceled"
)

// ParseCallStatus maps a vendor status string onto the enum. Unknown inputs
// map to in-progress: a live call we cannot classify is still live.
func ParseCallStatus(s string) CallStatus {
	switch CallStatus(s) {
	case StatusQueued, StatusRinging, StatusInProgress, StatusCompleted,
		StatusBusy, StatusFailed, StatusNoAnswer, StatusCanceled:
		return CallStatus(s)
	default:
		return StatusInProgress
	}
}

// Terminal reports whether the leg has finished in this status.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusBusy, StatusFailed, StatusNoAnswer, StatusCanceled:
		return true
	default:
		return false
	}
}

// CallInfo describes one call leg as the vendor sees it.
type CallInfo struct {
	// CallID is the vendor's call identifier (SID).
	CallID string

	// FromNumber and ToNumber are the leg endpoints in E.164 form.
	FromNumber string
	ToNumber   string

	// Status is the current leg status.
	Status CallStatus

	// StartedAt is when the leg began, zero if not yet started.
	StartedAt time.Time
}

// Provider is the telephony vendor adapter. Implementations must convert
// vendor failures into provider.Error values and never leak vendor types.
type Provider interface {
	// AnswerCall accepts a ringing call.
	AnswerCall(ctx context.Context, callID string) error

	// HangupCall terminates a call.
	HangupCall(ctx context.Context, callID string) error

	// TransferCall redirects an in-progress call to target (an E.164 number
	// or vendor queue address). It reports whether the vendor accepted the
	// transfer.
	TransferCall(ctx context.Context, callID, target string) (bool, error)

	// PlayAudio plays a hosted audio file into a call.
	PlayAudio(ctx context.Context, callID, audioURL string) error

	// GetCallInfo fetches the vendor's view of a call.
	GetCallInfo(ctx context.Context, callID string) (*CallInfo, error)

	// SendSMS sends body to the E.164 number to and returns the vendor's
	// message id.
	SendSMS(ctx context.Context, to, body string) (string, error)
}
