// Package mock provides a test double for the telephony.Provider interface.
//
// Use Provider to script transfer and SMS outcomes and to verify the call
// control operations a consumer issued. Zero value works: every operation
// succeeds and is recorded.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vocepta/pkg/provider/telephony"
)

// SMSCall records a single invocation of SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// TransferCall records a single invocation of TransferCall.
type TransferCall struct {
	CallID string
	Target string
}

// Provider is a mock implementation of telephony.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// AnswerErr, if non-nil, is returned by AnswerCall.
	AnswerErr error

	// HangupErr, if non-nil, is returned by HangupCall.
	HangupErr error

	// TransferOK and TransferErr are returned by TransferCall.
	TransferOK  bool
	TransferErr error

	// PlayErr, if non-nil, is returned by PlayAudio.
	PlayErr error

	// Info is returned by GetCallInfo. If nil, a minimal in-progress
	// record carrying the requested call ID is returned.
	Info *telephony.CallInfo

	// InfoErr, if non-nil, is returned as the error from GetCallInfo.
	InfoErr error

	// SMSID is the message ID returned by SendSMS. Defaults to "SM-mock".
	SMSID string

	// SMSErr, if non-nil, is returned by SendSMS.
	SMSErr error

	// --- Call records (read after test) ---

	// AnswerCalls records the call IDs passed to AnswerCall in order.
	AnswerCalls []string

	// HangupCalls records the call IDs passed to HangupCall in order.
	HangupCalls []string

	// TransferCalls records every invocation of TransferCall in order.
	TransferCalls []TransferCall

	// PlayCalls records the audio URLs passed to PlayAudio in order.
	PlayCalls []string

	// InfoCalls counts invocations of GetCallInfo.
	InfoCalls int

	// SMSCalls records every invocation of SendSMS in order.
	SMSCalls []SMSCall
}

// AnswerCall records the call and returns AnswerErr.
func (p *Provider) AnswerCall(_ context.Context, callID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AnswerCalls = append(p.AnswerCalls, callID)
	return p.AnswerErr
}

// HangupCall records the call and returns HangupErr.
func (p *Provider) HangupCall(_ context.Context, callID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.HangupCalls = append(p.HangupCalls, callID)
	return p.HangupErr
}

// TransferCall records the call and returns TransferOK, TransferErr.
func (p *Provider) TransferCall(_ context.Context, callID, target string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TransferCalls = append(p.TransferCalls, TransferCall{CallID: callID, Target: target})
	return p.TransferOK, p.TransferErr
}

// PlayAudio records the call and returns PlayErr.
func (p *Provider) PlayAudio(_ context.Context, _ string, audioURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = append(p.PlayCalls, audioURL)
	return p.PlayErr
}

// GetCallInfo records the call and returns Info, InfoErr.
func (p *Provider) GetCallInfo(_ context.Context, callID string) (*telephony.CallInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.InfoCalls++
	if p.InfoErr != nil {
		return nil, p.InfoErr
	}
	if p.Info != nil {
		info := *p.Info
		return &info, nil
	}
	return &telephony.CallInfo{CallID: callID, Status: telephony.StatusInProgress}, nil
}

// SendSMS records the call and returns SMSID, SMSErr.
func (p *Provider) SendSMS(_ context.Context, to, body string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SMSCalls = append(p.SMSCalls, SMSCall{To: to, Body: body})
	if p.SMSErr != nil {
		return "", p.SMSErr
	}
	if p.SMSID != "" {
		return p.SMSID, nil
	}
	return "SM-mock", nil
}

// SMSCallCount returns the number of SendSMS calls. Thread-safe.
func (p *Provider) SMSCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SMSCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AnswerCalls = nil
	p.HangupCalls = nil
	p.TransferCalls = nil
	p.PlayCalls = nil
	p.InfoCalls = 0
	p.SMSCalls = nil
}

// Ensure Provider implements telephony.Provider at compile time.
var _ telephony.Provider = (*Provider)(nil)
