// Package mock provides test doubles for the notify channel interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vocepta/internal/notify"
)

// EmailCall records a single invocation of SendEmail.
type EmailCall struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Email is a mock implementation of notify.EmailProvider. The zero value
// reports every send as a success with message ID "em-mock".
type Email struct {
	mu sync.Mutex

	// MessageID is returned on success. Defaults to "em-mock".
	MessageID string

	// Fail, when non-empty, makes SendEmail report a failure with this
	// error message.
	Fail string

	// Calls records every invocation of SendEmail in order.
	Calls []EmailCall
}

// SendEmail records the call and returns the configured outcome.
func (m *Email) SendEmail(_ context.Context, to, subject, htmlBody, textBody string) notify.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, EmailCall{To: to, Subject: subject, HTML: htmlBody, Text: textBody})

	if m.Fail != "" {
		return notify.Result{Provider: "mock", Error: m.Fail}
	}
	id := m.MessageID
	if id == "" {
		id = "em-mock"
	}
	return notify.Result{Success: true, Provider: "mock", MessageID: id}
}

// CallCount returns the number of SendEmail calls. Thread-safe.
func (m *Email) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (m *Email) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// SMSCall records a single invocation of SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// SMS is a mock implementation of notify.SMSSender. The zero value accepts
// every send and returns message ID "sms-mock".
type SMS struct {
	mu sync.Mutex

	// MessageID is returned on success. Defaults to "sms-mock".
	MessageID string

	// Err, if non-nil, is returned by SendSMS.
	Err error

	// Calls records every invocation of SendSMS in order.
	Calls []SMSCall
}

// SendSMS records the call and returns the configured outcome.
func (m *SMS) SendSMS(_ context.Context, to, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, SMSCall{To: to, Body: body})

	if m.Err != nil {
		return "", m.Err
	}
	if m.MessageID == "" {
		return "sms-mock", nil
	}
	return m.MessageID, nil
}

// CallCount returns the number of SendSMS calls. Thread-safe.
func (m *SMS) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (m *SMS) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

var (
	_ notify.EmailProvider = (*Email)(nil)
	_ notify.SMSSender     = (*SMS)(nil)
)
