// Package notify fans a new callback task out to the staff over SMS and
// email. Priority decides the channels: URGENT and HIGH page the staff
// phone and send email, NORMAL and LOW send email only. The two channels
// are attempted independently so a failing SMS gateway never suppresses
// the email and vice versa.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/vocepta/pkg/callstore"
)

// Result reports the outcome of one notification channel.
type Result struct {
	Success   bool   `json:"success"`
	Provider  string `json:"provider"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Results pairs the SMS and email outcomes for one callback task.
type Results struct {
	SMS   Result `json:"sms"`
	Email Result `json:"email"`
}

// EmailProvider delivers a staff email. Implementations report failure
// inside the Result rather than via an error return so the fanout can
// record the outcome uniformly.
type EmailProvider interface {
	SendEmail(ctx context.Context, to, subject, htmlBody, textBody string) Result
}

// SMSSender delivers a staff SMS and returns the provider's message ID.
// The telephony provider satisfies this.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// Config carries the deployment-level notification settings.
type Config struct {
	// StaffPhone receives urgent SMS pages.
	StaffPhone string

	// StaffEmail receives every callback email.
	StaffEmail string

	// TranscriptBaseURL prefixes the transcript link in emails, e.g.
	// "https://app.insurance-office.com/transcripts".
	TranscriptBaseURL string

	// MaxSMSPerHour bounds SMS sends per rolling hour. Zero means
	// DefaultMaxSMSPerHour.
	MaxSMSPerHour int

	// SMSProviderName labels SMS results. Defaults to "twilio".
	SMSProviderName string
}

// Option is a functional option for configuring a [Service].
type Option func(*Service)

// WithSMSSender attaches the SMS channel. Without one, urgent pages fail
// with a configuration error.
func WithSMSSender(s SMSSender) Option {
	return func(svc *Service) {
		svc.sms = s
	}
}

// WithEmailProvider attaches the email channel. Without one, email results
// fail with a configuration error.
func WithEmailProvider(p EmailProvider) Option {
	return func(svc *Service) {
		svc.email = p
	}
}

// WithRateLimiter replaces the SMS limiter, for tests that need a
// controlled clock.
func WithRateLimiter(l *RateLimiter) Option {
	return func(svc *Service) {
		svc.limiter = l
	}
}

// Service is the notification fanout. Safe for concurrent use.
type Service struct {
	cfg     Config
	sms     SMSSender
	email   EmailProvider
	limiter *RateLimiter
}

// New creates a notification service. Channels are attached via options;
// a service without channels still works, reporting configuration failures
// per channel.
func New(cfg Config, opts ...Option) *Service {
	if cfg.SMSProviderName == "" {
		cfg.SMSProviderName = "twilio"
	}
	svc := &Service{
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.MaxSMSPerHour),
	}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

// sendSettings collects per-call overrides.
type sendSettings struct {
	bypassRateLimit bool
}

// SendOption adjusts a single NotifyCallback call.
type SendOption func(*sendSettings)

// BypassRateLimit skips the SMS sliding-window check for this call.
// Intended for administrative overrides and tests.
func BypassRateLimit() SendOption {
	return func(s *sendSettings) {
		s.bypassRateLimit = true
	}
}

// NotifyCallback fans the new task out to SMS and email. Both channels are
// attempted concurrently and neither outcome influences the other. The
// returned Results always carries both slots; for NORMAL and LOW priorities
// the SMS slot holds a synthetic "skipped, not urgent" success with
// provider "none".
func (s *Service) NotifyCallback(ctx context.Context, call *callstore.Call, task *callstore.CallbackTask, opts ...SendOption) Results {
	var settings sendSettings
	for _, o := range opts {
		o(&settings)
	}

	var results Results
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		results.SMS = s.notifySMS(ctx, call, task, settings)
	}()
	go func() {
		defer wg.Done()
		results.Email = s.notifyEmail(ctx, call, task)
	}()

	wg.Wait()

	slog.Info("notify: callback fanout complete",
		"call_id", task.CallID,
		"priority", task.Priority.String(),
		"sms_success", results.SMS.Success,
		"sms_provider", results.SMS.Provider,
		"email_success", results.Email.Success,
	)
	return results
}

// notifySMS runs the SMS leg of the fanout.
func (s *Service) notifySMS(ctx context.Context, call *callstore.Call, task *callstore.CallbackTask, settings sendSettings) Result {
	if task.Priority < callstore.PriorityHigh {
		// Not urgent; skipped by policy, reported as a success so the
		// result pair never looks like a delivery problem.
		return Result{Success: true, Provider: "none"}
	}
	var opts []SendOption
	if settings.bypassRateLimit {
		opts = append(opts, BypassRateLimit())
	}
	return s.SendSMS(ctx, s.cfg.StaffPhone, FormatSMS(call, task), opts...)
}

// SendSMS delivers a one-off SMS through the configured sender, honoring
// the sliding-window limit.
func (s *Service) SendSMS(ctx context.Context, to, body string, opts ...SendOption) Result {
	var settings sendSettings
	for _, o := range opts {
		o(&settings)
	}

	res := Result{Provider: s.cfg.SMSProviderName}

	if s.sms == nil || to == "" {
		res.Error = "phone number not configured"
		return res
	}
	if !settings.bypassRateLimit && !s.limiter.Allow() {
		res.Error = "Rate limit exceeded"
		slog.Warn("notify: sms rate limit exceeded", "to", to)
		return res
	}

	id, err := s.sms.SendSMS(ctx, to, body)
	if err != nil {
		res.Error = err.Error()
		slog.Warn("notify: sms send failed", "to", to, "err", err)
		return res
	}
	res.Success = true
	res.MessageID = id
	return res
}

// SendEmail delivers a one-off plain message through the email provider.
func (s *Service) SendEmail(ctx context.Context, to, subject, message string) Result {
	if s.email == nil {
		return Result{Provider: "none", Error: "email provider not configured"}
	}
	if to == "" {
		return Result{Provider: "none", Error: "recipient email required"}
	}
	htmlBody, textBody := FormatDirectEmail(message)
	res := s.email.SendEmail(ctx, to, subject, htmlBody, textBody)
	if !res.Success {
		slog.Warn("notify: email send failed", "to", to, "provider", res.Provider, "err", res.Error)
	}
	return res
}

// notifyEmail runs the email leg of the fanout.
func (s *Service) notifyEmail(ctx context.Context, call *callstore.Call, task *callstore.CallbackTask) Result {
	if s.email == nil {
		return Result{Provider: "none", Error: "email provider not configured"}
	}
	if s.cfg.StaffEmail == "" {
		return Result{Provider: "none", Error: "staff email not configured"}
	}

	subject := FormatEmailSubject(task)
	html, text := FormatEmailBody(call, task, s.cfg.TranscriptBaseURL)

	res := s.email.SendEmail(ctx, s.cfg.StaffEmail, subject, html, text)
	if !res.Success {
		slog.Warn("notify: email send failed", "call_id", task.CallID, "provider", res.Provider, "err", res.Error)
	}
	return res
}
