// Package sendgrid delivers staff email through the SendGrid v3 mail API.
package sendgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/vocepta/internal/notify"
)

const (
	defaultBaseURL = "https://api.sendgrid.com"
	defaultTimeout = 30 * time.Second
	providerName   = "sendgrid"
)

// Option is a functional option for configuring a [Provider].
type Option func(*Provider)

// WithHTTPClient replaces the HTTP client, e.g. for a custom transport.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.http = c
		}
	}
}

// WithBaseURL points the provider at a different API host. Used by tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithTimeout adjusts the per-request timeout (default 30s).
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Provider sends email via SendGrid. Construction never fails so the
// notification service can hold one unconditionally; a Provider without an
// API key reports "not configured" on every send.
type Provider struct {
	apiKey    string
	fromEmail string
	baseURL   string
	timeout   time.Duration
	http      *http.Client
}

var _ notify.EmailProvider = (*Provider)(nil)

// New creates a SendGrid provider sending from fromEmail.
func New(apiKey, fromEmail string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		baseURL:   defaultBaseURL,
		timeout:   defaultTimeout,
		http:      &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ─────────────────────────────────────────────────────────────────────────────
// Wire types
// ─────────────────────────────────────────────────────────────────────────────

type mailRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type emailAddress struct {
	Email string `json:"email"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SendEmail posts to /v3/mail/send and reports the outcome. The API answers
// 202 Accepted with the message ID in the X-Message-Id header.
func (p *Provider) SendEmail(ctx context.Context, to, subject, htmlBody, textBody string) notify.Result {
	res := notify.Result{Provider: providerName}

	if p.apiKey == "" || p.fromEmail == "" {
		res.Error = "not configured"
		return res
	}
	if strings.TrimSpace(to) == "" {
		res.Error = "recipient email required"
		return res
	}

	// The API rejects requests whose text/plain entry follows text/html.
	payload := mailRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: to}}}},
		From:             emailAddress{Email: p.fromEmail},
		Subject:          subject,
		Content: []mailContent{
			{Type: "text/plain", Value: textBody},
			{Type: "text/html", Value: htmlBody},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		res.Error = fmt.Sprintf("encode request: %v", err)
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		res.Error = fmt.Sprintf("build request: %v", err)
		return res
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		res.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		return res
	}

	res.Success = true
	res.MessageID = resp.Header.Get("X-Message-Id")
	return res
}
