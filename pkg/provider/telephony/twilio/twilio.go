// Package twilio provides a Twilio-backed telephony provider. It implements
// the telephony.Provider interface over the 2010-04-01 REST API (form-encoded
// POSTs with basic auth) and exposes the webhook signature scheme used by
// the HTTP layer to authenticate inbound callbacks.
package twilio

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/vocepta/pkg/provider"
	"github.com/MrWong99/vocepta/pkg/provider/telephony"
)

const (
	defaultBaseURL = "https://api.twilio.com/2010-04-01"
	defaultTimeout = 30 * time.Second

	providerName = "twilio"
)

// Option is a functional option for configuring the Twilio Provider.
type Option func(*Provider)

// WithHTTPClient replaces the HTTP client used for REST calls. Intended for
// tests that point the provider at a local server.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.http = c
	}
}

// WithBaseURL overrides the API base URL. Intended for tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithTimeout sets the per-request deadline. The default is 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithTransferAction sets the URL Twilio posts the dial outcome to when a
// transfer completes or fails. Without it a failed transfer ends the call
// silently instead of coming back for the fallback announcement.
func WithTransferAction(u string) Option {
	return func(p *Provider) {
		p.transferAction = u
	}
}

// Provider implements telephony.Provider backed by the Twilio REST API.
type Provider struct {
	accountSID     string
	authToken      string
	fromNumber     string
	transferAction string
	baseURL        string
	timeout        time.Duration
	http           *http.Client
}

var _ telephony.Provider = (*Provider)(nil)

// New creates a new Twilio Provider. accountSID and authToken must be
// non-empty; fromNumber is the number outbound SMS are sent from and may be
// empty when SMS is unused.
func New(accountSID, authToken, fromNumber string, opts ...Option) (*Provider, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("twilio: accountSID and authToken must not be empty")
	}
	p := &Provider{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    defaultBaseURL,
		timeout:    defaultTimeout,
		http:       &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ─── call control ───

// AnswerCall implements [telephony.Provider]. Inbound Twilio calls are
// answered by the voice webhook's XML response, so the adapter only verifies
// the call exists and is live.
func (p *Provider) AnswerCall(ctx context.Context, callID string) error {
	info, err := p.GetCallInfo(ctx, callID)
	if err != nil {
		return err
	}
	if info.Status.Terminal() {
		return provider.Errorf(provider.KindValidation, providerName, "answer", "call %s already %s", callID, info.Status)
	}
	return nil
}

// HangupCall implements [telephony.Provider]. Setting the call status to
// completed ends the call.
func (p *Provider) HangupCall(ctx context.Context, callID string) error {
	form := url.Values{"Status": {"completed"}}
	_, err := p.postForm(ctx, "hangup", "/Accounts/"+p.accountSID+"/Calls/"+callID+".json", form)
	return err
}

// TransferCall implements [telephony.Provider]. The live call is redirected
// with a Dial document; the vendor accepting the update means the transfer
// attempt started, not that anyone picked up. The dial outcome arrives via
// the transfer-status webhook.
func (p *Provider) TransferCall(ctx context.Context, callID, target string) (bool, error) {
	if strings.TrimSpace(target) == "" {
		return false, provider.Errorf(provider.KindValidation, providerName, "transfer", "target is empty")
	}
	dial := `<Dial`
	if p.transferAction != "" {
		dial += ` action="` + xmlEscape(p.transferAction) + `"`
	}
	doc := `<?xml version="1.0" encoding="UTF-8"?><Response>` + dial + `>` + xmlEscape(target) + `</Dial></Response>`

	form := url.Values{"Twiml": {doc}}
	if _, err := p.postForm(ctx, "transfer", "/Accounts/"+p.accountSID+"/Calls/"+callID+".json", form); err != nil {
		return false, err
	}
	return true, nil
}

// PlayAudio implements [telephony.Provider]. The live call is redirected to
// a Play document.
func (p *Provider) PlayAudio(ctx context.Context, callID, audioURL string) error {
	doc := `<?xml version="1.0" encoding="UTF-8"?><Response><Play>` + xmlEscape(audioURL) + `</Play></Response>`
	form := url.Values{"Twiml": {doc}}
	_, err := p.postForm(ctx, "play", "/Accounts/"+p.accountSID+"/Calls/"+callID+".json", form)
	return err
}

// callResource is the subset of Twilio's call resource the adapter reads.
type callResource struct {
	SID       string `json:"sid"`
	From      string `json:"from"`
	To        string `json:"to"`
	Status    string `json:"status"`
	StartTime string `json:"start_time"`
}

// GetCallInfo implements [telephony.Provider].
func (p *Provider) GetCallInfo(ctx context.Context, callID string) (*telephony.CallInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/Accounts/"+p.accountSID+"/Calls/"+callID+".json", nil)
	if err != nil {
		return nil, provider.Wrap(provider.KindGeneric, providerName, "call_info", err)
	}
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, wrapTransport("call_info", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mapHTTPError("call_info", resp.StatusCode, body)
	}

	var res callResource
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, provider.Wrap(provider.KindGeneric, providerName, "call_info", err)
	}

	info := &telephony.CallInfo{
		CallID:     res.SID,
		FromNumber: res.From,
		ToNumber:   res.To,
		Status:     telephony.ParseCallStatus(res.Status),
	}
	if res.StartTime != "" {
		// Twilio reports RFC 1123 with a numeric zone.
		if ts, err := time.Parse(time.RFC1123Z, res.StartTime); err == nil {
			info.StartedAt = ts
		}
	}
	return info, nil
}

// ─── SMS ───

// SendSMS implements [telephony.Provider].
func (p *Provider) SendSMS(ctx context.Context, to, body string) (string, error) {
	if p.fromNumber == "" {
		return "", provider.Errorf(provider.KindNotConfigured, providerName, "sms", "phone number not configured")
	}
	if strings.TrimSpace(to) == "" {
		return "", provider.Errorf(provider.KindValidation, providerName, "sms", "recipient is empty")
	}

	form := url.Values{
		"To":   {to},
		"From": {p.fromNumber},
		"Body": {body},
	}
	respBody, err := p.postForm(ctx, "sms", "/Accounts/"+p.accountSID+"/Messages.json", form)
	if err != nil {
		return "", err
	}

	var res struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return "", provider.Wrap(provider.KindGeneric, providerName, "sms", err)
	}
	return res.SID, nil
}

// ─── shared REST plumbing ───

// postForm sends a form-encoded POST with basic auth and returns the
// response body on 2xx.
func (p *Provider) postForm(ctx context.Context, op, path string, form url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, provider.Wrap(provider.KindGeneric, providerName, op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, wrapTransport(op, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mapHTTPError(op, resp.StatusCode, body)
	}
	return body, nil
}

// wrapTransport classifies client-side transport failures.
func wrapTransport(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return provider.Wrap(provider.KindTimeout, providerName, op, err)
	}
	return provider.Wrap(provider.KindGeneric, providerName, op, err)
}

// mapHTTPError converts a non-2xx REST response into a provider error.
func mapHTTPError(op string, status int, body []byte) error {
	kind := provider.KindGeneric
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = provider.KindAuth
	case status == http.StatusTooManyRequests:
		kind = provider.KindRateLimit
	case status == http.StatusNotFound || status == http.StatusBadRequest:
		kind = provider.KindValidation
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = provider.KindTimeout
	}
	return provider.Errorf(kind, providerName, op, "HTTP %d: %s", status, strings.TrimSpace(string(body)))
}

// xmlEscape escapes text interpolated into inline call-update documents.
func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}

// ─── webhook signatures ───

// Signature computes the base64 HMAC-SHA1 signature Twilio attaches to a
// webhook POST: the full request URL concatenated with every form key and
// value in sorted key order, signed with the account's auth token.
func Signature(authToken, fullURL string, form url.Values) string {
	data := fullURL
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range form[k] {
			data += k + v
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignature reports whether signature authenticates a webhook POST
// of form to fullURL under authToken. Comparison is constant-time.
func ValidateSignature(authToken, fullURL string, form url.Values, signature string) bool {
	presented, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(Signature(authToken, fullURL, form))
	if err != nil {
		return false
	}
	return hmac.Equal(presented, expected)
}
