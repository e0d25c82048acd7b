package twilio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/vocepta/pkg/provider"
	"github.com/MrWong99/vocepta/pkg/provider/telephony"
)

// ---- Constructor tests ----

func TestNew_MissingCredentials(t *testing.T) {
	if _, err := New("", "token", "+15550001111"); err == nil {
		t.Error("expected error for empty account SID")
	}
	if _, err := New("AC123", "", "+15550001111"); err == nil {
		t.Error("expected error for empty auth token")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("AC123", "token", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.baseURL != defaultBaseURL {
		t.Errorf("baseURL: want %q, got %q", defaultBaseURL, p.baseURL)
	}
	if p.timeout != defaultTimeout {
		t.Errorf("timeout: want %v, got %v", defaultTimeout, p.timeout)
	}
}

// ---- REST operation tests ----

func TestSendSMS_Success(t *testing.T) {
	var gotPath, gotUser, gotPass string
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		r.ParseForm()
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM42","status":"queued"}`))
	}))
	defer srv.Close()

	p, _ := New("AC123", "token", "+15550001111", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	id, err := p.SendSMS(context.Background(), "+15559876543", "New urgent callback: Maria +15559876543 - insurance claim")
	if err != nil {
		t.Fatalf("SendSMS: %v", err)
	}

	if id != "SM42" {
		t.Errorf("message ID: got %q", id)
	}
	if gotPath != "/Accounts/AC123/Messages.json" {
		t.Errorf("path: got %q", gotPath)
	}
	if gotUser != "AC123" || gotPass != "token" {
		t.Errorf("basic auth: got %q:%q", gotUser, gotPass)
	}
	if gotForm.Get("To") != "+15559876543" {
		t.Errorf("To: got %q", gotForm.Get("To"))
	}
	if gotForm.Get("From") != "+15550001111" {
		t.Errorf("From: got %q", gotForm.Get("From"))
	}
	if !strings.HasPrefix(gotForm.Get("Body"), "New urgent callback:") {
		t.Errorf("Body: got %q", gotForm.Get("Body"))
	}
}

func TestSendSMS_NoFromNumber(t *testing.T) {
	p, _ := New("AC123", "token", "")
	_, err := p.SendSMS(context.Background(), "+15559876543", "hi")
	if err == nil {
		t.Fatal("expected error without a from number")
	}
	if got := provider.KindOf(err); got != provider.KindNotConfigured {
		t.Errorf("kind: want not_configured, got %s", got)
	}
	if provider.Retryable(err) {
		t.Error("missing configuration must not be retryable")
	}
}

func TestTransferCall_PostsDialDocument(t *testing.T) {
	var gotPath, gotTwiml string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		r.ParseForm()
		gotTwiml = r.PostForm.Get("Twiml")
		w.Write([]byte(`{"sid":"CA1","status":"in-progress"}`))
	}))
	defer srv.Close()

	p, _ := New("AC123", "token", "+15550001111",
		WithBaseURL(srv.URL), WithHTTPClient(srv.Client()),
		WithTransferAction("https://example.com/webhooks/twilio/transfer-status"))
	ok, err := p.TransferCall(context.Background(), "CA1", "+15553334444")
	if err != nil {
		t.Fatalf("TransferCall: %v", err)
	}
	if !ok {
		t.Error("expected accepted transfer to report true")
	}

	if gotPath != "/Accounts/AC123/Calls/CA1.json" {
		t.Errorf("path: got %q", gotPath)
	}
	if !strings.Contains(gotTwiml, `<Dial action="https://example.com/webhooks/twilio/transfer-status">+15553334444</Dial>`) {
		t.Errorf("Twiml: got %q", gotTwiml)
	}
}

func TestTransferCall_EmptyTarget(t *testing.T) {
	p, _ := New("AC123", "token", "")
	ok, err := p.TransferCall(context.Background(), "CA1", "  ")
	if ok || err == nil {
		t.Fatal("expected empty target to fail")
	}
	if got := provider.KindOf(err); got != provider.KindValidation {
		t.Errorf("kind: want validation, got %s", got)
	}
}

func TestHangupCall(t *testing.T) {
	var gotStatus string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotStatus = r.PostForm.Get("Status")
		w.Write([]byte(`{"sid":"CA1","status":"completed"}`))
	}))
	defer srv.Close()

	p, _ := New("AC123", "token", "", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err := p.HangupCall(context.Background(), "CA1"); err != nil {
		t.Fatalf("HangupCall: %v", err)
	}
	if gotStatus != "completed" {
		t.Errorf("Status: want completed, got %q", gotStatus)
	}
}

func TestPlayAudio(t *testing.T) {
	var gotTwiml string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotTwiml = r.PostForm.Get("Twiml")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p, _ := New("AC123", "token", "", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err := p.PlayAudio(context.Background(), "CA1", "https://cdn.example.com/greet.mp3"); err != nil {
		t.Fatalf("PlayAudio: %v", err)
	}
	if !strings.Contains(gotTwiml, "<Play>https://cdn.example.com/greet.mp3</Play>") {
		t.Errorf("Twiml: got %q", gotTwiml)
	}
}

func TestGetCallInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"sid": "CA1",
			"from": "+15559876543",
			"to": "+15550001111",
			"status": "in-progress",
			"start_time": "Tue, 25 Aug 2026 14:30:00 +0000"
		}`))
	}))
	defer srv.Close()

	p, _ := New("AC123", "token", "", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	info, err := p.GetCallInfo(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("GetCallInfo: %v", err)
	}

	if info.CallID != "CA1" {
		t.Errorf("CallID: got %q", info.CallID)
	}
	if info.FromNumber != "+15559876543" {
		t.Errorf("FromNumber: got %q", info.FromNumber)
	}
	if info.Status != telephony.StatusInProgress {
		t.Errorf("Status: got %q", info.Status)
	}
	want := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)
	if !info.StartedAt.Equal(want) {
		t.Errorf("StartedAt: want %v, got %v", want, info.StartedAt)
	}
}

func TestAnswerCall_AlreadyEnded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sid":"CA1","status":"completed"}`))
	}))
	defer srv.Close()

	p, _ := New("AC123", "token", "", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	err := p.AnswerCall(context.Background(), "CA1")
	if err == nil {
		t.Fatal("expected error answering a completed call")
	}
	if got := provider.KindOf(err); got != provider.KindValidation {
		t.Errorf("kind: want validation, got %s", got)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   provider.Kind
		retry  bool
	}{
		{"rate limited", http.StatusTooManyRequests, provider.KindRateLimit, true},
		{"unauthorized", http.StatusUnauthorized, provider.KindAuth, false},
		{"forbidden", http.StatusForbidden, provider.KindAuth, false},
		{"not found", http.StatusNotFound, provider.KindValidation, false},
		{"server error", http.StatusInternalServerError, provider.KindGeneric, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			p, _ := New("AC123", "token", "", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
			err := p.HangupCall(context.Background(), "CA1")
			if err == nil {
				t.Fatalf("expected error for status %d", tc.status)
			}

			var pe *provider.Error
			if !errors.As(err, &pe) {
				t.Fatalf("expected *provider.Error, got %T", err)
			}
			if pe.Kind != tc.want {
				t.Errorf("kind: want %s, got %s", tc.want, pe.Kind)
			}
			if provider.Retryable(err) != tc.retry {
				t.Errorf("retryable: want %v", tc.retry)
			}
		})
	}
}

// ---- Signature tests ----

// Fixed vector published with the webhook security scheme.
func TestSignature_KnownVector(t *testing.T) {
	form := url.Values{
		"CallSid": {"CA1234567890ABCDE"},
		"Caller":  {"+14158675309"},
		"Digits":  {"1234"},
		"From":    {"+14158675309"},
		"To":      {"+18005551212"},
	}
	got := Signature("12345", "https://mycompany.com/myapp.php?foo=1&bar=2", form)
	if want := "RSOYDt4T1cUTdK1PDd93/VVr8B8="; got != want {
		t.Errorf("signature: want %q, got %q", want, got)
	}
}

func TestValidateSignature(t *testing.T) {
	form := url.Values{
		"CallSid": {"CA1"},
		"From":    {"+15559876543"},
	}
	const u = "https://example.com/webhooks/twilio/voice"

	sig := Signature("secret-token", u, form)
	if !ValidateSignature("secret-token", u, form, sig) {
		t.Error("valid signature rejected")
	}
	if ValidateSignature("other-token", u, form, sig) {
		t.Error("signature accepted under wrong token")
	}

	tampered := url.Values{"CallSid": {"CA2"}, "From": {"+15559876543"}}
	if ValidateSignature("secret-token", u, tampered, sig) {
		t.Error("signature accepted for tampered form")
	}
	if ValidateSignature("secret-token", u, form, "!!not-base64!!") {
		t.Error("malformed signature accepted")
	}
}
