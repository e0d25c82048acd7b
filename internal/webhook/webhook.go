// Package webhook serves the telephony provider's HTTP callbacks: the
// inbound-call greeting, DTMF language selection, call lifecycle status,
// recording metadata and transfer dial outcomes.
//
// Every endpoint is a POST handler behind a signature check (see
// [Server.Register]); responses are dialogue-control XML rendered by
// [github.com/MrWong99/vocepta/internal/twiml]. Database failures inside a
// handler are logged and never fail the HTTP response: the provider retries
// 5xx responses aggressively and the caller is still on the line, so the
// call experience always wins over persistence.
package webhook

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrWong99/vocepta/internal/notify"
	"github.com/MrWong99/vocepta/internal/session"
	"github.com/MrWong99/vocepta/internal/twiml"
	"github.com/MrWong99/vocepta/pkg/callstore"
)

// Webhook routes, relative to the server root. The twilio provider's
// transfer action and the numbers console point at these.
const (
	PathVoice          = "/webhooks/twilio/voice"
	PathLanguageSelect = "/webhooks/twilio/language-select"
	PathStatus         = "/webhooks/twilio/status"
	PathRecording      = "/webhooks/twilio/recording"
	PathTransferStatus = "/webhooks/twilio/transfer-status"
)

// maxFormBytes caps webhook request bodies. Provider callbacks are small
// urlencoded forms; anything larger is not one of ours.
const maxFormBytes = 1 << 20

// Config carries the deployment-level webhook settings.
type Config struct {
	// AuthToken is the provider signing secret every inbound webhook is
	// verified against. Required outside development.
	AuthToken string

	// Environment is the APP_ENV value ("development", "test",
	// "production"). Only development may relax signature checks.
	Environment string

	// SkipValidation disables the signature check for local tunnels.
	// Honored only when Environment is development; ignored with a
	// warning everywhere else.
	SkipValidation bool

	// BaseURL is the public prefix for action URLs in rendered XML, e.g.
	// "https://voice.example.com". Empty emits relative actions, which
	// the provider resolves against the current document URL.
	BaseURL string

	// BusinessName is spoken in the inbound greeting when set.
	BusinessName string
}

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithRegistry attaches the session registry. The voice webhook then opens
// a session per inbound call and the status webhook closes it.
func WithRegistry(r *session.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// WithNotifier attaches the staff notification fanout used when a transfer
// fails. Without one the urgent callback task is still filed, silently.
func WithNotifier(n *notify.Service) Option {
	return func(s *Server) {
		s.notifier = n
	}
}

// Server handles the provider webhook endpoints. Safe for concurrent use;
// all mutable state lives in the store and the registry.
type Server struct {
	cfg      Config
	store    callstore.Store
	registry *session.Registry
	notifier *notify.Service
}

// New creates a webhook server over the given store. The registry and
// notifier are attached via options; both are optional.
func New(cfg Config, store callstore.Store, opts ...Option) *Server {
	s := &Server{cfg: cfg, store: store}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the webhook routes to mux. Every route is POST-only and
// wrapped in the signature check.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("POST "+PathVoice, s.verified(s.handleVoice))
	mux.Handle("POST "+PathLanguageSelect, s.verified(s.handleLanguageSelect))
	mux.Handle("POST "+PathStatus, s.verified(s.handleStatus))
	mux.Handle("POST "+PathRecording, s.verified(s.handleRecording))
	mux.Handle("POST "+PathTransferStatus, s.verified(s.handleTransferStatus))
}

// Handler returns a mux with all webhook routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// action builds the absolute action URL for path, or a relative one when no
// base URL is configured.
func (s *Server) action(path string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + path
}

// respondXML renders verbs and writes the XML document. The vocabulary is
// fixed, so a render failure means a programming error; it is logged and
// surfaced as a plain 500.
func respondXML(w http.ResponseWriter, verbs ...twiml.Verb) {
	body, err := twiml.Render(verbs...)
	if err != nil {
		slog.Error("webhook: render response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", twiml.ContentType)
	if _, err := w.Write(body); err != nil {
		slog.Debug("webhook: write response", "err", err)
	}
}
