package webhook

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrWong99/vocepta/pkg/provider/telephony/twilio"
)

// signatureHeader carries the provider's request signature.
const signatureHeader = "X-Twilio-Signature"

// envDevelopment is the only environment where signature checks may be
// relaxed.
const envDevelopment = "development"

// verified wraps a handler with the body cap, form parsing and the
// provider signature check. Handlers behind it may assume r.PostForm is
// populated and the request is authentic.
func (s *Server) verified(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			slog.Warn("webhook: malformed form body", "path", r.URL.Path, "err", err)
			http.Error(w, "malformed form body", http.StatusBadRequest)
			return
		}
		if status, err := s.verifySignature(r); err != nil {
			slog.Warn("webhook: request rejected",
				"path", r.URL.Path,
				"status", status,
				"err", err,
			)
			http.Error(w, http.StatusText(status), status)
			return
		}
		next(w, r)
	})
}

// verifySignature authenticates r against the provider signing scheme. The
// returned status is the HTTP code to reject with; zero means accepted.
//
// The skip flag is honored only in development. A missing auth token is a
// deployment error outside development and rejected as such, never as an
// authentication failure the provider would retry against.
func (s *Server) verifySignature(r *http.Request) (int, error) {
	dev := s.cfg.Environment == envDevelopment

	if s.cfg.SkipValidation {
		if dev {
			slog.Debug("webhook: signature check skipped", "path", r.URL.Path)
			return 0, nil
		}
		slog.Warn("webhook: signature skip flag ignored outside development",
			"environment", s.cfg.Environment)
	}

	if s.cfg.AuthToken == "" {
		if dev {
			slog.Warn("webhook: no auth token configured, accepting unsigned request",
				"path", r.URL.Path)
			return 0, nil
		}
		return http.StatusInternalServerError, errors.New("auth token not configured")
	}

	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		return http.StatusUnauthorized, errors.New("missing signature header")
	}
	if !twilio.ValidateSignature(s.cfg.AuthToken, requestURL(r), r.PostForm, sig) {
		return http.StatusUnauthorized, errors.New("signature mismatch")
	}
	return 0, nil
}

// requestURL reconstructs the public URL the provider signed. Reverse
// proxies rewrite Host and terminate TLS, so the forwarded headers win
// when present.
func requestURL(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
