// Package provider defines the error taxonomy shared by every provider
// adapter (STT, TTS, LLM, telephony).
//
// Vendor SDKs and raw HTTP clients raise their own error hierarchies. Each
// adapter converts those into a single [Error] value carrying a [Kind], so
// that callers, the session retry loop in particular, can decide whether to
// retry, surface, or abort without ever importing a vendor package. Vendor
// error types must not escape an adapter boundary.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a provider failure. The session layer retries transient
// kinds and immediately surfaces client-input kinds.
type Kind int

const (
	// KindGeneric is an unclassified provider failure. Retried.
	KindGeneric Kind = iota

	// KindRateLimit means the vendor rejected the call for quota reasons. Retried.
	KindRateLimit

	// KindTimeout means the call exceeded its deadline. Retried.
	KindTimeout

	// KindAuth means the credentials were rejected. Not retried.
	KindAuth

	// KindContextLength means the LLM input exceeded the model's window. Not retried.
	KindContextLength

	// KindUnsupportedLanguage means a language outside en/es was requested. Not retried.
	KindUnsupportedLanguage

	// KindInvalidText means empty or whitespace-only text was submitted for synthesis. Not retried.
	KindInvalidText

	// KindInvalidAudio means the audio payload was malformed. Not retried.
	KindInvalidAudio

	// KindEmptyAudio means a zero-length audio payload was submitted. Not retried.
	KindEmptyAudio

	// KindValidation means a request failed the adapter's own input checks. Not retried.
	KindValidation

	// KindNotConfigured means the adapter is missing credentials or endpoints. Not retried.
	KindNotConfigured
)

// String returns the stable name of the kind, suitable for log fields and
// metric attributes.
func (k Kind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	case KindAuth:
		return "auth"
	case KindContextLength:
		return "context_length"
	case KindUnsupportedLanguage:
		return "unsupported_language"
	case KindInvalidText:
		return "invalid_text"
	case KindInvalidAudio:
		return "invalid_audio"
	case KindEmptyAudio:
		return "empty_audio"
	case KindValidation:
		return "validation"
	case KindNotConfigured:
		return "not_configured"
	default:
		return "generic"
	}
}

// Retryable reports whether the session retry loop may attempt the call
// again. Only transient vendor conditions qualify; client-input and
// credential problems will not improve on a second attempt.
func (k Kind) Retryable() bool {
	switch k {
	case KindGeneric, KindRateLimit, KindTimeout:
		return true
	default:
		return false
	}
}

// Error is the uniform failure value returned by provider adapters.
type Error struct {
	// Kind classifies the failure for retry decisions.
	Kind Kind

	// Provider names the adapter ("deepgram", "openai", "twilio", ...).
	Provider string

	// Op is the operation that failed ("transcribe", "complete", "synthesize", ...).
	Op string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Op, e.Kind)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an [*Error] with a formatted cause.
func Errorf(kind Kind, providerName, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: providerName, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap builds an [*Error] around an existing cause. A nil cause yields an
// Error with no underlying error, which is still a valid failure value.
func Wrap(kind Kind, providerName, op string, err error) *Error {
	return &Error{Kind: kind, Provider: providerName, Op: op, Err: err}
}

// KindOf extracts the [Kind] from err. Errors that are not provider errors
// report KindGeneric, which keeps them retryable by default.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindGeneric
}

// Retryable reports whether err should be retried by the session loop.
// Context cancellation is never retryable regardless of kind.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return KindOf(err).Retryable()
}
