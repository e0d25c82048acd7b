// Package types defines the shared types used across all Vocepta packages.
//
// These types form the lingua franca between providers, the call-flow state
// machine, the notification fanout, and the session orchestrator. They are
// intentionally minimal. Each package defines its own domain types; only
// cross-cutting data structures live here to avoid circular imports.
package types

import "fmt"

// Language identifies one of the two languages the receptionist speaks.
// The zero value is not a valid language; callers that have not yet picked
// a language carry LanguageUnknown.
type Language string

const (
	// LanguageUnknown means the caller has not selected a language yet.
	LanguageUnknown Language = ""

	// LanguageEnglish is ISO 639-1 "en".
	LanguageEnglish Language = "en"

	// LanguageSpanish is ISO 639-1 "es".
	LanguageSpanish Language = "es"
)

// ParseLanguage converts a language code into a [Language]. It accepts the
// bare ISO codes ("en", "es") as well as the regional locales the telephony
// provider reports ("en-US", "es-MX", "es-US"). Anything else is an error.
func ParseLanguage(code string) (Language, error) {
	switch code {
	case "en", "en-US", "en-GB", "EN":
		return LanguageEnglish, nil
	case "es", "es-MX", "es-US", "es-ES", "ES":
		return LanguageSpanish, nil
	default:
		return LanguageUnknown, fmt.Errorf("types: unsupported language %q", code)
	}
}

// Valid reports whether l is one of the two supported languages.
func (l Language) Valid() bool {
	return l == LanguageEnglish || l == LanguageSpanish
}

// LongForm returns the human-readable language name used in staff-facing
// notifications ("English", "Spanish"). Unknown codes are returned raw so
// a malformed record still renders something.
func (l Language) LongForm() string {
	switch l {
	case LanguageEnglish:
		return "English"
	case LanguageSpanish:
		return "Spanish"
	default:
		return string(l)
	}
}

// Locale returns the regional locale tag the dialogue-control XML expects
// for its Say verbs. English defaults to en-US, Spanish to es-MX.
func (l Language) Locale() string {
	if l == LanguageSpanish {
		return "es-MX"
	}
	return "en-US"
}

// Or returns l if it is valid and fallback otherwise. Useful where a
// session may not have a language selected yet.
func (l Language) Or(fallback Language) Language {
	if l.Valid() {
		return l
	}
	return fallback
}
