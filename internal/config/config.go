// Package config provides the configuration schema and loader for the
// vocepta receptionist service.
//
// Configuration is layered: a YAML file carries the full schema, and a
// fixed set of environment variables overrides the secrets and deployment
// knobs that ops teams inject at runtime (see [ApplyEnv]). Validation
// joins every violation into a single error so a bad deploy surfaces all
// of its problems at once.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the service.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto the slog level. Unknown and empty values map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Environment is the deployment stage, APP_ENV in twelve-factor terms. It
// gates behavior that must never relax in production, like webhook
// signature checks.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
	EnvProduction  Environment = "production"
)

// IsValid reports whether e is a recognised environment.
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTest, EnvProduction:
		return true
	}
	return false
}

// Email backend names for [NotifyConfig.EmailProvider].
const (
	EmailSendgrid = "sendgrid"
	EmailSES      = "ses"
)

// Config is the root configuration structure. It is typically loaded from
// a YAML file plus the environment using [Load].
type Config struct {
	Server        ServerConfig    `yaml:"server"`
	Office        OfficeConfig    `yaml:"office"`
	Database      DatabaseConfig  `yaml:"database"`
	Telephony     TelephonyConfig `yaml:"telephony"`
	Providers     ProvidersConfig `yaml:"providers"`
	Notifications NotifyConfig    `yaml:"notifications"`
	Session       SessionConfig   `yaml:"session"`
}

// ServerConfig holds network, logging and deployment settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the webhook server listens on.
	// Defaults to ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// OpsAddr is the TCP address for the metrics and health endpoints.
	// Defaults to ":9090".
	OpsAddr string `yaml:"ops_addr"`

	// PublicBaseURL is the externally visible URL prefix of the webhook
	// server, e.g. "https://voice.example.com". Used to build absolute
	// action URLs in dialogue XML and the transfer status callback.
	PublicBaseURL string `yaml:"public_base_url"`

	// Environment is the deployment stage. Defaults to production, the
	// strict setting, so an unset deploy never relaxes signature checks.
	Environment Environment `yaml:"environment"`

	// LogLevel controls verbosity. Defaults to info.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the webhook server. When nil, the server
	// runs plain HTTP behind an ingress that terminates TLS.
	TLS *TLSConfig `yaml:"tls"`

	// DashboardPassword protects the ops endpoints with basic auth.
	// Empty leaves them open, which only suits private networks.
	DashboardPassword string `yaml:"dashboard_password"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// OfficeConfig describes the business the receptionist answers for.
type OfficeConfig struct {
	// Name is spoken in greetings, e.g. "Summit Insurance".
	Name string `yaml:"name"`

	// Lexicon lists domain terms the transcript corrector should restore
	// when the transcription mangles them: the office name, carrier names,
	// product names. The office name is always included.
	Lexicon []string `yaml:"lexicon"`
}

// DatabaseConfig holds the persistence settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Empty selects the
	// in-memory store, which only suits development and tests.
	URL string `yaml:"url"`
}

// TelephonyConfig holds the telephony vendor credentials.
type TelephonyConfig struct {
	// AccountSID identifies the vendor account.
	AccountSID string `yaml:"account_sid"`

	// AuthToken authenticates REST calls and signs inbound webhooks.
	AuthToken string `yaml:"auth_token"`

	// PhoneNumber is the office number in E.164 form, used as the SMS
	// sender and outbound caller ID.
	PhoneNumber string `yaml:"phone_number"`

	// SkipValidation disables webhook signature checks. Honored only in
	// the development environment.
	SkipValidation bool `yaml:"skip_validation"`
}

// ProvidersConfig declares which vendor serves each pipeline stage.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallback optionally names a secondary completion backend that
	// takes over when the primary trips its circuit breaker.
	LLMFallback ProviderEntry `yaml:"llm_fallback"`

	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the configuration block shared by all provider stages.
type ProviderEntry struct {
	// Name selects the adapter (e.g. "deepgram", "openai", "mock").
	Name string `yaml:"name"`

	// APIKey authenticates against the vendor API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the vendor's default API endpoint. Leave empty
	// to use the adapter's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the vendor (e.g. "nova-2",
	// "gpt-4o-mini", "tts-1").
	Model string `yaml:"model"`
}

// Configured reports whether the entry names an adapter.
func (p ProviderEntry) Configured() bool {
	return p.Name != ""
}

// NotifyConfig holds the staff notification settings.
type NotifyConfig struct {
	// StaffPhone receives urgent SMS pages, E.164 form.
	StaffPhone string `yaml:"staff_phone"`

	// StaffEmail receives every callback email.
	StaffEmail string `yaml:"staff_email"`

	// EmailProvider selects the email backend: "sendgrid" or "ses".
	// Empty disables the email channel.
	EmailProvider string `yaml:"email_provider"`

	// Sendgrid configures the SendGrid backend.
	Sendgrid SendgridConfig `yaml:"sendgrid"`

	// SES configures the AWS SES backend.
	SES SESConfig `yaml:"ses"`

	// SMSRateLimit bounds SMS sends per rolling hour. Zero means the
	// notify package default.
	SMSRateLimit int `yaml:"sms_rate_limit"`

	// TranscriptBaseURL prefixes transcript links in staff emails.
	TranscriptBaseURL string `yaml:"transcript_base_url"`
}

// SendgridConfig holds SendGrid credentials.
type SendgridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
}

// SESConfig holds AWS SES settings. Credentials come from the standard
// AWS environment and instance roles.
type SESConfig struct {
	Region    string `yaml:"region"`
	FromEmail string `yaml:"from_email"`
}

// SessionConfig tunes the per-call conversation pipeline.
type SessionConfig struct {
	// MaxDurationSeconds caps a call. Zero means the session default.
	MaxDurationSeconds int `yaml:"max_duration_seconds"`

	// TargetLatencySeconds is the end-to-end turn latency target; turns
	// above it are logged. Zero means the session default.
	TargetLatencySeconds float64 `yaml:"target_latency_seconds"`

	// MaxRetryAttempts bounds provider retries per pipeline stage.
	MaxRetryAttempts int `yaml:"max_retry_attempts"`

	// RetryDelaySeconds is the fixed pause between retry attempts.
	RetryDelaySeconds float64 `yaml:"retry_delay_seconds"`

	// VoiceEnglish and VoiceSpanish select TTS voices per language.
	// Empty uses the adapter's default voice.
	VoiceEnglish string `yaml:"voice_english"`
	VoiceSpanish string `yaml:"voice_spanish"`

	// TTSCacheSize bounds the synthesized-audio LRU cache. Zero disables
	// caching.
	TTSCacheSize int `yaml:"tts_cache_size"`
}

// MaxDuration returns the call cap as a duration; zero when unset.
func (s SessionConfig) MaxDuration() time.Duration {
	return time.Duration(s.MaxDurationSeconds) * time.Second
}

// TargetLatency returns the latency target as a duration; zero when unset.
func (s SessionConfig) TargetLatency() time.Duration {
	return time.Duration(s.TargetLatencySeconds * float64(time.Second))
}

// RetryDelay returns the retry pause as a duration; zero when unset.
func (s SessionConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySeconds * float64(time.Second))
}
