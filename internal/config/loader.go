package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/vocepta/pkg/callstore"
)

// ValidProviderNames lists known provider names per pipeline stage.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":          {"deepgram", "mock"},
	"llm":          {"openai", "mock"},
	"llm_fallback": {"openai", "anthropic", "gemini", "ollama"},
	"tts":          {"openai", "mock"},
}

// Load builds the effective configuration from the YAML file at path, the
// process environment and the built-in defaults, then validates it. An
// empty path skips the file entirely, which suits container deploys that
// inject everything through environment variables.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	ApplyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unlike [Load] it never consults the environment,
// so tests see exactly the values they wrote.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	if err := decode(r, cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	// Unknown keys are almost always typos of real ones.
	dec.KnownFields(true)
	err := dec.Decode(cfg)
	if errors.Is(err, io.EOF) {
		// Empty input is a valid, all-defaults configuration.
		return nil
	}
	return err
}

// applyDefaults fills in the blanks a minimal configuration leaves open.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.OpsAddr == "" {
		cfg.Server.OpsAddr = ":9090"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	// Production is the strict default: an unset environment must never
	// relax webhook signature checks.
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = EnvProduction
	}
	if cfg.Providers.STT.Name == "" && cfg.Providers.STT.APIKey != "" {
		cfg.Providers.STT.Name = "deepgram"
	}
	if cfg.Providers.LLM.Name == "" && cfg.Providers.LLM.APIKey != "" {
		cfg.Providers.LLM.Name = "openai"
	}
	if cfg.Providers.LLM.Name == "openai" && cfg.Providers.LLM.Model == "" {
		cfg.Providers.LLM.Model = "gpt-4o-mini"
	}
	// Speech synthesis rides on the completion vendor's key unless it is
	// configured separately.
	if cfg.Providers.TTS.Name == "" && (cfg.Providers.TTS.APIKey != "" ||
		(cfg.Providers.LLM.Name == "openai" && cfg.Providers.LLM.APIKey != "")) {
		cfg.Providers.TTS.Name = "openai"
	}
	if cfg.Providers.TTS.Name == "openai" && cfg.Providers.TTS.APIKey == "" {
		cfg.Providers.TTS.APIKey = cfg.Providers.LLM.APIKey
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Suspicious but workable settings are logged rather than rejected.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Server.Environment.IsValid() {
		errs = append(errs, fmt.Errorf("server.environment %q is invalid; valid values: development, test, production", cfg.Server.Environment))
	}
	if cfg.Server.PublicBaseURL != "" {
		u, err := url.Parse(cfg.Server.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.public_base_url %q is not an absolute URL", cfg.Server.PublicBaseURL))
		}
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Telephony credentials travel as a set; a partial set means a typo
	// or a missing secret.
	set := 0
	for _, v := range []string{cfg.Telephony.AccountSID, cfg.Telephony.AuthToken, cfg.Telephony.PhoneNumber} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		errs = append(errs, errors.New("telephony requires account_sid, auth_token and phone_number to be set together"))
	}
	if cfg.Telephony.PhoneNumber != "" {
		if err := callstore.ValidatePhoneNumber(cfg.Telephony.PhoneNumber); err != nil {
			errs = append(errs, fmt.Errorf("telephony.phone_number: %w", err))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm_fallback", cfg.Providers.LLMFallback.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" && cfg.Server.Environment == EnvProduction {
		slog.Warn("providers.llm is not configured; the receptionist cannot hold a conversation")
	}
	if cfg.Providers.LLMFallback.Configured() && !cfg.Providers.LLM.Configured() {
		slog.Warn("providers.llm_fallback is configured without a primary providers.llm")
	}

	// Notifications. Email provider credentials are required only once a
	// staff recipient is set.
	emailInUse := cfg.Notifications.StaffEmail != ""
	switch cfg.Notifications.EmailProvider {
	case "":
		if emailInUse {
			slog.Warn("notifications.staff_email is set without an email_provider; email alerts are disabled")
		}
	case EmailSendgrid:
		if emailInUse && (cfg.Notifications.Sendgrid.APIKey == "" || cfg.Notifications.Sendgrid.FromEmail == "") {
			errs = append(errs, errors.New("notifications.sendgrid requires api_key and from_email"))
		}
	case EmailSES:
		if emailInUse && (cfg.Notifications.SES.Region == "" || cfg.Notifications.SES.FromEmail == "") {
			errs = append(errs, errors.New("notifications.ses requires region and from_email"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifications.email_provider %q is invalid; valid values: sendgrid, ses", cfg.Notifications.EmailProvider))
	}
	if cfg.Notifications.StaffPhone != "" {
		if err := callstore.ValidatePhoneNumber(cfg.Notifications.StaffPhone); err != nil {
			errs = append(errs, fmt.Errorf("notifications.staff_phone: %w", err))
		}
	}
	if cfg.Notifications.SMSRateLimit < 0 {
		errs = append(errs, fmt.Errorf("notifications.sms_rate_limit %d must not be negative", cfg.Notifications.SMSRateLimit))
	}

	// Session
	if cfg.Session.MaxDurationSeconds < 0 {
		errs = append(errs, fmt.Errorf("session.max_duration_seconds %d must not be negative", cfg.Session.MaxDurationSeconds))
	}
	if cfg.Session.TargetLatencySeconds < 0 {
		errs = append(errs, fmt.Errorf("session.target_latency_seconds %.2f must not be negative", cfg.Session.TargetLatencySeconds))
	}
	if cfg.Session.MaxRetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("session.max_retry_attempts %d must not be negative", cfg.Session.MaxRetryAttempts))
	}
	if cfg.Session.RetryDelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("session.retry_delay_seconds %.2f must not be negative", cfg.Session.RetryDelaySeconds))
	}
	if cfg.Session.TTSCacheSize < 0 {
		errs = append(errs, fmt.Errorf("session.tts_cache_size %d must not be negative", cfg.Session.TTSCacheSize))
	}

	// Deployment hygiene warnings
	if cfg.Database.URL == "" {
		slog.Warn("database.url is empty; call records will only be kept in memory")
	}
	if cfg.Office.Name == "" {
		slog.Warn("office.name is empty; callers will hear a generic greeting")
	}
	if cfg.Server.Environment == EnvProduction {
		if cfg.Telephony.SkipValidation {
			slog.Warn("telephony.skip_validation is ignored in production; webhook signatures stay enforced")
		}
		if cfg.Server.DashboardPassword == "" {
			slog.Warn("server.dashboard_password is empty; ops endpoints are unprotected")
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given stage.
func validateProviderName(stage, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[stage]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"stage", stage,
		"name", name,
		"known", known,
	)
}
