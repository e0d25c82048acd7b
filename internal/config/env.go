package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ApplyEnv overlays well-known environment variables onto cfg. The
// environment wins over the file for every key it sets, so deploy
// tooling can keep secrets out of the YAML.
func ApplyEnv(cfg *Config) {
	applyEnv(cfg, os.Getenv)
}

// applyEnv is the testable core of [ApplyEnv]; getenv stands in for
// [os.Getenv].
func applyEnv(cfg *Config, getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	str("TWILIO_ACCOUNT_SID", &cfg.Telephony.AccountSID)
	str("TWILIO_AUTH_TOKEN", &cfg.Telephony.AuthToken)
	str("TWILIO_PHONE_NUMBER", &cfg.Telephony.PhoneNumber)

	str("DEEPGRAM_API_KEY", &cfg.Providers.STT.APIKey)
	str("OPENAI_API_KEY", &cfg.Providers.LLM.APIKey)
	str("OPENAI_MODEL", &cfg.Providers.LLM.Model)

	str("STAFF_PHONE", &cfg.Notifications.StaffPhone)
	str("STAFF_EMAIL", &cfg.Notifications.StaffEmail)
	str("EMAIL_PROVIDER", &cfg.Notifications.EmailProvider)
	str("SENDGRID_API_KEY", &cfg.Notifications.Sendgrid.APIKey)
	str("SENDGRID_FROM_EMAIL", &cfg.Notifications.Sendgrid.FromEmail)
	str("AWS_REGION", &cfg.Notifications.SES.Region)
	str("SES_FROM_EMAIL", &cfg.Notifications.SES.FromEmail)
	str("TRANSCRIPT_BASE_URL", &cfg.Notifications.TranscriptBaseURL)

	str("DATABASE_URL", &cfg.Database.URL)
	str("PUBLIC_BASE_URL", &cfg.Server.PublicBaseURL)
	str("DASHBOARD_PASSWORD", &cfg.Server.DashboardPassword)

	if v := getenv("APP_ENV"); v != "" {
		cfg.Server.Environment = Environment(strings.ToLower(v))
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(v))
	}

	// Malformed numeric or boolean overrides are dropped with a warning
	// rather than failing startup over one bad env var.
	if v := getenv("SMS_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("SMS_RATE_LIMIT is not a number; ignoring", "value", v)
		} else {
			cfg.Notifications.SMSRateLimit = n
		}
	}
	if v := getenv("SKIP_TWILIO_VALIDATION"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("SKIP_TWILIO_VALIDATION is not a boolean; ignoring", "value", v)
		} else {
			cfg.Telephony.SkipValidation = b
		}
	}
}
