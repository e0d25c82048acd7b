package config_test

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/vocepta/internal/config"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8443"
  ops_addr: ":9100"
  public_base_url: https://voice.example.com
  environment: production
  log_level: info
  dashboard_password: hunter2

office:
  name: Summit Insurance

database:
  url: postgres://vocepta:pw@localhost:5432/vocepta?sslmode=disable

telephony:
  account_sid: AC0000000000000000000000000000test
  auth_token: twilio-test-token
  phone_number: "+15550001111"

providers:
  stt:
    name: deepgram
    api_key: dg-test
    model: nova-2
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  llm_fallback:
    name: anthropic
    api_key: ak-test
    model: claude-sonnet-4-5
  tts:
    name: openai
    api_key: sk-test
    model: tts-1

notifications:
  staff_phone: "+15550002222"
  staff_email: staff@summit.example
  email_provider: sendgrid
  sendgrid:
    api_key: sg-test
    from_email: vocepta@summit.example
  sms_rate_limit: 10
  transcript_base_url: https://dashboard.summit.example/calls

session:
  max_duration_seconds: 600
  target_latency_seconds: 1.5
  max_retry_attempts: 2
  retry_delay_seconds: 0.5
  voice_english: alloy
  voice_spanish: nova
  tts_cache_size: 256
`

// ── full schema ───────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8443" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8443")
	}
	if cfg.Server.OpsAddr != ":9100" {
		t.Errorf("server.ops_addr: got %q, want %q", cfg.Server.OpsAddr, ":9100")
	}
	if cfg.Server.Environment != config.EnvProduction {
		t.Errorf("server.environment: got %q, want %q", cfg.Server.Environment, config.EnvProduction)
	}
	if cfg.Office.Name != "Summit Insurance" {
		t.Errorf("office.name: got %q", cfg.Office.Name)
	}
	if !strings.HasPrefix(cfg.Database.URL, "postgres://") {
		t.Errorf("database.url: got %q", cfg.Database.URL)
	}
	if cfg.Telephony.PhoneNumber != "+15550001111" {
		t.Errorf("telephony.phone_number: got %q", cfg.Telephony.PhoneNumber)
	}
	if cfg.Providers.STT.Name != "deepgram" {
		t.Errorf("providers.stt.name: got %q, want %q", cfg.Providers.STT.Name, "deepgram")
	}
	if cfg.Providers.LLMFallback.Name != "anthropic" {
		t.Errorf("providers.llm_fallback.name: got %q, want %q", cfg.Providers.LLMFallback.Name, "anthropic")
	}
	if cfg.Notifications.StaffPhone != "+15550002222" {
		t.Errorf("notifications.staff_phone: got %q", cfg.Notifications.StaffPhone)
	}
	if cfg.Notifications.SMSRateLimit != 10 {
		t.Errorf("notifications.sms_rate_limit: got %d, want 10", cfg.Notifications.SMSRateLimit)
	}
	if cfg.Session.VoiceSpanish != "nova" {
		t.Errorf("session.voice_spanish: got %q, want %q", cfg.Session.VoiceSpanish, "nova")
	}
	if cfg.Session.TTSCacheSize != 256 {
		t.Errorf("session.tts_cache_size: got %d, want 256", cfg.Session.TTSCacheSize)
	}
}

func TestLoadFromReader_UnknownKeyRejected(t *testing.T) {
	yaml := `
server:
  listen_adress: ":8080"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "listen_adress") {
		t.Errorf("error should name the unknown key, got: %v", err)
	}
}

// ── value types ───────────────────────────────────────────────────────────────

func TestLogLevel_Slog(t *testing.T) {
	cases := []struct {
		level config.LogLevel
		want  slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{config.LogLevel(""), slog.LevelInfo},
		{config.LogLevel("verbose"), slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := tc.level.Slog(); got != tc.want {
			t.Errorf("LogLevel(%q).Slog(): got %v, want %v", tc.level, got, tc.want)
		}
	}
}

func TestEnvironment_IsValid(t *testing.T) {
	for _, env := range []config.Environment{config.EnvDevelopment, config.EnvTest, config.EnvProduction} {
		if !env.IsValid() {
			t.Errorf("Environment(%q).IsValid(): got false, want true", env)
		}
	}
	for _, env := range []config.Environment{"", "staging", "PRODUCTION"} {
		if env.IsValid() {
			t.Errorf("Environment(%q).IsValid(): got true, want false", env)
		}
	}
}

func TestProviderEntry_Configured(t *testing.T) {
	if (config.ProviderEntry{}).Configured() {
		t.Error("empty entry should not be configured")
	}
	if !(config.ProviderEntry{Name: "deepgram"}).Configured() {
		t.Error("named entry should be configured")
	}
}

func TestSessionConfig_Durations(t *testing.T) {
	s := config.SessionConfig{
		MaxDurationSeconds:   600,
		TargetLatencySeconds: 1.5,
		RetryDelaySeconds:    0.5,
	}
	if got := s.MaxDuration(); got != 10*time.Minute {
		t.Errorf("MaxDuration: got %v, want 10m", got)
	}
	if got := s.TargetLatency(); got != 1500*time.Millisecond {
		t.Errorf("TargetLatency: got %v, want 1.5s", got)
	}
	if got := s.RetryDelay(); got != 500*time.Millisecond {
		t.Errorf("RetryDelay: got %v, want 500ms", got)
	}
	var zero config.SessionConfig
	if got := zero.MaxDuration(); got != 0 {
		t.Errorf("zero MaxDuration: got %v, want 0", got)
	}
}
