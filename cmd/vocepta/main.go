// Command vocepta is the main entry point for the vocepta voice
// receptionist server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/vocepta/internal/app"
	"github.com/MrWong99/vocepta/internal/config"
	"github.com/MrWong99/vocepta/internal/observe"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level (debug, info, warn, error)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocepta: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocepta: %v\n", err)
		}
		return 1
	}
	if *logLevel != "" {
		lvl := config.LogLevel(strings.ToLower(*logLevel))
		if !lvl.IsValid() {
			fmt.Fprintf(os.Stderr, "vocepta: invalid -log-level %q; valid values: debug, info, warn, error\n", *logLevel)
			return 1
		}
		cfg.Server.LogLevel = lvl
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Slog(),
	}))
	slog.SetDefault(logger)

	slog.Info("vocepta starting",
		"version", version,
		"config", *configPath,
		"environment", cfg.Server.Environment,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	// The meter provider must exist before app.New so every subsystem binds
	// its instruments to the Prometheus bridge.
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "vocepta",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         vocepta — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Environment", string(cfg.Server.Environment))
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	if cfg.Providers.LLMFallback.Configured() {
		printProvider("LLM fallback", cfg.Providers.LLMFallback.Name, cfg.Providers.LLMFallback.Model)
	} else {
		printRow("LLM fallback", "(none)")
	}
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	if cfg.Database.URL != "" {
		printRow("Database", "postgres")
	} else {
		printRow("Database", "(in-memory)")
	}
	if cfg.Telephony.AccountSID != "" {
		printRow("Telephony", "twilio")
	} else {
		printRow("Telephony", "(disabled)")
	}
	printRow("Notifications", notifySummary(cfg))
	printRow("Listen addr", cfg.Server.ListenAddr)
	printRow("Ops addr", cfg.Server.OpsAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(mock)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, value)
}

// notifySummary names the configured staff notification channels.
func notifySummary(cfg *config.Config) string {
	var channels []string
	if cfg.Notifications.StaffPhone != "" {
		channels = append(channels, "sms")
	}
	if cfg.Notifications.StaffEmail != "" {
		channels = append(channels, "email")
	}
	if len(channels) == 0 {
		return "(disabled)"
	}
	return strings.Join(channels, "+")
}
