// Package app wires all vocepta subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the webhook and ops listeners until the context is
// cancelled, and Shutdown tears everything down in reverse-init order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithLLM, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/vocepta/internal/config"
	"github.com/MrWong99/vocepta/internal/health"
	"github.com/MrWong99/vocepta/internal/notify"
	"github.com/MrWong99/vocepta/internal/notify/sendgrid"
	"github.com/MrWong99/vocepta/internal/notify/ses"
	"github.com/MrWong99/vocepta/internal/observe"
	"github.com/MrWong99/vocepta/internal/resilience"
	"github.com/MrWong99/vocepta/internal/session"
	"github.com/MrWong99/vocepta/internal/tools"
	"github.com/MrWong99/vocepta/internal/transcript"
	"github.com/MrWong99/vocepta/internal/webhook"
	"github.com/MrWong99/vocepta/pkg/callstore"
	"github.com/MrWong99/vocepta/pkg/callstore/memstore"
	"github.com/MrWong99/vocepta/pkg/callstore/postgres"
	"github.com/MrWong99/vocepta/pkg/provider/llm"
	"github.com/MrWong99/vocepta/pkg/provider/llm/anyllm"
	llmmock "github.com/MrWong99/vocepta/pkg/provider/llm/mock"
	llmopenai "github.com/MrWong99/vocepta/pkg/provider/llm/openai"
	"github.com/MrWong99/vocepta/pkg/provider/stt"
	"github.com/MrWong99/vocepta/pkg/provider/stt/deepgram"
	sttmock "github.com/MrWong99/vocepta/pkg/provider/stt/mock"
	"github.com/MrWong99/vocepta/pkg/provider/telephony"
	"github.com/MrWong99/vocepta/pkg/provider/telephony/twilio"
	"github.com/MrWong99/vocepta/pkg/provider/tts"
	ttsmock "github.com/MrWong99/vocepta/pkg/provider/tts/mock"
	ttsopenai "github.com/MrWong99/vocepta/pkg/provider/tts/openai"
	"github.com/MrWong99/vocepta/pkg/types"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
)

// drainTimeout bounds the HTTP listener drain when Run tears down.
const drainTimeout = 10 * time.Second

// App owns all subsystem lifetimes and serves the receptionist's HTTP
// surfaces: the Twilio webhook listener and the ops listener.
type App struct {
	cfg *config.Config

	// Subsystems — initialised in New, torn down in Shutdown.
	store      callstore.Store
	stt        stt.Provider
	llm        llm.Provider
	tts        tts.Provider
	tel        telephony.Provider
	email      notify.EmailProvider
	notifier   *notify.Service
	dispatcher *tools.Dispatcher
	registry   *session.Registry
	webhooks   *webhook.Server
	metrics    *observe.Metrics

	handler    http.Handler // public webhook surface
	opsHandler http.Handler // health probes + metrics

	// mockStages lists provider slots running on mocks; in production the
	// readiness probe reports them.
	mockStages []string

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a call store instead of creating one from config.
func WithStore(s callstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSTT injects a transcription provider instead of creating one from config.
func WithSTT(p stt.Provider) Option {
	return func(a *App) { a.stt = p }
}

// WithLLM injects a completion provider instead of creating one from config.
func WithLLM(p llm.Provider) Option {
	return func(a *App) { a.llm = p }
}

// WithTTS injects a synthesis provider instead of creating one from config.
func WithTTS(p tts.Provider) Option {
	return func(a *App) { a.tts = p }
}

// WithTelephony injects a telephony provider instead of creating one from config.
func WithTelephony(p telephony.Provider) Option {
	return func(a *App) { a.tel = p }
}

// WithEmailProvider injects an email channel instead of creating one from config.
func WithEmailProvider(p notify.EmailProvider) Option {
	return func(a *App) { a.email = p }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: store connection and
// migration, provider construction by configured name, notification fanout,
// tool dispatcher, session registry, and both HTTP surfaces. Missing
// provider credentials fall back to mocks so a development instance can
// boot with an empty config; the readiness probe reports mock stages when
// the environment is production.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Call store ────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Speech and language providers ────────────────────────────────
	if err := a.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}

	// ── 3. Telephony ─────────────────────────────────────────────────────
	if err := a.initTelephony(); err != nil {
		return nil, fmt.Errorf("app: init telephony: %w", err)
	}

	// ── 4. Staff notifications ───────────────────────────────────────────
	if err := a.initNotify(ctx); err != nil {
		return nil, fmt.Errorf("app: init notifications: %w", err)
	}

	// ── 5. Tool dispatcher ───────────────────────────────────────────────
	a.dispatcher = tools.NewDispatcher(a.store, a.tel, a.notifier)

	// ── 6. Session registry ──────────────────────────────────────────────
	a.initRegistry()

	// ── 7. HTTP surfaces ─────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects the PostgreSQL call store, or falls back to the
// in-memory store when no database is configured.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}

	dsn := a.cfg.Database.URL
	if dsn == "" {
		slog.Warn("app: database.url not set, call records are held in memory and lost on restart")
		a.store = memstore.New()
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initProviders constructs the transcription, completion and synthesis
// providers named in the config. Empty or "mock" names select the in-process
// mocks so development instances boot without vendor credentials.
func (a *App) initProviders() error {
	if a.stt == nil {
		entry := a.cfg.Providers.STT
		switch entry.Name {
		case "deepgram":
			var opts []deepgram.Option
			if entry.Model != "" {
				opts = append(opts, deepgram.WithModel(entry.Model))
			}
			if entry.BaseURL != "" {
				opts = append(opts, deepgram.WithBaseURL(entry.BaseURL, entry.BaseURL))
			}
			p, err := deepgram.New(entry.APIKey, opts...)
			if err != nil {
				return fmt.Errorf("stt %q: %w", entry.Name, err)
			}
			a.stt = p
		case "mock", "":
			a.stt = &sttmock.Provider{}
			a.mockStages = append(a.mockStages, "stt")
		default:
			return fmt.Errorf("stt provider %q is not built in", entry.Name)
		}
	}

	if a.llm == nil {
		entry := a.cfg.Providers.LLM
		switch entry.Name {
		case "openai":
			var opts []llmopenai.Option
			if entry.BaseURL != "" {
				opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
			}
			p, err := llmopenai.New(entry.APIKey, entry.Model, opts...)
			if err != nil {
				return fmt.Errorf("llm %q: %w", entry.Name, err)
			}
			a.llm = p
		case "mock", "":
			a.llm = &llmmock.Provider{}
			a.mockStages = append(a.mockStages, "llm")
		default:
			return fmt.Errorf("llm provider %q is not built in", entry.Name)
		}
	}

	// The standby completion vendor rides behind a circuit breaker; the
	// session keeps answering callers when the primary has an outage.
	if fb := a.cfg.Providers.LLMFallback; fb.Configured() {
		var opts []anyllmlib.Option
		if fb.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(fb.APIKey))
		}
		if fb.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(fb.BaseURL))
		}
		standby, err := anyllm.New(fb.Name, fb.Model, opts...)
		if err != nil {
			return fmt.Errorf("llm fallback %q: %w", fb.Name, err)
		}
		group := resilience.NewLLMFallback(a.llm, a.llmName(), resilience.FallbackConfig{})
		group.AddFallback(fb.Name, standby)
		a.llm = group
		slog.Info("app: llm fallback chain active", "primary", a.llmName(), "standby", fb.Name)
	}

	if a.tts == nil {
		entry := a.cfg.Providers.TTS
		switch entry.Name {
		case "openai":
			var opts []ttsopenai.Option
			if entry.Model != "" {
				opts = append(opts, ttsopenai.WithModel(entry.Model))
			}
			if entry.BaseURL != "" {
				opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
			}
			p, err := ttsopenai.New(entry.APIKey, opts...)
			if err != nil {
				return fmt.Errorf("tts %q: %w", entry.Name, err)
			}
			a.tts = tts.NewCached(p, a.cfg.Session.TTSCacheSize)
		case "mock", "":
			a.tts = &ttsmock.Provider{}
			a.mockStages = append(a.mockStages, "tts")
		default:
			return fmt.Errorf("tts provider %q is not built in", entry.Name)
		}
	}

	if len(a.mockStages) > 0 {
		slog.Warn("app: running with mock providers", "stages", strings.Join(a.mockStages, ", "))
	}
	return nil
}

// initTelephony constructs the Twilio client when credentials are present.
// Without them transfers and outbound SMS are disabled but inbound webhook
// handling still works, which is enough for local development.
func (a *App) initTelephony() error {
	if a.tel != nil {
		return nil // injected
	}

	t := a.cfg.Telephony
	if t.AccountSID == "" {
		slog.Warn("app: telephony credentials not set, transfers and SMS are disabled")
		return nil
	}

	var opts []twilio.Option
	if base := a.cfg.Server.PublicBaseURL; base != "" {
		opts = append(opts, twilio.WithTransferAction(strings.TrimRight(base, "/")+webhook.PathTransferStatus))
	}
	p, err := twilio.New(t.AccountSID, t.AuthToken, t.PhoneNumber, opts...)
	if err != nil {
		return err
	}
	a.tel = p
	return nil
}

// initNotify builds the staff notification fanout. Without staff contacts
// callback tasks are still persisted, just not pushed anywhere.
func (a *App) initNotify(ctx context.Context) error {
	n := a.cfg.Notifications
	if n.StaffPhone == "" && n.StaffEmail == "" {
		slog.Info("app: no staff contacts configured, callback tasks stay in the store only")
		return nil
	}

	if a.email == nil && n.StaffEmail != "" {
		switch n.EmailProvider {
		case config.EmailSendgrid:
			a.email = sendgrid.New(n.Sendgrid.APIKey, n.Sendgrid.FromEmail)
		case config.EmailSES:
			p, err := ses.New(ctx, n.SES.Region, n.SES.FromEmail)
			if err != nil {
				return fmt.Errorf("ses email provider: %w", err)
			}
			a.email = p
		default:
			slog.Warn("app: staff_email set but no email provider configured")
		}
	}

	var opts []notify.Option
	if a.tel != nil {
		opts = append(opts, notify.WithSMSSender(a.tel))
	}
	if a.email != nil {
		opts = append(opts, notify.WithEmailProvider(a.email))
	}
	a.notifier = notify.New(notify.Config{
		StaffPhone:        n.StaffPhone,
		StaffEmail:        n.StaffEmail,
		TranscriptBaseURL: n.TranscriptBaseURL,
		MaxSMSPerHour:     n.SMSRateLimit,
	}, opts...)
	return nil
}

// initRegistry builds the per-call session factory and the registry that
// tracks live sessions. The factory only wires structs; the registry calls
// it under its lock.
func (a *App) initRegistry() {
	a.metrics = observe.DefaultMetrics()

	lexicon := append([]string(nil), a.cfg.Office.Lexicon...)
	if name := a.cfg.Office.Name; name != "" {
		lexicon = append(lexicon, name)
	}
	corrector := transcript.NewCorrector(lexicon)

	sessCfg := session.Config{
		MaxDuration:      a.cfg.Session.MaxDuration(),
		TargetLatency:    a.cfg.Session.TargetLatency(),
		MaxRetryAttempts: a.cfg.Session.MaxRetryAttempts,
		RetryDelay:       a.cfg.Session.RetryDelay(),
		DefaultVoiceEN:   a.cfg.Session.VoiceEnglish,
		DefaultVoiceES:   a.cfg.Session.VoiceSpanish,
		BusinessName:     a.cfg.Office.Name,
	}
	sttName, llmName, ttsName := a.sttName(), a.llmName(), a.ttsName()

	factory := func(callID, fromNumber string, lang types.Language) (*session.Session, error) {
		return session.New(session.Options{
			CallID:     callID,
			FromNumber: fromNumber,
			Language:   lang,
			STT:        a.stt,
			LLM:        a.llm,
			TTS:        a.tts,
			STTName:    sttName,
			LLMName:    llmName,
			TTSName:    ttsName,
			Dispatcher: a.dispatcher,
			Store:      a.store,
			Corrector:  corrector,
			Metrics:    a.metrics,
			Config:     sessCfg,
		})
	}

	ropts := []session.RegistryOption{session.WithRegistryMetrics(a.metrics)}
	if d := a.cfg.Session.MaxDuration(); d > 0 {
		ropts = append(ropts, session.WithMaxIdle(d))
	}
	a.registry = session.NewRegistry(factory, ropts...)
}

// initHTTP assembles the public webhook handler and the ops handler.
func (a *App) initHTTP() {
	a.webhooks = webhook.New(webhook.Config{
		AuthToken:      a.cfg.Telephony.AuthToken,
		Environment:    string(a.cfg.Server.Environment),
		SkipValidation: a.cfg.Telephony.SkipValidation,
		BaseURL:        a.cfg.Server.PublicBaseURL,
		BusinessName:   a.cfg.Office.Name,
	}, a.store, webhook.WithRegistry(a.registry), webhook.WithNotifier(a.notifier))

	mux := http.NewServeMux()
	a.webhooks.Register(mux)
	a.handler = observe.Middleware(a.metrics)(mux)

	checkers := []health.Checker{
		{Name: "providers", Check: a.checkProviders},
	}
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		checkers = append(checkers, health.Checker{Name: "database", Check: p.Ping})
	}

	opsMux := http.NewServeMux()
	health.New(checkers...).Register(opsMux)

	var metricsHandler http.Handler = promhttp.Handler()
	if pw := a.cfg.Server.DashboardPassword; pw != "" {
		metricsHandler = basicAuth(pw, metricsHandler)
	}
	opsMux.Handle("GET /metrics", metricsHandler)

	// Probes and scrapes arrive every few seconds; keep them out of the log.
	a.opsHandler = observe.Middleware(a.metrics,
		observe.WithQuietPaths("/healthz", "/readyz", "/metrics"),
	)(opsMux)
}

// checkProviders is the readiness check for provider wiring. A production
// instance answering real callers with mock providers is not ready.
func (a *App) checkProviders(context.Context) error {
	if a.cfg.Server.Environment == config.EnvProduction && len(a.mockStages) > 0 {
		return fmt.Errorf("mock providers active: %s", strings.Join(a.mockStages, ", "))
	}
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the webhook and ops listeners plus the session reaper, and
// blocks until ctx is cancelled or a listener fails. On cancellation both
// listeners drain in-flight requests and every live session is ended with
// its summary persisted.
func (a *App) Run(ctx context.Context) error {
	public := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ops := &http.Server{
		Addr:              a.cfg.Server.OpsAddr,
		Handler:           a.opsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("app: webhook listener started", "addr", public.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if t := a.cfg.Server.TLS; t != nil {
			err = public.ListenAndServeTLS(t.CertFile, t.KeyFile)
		} else {
			err = public.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook listener: %w", err)
	})

	g.Go(func() error {
		slog.Info("app: ops listener started", "addr", ops.Addr)
		if err := ops.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops listener: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.registry.Reap(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		errPublic := public.Shutdown(drainCtx)
		errOps := ops.Shutdown(drainCtx)
		a.registry.Shutdown(drainCtx)
		return errors.Join(errPublic, errOps)
	})

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("app: closer failed", "index", i, "err", err)
			}
		}

		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the public webhook handler, for tests that drive the HTTP
// surface without listeners.
func (a *App) Handler() http.Handler { return a.handler }

// OpsHandler returns the health and metrics handler.
func (a *App) OpsHandler() http.Handler { return a.opsHandler }

// Registry returns the live session registry.
func (a *App) Registry() *session.Registry { return a.registry }

// Store returns the call store the app persists into.
func (a *App) Store() callstore.Store { return a.store }

// ─── Helpers ─────────────────────────────────────────────────────────────────

// sttName returns the configured transcription vendor name, "mock" when unset.
func (a *App) sttName() string { return orMock(a.cfg.Providers.STT.Name) }

// llmName returns the configured completion vendor name, "mock" when unset.
func (a *App) llmName() string { return orMock(a.cfg.Providers.LLM.Name) }

// ttsName returns the configured synthesis vendor name, "mock" when unset.
func (a *App) ttsName() string { return orMock(a.cfg.Providers.TTS.Name) }

func orMock(name string) string {
	if name == "" {
		return "mock"
	}
	return name
}

// basicAuth guards h with a constant-time password check. The username is
// ignored; the dashboard only has one operator credential.
func basicAuth(password string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pw, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(pw), []byte(password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="vocepta ops"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}
