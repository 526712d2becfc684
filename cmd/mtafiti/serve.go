package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"
	"github.com/jkaninda/mtafiti/internal/config"
	"github.com/jkaninda/mtafiti/internal/llm"
	"github.com/jkaninda/mtafiti/internal/llm/gemini"
	"github.com/jkaninda/mtafiti/internal/llm/openai"
	"github.com/jkaninda/mtafiti/internal/observability"
	"github.com/jkaninda/mtafiti/internal/pipeline"
	"github.com/jkaninda/mtafiti/internal/ratelimit"
	"github.com/jkaninda/mtafiti/internal/scheduler"
	"github.com/jkaninda/mtafiti/internal/storage"
	pgstore "github.com/jkaninda/mtafiti/internal/storage/postgres"
	sqlitestore "github.com/jkaninda/mtafiti/internal/storage/sqlite"
	"github.com/jkaninda/mtafiti/internal/web"
)

var (
	serveConfigPath string
	serveAddr       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server (HTML UI, JSON API, WebSocket progress)",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `mtafiti --config path` and `mtafiti serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&serveAddr, "addr", "", "override HTTP listen address (e.g. :8080)")
	}
}

// runServe starts Mtafiti in server mode.
func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("MTAFITI_CONFIG", serveConfigPath))
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	logger.Info("starting in server mode", slog.String("config", serveConfigPath))

	// Observability (optional).
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return err
	}

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	}()

	// Storage.
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("storage ready", slog.String("driver", store.Driver()))

	if obs != nil && obs.Health != nil {
		obs.Health.AddCheck("database", store.Ping)
	}

	// LLM provider chain.
	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return err
	}
	if obs != nil && (obs.Metrics != nil || obs.Tracer != nil) {
		provider = observability.NewInstrumentedProvider(provider, obs.MetricsOrNil(), obs.TracerOrNil().Tracer())
	}

	// Pipeline engine.
	var pipelineMetrics *pipeline.Metrics
	if obs != nil && obs.Metrics != nil {
		pipelineMetrics = pipeline.NewMetrics(obs.Metrics.Registry)
	}
	model := pipeline.ModelConfig{
		Model:       cfg.Pipeline.ModelName(),
		Temperature: cfg.Pipeline.ModelTemperature(),
		UseNative:   cfg.Pipeline.NativeProvider(),
	}
	hub := web.NewHub(logger)
	engine := pipeline.NewEngine(provider, store.Reports(), pipelineMetrics, logger, model).
		WithNotifier(hub)

	// Scheduler (optional).
	if cfg.Scheduler != nil && cfg.Scheduler.Enabled {
		var schedMetrics *scheduler.Metrics
		if obs != nil && obs.Metrics != nil {
			schedMetrics = scheduler.NewMetrics(obs.Metrics.Registry)
		}
		sched := scheduler.New(store.Schedules(), engine, scheduler.Config{
			PollInterval:    cfg.Scheduler.PollInterval(),
			MaxConcurrent:   cfg.Scheduler.MaxConcurrent(),
			MissedRunWindow: cfg.Scheduler.MissedRunWindow(),
		}, schedMetrics, logger)
		cancelScheduler := sched.Start(ctx)
		defer cancelScheduler()
	}

	// Web server.
	srv := buildServer(cfg, obs, engine, logger).
		WithStore(store).
		WithProgressHub(hub)

	errs := make(chan error, 1)
	go func() { errs <- srv.Start(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("server exited with error", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// openStore opens the configured storage backend.
func openStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch driver := cfg.Storage.StorageDriver(); driver {
	case storage.DriverPostgres:
		pg := cfg.Storage.Postgres
		return pgstore.Open(pgstore.Config{
			DSN:             pg.DSN,
			MaxOpenConns:    pg.MaxOpenConns,
			MaxIdleConns:    pg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(pg.ConnMaxLifetimeS) * time.Second,
		}, logger)
	case storage.DriverSQLite:
		sqliteCfg := sqlitestore.Config{Path: cfg.SQLitePath()}
		if cfg.Storage != nil && cfg.Storage.SQLite != nil {
			sqliteCfg.JournalMode = cfg.Storage.SQLite.JournalMode
		}
		return sqlitestore.Open(sqliteCfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

// buildProvider creates the default provider plus any configured fallbacks.
func buildProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	names := append([]string{cfg.Providers.DefaultProvider()}, cfg.Providers.Fallback...)

	providers := make([]llm.Provider, 0, len(names))
	for _, name := range names {
		p, err := newProvider(cfg, name, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if len(providers) == 1 {
		return providers[0], nil
	}
	return llm.NewFallbackProvider(providers, logger), nil
}

func newProvider(cfg *config.Config, name string, logger *slog.Logger) (llm.Provider, error) {
	model := cfg.Pipeline.ModelName()

	switch name {
	case "gemini":
		gc := cfg.Providers.Gemini
		if gc.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key (GEMINI_API_KEY)")
		}
		var opts []gemini.Option
		if gc.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(gc.BaseURL))
		}
		return gemini.NewClient(gc.APIKey, model, logger, opts...), nil

	case "openai":
		oc := cfg.Providers.OpenAI
		if oc.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key (OPENAI_API_KEY)")
		}
		openaiModel := oc.Model
		if openaiModel == "" {
			openaiModel = model
		}
		var opts []openai.Option
		if oc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(oc.BaseURL))
		}
		return openai.NewClient(oc.APIKey, openaiModel, logger, opts...), nil

	case "ollama":
		oc := cfg.Providers.Ollama
		baseURL := oc.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		ollamaModel := oc.Model
		if ollamaModel == "" {
			ollamaModel = model
		}
		// Ollama exposes an OpenAI-compatible API; no key required.
		return openai.NewClient("ollama", ollamaModel, logger,
			openai.WithBaseURL(baseURL),
			openai.WithName("ollama"),
		), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// buildServer assembles the web server from config and observability.
func buildServer(cfg *config.Config, obs *observability.Observability, engine *pipeline.Engine, logger *slog.Logger) *web.Server {
	var limiter *ratelimit.Limiter
	if rl := cfg.Server.RateLimit; rl != nil {
		limiter = ratelimit.New(&ratelimit.Config{
			RequestsPerMinute: rl.RequestsPerMinute,
			BurstSize:         rl.BurstSize,
		})
	}

	// Map bearer keys to stable client IDs for logging and rate limiting.
	apiKeys := make(map[string]string, len(cfg.Server.APIKeys))
	for i, key := range cfg.Server.APIKeys {
		apiKeys[key] = fmt.Sprintf("client-%d", i+1)
	}

	webCfg := web.Config{
		ListenAddr: cfg.Server.ListenAddr(),
		SecretKey:  cfg.Server.SecretKey,
		APIKeys:    apiKeys,
	}
	if obs != nil {
		webCfg.Metrics = obs.Metrics
		webCfg.HealthChecker = obs.Health
		if obs.Metrics != nil {
			webCfg.MetricsRegistry = obs.Metrics.Registry
		}
		if obs.Tracer != nil {
			webCfg.Tracer = obs.Tracer.Tracer()
		}
		if cfg.Observability != nil && cfg.Observability.Metrics != nil {
			webCfg.MetricsPath = cfg.Observability.Metrics.Path
		}
	}

	return web.NewServer(webCfg, engine, limiter, logger)
}
