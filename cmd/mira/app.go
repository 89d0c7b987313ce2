package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/haasonsaas/mira/internal/auth"
	"github.com/haasonsaas/mira/internal/config"
	"github.com/haasonsaas/mira/internal/engine"
	"github.com/haasonsaas/mira/internal/evaluator"
	"github.com/haasonsaas/mira/internal/llm"
	"github.com/haasonsaas/mira/internal/observability"
	"github.com/haasonsaas/mira/internal/sandbox"
	"github.com/haasonsaas/mira/internal/storage"
	"github.com/haasonsaas/mira/internal/tools"
	"github.com/haasonsaas/mira/internal/tools/calendar"
	"github.com/haasonsaas/mira/internal/tools/evaluate"
	"github.com/haasonsaas/mira/internal/tools/reminders"
	"github.com/haasonsaas/mira/internal/tools/summarize"
	"github.com/haasonsaas/mira/internal/tools/websearch"

	"github.com/prometheus/client_golang/prometheus"
)

// app holds the long-lived components shared by serve and chat.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	stores   storage.StoreSet
	oracle   llm.Gateway
	registry *tools.Registry
	engine   *engine.Engine
	// google is nil when the calendar is not configured.
	google *auth.Google

	shutdownTracer func(context.Context) error
}

// appOptions override components, for tests.
type appOptions struct {
	oracle llm.Gateway
	runner sandbox.Runner
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, debug bool) *slog.Logger {
	level := cfg.Observability.Log.Level
	if debug {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:          level,
		Format:         cfg.Observability.Log.Format,
		Output:         os.Stderr,
		AddSource:      cfg.Observability.Log.AddSource,
		RedactPatterns: cfg.Observability.Log.RedactPatterns,
	})
}

// newApp opens storage, builds the oracle and registry, and wires the engine.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	a.tracer, a.shutdownTracer = observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Observability.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Observability.Tracing.Environment,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		Insecure:       cfg.Observability.Tracing.Insecure,
	})

	stores, err := storage.Open(ctx, storageConfig(cfg, true))
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.stores = stores

	a.oracle = opts.oracle
	if a.oracle == nil {
		gateway, err := llm.New(ctx, llmConfig(cfg))
		if err != nil {
			_ = a.close(ctx)
			return nil, err
		}
		a.oracle = llm.Instrument(gateway, cfg.LLM.Provider, modelName(cfg),
			llm.WithMetrics(a.metrics),
			llm.WithTracer(a.tracer),
			llm.WithLogger(logger),
			llm.WithTimeout(cfg.LLM.Timeout))
	}

	if cal := cfg.Tools.Calendar; cal.ClientID != "" {
		signer := auth.NewStateSigner(cfg.OAuth.StateSecret, cfg.OAuth.StateExpiry)
		a.google = auth.NewGoogle(auth.GoogleConfig{
			ClientID:     cal.ClientID,
			ClientSecret: cal.ClientSecret,
			RedirectURL:  cal.RedirectURL,
		}, signer, stores.Credentials, auth.WithLogger(logger))
	}

	judge := evaluator.New(a.oracle, evaluator.WithMetrics(a.metrics), evaluator.WithLogger(logger))
	a.registry, err = buildRegistry(cfg, a, judge, opts.runner)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	a.engine, err = engine.New(engine.Deps{
		Registry:  a.registry,
		Oracle:    a.oracle,
		Evaluator: judge,
		Actions:   stores.Actions,
		Messages:  stores.Messages,
	}, engine.Config{
		MaxRefinements:  cfg.Engine.MaxRefinements,
		HistoryLimit:    cfg.Engine.HistoryLimit,
		ToolTimeout:     cfg.Engine.ToolTimeout,
		Traits:          cfg.Engine.Traits,
		ChatTemperature: cfg.LLM.Temperature,
	}, engine.WithMetrics(a.metrics), engine.WithTracer(a.tracer), engine.WithLogger(logger))
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	return a, nil
}

// buildRegistry registers the tools the configuration enables.
func buildRegistry(cfg *config.Config, a *app, judge *evaluator.Evaluator, runner sandbox.Runner) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	loc, err := cfg.Reminders.Location()
	if err != nil {
		return nil, err
	}

	sum := cfg.Tools.Summarize
	summarizer := summarize.New(a.oracle, summarize.Config{
		ChunkSize:    sum.ChunkSize,
		MaxBodyBytes: sum.MaxBodyBytes,
		Timeout:      sum.Timeout,
	}, nil)
	if err := registry.Register(summarize.NewTool(summarizer)); err != nil {
		return nil, err
	}

	if search := cfg.Tools.Search; search.Backend != "" {
		backend, err := websearch.NewBackend(search.Backend, search.APIKey, search.Endpoint, nil)
		if err != nil {
			return nil, err
		}
		tool := websearch.New(backend, summarizer, judge, websearch.Config{
			MaxResults: search.MaxResults,
			CacheTTL:   search.CacheTTL,
		}, a.logger)
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}

	if a.google != nil {
		tool := calendar.New(a.google, calendar.Config{
			MaxEvents: cfg.Tools.Calendar.MaxEvents,
			Location:  loc,
		})
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}

	if cfg.Tools.EvaluateEnabled() {
		if runner == nil {
			runner, err = newRunner(cfg.Tools.Evaluate)
			if err != nil {
				return nil, err
			}
		}
		if err := registry.Register(evaluate.New(runner)); err != nil {
			return nil, err
		}
	}

	reminderTool := reminders.New(a.stores.Reminders,
		reminders.WithOracle(a.oracle),
		reminders.WithLocation(loc),
		reminders.WithMetrics(a.metrics),
		reminders.WithLogger(a.logger))
	if err := registry.Register(reminderTool); err != nil {
		return nil, err
	}
	return registry, nil
}

func newRunner(cfg config.EvaluateConfig) (sandbox.Runner, error) {
	if cfg.InProcess {
		return sandbox.InProcessRunner{Limits: sandbox.Limits{MaxLength: cfg.MaxLength}}, nil
	}
	runner, err := sandbox.NewProcessRunner(cfg.Timeout)
	if err != nil {
		return nil, err
	}
	runner.Args = []string{"sandbox", "eval", "--max-length", strconv.Itoa(cfg.MaxLength)}
	return runner, nil
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.shutdownTracer != nil {
		errs = append(errs, a.shutdownTracer(ctx))
	}
	errs = append(errs, a.stores.Close())
	return errors.Join(errs...)
}

func storageConfig(cfg *config.Config, migrate bool) storage.Config {
	driver := strings.ToLower(cfg.Storage.Driver)
	sc := storage.DefaultConfig(driver)
	sc.DSN = cfg.Storage.DSN
	if cfg.Storage.MaxOpenConns > 0 && sc.MaxOpenConns > 1 {
		sc.MaxOpenConns = cfg.Storage.MaxOpenConns
	}
	if cfg.Storage.ConnMaxLifetime > 0 {
		sc.ConnMaxLifetime = cfg.Storage.ConnMaxLifetime
	}
	sc.AutoMigrate = migrate
	if cfg.Storage.AutoMigrate != nil {
		sc.AutoMigrate = migrate && *cfg.Storage.AutoMigrate
	}
	return sc
}

func llmConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		Provider:   cfg.LLM.Provider,
		Model:      cfg.LLM.Model,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Region:     cfg.LLM.Region,
		MaxTokens:  cfg.LLM.MaxTokens,
		MaxRetries: cfg.LLM.MaxRetries,
	}
}

func modelName(cfg *config.Config) string {
	if cfg.LLM.Model != "" {
		return cfg.LLM.Model
	}
	return llm.DefaultModel(cfg.LLM.Provider)
}
