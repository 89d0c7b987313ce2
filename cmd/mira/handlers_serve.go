package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/mira/internal/channels"
	"github.com/haasonsaas/mira/internal/channels/discord"
	"github.com/haasonsaas/mira/internal/channels/telegram"
	"github.com/haasonsaas/mira/internal/channels/whatsapp"
	"github.com/haasonsaas/mira/internal/config"
	"github.com/haasonsaas/mira/internal/cron"
	"github.com/haasonsaas/mira/internal/gateway"
)

// runServe runs the server until SIGINT/SIGTERM.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, debug)
	slog.SetDefault(logger)
	logger.Info("starting Mira",
		"version", version,
		"commit", commit,
		"config", configPath,
		"llm_provider", cfg.LLM.Provider,
		"storage", cfg.Storage.Driver)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer closeCancel()
		if err := a.close(closeCtx); err != nil {
			logger.Warn("shutdown cleanup failed", "error", err)
		}
	}()

	router, webhook, err := buildChannels(cfg, logger)
	if err != nil {
		return err
	}
	if len(router.All()) == 0 {
		logger.Warn("no channels enabled; only the HTTP endpoints will run")
	}

	dispatcher := gateway.NewDispatcher(a.engine, router, a.stores.Messages, gateway.DispatcherConfig{
		Workers:      int64(cfg.Server.Workers),
		DedupeWindow: cfg.Dedupe.Window,
		IDWindow:     cfg.Dedupe.IDWindow,
		TurnTimeout:  cfg.Engine.TurnTimeout,
	}, gateway.WithDispatcherMetrics(a.metrics), gateway.WithDispatcherLogger(logger))

	routes := gateway.Routes{Notifier: router}
	if webhook != nil {
		routes.WhatsApp = webhook
	}
	if a.google != nil {
		routes.OAuth = a.google
	}
	if cfg.Observability.MetricsEnabled() {
		routes.Metrics = a.metrics.Handler()
	}
	server := gateway.NewServer(gateway.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.HTTPPort,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, routes, logger)

	var scheduler *cron.Scheduler
	if cfg.RemindersEnabled() {
		loc, _ := cfg.Reminders.Location()
		scheduler, err = cron.NewScheduler(a.stores.Reminders, router, cfg.Reminders.Schedule,
			cron.WithLogger(logger),
			cron.WithNow(func() time.Time { return time.Now().In(loc) }))
		if err != nil {
			return err
		}
	}

	if err := router.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx, router.AggregateMessages(gctx)) })
	if scheduler != nil {
		g.Go(func() error {
			if err := scheduler.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			return nil
		})
	}

	logger.Info("Mira started", "http_addr", server.Addr(), "channels", len(router.All()))
	<-gctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	var errs []error
	if err := router.StopAll(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop channels: %w", err))
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, err)
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if len(errs) == 0 {
		logger.Info("Mira stopped gracefully")
	}
	return errors.Join(errs...)
}

// buildChannels registers the enabled adapters. The WhatsApp adapter is
// also returned as the webhook handler.
func buildChannels(cfg *config.Config, logger *slog.Logger) (*channels.Router, http.Handler, error) {
	router := channels.NewRouter()
	var webhook http.Handler

	if wa := cfg.Channels.WhatsApp; wa.Enabled {
		adapter, err := whatsapp.New(whatsapp.Config{
			AccessToken:   wa.AccessToken,
			PhoneNumberID: wa.PhoneNumberID,
			VerifyToken:   wa.VerifyToken,
			AppSecret:     wa.AppSecret,
			BaseURL:       wa.BaseURL,
			APIVersion:    wa.APIVersion,
			Logger:        logger.With("channel", "whatsapp"),
		})
		if err != nil {
			return nil, nil, err
		}
		router.Register(adapter)
		webhook = adapter
	}
	if tg := cfg.Channels.Telegram; tg.Enabled {
		adapter, err := telegram.NewAdapter(telegram.Config{Token: tg.BotToken, Logger: logger.With("channel", "telegram")})
		if err != nil {
			return nil, nil, err
		}
		router.Register(adapter)
	}
	if dc := cfg.Channels.Discord; dc.Enabled {
		adapter, err := discord.NewAdapter(discord.Config{Token: dc.BotToken, Logger: logger.With("channel", "discord")})
		if err != nil {
			return nil, nil, err
		}
		router.Register(adapter)
	}
	return router, webhook, nil
}
