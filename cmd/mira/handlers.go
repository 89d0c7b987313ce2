package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/mira/internal/channels/console"
	"github.com/haasonsaas/mira/internal/config"
	"github.com/haasonsaas/mira/internal/gateway"
	"github.com/haasonsaas/mira/internal/sandbox"
	"github.com/haasonsaas/mira/internal/storage"
)

// runChat runs a console session until EOF or SIGINT.
func runChat(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, false)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.close(context.WithoutCancel(ctx))

	session := console.New(cmd.InOrStdin(), cmd.OutOrStdout())
	dispatcher := gateway.NewDispatcher(a.engine, session, a.stores.Messages, gateway.DispatcherConfig{
		Workers:      1,
		DedupeWindow: cfg.Dedupe.Window,
		IDWindow:     cfg.Dedupe.IDWindow,
		TurnTimeout:  cfg.Engine.TurnTimeout,
	}, gateway.WithDispatcherMetrics(a.metrics), gateway.WithDispatcherLogger(logger))

	if err := session.Start(ctx); err != nil {
		return err
	}
	defer session.Stop(context.WithoutCancel(ctx))
	return dispatcher.Run(ctx, session.Messages())
}

// runMigrateUp creates the schema for the configured SQL database.
func runMigrateUp(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver == storage.DriverMemory {
		fmt.Fprintln(cmd.OutOrStdout(), "memory storage needs no migration")
		return nil
	}
	sc := storageConfig(cfg, true)
	sc.AutoMigrate = true
	stores, err := storage.Open(cmd.Context(), sc)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer stores.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date (%s)\n", cfg.Storage.Driver)
	return nil
}

func runConfigSchema(cmd *cobra.Command) error {
	data, err := config.JSONSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func runConfigValidate(cmd *cobra.Command, configPath string) error {
	if _, err := config.Load(configPath); err != nil {
		return err
	}
	target := configPath
	if target == "" {
		target = "defaults and environment"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", target)
	return nil
}

// runToolsList prints the registry the configuration would build.
func runToolsList(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, newLogger(cfg, false), appOptions{})
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDISPLAY NAME\tPARAMETERS")
	for _, d := range a.registry.List() {
		params := make([]string, 0, len(d.Params))
		for _, p := range d.Params {
			name := p.Name
			if !p.Required {
				name += "?"
			}
			params = append(params, name)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.DisplayName, strings.Join(params, ", "))
	}
	return w.Flush()
}

// runSandboxEval is the evaluate tool's child process.
func runSandboxEval(cmd *cobra.Command, maxLength int) error {
	return sandbox.Serve(cmd.InOrStdin(), cmd.OutOrStdout(), sandbox.Limits{MaxLength: maxLength})
}
