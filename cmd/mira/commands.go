package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that runs every configured
// channel, the HTTP server and the reminder scheduler.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Mira server",
		Long: `Start the Mira server with all configured channels.

The server will:
1. Load configuration and fail fast on missing credentials
2. Open storage and build the tool registry
3. Start the enabled channel adapters (WhatsApp, Telegram, Discord)
4. Serve webhooks, the OAuth callback, /healthz and /metrics
5. Deliver due reminders on the configured schedule

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  mira serve
  mira serve --config /etc/mira/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// buildChatCmd creates the "chat" command, a console session against the
// same engine the server runs.
func buildChatCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with Mira in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

// buildMigrateCmd creates the "migrate" command group.
func buildMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema commands",
	}
	var configPath string
	up := &cobra.Command{
		Use:   "up",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd, resolveConfigPath(configPath))
		},
	}
	up.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.AddCommand(up)
	return cmd
}

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON Schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	})

	var configPath string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, resolveConfigPath(configPath))
		},
	}
	validate.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.AddCommand(validate)
	return cmd
}

// buildToolsCmd creates the "tools" command group.
func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tool registry",
	}
	var configPath string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the tools enabled by the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolsList(cmd, resolveConfigPath(configPath))
		},
	}
	list.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.AddCommand(list)
	return cmd
}

// buildSandboxCmd creates the hidden "sandbox eval" command the evaluate
// tool runs as its child process.
func buildSandboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "sandbox",
		Hidden: true,
	}
	var maxLength int
	eval := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate one expression from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSandboxEval(cmd, maxLength)
		},
	}
	eval.Flags().IntVar(&maxLength, "max-length", 0, "Maximum expression length in bytes")
	cmd.AddCommand(eval)
	return cmd
}
