// Package main provides the CLI entry point for Mira, a conversational
// assistant that resolves chat messages into tool actions.
//
// # Basic Usage
//
// Start the server with every configured channel:
//
//	mira serve --config mira.yaml
//
// Chat from the terminal:
//
//	mira chat
//
// Create the database schema:
//
//	mira migrate up
//
// # Environment Variables
//
//   - MIRA_CONFIG: path to the configuration file (default: mira.yaml)
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY: oracle credentials
//   - WHATSAPP_ACCESS_TOKEN, TELEGRAM_BOT_TOKEN, DISCORD_BOT_TOKEN: channel tokens
//   - MIRA_* overrides, see internal/config
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigName = "mira.yaml"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mira",
		Short: "Mira - conversational assistant with tool actions",
		Long: `Mira answers chat messages and runs tools on the user's behalf.

Supported channels: WhatsApp, Telegram, Discord, console
Supported oracles: OpenAI, Anthropic, Gemini, AWS Bedrock
Available tools: web search, page summarizer, calendar, code evaluator, reminders`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildChatCmd(),
		buildMigrateCmd(),
		buildConfigCmd(),
		buildToolsCmd(),
		buildSandboxCmd(),
	)
	return rootCmd
}

// resolveConfigPath picks the flag value, then MIRA_CONFIG, then mira.yaml
// when it exists. An empty result means defaults and environment only.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := strings.TrimSpace(os.Getenv("MIRA_CONFIG")); env != "" {
		return env
	}
	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	} else if !errors.Is(err, os.ErrNotExist) {
		slog.Warn("cannot stat default config", "error", err)
	}
	return ""
}
