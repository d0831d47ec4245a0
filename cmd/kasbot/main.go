package main

import (
	"context"
	"fmt"
	"os"

	"kasbot/internal/config"
	"kasbot/internal/logging"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kasbot",
	Short: "kasbot - chat-driven personal finance bot",
	Long: `kasbot reads commands from a chat web client, records income and expenses
in a local SQLite ledger, and replies with balances, reports and advice.

Run "kasbot run" to start the bot together with the dashboard.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		if err := logging.Initialize(loaded.Logging.Options()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		logging.BootDebug("config loaded from %s", configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
	},
}

// runCmd starts the bot and the dashboard
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the chat bot and the dashboard until interrupted",
	Long: `Starts two independent tasks:
  1. Supervisor: connects the chat client, polls unread conversations and replies
  2. Dashboard: serves the read-only ledger API and /metrics

Either task can be disabled in the config file (bot.enabled, dashboard.enabled).`,
	Args: cobra.NoArgs,
	RunE: runBot,
}

// serveCmd runs the dashboard alone
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API without the chat bot",
	Args:  cobra.NoArgs,
	RunE:  serveOnly,
}

// askCmd dispatches one message against the ledger
var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Handle a chat message locally and print the reply",
	Long: `Runs a message through translation and dispatch exactly like a chat
message, against the configured ledger, without a browser.

Example:
  kasbot ask bayar 50000 makan
  kasbot ask saldo`,
	Args: cobra.MinimumNArgs(1),
	RunE: askMessage,
}

// translateCmd shows how a message is translated
var translateCmd = &cobra.Command{
	Use:   "translate [message]",
	Short: "Print the canonical command for a message",
	Args:  cobra.MinimumNArgs(1),
	RunE:  translateMessage,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE:  configInit,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "kasbot.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	configInitCmd.Flags().String("locale", "", "Also write the default dictionary to this path")

	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}
