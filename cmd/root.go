package cmd

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxpilot/internal/logging"
)

// rootCmd represents the base command for the inboxpilot application
var rootCmd = &cobra.Command{
	Use:   "inboxpilot",
	Short: "Inbox assistant backed by a local language model",
	Long: `inboxpilot serves a Gmail inbox together with an assistant that summarizes,
drafts replies, suggests meetings and answers questions about your emails.
Answers are generated by a local Ollama model and streamed as they arrive.

It can run as:
  - An HTTP server for the web UI (default)
  - An MCP (Model Context Protocol) server for AI assistants`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadDotEnv(envFile); err != nil {
			return err
		}
		setupLogging(cmd)
		return nil
	},
}

var (
	// version will be set by main
	version = "dev"

	envFile   string
	debugMode bool
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxpilot version %s\n" .Version}}`)

	// Without a subcommand the HTTP server starts.
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads KEY=value pairs from path into the environment. Variables
// that are already set win, and a missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// setupLogging installs the process logger. --debug overrides LOG_LEVEL.
// Logs go to stderr so the MCP stdio transport keeps stdout to itself.
func setupLogging(cmd *cobra.Command) *slog.Logger {
	level := logging.ParseLevel(os.Getenv("LOG_LEVEL"))
	if debugMode {
		level = slog.LevelDebug
	}
	logger := logging.New(cmd.ErrOrStderr(), level, os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)
	return logger
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "File with KEY=value lines loaded into the environment")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
