// Package cmd contains the kopi CLI: command routing, configuration
// loading, and server startup. main.go stays a minimal entry point.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kopihq/kopi/internal/config"
	"github.com/kopihq/kopi/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the entry point for the kopi CLI. It routes to the
// requested subcommand; version and help work even with invalid config.
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			printVersionInfo()
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "migrate":
			return runMigrate()
		case "serve":
			return runServe()
		default:
			printHelp()
			return fmt.Errorf("unknown command: %s", os.Args[1])
		}
	}

	// Serving is the default behavior.
	return runServe()
}

// initLogger builds the process logger. DEBUG in the environment enables
// debug level; KOPI_LOG_JSON switches to JSON output for collectors.
func initLogger() log.Logger {
	return log.New(log.Config{
		Level: logLevel(),
		JSON:  os.Getenv("KOPI_LOG_JSON") != "",
	})
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func printHelp() {
	fmt.Println(`kopi - conversational query gateway

Usage:
  kopi [command]

Commands:
  serve [addr]   Start the HTTP gateway (default)
  migrate        Run database migrations and exit
  version        Show version information
  help           Show this help

Environment:
  GEMINI_API_KEY   API key for the gemini provider
  OPENAI_API_KEY   API key for the openai provider
  DATABASE_URL     Postgres connection URL (overrides config file)
  DEBUG            Enable debug logging`)
}

func printVersionInfo() {
	fmt.Printf("kopi %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)

	cfg, err := config.Load()
	if err != nil {
		return
	}
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Provider: %s\n", cfg.Provider)
	fmt.Printf("  Model: %s\n", cfg.ModelName)
	fmt.Printf("  Embedder: %s\n", cfg.EmbedderModel)
	fmt.Printf("  Database: %s@%s:%d/%s\n",
		cfg.PostgresUser, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)
}
