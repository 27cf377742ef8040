// Package cmd provides the airqa command line entry points.
//
// Commands:
//   - serve: HTTP API server for the Q&A service
//   - version: version information
//
// Signal handling and graceful shutdown run via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kmu-usr/airqa/internal/log"
)

// Execute is the main entry point for the airqa binary.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: os.Getenv("AIRQA_LOG_JSON") != ""})
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func runHelp() {
	fmt.Println("airqa - air quality Q&A service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  airqa serve [addr]  Start the HTTP API server (default: 0.0.0.0:8000)")
	fmt.Println("  airqa --version     Show version information")
	fmt.Println("  airqa --help        Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DATABASE_URL        PostgreSQL URL (overrides postgres_* config)")
	fmt.Println("  AIRQA_OLLAMA_HOST   Ollama server address")
	fmt.Println("  AIRQA_LOG_JSON      Log in JSON format")
	fmt.Println("  DEBUG               Enable debug logging")
	fmt.Println()
	fmt.Println("Configuration is read from ~/.airqa/config.yaml or ./config.yaml.")
}
