package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

var _ Logger = (*logging.Logger)(nil)

func TestLoggers(t *testing.T) {
	t.Cleanup(func() {
		CLILogger = nil
		ServerLogger = nil
	})

	t.Run("Current without loggers discards", func(t *testing.T) {
		CLILogger = nil
		ServerLogger = nil

		logger := Current()
		if logger == nil {
			t.Fatal("Current should never return nil")
		}
		logger.Info("dropped", zap.String("tool", "get_top_posts"))
	})

	t.Run("CLI logger creation", func(t *testing.T) {
		InitCLILogger("redditgw-test", true)

		if CLILogger == nil {
			t.Fatal("CLI logger should not be nil after initialization")
		}
		if Current() != Logger(CLILogger) {
			t.Fatal("Current should return the CLI logger before serve starts")
		}

		CLILogger.Debug("Verbose CLI log message", zap.String("mode", "read"))
	})

	t.Run("Server logger takes precedence", func(t *testing.T) {
		InitServerLogger("redditgw-test", "debug", "redditgw")

		if ServerLogger == nil {
			t.Fatal("Server logger should not be nil after initialization")
		}
		if Current() != Logger(ServerLogger) {
			t.Fatal("Current should prefer the server logger")
		}

		ServerLogger.Info("Tool call completed",
			zap.String("tool", "get_top_posts"),
			zap.String("crucible_version", crucible.GetVersionString()))
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]string{
		"trace":   "TRACE",
		"debug":   "DEBUG",
		" Info ":  "INFO",
		"warning": "WARN",
		"WARN":    "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"loud":    "INFO",
	}

	for input, want := range tests {
		if got := parseLogLevel(input); got != want {
			t.Errorf("parseLogLevel(%q) = %q, want %q", input, got, want)
		}
	}
}
