package loadtest

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/clicker/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file and returns a
// function closing the file. If logFile is empty, a timestamped filename is
// generated.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "tap_load_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return file.Close, nil
}

// ShowHelp prints usage information for the tap load tool.
func ShowHelp() {
	os.Stdout.WriteString(`Clicker Tap Load Tool
=====================

Logs in a set of players, opens a round as admin, taps on it concurrently and
checks the round totals against the scores the taps returned.

Usage:
  go run cmd/tap-load/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -users int
        Number of scoring players (default 20)
  -taps int
        Taps per player (default 50)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -round duration
        Length of the test round (default 2m)
  -admin-password string
        Password of the admin account (default "admin")
  -log string
        Log file for test output (default: tap_load_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Test with default settings
  go run cmd/tap-load/main.go

  # Many players, few taps each
  go run cmd/tap-load/main.go -users 200 -taps 5 -workers 32
`)
}
