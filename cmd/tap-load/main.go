package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/clicker/internal/loadtest"
)

// Default configuration constants.
const (
	defaultUsers         = 20
	defaultTapsPerUser   = 50
	defaultWorkers       = 2 // multiplier for runtime.NumCPU()
	defaultTimeout       = 30 * time.Second
	defaultRoundDuration = 2 * time.Minute
	defaultTestTimeout   = 10 * time.Minute
)

func main() {
	var (
		baseURL       = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users         = flag.Int("users", defaultUsers, "Number of scoring players")
		taps          = flag.Int("taps", defaultTapsPerUser, "Taps per player")
		workers       = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout       = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		roundDuration = flag.Duration("round", defaultRoundDuration, "Length of the test round")
		adminPassword = flag.String("admin-password", "admin", "Password of the admin account")
		logFile       = flag.String("log", "", "Log file for test output (default: tap_load_TIMESTAMP.log)")
		verbose       = flag.Bool("verbose", false, "Enable verbose logging")
		help          = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadtest.ShowHelp()
		return
	}

	closeLog, err := loadtest.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &loadtest.Config{
		BaseURL:       *baseURL,
		Users:         *users,
		TapsPerUser:   *taps,
		Workers:       *workers,
		Timeout:       *timeout,
		RoundDuration: *roundDuration,
		AdminPassword: *adminPassword,
		LogFile:       *logFile,
		Verbose:       *verbose,
	}

	if err := loadtest.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		cancel()
		_ = closeLog()
		os.Exit(1)
	}
}
