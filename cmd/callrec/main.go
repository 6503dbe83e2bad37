package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alnah/go-callrec/internal/audio"
	"github.com/alnah/go-callrec/internal/cli"
	"github.com/alnah/go-callrec/internal/config"
	"github.com/alnah/go-callrec/internal/ffmpeg"
	"github.com/alnah/go-callrec/internal/notes"
	"github.com/alnah/go-callrec/internal/profile"
	"github.com/alnah/go-callrec/internal/store"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	ExitOK            = 0
	ExitGeneral       = 1
	ExitUsage         = 2
	ExitSetup         = 3
	ExitValidation    = 4
	ExitTranscription = 5
	ExitInterrupt     = 130
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	// Context with signal cancellation.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Create the CLI environment with production defaults.
	env := cli.DefaultEnv()

	// Root command.
	rootCmd := &cobra.Command{
		Use:     "callrec",
		Short:   "Record phone calls automatically",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// Subcommands.
	rootCmd.AddCommand(cli.RunCmd(env))
	rootCmd.AddCommand(cli.ListCmd(env))
	rootCmd.AddCommand(cli.StarCmd(env))
	rootCmd.AddCommand(cli.NoteCmd(env))
	rootCmd.AddCommand(cli.DeleteCmd(env))
	rootCmd.AddCommand(cli.TranscribeCmd(env))
	rootCmd.AddCommand(cli.ProfilesCmd(env))
	rootCmd.AddCommand(cli.DevicesCmd(env))
	rootCmd.AddCommand(cli.ConfigCmd(env))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	// Check for context cancellation (interrupt).
	if errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}

	// Usage errors (ExitUsage = 2): Cobra flag/arg parsing errors.
	// Cobra doesn't expose typed errors, so we check for known error message patterns.
	if isCobraUsageError(err) {
		return ExitUsage
	}

	// Setup errors (ExitSetup = 3).
	if errors.Is(err, ffmpeg.ErrNotFound) || errors.Is(err, notes.ErrAPIKeyMissing) ||
		errors.Is(err, audio.ErrNoAudioDevice) || errors.Is(err, audio.ErrLoopbackNotFound) ||
		errors.Is(err, cli.ErrEventsSource) || errors.Is(err, config.ErrNotDirectory) ||
		errors.Is(err, config.ErrNotWritable) {
		return ExitSetup
	}

	// Validation errors (ExitValidation = 4).
	if errors.Is(err, config.ErrUnknownKey) || errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, profile.ErrUnknownTier) || errors.Is(err, cli.ErrInvalidID) ||
		errors.Is(err, store.ErrNotFound) || errors.Is(err, notes.ErrUnsupportedFormat) {
		return ExitValidation
	}

	// Transcription errors (ExitTranscription = 5).
	if errors.Is(err, notes.ErrRateLimit) || errors.Is(err, notes.ErrQuotaExceeded) ||
		errors.Is(err, notes.ErrTimeout) || errors.Is(err, notes.ErrAuthFailed) ||
		errors.Is(err, notes.ErrBadRequest) {
		return ExitTranscription
	}

	return ExitGeneral
}

// cobraUsageErrorPatterns contains error message substrings that indicate Cobra usage errors.
// These patterns are stable across Cobra versions (tested with v1.8+).
// Cobra doesn't expose typed errors, so string matching is the only reliable approach.
var cobraUsageErrorPatterns = []string{
	"required flag",             // Missing required flag
	"unknown flag",              // Flag doesn't exist
	"unknown shorthand",         // Short flag doesn't exist
	"flag needs an argument",    // Flag provided without value
	"invalid argument",          // Invalid flag value type
	"if any flags in the group", // Mutually exclusive flag violation
	"accepts ",                  // Wrong number of arguments (e.g., "accepts 1 arg(s)")
	"requires at least",         // Too few arguments
	"requires at most",          // Too many arguments
	"unknown command",           // Subcommand doesn't exist
}

// isCobraUsageError checks if an error is a Cobra usage/parsing error.
func isCobraUsageError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
