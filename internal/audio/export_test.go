package audio

import (
	"context"
	"time"
)

// Export internal functions for testing.
// This file is only compiled during tests (suffix _test.go).

// EncodingArgs exports encodingArgs for testing.
var EncodingArgs = encodingArgs

// FormatInputArg exports formatInputArg for testing.
var FormatInputArg = formatInputArg

// InputFormat exports inputFormat for testing.
var InputFormat = inputFormat

// ParseAVFoundationDevices exports parseAVFoundationDevices for testing.
var ParseAVFoundationDevices = parseAVFoundationDevices

// ParseDShowDevices exports parseDShowDevices for testing.
var ParseDShowDevices = parseDShowDevices

// RankDevices exports rankDevices for testing.
var RankDevices = rankDevices

// --- Dependency injection exports ---

// Process exports the process interface for testing.
type Process = process

// ProcessStarterFunc adapts a function to processStarter.
type ProcessStarterFunc func(ffmpegPath string, args []string) (Process, error)

func (f ProcessStarterFunc) Start(ffmpegPath string, args []string) (process, error) {
	return f(ffmpegPath, args)
}

// OutputRunnerFunc adapts a function to outputRunner.
type OutputRunnerFunc func(ctx context.Context, ffmpegPath string, args []string) (string, error)

func (f OutputRunnerFunc) RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	return f(ctx, ffmpegPath, args)
}

// SoundServer exports the soundServer interface for testing.
type SoundServer = soundServer

// FileStatter exports the fileStatter interface for testing.
type FileStatter = fileStatter

// FileRemover exports the fileRemover interface for testing.
type FileRemover = fileRemover

// GracefulShutdownTimeout exports the default stop timeout.
const GracefulShutdownTimeout = gracefulShutdownTimeout

// SettleWindow exports the default settle window.
const SettleWindow time.Duration = defaultSettleWindow
