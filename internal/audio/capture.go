// Package audio captures call audio to a file with FFmpeg.
//
// A capture is acquired for one source (the in-call path or the plain
// microphone) and one encoding profile, then started, and finally either
// stopped, which finalizes the container, or abandoned, which kills FFmpeg
// and removes the partial file.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/alnah/go-callrec/internal/ffmpeg"
	"github.com/alnah/go-callrec/internal/profile"
)

// Source selects where call audio is captured from.
type Source int

const (
	// SourcePreferred captures the in-call path: the far end, read from the
	// output monitor, mixed with the local microphone.
	SourcePreferred Source = iota
	// SourceFallback captures the microphone alone.
	SourceFallback
)

// String returns the name used in logs and status output.
func (s Source) String() string {
	if s == SourceFallback {
		return "fallback"
	}
	return "preferred"
}

// Capture owns one capture resource. Stop and Abandon each release it; once
// one of them has been called the other reports ErrCaptureState or is a no-op.
type Capture interface {
	// Start launches the capture and returns once it is known to be running.
	Start(ctx context.Context) error
	// Stop finalizes the output file and releases the resource.
	Stop() error
	// Abandon releases the resource without finalizing and removes the
	// partial file. It is idempotent and safe after a failed Stop.
	Abandon() error
	// Done is closed when the capture process exits. It is nil before Start.
	Done() <-chan struct{}
}

// Compile-time interface implementation check.
var _ Capture = (*ffmpegCapture)(nil)

// Default timings.
const (
	// defaultSettleWindow is how long a new capture must survive before it
	// counts as started. Device and encoder errors make FFmpeg exit at once.
	defaultSettleWindow = 300 * time.Millisecond
	// gracefulShutdownTimeout is the time to wait for FFmpeg to finalize the file.
	gracefulShutdownTimeout = 5 * time.Second
)

// FFmpegCapturer acquires FFmpeg captures.
// It supports macOS (avfoundation), Linux (pulse), and Windows (dshow).
type FFmpegCapturer struct {
	ffmpegPath string
	micDevice  string // Empty means auto-detect.
	callDevice string // Empty means auto-detect the loopback device.
	goos       string

	settle      time.Duration
	stopTimeout time.Duration

	// Injectable dependencies (defaults to real implementations).
	starter processStarter
	runner  outputRunner
	server  soundServer
	stat    fileStatter
	remover fileRemover
}

// CapturerOption configures an FFmpegCapturer.
type CapturerOption func(*FFmpegCapturer)

// WithMicDevice sets the microphone device name.
func WithMicDevice(device string) CapturerOption {
	return func(c *FFmpegCapturer) { c.micDevice = device }
}

// WithCallDevice sets the device carrying the far end of the call.
func WithCallDevice(device string) CapturerOption {
	return func(c *FFmpegCapturer) { c.callDevice = device }
}

// WithSoundServer sets the Pulse server used for device discovery on Linux.
func WithSoundServer(s soundServer) CapturerOption {
	return func(c *FFmpegCapturer) { c.server = s }
}

// WithProcessStarter sets the FFmpeg process launcher.
func WithProcessStarter(s processStarter) CapturerOption {
	return func(c *FFmpegCapturer) { c.starter = s }
}

// WithOutputRunner sets the runner for FFmpeg device listings.
func WithOutputRunner(r outputRunner) CapturerOption {
	return func(c *FFmpegCapturer) { c.runner = r }
}

// WithFileStatter sets the file existence checker.
func WithFileStatter(s fileStatter) CapturerOption {
	return func(c *FFmpegCapturer) { c.stat = s }
}

// WithFileRemover sets the file remover used by Abandon.
func WithFileRemover(r fileRemover) CapturerOption {
	return func(c *FFmpegCapturer) { c.remover = r }
}

// WithSettleWindow sets how long Start waits for an early exit.
func WithSettleWindow(d time.Duration) CapturerOption {
	return func(c *FFmpegCapturer) { c.settle = d }
}

// WithStopTimeout sets how long Stop waits for FFmpeg to finalize.
func WithStopTimeout(d time.Duration) CapturerOption {
	return func(c *FFmpegCapturer) { c.stopTimeout = d }
}

// WithPlatform sets the target OS (for testing device resolution).
func WithPlatform(goos string) CapturerOption {
	return func(c *FFmpegCapturer) { c.goos = goos }
}

// NewFFmpegCapturer creates a capturer.
// ffmpegPath must be a valid path to the FFmpeg binary.
func NewFFmpegCapturer(ffmpegPath string, opts ...CapturerOption) (*FFmpegCapturer, error) {
	if ffmpegPath == "" {
		return nil, fmt.Errorf("ffmpegPath cannot be empty: %w", ffmpeg.ErrNotFound)
	}
	c := &FFmpegCapturer{
		ffmpegPath:  ffmpegPath,
		goos:        runtime.GOOS,
		settle:      defaultSettleWindow,
		stopTimeout: gracefulShutdownTimeout,
		starter:     ffmpegStarter{},
		runner:      ffmpegOutputRunner{},
		server:      NewPulseServer(),
		stat:        osFileStatter{},
		remover:     osFileRemover{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Acquire resolves the devices for src and prepares a capture writing p to
// outputPath. Nothing runs until Start.
func (c *FFmpegCapturer) Acquire(ctx context.Context, src Source, p profile.Profile, outputPath string) (Capture, error) {
	if outputPath == "" {
		return nil, errors.New("output path cannot be empty")
	}

	mic, err := c.microphone(ctx)
	if err != nil {
		return nil, err
	}
	inputs := []input{mic}
	if src == SourcePreferred {
		far, err := c.loopback(ctx)
		if err != nil {
			return nil, err
		}
		inputs = []input{far, mic}
	}

	return &ffmpegCapture{
		capturer:   c,
		args:       buildCaptureArgs(inputs, p, outputPath),
		outputPath: outputPath,
	}, nil
}

// buildCaptureArgs constructs FFmpeg arguments for a capture.
// Several inputs are mixed into one track.
func buildCaptureArgs(inputs []input, p profile.Profile, output string) []string {
	args := []string{"-hide_banner", "-nostats", "-y"}
	for _, in := range inputs {
		args = append(args, "-f", in.format, "-i", in.arg)
	}
	if len(inputs) > 1 {
		args = append(args, "-filter_complex",
			fmt.Sprintf("amix=inputs=%d:duration=longest:dropout_transition=2", len(inputs)))
	}
	args = append(args, encodingArgs(p)...)
	return append(args, output)
}

// encodingArgs returns the encoder and muxer arguments for a profile.
// This is the single source of truth for output encoding parameters.
func encodingArgs(p profile.Profile) []string {
	var args []string
	switch p.Codec {
	case profile.CodecAMRNB:
		// AMR-NB only encodes 8 kHz mono.
		args = []string{"-c:a", "libopencore_amrnb", "-ar", "8000", "-ac", "1"}
	default:
		args = []string{"-c:a", "aac", "-ac", "1"}
		if p.SampleRateHz > 0 {
			args = append(args, "-ar", strconv.Itoa(p.SampleRateHz))
		}
	}
	if p.BitRateBps > 0 {
		args = append(args, "-b:a", strconv.Itoa(p.BitRateBps))
	}
	return append(args, "-f", string(p.Format))
}

// ---------------------------------------------------------------------------
// ffmpegCapture - one FFmpeg process and its output file
// ---------------------------------------------------------------------------

type captureState int

const (
	stateReady captureState = iota
	stateRunning
	stateStopped
	stateAbandoned
)

type ffmpegCapture struct {
	capturer   *FFmpegCapturer
	args       []string
	outputPath string

	mu        sync.Mutex
	state     captureState
	proc      process
	finalized bool // Stop succeeded; the file belongs to the caller.
}

func (f *ffmpegCapture) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.state != stateReady {
		f.mu.Unlock()
		return fmt.Errorf("%w: start after release", ErrCaptureState)
	}
	proc, err := f.capturer.starter.Start(f.capturer.ffmpegPath, f.args)
	if err != nil {
		f.mu.Unlock()
		return fmt.Errorf("start capture: %w", err)
	}
	f.proc = proc
	f.state = stateRunning
	f.mu.Unlock()

	select {
	case <-proc.Done():
		return fmt.Errorf("%w: %v", ErrCaptureExited, proc.Err())
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.capturer.settle):
		return nil
	}
}

func (f *ffmpegCapture) Stop() error {
	f.mu.Lock()
	if f.state != stateRunning {
		f.mu.Unlock()
		return fmt.Errorf("%w: stop when not running", ErrCaptureState)
	}
	f.state = stateStopped
	proc := f.proc
	f.mu.Unlock()

	if err := proc.Stop(f.capturer.stopTimeout); err != nil {
		if errors.Is(err, ffmpeg.ErrExited) {
			return fmt.Errorf("%w: %v", ErrCaptureExited, err)
		}
		return fmt.Errorf("stop capture: %w", err)
	}

	info, err := f.capturer.stat.Stat(f.outputPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyCapture, f.outputPath)
	}

	f.mu.Lock()
	f.finalized = true
	f.mu.Unlock()
	return nil
}

func (f *ffmpegCapture) Abandon() error {
	f.mu.Lock()
	if f.state == stateAbandoned || f.finalized {
		f.mu.Unlock()
		return nil
	}
	started := f.state != stateReady
	f.state = stateAbandoned
	proc := f.proc
	f.mu.Unlock()

	if proc != nil {
		proc.Kill()
	}
	if !started {
		return nil
	}
	if err := f.capturer.remover.Remove(f.outputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove partial capture: %w", err)
	}
	return nil
}

func (f *ffmpegCapture) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.proc == nil {
		return nil
	}
	return f.proc.Done()
}
