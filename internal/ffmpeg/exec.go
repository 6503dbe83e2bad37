package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Process - a long-running capture with graceful stop
// ---------------------------------------------------------------------------

// Process is a running FFmpeg capture.
// Stop asks FFmpeg to finalize the container by sending 'q' on stdin, which
// works on every platform unlike SIGTERM. Kill terminates without finalizing.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer // Written by exec until done is closed.

	done    chan struct{}
	waitErr error

	stopOnce sync.Once
}

// Start launches FFmpeg with args and returns immediately.
func Start(ffmpegPath string, args []string) (*Process, error) {
	// #nosec G204 -- ffmpegPath comes from the resolver, args are built internally
	cmd := exec.Command(ffmpegPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	p := &Process{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// Done is closed when the process has exited, for whatever reason.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err reports why the process exited. It returns nil while the process runs
// and after a clean exit.
func (p *Process) Err() error {
	select {
	case <-p.done:
	default:
		return nil
	}
	if p.waitErr != nil {
		return fmt.Errorf("%w: %v\nOutput: %s", ErrExited, p.waitErr, tail(p.stderr.String()))
	}
	return nil
}

// Stop requests a graceful exit and waits up to timeout before killing.
// A non-zero exit status after 'q' is expected and not reported: FFmpeg
// returns an error on interrupt but the file is finalized.
// Stopping a process that already exited reports how it exited.
func (p *Process) Stop(timeout time.Duration) error {
	select {
	case <-p.done:
		return p.Err()
	default:
	}

	p.stopOnce.Do(func() {
		_, _ = io.WriteString(p.stdin, "q")
		_ = p.stdin.Close()
	})

	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
		_ = p.cmd.Process.Kill()
		<-p.done
		return fmt.Errorf("%w: killed after %v", ErrTimeout, timeout)
	}
}

// Kill terminates the process without finalizing the output and waits for it
// to be reaped. Killing an exited process is a no-op.
func (p *Process) Kill() {
	select {
	case <-p.done:
		return
	default:
	}
	_ = p.cmd.Process.Kill()
	_ = p.stdin.Close()
	<-p.done
}

// tail returns the last lines of FFmpeg output, which hold the actual error.
func tail(s string) string {
	const maxTail = 2048
	if len(s) <= maxTail {
		return s
	}
	return "..." + s[len(s)-maxTail:]
}

// ---------------------------------------------------------------------------
// Executor - testable FFmpeg execution with dependency injection
// ---------------------------------------------------------------------------

// runOutputFn is the function type for running a command and capturing output.
type runOutputFn func(ctx context.Context, path string, args []string) (string, error)

// Executor runs short-lived FFmpeg commands with injectable dependencies.
type Executor struct {
	runOutput runOutputFn
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRunOutput sets a custom runOutput function (for testing).
func WithRunOutput(fn runOutputFn) ExecutorOption {
	return func(e *Executor) { e.runOutput = fn }
}

// NewExecutor creates an Executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		runOutput: defaultRunOutput,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOutput executes FFmpeg and captures its stderr output.
func (e *Executor) RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	return e.runOutput(ctx, ffmpegPath, args)
}

// defaultRunOutput returns stderr even when the command fails, since FFmpeg
// exits non-zero for valid queries such as -list_devices.
func defaultRunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	// #nosec G204 -- ffmpegPath comes from the resolver, args are built internally
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stderr.String(), err
}

var (
	defaultExecutor     *Executor
	defaultExecutorOnce sync.Once
)

// getDefaultExecutor returns the lazily-initialized default executor.
func getDefaultExecutor() *Executor {
	defaultExecutorOnce.Do(func() {
		defaultExecutor = NewExecutor()
	})
	return defaultExecutor
}

// RunOutput executes FFmpeg with the default executor and captures its stderr output.
func RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	return getDefaultExecutor().RunOutput(ctx, ffmpegPath, args)
}
