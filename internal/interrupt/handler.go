// Package interrupt turns SIGINT/SIGTERM into a two-step shutdown: the first
// signal cancels the run context so the current recording is finalized, a
// second one abandons it and exits.
package interrupt

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ExitInterrupt is the exit code for interrupt (130 = 128 + SIGINT).
const ExitInterrupt = 130

// Messages shown on each interrupt.
const (
	stoppingMessage = "\nStopping, saving the current recording. Press Ctrl+C again to discard it."
	abortMessage    = "\nAborted."
)

// Handler manages graceful interrupt handling with double Ctrl+C detection.
type Handler struct {
	mu          sync.Mutex
	interrupted bool
	aborted     bool
	stopped     bool
	cancelFunc  context.CancelFunc
	onAbort     func()
	done        chan struct{} // Signals listen goroutine to exit

	// Injected dependencies (for testing)
	exitFunc func(int)
	stderr   io.Writer
}

// Options holds injectable dependencies for testing.
type Options struct {
	SigCh    <-chan os.Signal
	ExitFunc func(int)
	// Stderr is the writer for user-facing messages.
	// Must be safe for concurrent writes from multiple goroutines.
	Stderr io.Writer
}

// NewHandler creates a handler that listens for SIGINT/SIGTERM.
// Returns the handler and a context that is canceled on first interrupt.
func NewHandler(parent context.Context) (*Handler, context.Context) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return newHandler(parent, Options{SigCh: sigCh})
}

// NewHandlerWithOptions creates a handler with injectable dependencies.
func NewHandlerWithOptions(parent context.Context, opts Options) (*Handler, context.Context) {
	return newHandler(parent, opts)
}

func newHandler(parent context.Context, opts Options) (*Handler, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	exitFunc := opts.ExitFunc
	if exitFunc == nil {
		exitFunc = os.Exit
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	h := &Handler{
		cancelFunc: cancel,
		done:       make(chan struct{}),
		exitFunc:   exitFunc,
		stderr:     stderr,
	}

	if opts.SigCh != nil {
		go h.listen(opts.SigCh)
	}

	return h, ctx
}

// OnAbort registers fn to run on the second interrupt, before exit.
// It is where a running capture is released.
func (h *Handler) OnAbort(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAbort = fn
}

// listen handles incoming signals.
func (h *Handler) listen(sigCh <-chan os.Signal) {
	for {
		select {
		case <-h.done:
			return
		case _, ok := <-sigCh:
			if !ok {
				return
			}

			h.mu.Lock()
			if h.stopped {
				h.mu.Unlock()
				return
			}
			if !h.interrupted {
				h.interrupted = true
				h.cancelFunc()
				h.mu.Unlock()
				_, _ = fmt.Fprintln(h.stderr, stoppingMessage)
				continue
			}

			h.aborted = true
			onAbort := h.onAbort
			h.mu.Unlock()

			if onAbort != nil {
				onAbort()
			}
			_, _ = fmt.Fprintln(h.stderr, abortMessage)
			h.exitFunc(ExitInterrupt)
			return // In case exitFunc doesn't actually exit (tests)
		}
	}
}

// WasInterrupted returns true if at least one interrupt was received.
func (h *Handler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

// WasAborted returns true if a second interrupt was received.
func (h *Handler) WasAborted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aborted
}

// Stop cleans up the handler. Should be called when done.
func (h *Handler) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	signal.Reset(syscall.SIGINT, syscall.SIGTERM)
	close(h.done)
}
