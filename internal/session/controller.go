// Package session drives call recording. A Controller consumes call-lifecycle
// events in arrival order, owns at most one running capture, falls back from
// the in-call source to the microphone when needed, and hands a record of
// every successfully stopped capture to a sink.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-callrec/internal/audio"
	"github.com/alnah/go-callrec/internal/call"
	"github.com/alnah/go-callrec/internal/profile"
	"github.com/alnah/go-callrec/internal/routing"
)

// defaultLookupTimeout bounds a display name lookup.
const defaultLookupTimeout = 2 * time.Second

// flushGrace is how long canceled record writes get to return.
const flushGrace = 2 * time.Second

// Acquirer prepares captures. *audio.FFmpegCapturer implements it.
type Acquirer interface {
	Acquire(ctx context.Context, src audio.Source, p profile.Profile, outputPath string) (audio.Capture, error)
}

// Resolver maps a phone number to a display name. *directory.Directory implements it.
type Resolver interface {
	ResolveDisplayName(ctx context.Context, number string) (string, error)
}

// Sink stores finished records. *store.Store and *notes.Annotator implement it.
type Sink interface {
	Insert(ctx context.Context, rec call.Record) (int64, error)
}

// Compile-time interface implementation checks.
var _ Acquirer = (*audio.FFmpegCapturer)(nil)

// session is the call being tracked. It is not modified after it is published
// as current.
type session struct {
	id      string
	call    call.Context
	attempt *Attempt
	capture audio.Capture
	routed  bool // Speaker routing was enabled for a fallback capture.
	logger  *slog.Logger
}

// Controller is the call recording state machine.
type Controller struct {
	acquirer      Acquirer
	sink          Sink
	resolver      Resolver
	router        routing.Router
	settings      func() Settings
	now           func() time.Time
	exists        func(string) bool
	notify        func(call.Context, error)
	lookupTimeout time.Duration
	logger        *slog.Logger

	mu    sync.Mutex // Serializes transitions.
	state atomic.Int32

	liveMu  sync.Mutex // Guards current and closed; Abort takes it without mu.
	current *session
	closed  bool

	writes       errgroup.Group
	writeCtx     context.Context // Canceled when Flush runs out of time.
	cancelWrites context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithResolver sets the display name lookup. Without it records carry no name.
func WithResolver(r Resolver) Option {
	return func(c *Controller) { c.resolver = r }
}

// WithRouter sets the speaker routing used by fallback captures.
func WithRouter(r routing.Router) Option {
	return func(c *Controller) {
		if r != nil {
			c.router = r
		}
	}
}

// WithSettings sets the function read when a call becomes active.
func WithSettings(fn func() Settings) Option {
	return func(c *Controller) {
		if fn != nil {
			c.settings = fn
		}
	}
}

// WithClock sets the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger. Each session logs with a "session" attribute.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLookupTimeout bounds display name lookups.
func WithLookupTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.lookupTimeout = d
		}
	}
}

// WithFailureNotifier sets the function told about every call that went
// unrecorded, whose capture was lost or whose record could not be saved.
// It may be called from record writes running in the background.
func WithFailureNotifier(fn func(call.Context, error)) Option {
	return func(c *Controller) { c.notify = fn }
}

// NewController creates an idle controller.
func NewController(acquirer Acquirer, sink Sink, opts ...Option) (*Controller, error) {
	if acquirer == nil {
		return nil, errors.New("acquirer cannot be nil")
	}
	if sink == nil {
		return nil, errors.New("sink cannot be nil")
	}
	c := &Controller{
		acquirer:      acquirer,
		sink:          sink,
		router:        routing.Nop{},
		settings:      func() Settings { return Settings{Quality: profile.DefaultTier, StorageRoot: "."} },
		now:           time.Now,
		exists:        fileExists,
		lookupTimeout: defaultLookupTimeout,
		logger:        slog.New(slog.DiscardHandler),
	}
	c.writeCtx, c.cancelWrites = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current state. It never blocks.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	st := Status{State: c.State()}
	s := c.live()
	if s == nil {
		return st
	}
	st.SessionID = s.id
	st.Call = s.call
	if s.attempt != nil {
		a := *s.attempt
		st.Attempt = &a
	}
	return st
}

// Handle applies one event. Events must be delivered in arrival order;
// concurrent calls are serialized.
//
// A total capture failure returns an error wrapping ErrCaptureFailed after
// the controller is back to Idle.
func (c *Controller) Handle(ctx context.Context, ev call.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}

	switch ev.Kind {
	case call.EventRinging:
		c.ring(strings.TrimSpace(ev.Number))
		return nil
	case call.EventActive:
		return c.activate(ctx, strings.TrimSpace(ev.Number))
	case call.EventEnded:
		return c.end(ctx)
	default:
		return fmt.Errorf("%v: %w", ev.Kind, call.ErrInvalidEvent)
	}
}

// Run consumes events until the channel closes or ctx is canceled. It also
// watches the running capture: a capture that stops on its own is finalized
// as if the call had ended.
func (c *Controller) Run(ctx context.Context, events <-chan call.Event) error {
	for {
		var stopped <-chan struct{}
		watched := c.live()
		if watched != nil && watched.capture != nil {
			stopped = watched.capture.Done()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := c.Handle(ctx, ev); errors.Is(err, ErrClosed) {
				return err
			}
		case <-stopped:
			c.captureStopped(ctx, watched)
		}
	}
}

// Shutdown finalizes a running capture, then waits for pending record writes
// until ctx is done. Later events are rejected with ErrClosed.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.liveMu.Lock()
	c.closed = true
	s := c.current
	c.liveMu.Unlock()

	var err error
	if s != nil && s.capture != nil {
		err = c.finalize(ctx, s)
	} else if s != nil {
		c.take(s)
		c.state.Store(int32(Idle))
	}
	c.mu.Unlock()

	return errors.Join(err, c.Flush(ctx))
}

// Abort releases a running capture without finalizing it; no record is
// written and the partial file is discarded. It does not wait for a
// transition in progress, so a second interrupt can cut a slow stop short.
func (c *Controller) Abort() {
	c.liveMu.Lock()
	c.closed = true
	s := c.current
	c.current = nil
	c.liveMu.Unlock()

	if s == nil {
		return
	}
	c.state.Store(int32(Idle))
	if s.capture == nil {
		return
	}
	if err := s.capture.Abandon(); err != nil {
		s.logger.Warn("releasing capture failed", "error", err)
	}
	c.restoreRouting(context.Background(), s)
	s.logger.Warn("recording abandoned", "file", s.attempt.OutputPath)
}

// Flush waits for pending record writes until ctx is done. When ctx is done
// first, the writes still running are canceled and given flushGrace to return.
//
// Only writes that fail once the controller is closed are returned; earlier
// failures were already logged and passed to the failure notifier.
func (c *Controller) Flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.cancelWrites)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- c.writes.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	select {
	case err := <-done:
		return err
	case <-time.After(flushGrace):
		return fmt.Errorf("waiting for record writes: %w", ctx.Err())
	}
}

// ---------------------------------------------------------------------------
// Transitions
// ---------------------------------------------------------------------------

func (c *Controller) ring(number string) {
	switch c.State() {
	case Idle:
		id := uuid.NewString()
		s := &session{
			id:     id,
			call:   call.Context{Direction: call.Incoming, Number: number},
			logger: c.logger.With("session", id),
		}
		c.publish(s)
		c.state.Store(int32(Ringing))
		s.logger.Info("ringing", "number", number)
	case Ringing:
		if s := c.live(); s != nil && s.call.Number == "" && number != "" {
			next := *s
			next.call.Number = number
			c.publish(&next)
		}
	default:
		c.logger.Debug("ringing ignored while recording")
	}
}

func (c *Controller) activate(ctx context.Context, number string) error {
	if st := c.State(); st == Capturing || st == Finalizing {
		c.logger.Debug("already recording")
		return nil
	}

	id := uuid.NewString()
	var cc call.Context
	if prev := c.live(); prev != nil {
		id, cc = prev.id, prev.call
	}
	if cc.Number == "" {
		cc.Number = number
	}
	if cc.Direction == call.DirectionUnknown {
		cc.Direction = inferDirection(cc.Number)
	}
	logger := c.logger.With("session", id)

	settings := c.settings()
	if settings.Paused {
		c.clear()
		logger.Info("auto-record is off, call not recorded")
		return nil
	}

	cc.DisplayName = c.resolveName(ctx, cc.Number, logger)
	s := &session{id: id, call: cc, logger: logger}
	if err := c.acquire(ctx, s, settings); err != nil {
		c.clear()
		logger.Error("call not recorded", "error", err)
		c.fail(cc, err)
		return err
	}

	if !c.publish(s) {
		// Aborted while the capture was starting.
		_ = s.capture.Abandon()
		c.restoreRouting(ctx, s)
		return ErrClosed
	}
	c.state.Store(int32(Capturing))

	msg := "recording"
	if s.attempt.Source == audio.SourceFallback {
		msg = "recording (fallback)"
	}
	logger.Info(msg,
		"direction", cc.Direction,
		"quality", s.attempt.Profile.Tier,
		"file", s.attempt.OutputPath)
	return nil
}

func (c *Controller) end(ctx context.Context) error {
	switch c.State() {
	case Ringing:
		if s := c.live(); s != nil {
			s.logger.Info("call ended before it was answered")
		}
		c.clear()
		return nil
	case Capturing:
		return c.finalize(ctx, c.live())
	default:
		return nil
	}
}

// captureStopped handles a capture whose process ended without being asked.
func (c *Controller) captureStopped(ctx context.Context, watched *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != Capturing || c.live() != watched {
		return
	}
	watched.logger.Warn("capture stopped unexpectedly")
	_ = c.finalize(ctx, watched)
}

// finalize stops the capture of s and emits its record. A capture that
// cannot be stopped cleanly is abandoned and produces no record.
// The caller holds mu.
func (c *Controller) finalize(ctx context.Context, s *session) error {
	c.state.Store(int32(Finalizing))
	defer c.state.Store(int32(Idle))

	stopErr := s.capture.Stop()
	stopAt := c.now()
	c.restoreRouting(ctx, s)
	if !c.take(s) {
		s.logger.Warn("capture abandoned while stopping")
		return nil
	}

	if stopErr != nil {
		if err := s.capture.Abandon(); err != nil {
			s.logger.Warn("releasing capture failed", "error", err)
		}
		err := fmt.Errorf("stop capture: %w", stopErr)
		s.logger.Error("recording lost", "file", s.attempt.OutputPath, "error", err)
		c.fail(s.call, err)
		return err
	}

	name := s.call.DisplayName
	if name == "" {
		name = c.resolveName(ctx, s.call.Number, s.logger)
	}
	rec := call.Record{
		Number:      s.call.Number,
		DisplayName: name,
		Direction:   s.call.Direction,
		FilePath:    s.attempt.OutputPath,
		Duration:    max(stopAt.Sub(s.attempt.StartedAt), 0).Truncate(time.Millisecond),
		CompletedAt: stopAt,
	}
	c.persist(ctx, rec, s.logger)
	return nil
}

// persist hands rec to the sink without waiting for the write. The write
// outlives ctx but not a Flush that runs out of time.
func (c *Controller) persist(ctx context.Context, rec call.Record, logger *slog.Logger) {
	c.writes.Go(func() error {
		ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(c.writeCtx, cancel)
		defer stop()

		id, err := c.sink.Insert(ctx, rec)
		if err != nil {
			err = fmt.Errorf("save %s: %w", rec.FilePath, err)
			logger.Error("saving record failed", "error", err)
			if !c.isClosed() {
				c.fail(call.Context{Direction: rec.Direction, Number: rec.Number, DisplayName: rec.DisplayName}, err)
				return nil
			}
			return err
		}
		logger.Info("saved", "id", id, "file", rec.FilePath, "duration", rec.Duration)
		return nil
	})
}

// resolveName looks number up, giving up after the lookup timeout.
// Any failure yields an empty name.
func (c *Controller) resolveName(ctx context.Context, number string, logger *slog.Logger) string {
	if c.resolver == nil || number == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		name, err := c.resolver.ResolveDisplayName(ctx, number)
		ch <- result{name, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			logger.Debug("display name lookup failed", "error", r.err)
			return ""
		}
		return strings.TrimSpace(r.name)
	case <-ctx.Done():
		logger.Debug("display name lookup timed out")
		return ""
	}
}

func (c *Controller) restoreRouting(ctx context.Context, s *session) {
	if !s.routed {
		return
	}
	if err := c.router.Restore(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("restoring audio routing failed", "error", err)
	}
}

func (c *Controller) fail(cc call.Context, err error) {
	if c.notify != nil {
		c.notify(cc, err)
	}
}

// inferDirection guesses the direction of a call first seen off-hook:
// a number supplied by the telephony layer means it was received.
func inferDirection(number string) call.Direction {
	if number != "" {
		return call.Incoming
	}
	return call.Outgoing
}

// ---------------------------------------------------------------------------
// Current session bookkeeping
// ---------------------------------------------------------------------------

func (c *Controller) live() *session {
	c.liveMu.Lock()
	defer c.liveMu.Unlock()
	return c.current
}

func (c *Controller) isClosed() bool {
	c.liveMu.Lock()
	defer c.liveMu.Unlock()
	return c.closed
}

// publish makes s current. It reports false once the controller is closed.
func (c *Controller) publish(s *session) bool {
	c.liveMu.Lock()
	defer c.liveMu.Unlock()
	if c.closed {
		return false
	}
	c.current = s
	return true
}

// take clears s if it is still current. It reports false when Abort got there first.
func (c *Controller) take(s *session) bool {
	c.liveMu.Lock()
	defer c.liveMu.Unlock()
	if c.current != s {
		return false
	}
	c.current = nil
	return true
}

func (c *Controller) clear() {
	c.liveMu.Lock()
	c.current = nil
	c.liveMu.Unlock()
	c.state.Store(int32(Idle))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
