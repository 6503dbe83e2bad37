// Package routing switches call audio to the loudspeaker while a fallback
// capture records the microphone, so the far end is audible to it, and
// switches it back afterwards.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/alnah/go-callrec/internal/audio"
)

// ErrNoSpeaker indicates no output matched the speaker sink.
var ErrNoSpeaker = errors.New("no speaker output found")

// Router changes audio routing for the duration of a fallback capture.
type Router interface {
	// EnableSpeaker routes playback to the loudspeaker.
	EnableSpeaker(ctx context.Context) error
	// Restore undoes EnableSpeaker. It is a no-op when nothing was changed.
	Restore(ctx context.Context) error
}

// Compile-time interface implementation checks.
var (
	_ Router = (*PulseRouter)(nil)
	_ Router = Nop{}
)

// Nop is a Router that changes nothing.
type Nop struct{}

func (Nop) EnableSpeaker(context.Context) error { return nil }
func (Nop) Restore(context.Context) error       { return nil }

// sinkServer reads and sets the default output. *audio.PulseServer implements it.
type sinkServer interface {
	DefaultSink(ctx context.Context) (string, error)
	Sinks(ctx context.Context) ([]audio.Device, error)
	SetDefaultSink(ctx context.Context, name string) error
}

// PulseRouter moves the default Pulse sink to a speaker output.
type PulseRouter struct {
	server  sinkServer
	speaker string // Configured sink name or search term; empty means "speaker".

	mu       sync.Mutex
	previous string
	switched bool
}

// NewPulseRouter returns a router that selects speaker among the server's
// sinks. speaker may be an exact sink name or a case-insensitive fragment of
// a sink name or description.
func NewPulseRouter(server sinkServer, speaker string) *PulseRouter {
	return &PulseRouter{server: server, speaker: speaker}
}

func (r *PulseRouter) EnableSpeaker(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.switched {
		return nil
	}

	current, err := r.server.DefaultSink(ctx)
	if err != nil {
		return fmt.Errorf("read default sink: %w", err)
	}
	sinks, err := r.server.Sinks(ctx)
	if err != nil {
		return fmt.Errorf("list sinks: %w", err)
	}
	target, ok := matchSink(sinks, r.speaker)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSpeaker, r.searchTerm())
	}
	if target == current {
		return nil
	}

	if err := r.server.SetDefaultSink(ctx, target); err != nil {
		return err
	}
	r.previous = current
	r.switched = true
	return nil
}

func (r *PulseRouter) Restore(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.switched {
		return nil
	}
	if err := r.server.SetDefaultSink(ctx, r.previous); err != nil {
		return err
	}
	r.switched = false
	r.previous = ""
	return nil
}

func (r *PulseRouter) searchTerm() string {
	if r.speaker == "" {
		return "speaker"
	}
	return r.speaker
}

// matchSink finds the sink named term, else the first whose name or
// description contains it. An empty term searches for "speaker".
func matchSink(sinks []audio.Device, term string) (string, bool) {
	if term == "" {
		term = "speaker"
	}
	for _, s := range sinks {
		if s.ID == term {
			return s.ID, true
		}
	}
	term = strings.ToLower(term)
	for _, s := range sinks {
		if strings.Contains(strings.ToLower(s.ID), term) || strings.Contains(strings.ToLower(s.Description), term) {
			return s.ID, true
		}
	}
	return "", false
}
