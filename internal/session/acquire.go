package session

import (
	"context"
	"fmt"
	"os"

	"github.com/alnah/go-callrec/internal/audio"
	"github.com/alnah/go-callrec/internal/naming"
	"github.com/alnah/go-callrec/internal/profile"
)

// acquire starts a capture for s. The in-call source is tried with the
// configured profile first. If it cannot be acquired or started, playback is
// routed to the speaker and the microphone is captured once with the Low
// profile under a fresh name. On success s holds the attempt and its capture.
func (c *Controller) acquire(ctx context.Context, s *session, settings Settings) error {
	root := settings.StorageRoot
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("%w: create storage directory: %w", ErrCaptureFailed, err)
	}

	attempt, capture, preferredErr := c.try(ctx, s, audio.SourcePreferred, profile.Lookup(settings.Quality), root, "")
	if preferredErr == nil {
		s.attempt, s.capture = attempt, capture
		return nil
	}
	s.logger.Warn("in-call capture unavailable, falling back to microphone", "error", preferredErr)

	if err := c.router.EnableSpeaker(ctx); err != nil {
		s.logger.Warn("speaker routing failed", "error", err)
	} else {
		s.routed = true
	}

	attempt, capture, fallbackErr := c.try(ctx, s, audio.SourceFallback, profile.Fallback(), root, attempt.OutputPath)
	if fallbackErr != nil {
		c.restoreRouting(ctx, s)
		s.routed = false
		return fmt.Errorf("%w: %w; %w", ErrCaptureFailed, preferredErr, fallbackErr)
	}
	s.attempt, s.capture = attempt, capture
	return nil
}

// try makes one attempt. The returned Attempt always carries the output path,
// even on failure; a capture that fails to start is released before returning.
// taken is a path that must not be reused.
func (c *Controller) try(ctx context.Context, s *session, src audio.Source, p profile.Profile, root, taken string) (*Attempt, audio.Capture, error) {
	startAt := c.now()
	path := naming.Unique(naming.Path(root, s.call, startAt, p.Extension), func(candidate string) bool {
		return candidate == taken || c.exists(candidate)
	})
	attempt := &Attempt{Source: src, Profile: p, OutputPath: path}

	capture, err := c.acquirer.Acquire(ctx, src, p, path)
	if err != nil {
		return attempt, nil, fmt.Errorf("acquire %s source: %w", src, err)
	}
	if err := capture.Start(ctx); err != nil {
		if aerr := capture.Abandon(); aerr != nil {
			s.logger.Warn("releasing failed capture", "error", aerr)
		}
		return attempt, nil, fmt.Errorf("start %s capture: %w", src, err)
	}
	attempt.StartedAt = c.now()
	return attempt, capture, nil
}
