package session

import (
	"fmt"
	"time"

	"github.com/alnah/go-callrec/internal/audio"
	"github.com/alnah/go-callrec/internal/call"
	"github.com/alnah/go-callrec/internal/profile"
)

// State is the controller's position in the call lifecycle.
type State int32

const (
	// Idle means no call is being tracked.
	Idle State = iota
	// Ringing means an incoming call was signaled but not answered.
	Ringing
	// Capturing means a capture is running for the current call.
	Capturing
	// Finalizing means the capture is being stopped and its record assembled.
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ringing:
		return "ringing"
	case Capturing:
		return "capturing"
	case Finalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Attempt is one concrete capture: where audio comes from, how it is
// encoded and where it is written. A fallback attempt replaces the preferred
// one instead of modifying it.
type Attempt struct {
	Source     audio.Source
	Profile    profile.Profile
	OutputPath string
	StartedAt  time.Time
}

// Status is a snapshot of the controller.
type Status struct {
	State     State
	SessionID string
	Call      call.Context
	// Attempt is nil unless State is Capturing or Finalizing.
	Attempt *Attempt
}

// Settings are read when a call becomes active.
type Settings struct {
	Quality     profile.Tier
	StorageRoot string
	// Paused turns automatic recording off: active calls are ignored.
	Paused bool
}
