package audio

import (
	"errors"
	"fmt"
)

// ErrNoAudioDevice indicates no audio input device was found or detected.
var ErrNoAudioDevice = errors.New("no audio input device found")

// ErrLoopbackNotFound indicates no in-call (loopback) device was detected.
var ErrLoopbackNotFound = errors.New("loopback device not found")

// ErrCaptureExited indicates FFmpeg exited before the capture was stopped.
var ErrCaptureExited = errors.New("capture exited unexpectedly")

// ErrEmptyCapture indicates the capture stopped but produced no audio.
var ErrEmptyCapture = errors.New("capture produced no audio")

// ErrCaptureState indicates an operation that the capture's current state
// does not allow, such as starting it twice or stopping an abandoned one.
var ErrCaptureState = errors.New("invalid capture state")

// deviceError wraps an error with actionable help text.
// Implements error and Unwrap for errors.Is() compatibility.
type deviceError struct {
	wrapped error
	help    string
}

func (e *deviceError) Error() string {
	return fmt.Sprintf("%v: %s", e.wrapped, e.help)
}

func (e *deviceError) Unwrap() error {
	return e.wrapped
}

// loopbackError wraps ErrLoopbackNotFound with installation instructions.
type loopbackError struct {
	wrapped error
	help    string
}

func (e *loopbackError) Error() string {
	return fmt.Sprintf("%v\n\n%s", e.wrapped, e.help)
}

func (e *loopbackError) Unwrap() error {
	return e.wrapped
}
