package session

import "errors"

var (
	// ErrCaptureFailed indicates that neither the preferred nor the fallback
	// source could be captured. The call goes unrecorded.
	ErrCaptureFailed = errors.New("capture failed")

	// ErrClosed indicates an event delivered after Shutdown or Abort.
	ErrClosed = errors.New("controller closed")
)
