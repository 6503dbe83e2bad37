// Package call defines the call-lifecycle vocabulary shared by the event
// source, the session controller and the record store.
package call

import (
	"fmt"
	"time"
)

// Direction tells whether a call was received or placed.
type Direction int

const (
	// DirectionUnknown means no signal has established the direction yet.
	DirectionUnknown Direction = iota
	// Incoming is a call received by this device.
	Incoming
	// Outgoing is a call placed from this device.
	Outgoing
)

// String returns the lowercase tag used in file names and listings.
func (d Direction) String() string {
	switch d {
	case Incoming:
		return "incoming"
	case Outgoing:
		return "outgoing"
	default:
		return "unknown"
	}
}

// EventKind is the tag of a call-lifecycle Event.
type EventKind int

const (
	// EventRinging reports an incoming call that has not been answered.
	EventRinging EventKind = iota + 1
	// EventActive reports a call that is off-hook (answered or dialing).
	EventActive
	// EventEnded reports that no call is in progress anymore.
	EventEnded
)

// String returns the representation used in logs.
func (k EventKind) String() string {
	switch k {
	case EventRinging:
		return "ringing"
	case EventActive:
		return "active"
	case EventEnded:
		return "ended"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a call-lifecycle signal. Number is empty when the source did not
// supply one; it is always empty for EventEnded.
type Event struct {
	Kind   EventKind
	Number string
}

// Ringing returns a ringing event.
func Ringing(number string) Event { return Event{Kind: EventRinging, Number: number} }

// Active returns an off-hook event.
func Active(number string) Event { return Event{Kind: EventActive, Number: number} }

// Ended returns a call-ended event.
func Ended() Event { return Event{Kind: EventEnded} }

// Context describes the call attempt being recorded.
// Empty strings mean the value is unknown.
type Context struct {
	Direction   Direction
	Number      string
	DisplayName string
}

// Record is the finalized description of one successful capture.
type Record struct {
	Number      string
	DisplayName string
	Direction   Direction
	FilePath    string
	Duration    time.Duration
	CompletedAt time.Time
	Starred     bool
	Notes       string
}
