package call

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ErrInvalidEvent indicates a line could not be decoded into an Event.
var ErrInvalidEvent = errors.New("invalid call event")

// maxLineSize bounds a single event line.
const maxLineSize = 64 * 1024

// wireEvent is the JSON form of an event line.
type wireEvent struct {
	State  string `json:"state"`
	Number string `json:"number,omitempty"`
}

// ParseEvent decodes one event line.
//
// Two forms are accepted:
//
//	{"state":"ringing","number":"5550123"}
//	RINGING 5550123
//
// States are matched case-insensitively. Besides ringing/active/ended the
// telephony names offhook and idle are understood.
func ParseEvent(line string) (Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{}, fmt.Errorf("empty line: %w", ErrInvalidEvent)
	}

	var w wireEvent
	if strings.HasPrefix(line, "{") {
		if err := json.Unmarshal([]byte(line), &w); err != nil {
			return Event{}, fmt.Errorf("%v: %w", err, ErrInvalidEvent)
		}
	} else {
		fields := strings.Fields(line)
		w.State = fields[0]
		if len(fields) > 1 {
			w.Number = fields[1]
		}
	}

	kind, err := parseState(w.State)
	if err != nil {
		return Event{}, err
	}
	if kind == EventEnded {
		return Ended(), nil
	}
	return Event{Kind: kind, Number: strings.TrimSpace(w.Number)}, nil
}

// parseState maps a state name to an EventKind.
func parseState(s string) (EventKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ringing":
		return EventRinging, nil
	case "active", "offhook", "off-hook":
		return EventActive, nil
	case "ended", "idle":
		return EventEnded, nil
	default:
		return 0, fmt.Errorf("unknown state %q: %w", s, ErrInvalidEvent)
	}
}

// Source reads newline-delimited events from a stream, such as stdin or a
// named pipe written by a telephony bridge.
type Source struct {
	r      io.Reader
	logger *slog.Logger
}

// NewSource creates a Source reading from r.
// Malformed lines are reported to logger and skipped.
func NewSource(r io.Reader, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Source{r: r, logger: logger}
}

// Run delivers events to out in arrival order and closes out when done.
// It returns nil at end of stream and ctx.Err() on cancellation.
// A reader blocked in Read is left to the process exit; io.Reader has no cancellation.
func (s *Source) Run(ctx context.Context, out chan<- Event) error {
	defer close(out)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.r)
		scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	lineNum := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read events: %w", err)
					}
				default:
				}
				return nil
			}
			lineNum++
			if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
				continue
			}
			ev, err := ParseEvent(line)
			if err != nil {
				s.logger.Warn("skipping event line", "line", lineNum, "error", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
