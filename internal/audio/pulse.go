package audio

import (
	"context"
	"fmt"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Compile-time interface implementation check.
var _ soundServer = (*PulseServer)(nil)

// pulseAppName is the client name shown by pavucontrol and pactl.
const pulseAppName = "callrec"

// Device describes one Pulse source or sink.
type Device struct {
	ID          string
	Description string
	Default     bool
}

// PulseServer queries and changes the PulseAudio (or PipeWire-pulse) server.
// Every call opens its own short-lived connection so a restarted server
// never leaves a stale client behind.
type PulseServer struct{}

// NewPulseServer returns a PulseServer for the session's default server.
func NewPulseServer() *PulseServer {
	return &PulseServer{}
}

func (s *PulseServer) connect() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(pulseAppName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// DefaultSink returns the name of the default output.
func (s *PulseServer) DefaultSink(_ context.Context) (string, error) {
	client, err := s.connect()
	if err != nil {
		return "", err
	}
	defer client.Close()

	sink, err := client.DefaultSink()
	if err != nil {
		return "", fmt.Errorf("read default sink: %w", err)
	}
	return sink.ID(), nil
}

// DefaultSource returns the name of the default input.
func (s *PulseServer) DefaultSource(_ context.Context) (string, error) {
	client, err := s.connect()
	if err != nil {
		return "", err
	}
	defer client.Close()

	source, err := client.DefaultSource()
	if err != nil {
		return "", fmt.Errorf("read default source: %w", err)
	}
	return source.ID(), nil
}

// Sources lists inputs, monitors included.
func (s *PulseServer) Sources(_ context.Context) ([]Device, error) {
	client, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultID := ""
	if source, err := client.DefaultSource(); err == nil {
		defaultID = source.ID()
	}

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          info.SourceName,
			Description: info.Device,
			Default:     info.SourceName == defaultID,
		})
	}
	return devices, nil
}

// Sinks lists outputs.
func (s *PulseServer) Sinks(_ context.Context) ([]Device, error) {
	client, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultID := ""
	if sink, err := client.DefaultSink(); err == nil {
		defaultID = sink.ID()
	}

	var infos pulseproto.GetSinkInfoListReply
	if err := client.RawRequest(&pulseproto.GetSinkInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          info.SinkName,
			Description: info.Device,
			Default:     info.SinkName == defaultID,
		})
	}
	return devices, nil
}

// SetDefaultSink makes name the default output. Streams that follow the
// default move with it.
func (s *PulseServer) SetDefaultSink(_ context.Context, name string) error {
	client, err := s.connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.RawRequest(&pulseproto.SetDefaultSink{SinkName: name}, nil); err != nil {
		return fmt.Errorf("set default sink %q: %w", name, err)
	}
	return nil
}
