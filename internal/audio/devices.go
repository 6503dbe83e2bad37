package audio

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// input is one FFmpeg input: the -f format and the -i argument.
type input struct {
	format string
	arg    string
}

// inputFormat returns the FFmpeg capture format for an OS.
// Linux goes through the Pulse server so that sink monitors are reachable.
func inputFormat(goos string) string {
	switch goos {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

// formatInputArg formats the device name for FFmpeg -i argument based on format.
func formatInputArg(format, device string) string {
	switch format {
	case "avfoundation":
		// macOS: audio-only input uses ":deviceindex" or ":devicename".
		if strings.HasPrefix(device, ":") {
			return device
		}
		return ":" + device
	case "dshow":
		if strings.HasPrefix(device, "audio=") {
			return device
		}
		return "audio=" + device
	default:
		return device
	}
}

// listDevicesArgs returns FFmpeg arguments that print the device list to stderr.
func listDevicesArgs(format string) []string {
	if format == "dshow" {
		return []string{"-f", "dshow", "-list_devices", "true", "-i", "dummy"}
	}
	return []string{"-f", "avfoundation", "-list_devices", "true", "-i", ""}
}

// ListDevices returns the audio inputs available for capture, real
// microphones first. On Linux the Pulse server is asked directly; elsewhere
// FFmpeg's device listing is parsed.
func (c *FFmpegCapturer) ListDevices(ctx context.Context) ([]Device, error) {
	format := inputFormat(c.goos)
	if format == "pulse" {
		devices, err := c.server.Sources(ctx)
		if err != nil {
			return nil, err
		}
		return rankDevices(devices), nil
	}

	stderr, err := c.runner.RunOutput(ctx, c.ffmpegPath, listDevicesArgs(format))
	// -list_devices always exits non-zero; only empty output is a failure.
	if err != nil && stderr == "" {
		return nil, err
	}
	if format == "avfoundation" {
		return rankDevices(parseAVFoundationDevices(stderr)), nil
	}
	return rankDevices(parseDShowDevices(stderr)), nil
}

// microphone resolves the microphone input: the configured device, the Pulse
// default source on Linux, or the best-ranked listed device.
func (c *FFmpegCapturer) microphone(ctx context.Context) (input, error) {
	format := inputFormat(c.goos)
	if c.micDevice != "" {
		return input{format: format, arg: formatInputArg(format, c.micDevice)}, nil
	}

	if format == "pulse" {
		name, err := c.server.DefaultSource(ctx)
		if err != nil || name == "" {
			return input{}, &deviceError{
				wrapped: ErrNoAudioDevice,
				help:    "no default Pulse source, check that a microphone is connected or set mic-device",
			}
		}
		return input{format: format, arg: name}, nil
	}

	devices, err := c.ListDevices(ctx)
	if err != nil {
		return input{}, &deviceError{
			wrapped: ErrNoAudioDevice,
			help:    fmt.Sprintf("run 'ffmpeg %s' to see available devices, set mic-device to choose one", strings.Join(listDevicesArgs(format), " ")),
		}
	}
	for _, d := range devices {
		if !isVirtualAudioDevice(d.Description) {
			return input{format: format, arg: formatInputArg(format, d.ID)}, nil
		}
	}
	return input{}, &deviceError{
		wrapped: ErrNoAudioDevice,
		help:    "no audio input devices detected, check that a microphone is connected and enabled",
	}
}

// loopback resolves the in-call audio path: the configured device, the
// monitor of the default Pulse sink on Linux, or a known virtual loopback
// device elsewhere.
func (c *FFmpegCapturer) loopback(ctx context.Context) (input, error) {
	format := inputFormat(c.goos)
	if c.callDevice != "" {
		return input{format: format, arg: formatInputArg(format, c.callDevice)}, nil
	}

	if format == "pulse" {
		sink, err := c.server.DefaultSink(ctx)
		if err != nil || sink == "" {
			return input{}, &loopbackError{wrapped: ErrLoopbackNotFound, help: loopbackInstructionsLinux}
		}
		// The monitor of a sink carries what is played on it, the far end of the call.
		return input{format: format, arg: sink + ".monitor"}, nil
	}

	stderr, err := c.runner.RunOutput(ctx, c.ffmpegPath, listDevicesArgs(format))
	if err != nil && stderr == "" {
		return input{}, &loopbackError{wrapped: ErrLoopbackNotFound, help: loopbackInstructions(format)}
	}
	var devices []Device
	if format == "avfoundation" {
		devices = parseAVFoundationDevices(stderr)
	} else {
		devices = parseDShowDevices(stderr)
	}
	for _, known := range loopbackNames[format] {
		for _, d := range devices {
			if strings.Contains(d.Description, known) {
				return input{format: format, arg: formatInputArg(format, d.ID)}, nil
			}
		}
	}
	return input{}, &loopbackError{wrapped: ErrLoopbackNotFound, help: loopbackInstructions(format)}
}

// loopbackNames lists virtual loopback devices by preference, per format.
var loopbackNames = map[string][]string{
	"avfoundation": {"BlackHole 2ch", "BlackHole 16ch", "BlackHole 64ch"},
	"dshow":        {"Stereo Mix", "Wave Out Mix", "What U Hear", "Lo que escucha", "CABLE Output", "virtual-audio-capturer"},
}

// virtualAudioDevices lists known virtual audio devices that should be deprioritized.
var virtualAudioDevices = []string{
	"AirBeamTV", "ZoomAudioDevice", "Microsoft Teams Audio", "BlackHole", "Soundflower", "Loopback Audio",
	"Stereo Mix", "Wave Out Mix", "What U Hear", "Lo que escucha", "CABLE Output", "VB-Audio Virtual Cable",
	"virtual-audio-capturer", "VoiceMeeter",
	".monitor",
}

// isVirtualAudioDevice checks if a device name matches a known virtual audio device.
func isVirtualAudioDevice(name string) bool {
	nameLower := strings.ToLower(name)
	for _, virtual := range virtualAudioDevices {
		if strings.Contains(nameLower, strings.ToLower(virtual)) {
			return true
		}
	}
	return false
}

// isMicrophoneDevice checks if a device name looks like a real microphone.
func isMicrophoneDevice(name string) bool {
	n := strings.ToLower(name)
	for _, hint := range []string{"micro", "input", "headset", "webcam", "usb audio", "capture"} {
		if strings.Contains(n, hint) {
			return true
		}
	}
	return strings.Contains(n, "analog-stereo") && !strings.Contains(n, ".monitor")
}

// rankDevices orders devices: microphones, then unknown, then virtual.
// The relative order inside each group is preserved.
func rankDevices(devices []Device) []Device {
	var microphones, unknown, virtual []Device
	for _, d := range devices {
		label := d.ID + " " + d.Description
		switch {
		case isVirtualAudioDevice(label):
			virtual = append(virtual, d)
		case isMicrophoneDevice(label):
			microphones = append(microphones, d)
		default:
			unknown = append(unknown, d)
		}
	}
	result := make([]Device, 0, len(devices))
	result = append(result, microphones...)
	result = append(result, unknown...)
	return append(result, virtual...)
}

var (
	avfoundationDevicePattern = regexp.MustCompile(`\[(\d+)\]\s+(.+)$`)
	dshowQuotedPattern        = regexp.MustCompile(`"([^"]+)"`)
	dshowSuffixPattern        = regexp.MustCompile(`"([^"]+)"\s+\(audio\)`)
)

// parseAVFoundationDevices parses the audio section of a macOS listing:
//
//	[AVFoundation indev @ 0x...] AVFoundation audio devices:
//	[AVFoundation indev @ 0x...] [0] BlackHole 2ch
//	[AVFoundation indev @ 0x...] [1] MacBook Pro Microphone
func parseAVFoundationDevices(stderr string) []Device {
	var devices []Device
	inAudio := false
	for _, line := range strings.Split(stderr, "\n") {
		switch {
		case strings.Contains(line, "AVFoundation audio devices:"):
			inAudio = true
			continue
		case strings.Contains(line, "AVFoundation video devices:"):
			inAudio = false
			continue
		}
		if !inAudio {
			continue
		}
		if m := avfoundationDevicePattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			devices = append(devices, Device{ID: ":" + m[1], Description: m[2]})
		}
	}
	return devices
}

// parseDShowDevices parses a Windows listing. Older builds group devices
// under "DirectShow audio devices"; newer ones suffix each with "(audio)".
func parseDShowDevices(stderr string) []Device {
	var devices []Device
	sectioned := strings.Contains(stderr, "DirectShow audio devices")
	inAudio := false
	for _, line := range strings.Split(stderr, "\n") {
		if strings.Contains(line, "Alternative name") {
			continue
		}
		var m []string
		if sectioned {
			switch {
			case strings.Contains(line, "DirectShow audio devices"):
				inAudio = true
				continue
			case strings.Contains(line, "DirectShow video devices"):
				inAudio = false
				continue
			}
			if inAudio {
				m = dshowQuotedPattern.FindStringSubmatch(line)
			}
		} else {
			m = dshowSuffixPattern.FindStringSubmatch(line)
		}
		if m != nil {
			devices = append(devices, Device{ID: m[1], Description: m[1]})
		}
	}
	return devices
}

func loopbackInstructions(format string) string {
	if format == "avfoundation" {
		return loopbackInstructionsDarwin
	}
	return loopbackInstructionsWindows
}

const loopbackInstructionsLinux = `PulseAudio or PipeWire not detected.

In-call capture records the monitor of the default output. It requires
PulseAudio or PipeWire with the pulse compatibility layer:
  Ubuntu/Debian: sudo apt install pulseaudio-utils
  Fedora:        sudo dnf install pipewire-pulseaudio

Or set call-device to a source name from 'callrec devices'.`

const loopbackInstructionsDarwin = `BlackHole virtual audio driver not found.

To install BlackHole:
  brew install --cask blackhole-2ch

Create a Multi-Output Device with both your speakers and BlackHole 2ch in
"Audio MIDI Setup" and select it as the system output, so call audio stays
audible while it is captured.`

const loopbackInstructionsWindows = `No loopback audio device found.

Enable "Stereo Mix" (Sound settings > Recording > Show Disabled Devices),
or install VB-Audio Virtual Cable from https://vb-audio.com/Cable/.
Or set call-device to a device name from 'callrec devices'.`
