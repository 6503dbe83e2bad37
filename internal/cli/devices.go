package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// DevicesCmd creates the devices command.
// Lists available audio input devices for use with mic-device and call-device.
func DevicesCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio input devices",
		Long: `List the audio inputs available for capture.

Use a device name as mic-device or call-device:
  callrec config set mic-device <name>

Devices are sorted with real microphones first, virtual devices last.
On Linux the monitor of an output carries what is played on it.`,
		Example: `  callrec devices`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListDevices(cmd.Context(), env)
		},
	}
}

// runListDevices resolves FFmpeg and lists available audio devices.
func runListDevices(ctx context.Context, env *Env) error {
	ffmpegPath, err := env.FFmpegResolver.Resolve(ctx)
	if err != nil {
		return err
	}

	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}

	capturer, err := env.CapturerFactory.NewCapturer(ffmpegPath, cfg)
	if err != nil {
		return err
	}

	devices, err := capturer.ListDevices(ctx)
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Fprintln(env.Stderr, "No audio input devices found.")
		return nil
	}

	for _, d := range devices {
		line := d.ID
		if d.Description != "" && d.Description != d.ID {
			line += "\t" + d.Description
		}
		if d.Default {
			line += "\t(default)"
		}
		fmt.Fprintln(env.Stdout, line)
	}
	return nil
}
