package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alnah/go-callrec/internal/profile"
)

// ProfilesCmd creates the profiles command.
func ProfilesCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "Show the encoding used by each quality",
		Long: `Show the container, codec and rates used by each quality.

Fallback captures always use the low profile.`,
		Example: `  callrec profiles
  callrec config set quality high`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfiles(env)
		},
	}
}

// runProfiles prints the profile table, marking the configured tier.
func runProfiles(env *Env) error {
	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}
	current, err := cfg.Quality()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: %v\n", err)
		current = profile.DefaultTier
	}

	tw := tabwriter.NewWriter(env.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUALITY\tFORMAT\tCODEC\tSAMPLE RATE\tBITRATE\tFILE\t")
	for _, p := range profile.All() {
		mark := ""
		if p.Tier == current {
			mark = "(current)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Tier, p.Format, p.Codec, rateLabel(p.SampleRateHz, "Hz"), rateLabel(p.BitRateBps/1000, "kb/s"), p.Extension, mark)
	}
	return tw.Flush()
}

// rateLabel renders a rate, "default" when the codec picks it.
func rateLabel(v int, unit string) string {
	if v <= 0 {
		return "default"
	}
	return fmt.Sprintf("%d %s", v, unit)
}
