package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alnah/go-callrec/internal/config"
)

// ConfigCmd creates the config command with subcommands.
// The env parameter provides injectable dependencies for testing.
func ConfigCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long: `Manage persistent configuration settings.

Configuration is stored in ~/.config/go-callrec/config.
Each setting can also be given as a CALLREC_* environment variable,
for example CALLREC_STORAGE_DIR. The config file takes precedence.

A running 'callrec run' picks up quality, storage-dir and auto-record
changes at the next call.

Supported settings:
` + keyHelp(),
		Example: `  callrec config set quality high
  callrec config set storage-dir ~/calls
  callrec config get quality
  callrec config list`,
	}

	cmd.AddCommand(configSetCmd(env))
	cmd.AddCommand(configGetCmd(env))
	cmd.AddCommand(configListCmd(env))

	return cmd
}

// configSetCmd creates the "config set" subcommand.
func configSetCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value.

Directories are created if they don't exist.`,
		Example: `  callrec config set quality low
  callrec config set auto-record false`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(env, args[0], args[1])
		},
	}
}

// configGetCmd creates the "config get" subcommand.
func configGetCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Long: `Get a configuration value.

Prints the value to stdout, or nothing if not set.`,
		Example: `  callrec config get storage-dir`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(env, args[0])
		},
	}
}

// configListCmd creates the "config list" subcommand.
func configListCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		Long: `List all configuration values.

Shows both values from the config file and environment variable overrides.`,
		Example: `  callrec config list`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigList(env)
		},
	}
}

// runConfigSet handles the "config set" command.
func runConfigSet(env *Env, key, value string) error {
	if !isValidConfigKey(key) {
		return fmt.Errorf("%q (valid keys: %s): %w", key, strings.Join(validConfigKeys(), ", "), config.ErrUnknownKey)
	}
	if err := config.Validate(key, value); err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}

	switch key {
	case config.KeyStorageDir, config.KeyDBPath, config.KeyContactsFile:
		// Store the expanded path for consistency.
		value = config.ExpandPath(value)
	}

	if err := config.Save(key, value); err != nil {
		return err
	}

	fmt.Fprintf(env.Stderr, "Set %s = %s\n", key, value)
	return nil
}

// runConfigGet handles the "config get" command.
func runConfigGet(env *Env, key string) error {
	if !isValidConfigKey(key) {
		return fmt.Errorf("%q (valid keys: %s): %w", key, strings.Join(validConfigKeys(), ", "), config.ErrUnknownKey)
	}

	value, err := config.Get(key)
	if err != nil {
		return err
	}
	if value == "" {
		value = env.Getenv(config.EnvVar(key))
	}

	if value != "" {
		fmt.Fprintln(env.Stdout, value)
	}
	return nil
}

// runConfigList handles the "config list" command.
func runConfigList(env *Env) error {
	data, err := config.List()
	if err != nil {
		return err
	}

	// Add environment variable values for completeness.
	for _, key := range validConfigKeys() {
		if _, ok := data[key]; ok {
			continue
		}
		if envVal := env.Getenv(config.EnvVar(key)); envVal != "" {
			data[key] = envVal + " (from env)"
		}
	}

	if len(data) == 0 {
		fmt.Fprintln(env.Stdout, "No configuration set.")
		fmt.Fprintln(env.Stdout, "\nAvailable settings:")
		fmt.Fprint(env.Stdout, keyHelp())
		return nil
	}

	for _, key := range validConfigKeys() {
		if value, ok := data[key]; ok {
			fmt.Fprintf(env.Stdout, "%s=%s\n", key, value)
		}
	}
	return nil
}

// validConfigKeys lists all supported configuration keys.
func validConfigKeys() []string {
	keys := make([]string, len(config.Keys))
	for i, k := range config.Keys {
		keys[i] = k.Name
	}
	return keys
}

// isValidConfigKey checks if a key is a valid configuration key.
func isValidConfigKey(key string) bool {
	return slices.Contains(validConfigKeys(), key)
}

// keyHelp renders the key list for help texts.
func keyHelp() string {
	var b strings.Builder
	for _, k := range config.Keys {
		fmt.Fprintf(&b, "  %-18s%s\n", k.Name, k.Description)
	}
	return b.String()
}
