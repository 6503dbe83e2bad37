// Package config reads and writes the user configuration, a key=value file
// at $XDG_CONFIG_HOME/go-callrec/config with CALLREC_* environment fallbacks.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alnah/go-callrec/internal/profile"
)

// Config keys.
const (
	KeyQuality         = "quality"
	KeyStorageDir      = "storage-dir"
	KeyDBPath          = "db-path"
	KeyContactsFile    = "contacts-file"
	KeyMicDevice       = "mic-device"
	KeyCallDevice      = "call-device"
	KeySpeakerSink     = "speaker-sink"
	KeyLookupTimeout   = "lookup-timeout"
	KeyTranscribeNotes = "transcribe-notes"
	KeyAutoRecord      = "auto-record"
)

// Defaults.
const (
	DefaultStorageDir    = "~/Music/CallRecordings"
	DefaultLookupTimeout = 2 * time.Second
)

// appName names the configuration and data directories.
const appName = "go-callrec"

// Sentinel errors for directory and value validation.
var (
	ErrUnknownKey   = errors.New("unknown config key")
	ErrInvalidValue = errors.New("invalid config value")
	ErrNotDirectory = errors.New("path is not a directory")
	ErrNotWritable  = errors.New("directory is not writable")
)

// Keys lists every key with a short description, in display order.
var Keys = []struct {
	Name        string
	Description string
}{
	{KeyQuality, "recording quality: low, medium or high (default medium)"},
	{KeyStorageDir, "directory for recordings (default " + DefaultStorageDir + ")"},
	{KeyDBPath, "recordings database file"},
	{KeyContactsFile, "TOML contacts file used to name callers"},
	{KeyMicDevice, "microphone input device"},
	{KeyCallDevice, "in-call audio input device"},
	{KeySpeakerSink, "output used for speaker fallback"},
	{KeyLookupTimeout, "contact lookup bound, e.g. 2s"},
	{KeyTranscribeNotes, "transcribe finished recordings into notes (true/false)"},
	{KeyAutoRecord, "record calls automatically (true/false, default true)"},
}

// EnvVar returns the environment fallback for a key: quality -> CALLREC_QUALITY.
func EnvVar(key string) string {
	return "CALLREC_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// Config holds the user configuration. Values are kept as written; typed
// accessors apply defaults and validation.
type Config struct {
	values map[string]string
}

// New returns a Config holding values (for testing and flag overrides).
func New(values map[string]string) Config {
	return Config{values: maps.Clone(values)}
}

// Value returns the raw value of key, or "".
func (c Config) Value(key string) string {
	return c.values[key]
}

// With returns a copy of c with key set to value. An empty value leaves c unchanged.
func (c Config) With(key, value string) Config {
	if value == "" {
		return c
	}
	values := maps.Clone(c.values)
	if values == nil {
		values = make(map[string]string)
	}
	values[key] = value
	return Config{values: values}
}

// Quality returns the configured tier, Medium when unset.
func (c Config) Quality() (profile.Tier, error) {
	return profile.ParseTier(c.values[KeyQuality])
}

// StorageDir returns the recordings directory with ~ expanded.
func (c Config) StorageDir() string {
	if d := c.values[KeyStorageDir]; d != "" {
		return ExpandPath(d)
	}
	return ExpandPath(DefaultStorageDir)
}

// DBPath returns the database file, by default under $XDG_DATA_HOME/go-callrec.
func (c Config) DBPath() (string, error) {
	if p := c.values[KeyDBPath]; p != "" {
		return ExpandPath(p), nil
	}
	d, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "recordings.db"), nil
}

// ContactsFile returns the contacts file, by default next to the config file.
func (c Config) ContactsFile() (string, error) {
	if p := c.values[KeyContactsFile]; p != "" {
		return ExpandPath(p), nil
	}
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "contacts.toml"), nil
}

// MicDevice, CallDevice and SpeakerSink return device names, "" for automatic.
func (c Config) MicDevice() string   { return c.values[KeyMicDevice] }
func (c Config) CallDevice() string  { return c.values[KeyCallDevice] }
func (c Config) SpeakerSink() string { return c.values[KeySpeakerSink] }

// LookupTimeout returns the contact lookup bound.
func (c Config) LookupTimeout() (time.Duration, error) {
	v := c.values[KeyLookupTimeout]
	if v == "" {
		return DefaultLookupTimeout, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s=%q: %w", KeyLookupTimeout, v, ErrInvalidValue)
	}
	return d, nil
}

// TranscribeNotes reports whether finished recordings are transcribed. Default false.
func (c Config) TranscribeNotes() (bool, error) {
	return c.boolValue(KeyTranscribeNotes, false)
}

// AutoRecord reports whether calls are recorded automatically. Default true.
func (c Config) AutoRecord() (bool, error) {
	return c.boolValue(KeyAutoRecord, true)
}

func (c Config) boolValue(key string, def bool) (bool, error) {
	v := c.values[key]
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q: %w", key, v, ErrInvalidValue)
	}
	return b, nil
}

// Validate checks a value before it is saved.
func Validate(key, value string) error {
	switch key {
	case KeyQuality:
		_, err := profile.ParseTier(value)
		return err
	case KeyStorageDir:
		return EnsureDir(value)
	case KeyLookupTimeout:
		_, err := New(map[string]string{key: value}).LookupTimeout()
		return err
	case KeyTranscribeNotes, KeyAutoRecord:
		_, err := New(map[string]string{key: value}).boolValue(key, false)
		return err
	case KeyDBPath, KeyContactsFile, KeyMicDevice, KeyCallDevice, KeySpeakerSink:
		return nil
	default:
		return fmt.Errorf("%q: %w", key, ErrUnknownKey)
	}
}

// dir returns the configuration directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/go-callrec.
func dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// dataDir returns the data directory path.
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share/go-callrec.
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", appName), nil
}

// path returns the full path to the config file.
func path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config"), nil
}

// Load reads the configuration file and environment variables.
// Precedence: config file values, then environment variable fallbacks.
// A missing file is not an error.
func Load() (Config, error) {
	cfg := Config{values: make(map[string]string)}

	p, err := path()
	if err != nil {
		return cfg, err
	}

	if data, err := parseFile(p); err == nil {
		cfg.values = data
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	// Environment variable fallback (only if not set in config).
	for _, k := range Keys {
		if cfg.values[k.Name] == "" {
			if v := os.Getenv(EnvVar(k.Name)); v != "" {
				cfg.values[k.Name] = v
			}
		}
	}

	return cfg, nil
}

// parseFile reads a key=value config file.
// Format: one key=value per line, # comments, empty lines ignored.
func parseFile(p string) (map[string]string, error) {
	f, err := os.Open(p) // #nosec G304 -- config path is constructed from home dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid syntax at line %d: %q", lineNum, line)
		}
		data[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return data, nil
}

// Save writes a single key=value to the config file.
// Creates the config directory and file if they don't exist.
// Preserves existing key=value pairs but discards comments.
func Save(key, value string) error {
	p, err := path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil { // #nosec G301 -- user config dir
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	existing, _ := parseFile(p)
	if existing == nil {
		existing = make(map[string]string)
	}
	existing[key] = value

	return writeFile(p, existing)
}

// writeFile writes the config map to a file, keys sorted.
func writeFile(p string, data map[string]string) error {
	// #nosec G302 G304 -- config file with standard permissions, path from home dir
	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, key := range slices.Sorted(maps.Keys(data)) {
		if _, err := fmt.Fprintf(f, "%s=%s\n", key, data[key]); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	return nil
}

// Get reads a single value from the config file.
// Returns empty string if the key doesn't exist.
func Get(key string) (string, error) {
	data, err := List()
	if err != nil {
		return "", err
	}
	return data[key], nil
}

// List returns all values stored in the config file.
func List() (map[string]string, error) {
	p, err := path()
	if err != nil {
		return nil, err
	}

	data, err := parseFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	return data, nil
}

// EnsureDir checks that d is a writable directory, creating it if needed.
func EnsureDir(d string) error {
	if d == "" {
		return fmt.Errorf("directory cannot be empty: %w", ErrInvalidValue)
	}
	d = ExpandPath(d)

	info, err := os.Stat(d)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(d, 0750); err != nil { // #nosec G301 -- user recordings dir
				return fmt.Errorf("cannot create directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, d)
	}

	// Check if writable by attempting to create a temp file.
	testFile := filepath.Join(d, ".go-callrec-write-test")
	f, err := os.Create(testFile) // #nosec G304 -- path is constructed from validated dir
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotWritable, err)
	}
	_ = f.Close()
	_ = os.Remove(testFile)
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
}

// Dir returns the configuration directory path.
func Dir() (string, error) {
	return dir()
}
