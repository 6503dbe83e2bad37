// Package cli implements the callrec commands. Every command receives an
// Env holding its dependencies so that tests can replace them.
package cli

import (
	"context"
	"io"
	"os"
	"runtime"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/go-callrec/internal/audio"
	"github.com/alnah/go-callrec/internal/call"
	"github.com/alnah/go-callrec/internal/config"
	"github.com/alnah/go-callrec/internal/directory"
	"github.com/alnah/go-callrec/internal/ffmpeg"
	"github.com/alnah/go-callrec/internal/notes"
	"github.com/alnah/go-callrec/internal/profile"
	"github.com/alnah/go-callrec/internal/routing"
	"github.com/alnah/go-callrec/internal/store"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// Env must not be nil when passed to command functions. Use DefaultEnv()
// or NewEnv() to create a valid instance.
type Env struct {
	// I/O and environment
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	Now    func() time.Time

	// Factories for domain objects
	FFmpegResolver     FFmpegResolver
	ConfigLoader       ConfigLoader
	StoreOpener        StoreOpener
	CapturerFactory    CapturerFactory
	RouterFactory      RouterFactory
	DirectoryLoader    DirectoryLoader
	TranscriberFactory TranscriberFactory
}

// FFmpegResolver resolves the path to the FFmpeg binary.
type FFmpegResolver interface {
	Resolve(ctx context.Context) (string, error)
	CheckVersion(ctx context.Context, ffmpegPath string)
}

// ConfigLoader loads and provides access to configuration.
type ConfigLoader interface {
	Load() (config.Config, error)
}

// RecordStore is the recordings database as the commands use it.
type RecordStore interface {
	Insert(ctx context.Context, rec call.Record) (int64, error)
	Get(ctx context.Context, id int64) (store.Recording, error)
	List(ctx context.Context) ([]store.Recording, error)
	ToggleStar(ctx context.Context, id int64) (bool, error)
	SetNotes(ctx context.Context, id int64, notes string) error
	Delete(ctx context.Context, id int64) error
	Close() error
}

// StoreOpener opens the recordings database.
type StoreOpener interface {
	Open(path string) (RecordStore, error)
}

// Capturer acquires captures and lists input devices.
type Capturer interface {
	Acquire(ctx context.Context, src audio.Source, p profile.Profile, outputPath string) (audio.Capture, error)
	ListDevices(ctx context.Context) ([]audio.Device, error)
}

// CapturerFactory creates capturers configured from the user configuration.
type CapturerFactory interface {
	NewCapturer(ffmpegPath string, cfg config.Config) (Capturer, error)
}

// RouterFactory creates the speaker router used by fallback captures.
type RouterFactory interface {
	NewRouter(cfg config.Config) routing.Router
}

// Resolver maps phone numbers to contact names.
type Resolver interface {
	ResolveDisplayName(ctx context.Context, number string) (string, error)
	Len() int
}

// DirectoryLoader loads the contacts directory.
type DirectoryLoader interface {
	Load(path string) (Resolver, error)
}

// TranscriberFactory creates transcribers for recording notes.
type TranscriberFactory interface {
	NewTranscriber(apiKey string) notes.Transcriber
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStdin sets the reader call events are read from by default.
func WithStdin(r io.Reader) EnvOption {
	return func(e *Env) {
		e.Stdin = r
	}
}

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stdout = w
	}
}

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stderr = w
	}
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) {
		e.Getenv = fn
	}
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) {
		e.Now = fn
	}
}

// WithFFmpegResolver sets the FFmpeg resolver.
func WithFFmpegResolver(r FFmpegResolver) EnvOption {
	return func(e *Env) {
		e.FFmpegResolver = r
	}
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) {
		e.ConfigLoader = l
	}
}

// WithStoreOpener sets the database opener.
func WithStoreOpener(o StoreOpener) EnvOption {
	return func(e *Env) {
		e.StoreOpener = o
	}
}

// WithCapturerFactory sets the capturer factory.
func WithCapturerFactory(f CapturerFactory) EnvOption {
	return func(e *Env) {
		e.CapturerFactory = f
	}
}

// WithRouterFactory sets the router factory.
func WithRouterFactory(f RouterFactory) EnvOption {
	return func(e *Env) {
		e.RouterFactory = f
	}
}

// WithDirectoryLoader sets the contacts loader.
func WithDirectoryLoader(l DirectoryLoader) EnvOption {
	return func(e *Env) {
		e.DirectoryLoader = l
	}
}

// WithTranscriberFactory sets the transcriber factory.
func WithTranscriberFactory(f TranscriberFactory) EnvOption {
	return func(e *Env) {
		e.TranscriberFactory = f
	}
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stdin:              os.Stdin,
		Stdout:             os.Stdout,
		Stderr:             os.Stderr,
		Getenv:             os.Getenv,
		Now:                time.Now,
		FFmpegResolver:     &defaultFFmpegResolver{},
		ConfigLoader:       &defaultConfigLoader{},
		StoreOpener:        &defaultStoreOpener{},
		CapturerFactory:    &defaultCapturerFactory{},
		RouterFactory:      &defaultRouterFactory{},
		DirectoryLoader:    &defaultDirectoryLoader{},
		TranscriberFactory: &defaultTranscriberFactory{},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

type defaultFFmpegResolver struct{}

func (defaultFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	return ffmpeg.Resolve(ctx)
}

func (defaultFFmpegResolver) CheckVersion(ctx context.Context, ffmpegPath string) {
	ffmpeg.CheckVersion(ctx, ffmpegPath)
}

type defaultConfigLoader struct{}

func (defaultConfigLoader) Load() (config.Config, error) {
	return config.Load()
}

type defaultStoreOpener struct{}

func (defaultStoreOpener) Open(path string) (RecordStore, error) {
	return store.Open(path)
}

type defaultCapturerFactory struct{}

func (defaultCapturerFactory) NewCapturer(ffmpegPath string, cfg config.Config) (Capturer, error) {
	return audio.NewFFmpegCapturer(ffmpegPath,
		audio.WithMicDevice(cfg.MicDevice()),
		audio.WithCallDevice(cfg.CallDevice()),
	)
}

type defaultRouterFactory struct{}

func (defaultRouterFactory) NewRouter(cfg config.Config) routing.Router {
	// Only the Pulse server exposes a switchable default output.
	if runtime.GOOS != "linux" {
		return routing.Nop{}
	}
	return routing.NewPulseRouter(audio.NewPulseServer(), cfg.SpeakerSink())
}

type defaultDirectoryLoader struct{}

func (defaultDirectoryLoader) Load(path string) (Resolver, error) {
	return directory.Load(path)
}

type defaultTranscriberFactory struct{}

func (defaultTranscriberFactory) NewTranscriber(apiKey string) notes.Transcriber {
	return notes.NewOpenAITranscriber(openai.NewClient(apiKey))
}

// Compile-time interface verification.
var (
	_ FFmpegResolver     = (*defaultFFmpegResolver)(nil)
	_ ConfigLoader       = (*defaultConfigLoader)(nil)
	_ StoreOpener        = (*defaultStoreOpener)(nil)
	_ CapturerFactory    = (*defaultCapturerFactory)(nil)
	_ RouterFactory      = (*defaultRouterFactory)(nil)
	_ DirectoryLoader    = (*defaultDirectoryLoader)(nil)
	_ TranscriberFactory = (*defaultTranscriberFactory)(nil)
	_ RecordStore        = (*store.Store)(nil)
	_ Capturer           = (*audio.FFmpegCapturer)(nil)
	_ Resolver           = (*directory.Directory)(nil)
)
