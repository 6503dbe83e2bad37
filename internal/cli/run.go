package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-callrec/internal/call"
	"github.com/alnah/go-callrec/internal/config"
	"github.com/alnah/go-callrec/internal/directory"
	"github.com/alnah/go-callrec/internal/interrupt"
	"github.com/alnah/go-callrec/internal/notes"
	"github.com/alnah/go-callrec/internal/profile"
	"github.com/alnah/go-callrec/internal/session"
)

// shutdownTimeout bounds the final stop and the pending record writes.
const shutdownTimeout = 30 * time.Second

// runOptions holds the flag overrides for the run command.
type runOptions struct {
	events     string // Path of the event stream; "" or "-" reads stdin.
	quality    string
	storageDir string
	verbose    bool
}

// RunCmd creates the run command, the recording daemon.
// The env parameter provides injectable dependencies for testing.
func RunCmd(env *Env) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Record calls as they happen",
		Long: `Watch call events and record every answered or placed call.

Events are read one per line, either JSON such as
  {"state":"ringing","number":"+15551234567"}
or the plain form "ringing +15551234567", "offhook" and "idle".

Each call is recorded at the configured quality. When the in-call audio
cannot be captured, the microphone is recorded at low quality instead,
with call audio routed to the speaker. Finished calls are saved to the
recordings database; see 'callrec list'.

Press Ctrl+C once to stop and save the current call, twice to discard it.`,
		Example: `  telephony-bridge | callrec run
  callrec run --events /run/callrec/events --quality high
  callrec run --storage-dir ~/calls -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.quality != "" {
				if _, err := profile.ParseTier(opts.quality); err != nil {
					return err
				}
			}
			return runDaemonWithInterrupt(cmd.Context(), env, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.events, "events", "e", "", "Read call events from this file or pipe (default: stdin)")
	cmd.Flags().StringVarP(&opts.quality, "quality", "q", "", "Recording quality: low, medium or high (overrides config)")
	cmd.Flags().StringVar(&opts.storageDir, "storage-dir", "", "Directory for recordings (overrides config)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log every state change")

	return cmd
}

// runDaemonWithInterrupt installs the double Ctrl+C handler: the first
// interrupt stops and saves, the second discards the running capture.
func runDaemonWithInterrupt(parentCtx context.Context, env *Env, opts runOptions) error {
	handler, ctx := interrupt.NewHandlerWithOptions(parentCtx, interrupt.Options{
		SigCh:  notifyInterrupts(),
		Stderr: env.Stderr,
	})
	defer handler.Stop()

	return runDaemon(ctx, env, opts, handler.OnAbort)
}

// notifyInterrupts returns a channel receiving SIGINT and SIGTERM.
func notifyInterrupts() <-chan os.Signal {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}

// runDaemon records calls until the event stream ends or ctx is canceled.
// onAbort, when non-nil, receives the function that discards a running capture.
func runDaemon(ctx context.Context, env *Env, opts runOptions, onAbort func(func())) error {
	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}
	cfg = applyOverrides(cfg, opts)

	// Fail fast on values the settings reload would otherwise paper over.
	tier, err := cfg.Quality()
	if err != nil {
		return err
	}
	if _, err := cfg.AutoRecord(); err != nil {
		return err
	}
	lookupTimeout, err := cfg.LookupTimeout()
	if err != nil {
		return err
	}
	transcribe, err := cfg.TranscribeNotes()
	if err != nil {
		return err
	}
	storageDir := cfg.StorageDir()
	if err := config.EnsureDir(storageDir); err != nil {
		return fmt.Errorf("invalid storage-dir: %w", err)
	}

	ffmpegPath, err := env.FFmpegResolver.Resolve(ctx)
	if err != nil {
		return err
	}
	env.FFmpegResolver.CheckVersion(ctx, ffmpegPath)

	logger := newLogger(env.Stderr, opts.verbose)

	st, err := openStore(env, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	var sink session.Sink = st
	if transcribe {
		apiKey := env.Getenv(EnvOpenAIAPIKey)
		if apiKey == "" {
			return fmt.Errorf("%s is on: %w", config.KeyTranscribeNotes, notes.ErrAPIKeyMissing)
		}
		sink = notes.NewAnnotator(st, env.TranscriberFactory.NewTranscriber(apiKey), logger)
	}

	capturer, err := env.CapturerFactory.NewCapturer(ffmpegPath, cfg)
	if err != nil {
		return err
	}

	contacts, err := loadContacts(env, cfg)
	if err != nil {
		return err
	}

	ctrl, err := session.NewController(capturer, sink,
		session.WithResolver(contacts),
		session.WithRouter(env.RouterFactory.NewRouter(cfg)),
		session.WithSettings(settingsLoader(env, opts, logger)),
		session.WithClock(env.Now),
		session.WithLogger(logger),
		session.WithLookupTimeout(lookupTimeout),
		session.WithFailureNotifier(func(cc call.Context, err error) {
			fmt.Fprintf(env.Stderr, "Recording failed (%s): %v\n", callLabel(cc), err)
		}),
	)
	if err != nil {
		return err
	}
	if onAbort != nil {
		onAbort(ctrl.Abort)
	}

	in, closeEvents, err := openEvents(env, opts.events)
	if err != nil {
		return err
	}
	defer closeEvents()

	fmt.Fprintf(env.Stderr, "Waiting for calls: quality %s, saving to %s, %d contacts (press Ctrl+C to stop)\n",
		tier, storageDir, contacts.Len())

	events := make(chan call.Event)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return call.NewSource(in, logger).Run(gctx, events)
	})
	g.Go(func() error {
		return ctrl.Run(gctx, events)
	})
	runErr := g.Wait()

	interrupted := ctx.Err() != nil
	if interrupted {
		fmt.Fprintln(env.Stderr, "Stopping...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	shutdownErr := ctrl.Shutdown(shutdownCtx)

	if runErr != nil && !(interrupted && errors.Is(runErr, context.Canceled)) && !errors.Is(runErr, session.ErrClosed) {
		return errors.Join(runErr, shutdownErr)
	}
	return shutdownErr
}

// applyOverrides layers the command flags over the loaded configuration.
func applyOverrides(cfg config.Config, opts runOptions) config.Config {
	return cfg.
		With(config.KeyQuality, opts.quality).
		With(config.KeyStorageDir, opts.storageDir)
}

// settingsLoader re-reads the configuration each time a call becomes
// active, so edits made with 'callrec config set' apply to the next call.
func settingsLoader(env *Env, opts runOptions, logger *slog.Logger) func() session.Settings {
	return func() session.Settings {
		cfg, err := env.ConfigLoader.Load()
		if err != nil {
			logger.Warn("reloading config failed", "error", err)
		}
		cfg = applyOverrides(cfg, opts)

		tier, err := cfg.Quality()
		if err != nil {
			logger.Warn("using default quality", "error", err)
			tier = profile.DefaultTier
		}
		auto, err := cfg.AutoRecord()
		if err != nil {
			logger.Warn("keeping auto-record on", "error", err)
			auto = true
		}
		return session.Settings{
			Quality:     tier,
			StorageRoot: cfg.StorageDir(),
			Paused:      !auto,
		}
	}
}

// newLogger returns the text logger for daemon diagnostics.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openEvents opens the event stream. The returned func closes it.
func openEvents(env *Env, path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return env.Stdin, func() {}, nil
	}
	f, err := os.Open(path) // #nosec G304 -- user-provided event stream
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrEventsSource, err)
	}
	return f, func() { _ = f.Close() }, nil
}

// openStore opens the recordings database named by cfg.
func openStore(env *Env, cfg config.Config) (RecordStore, error) {
	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}
	return env.StoreOpener.Open(dbPath)
}

// loadContacts loads the contacts file named by cfg.
func loadContacts(env *Env, cfg config.Config) (Resolver, error) {
	path, err := cfg.ContactsFile()
	if err != nil {
		return nil, err
	}
	return env.DirectoryLoader.Load(path)
}

// callLabel names a call for messages: contact, number, or direction only.
func callLabel(cc call.Context) string {
	switch {
	case cc.DisplayName != "":
		return fmt.Sprintf("%s call with %s", cc.Direction, cc.DisplayName)
	case cc.Number != "":
		return fmt.Sprintf("%s call with %s", cc.Direction, directory.FormatNumber(cc.Number))
	default:
		return fmt.Sprintf("%s call", cc.Direction)
	}
}
