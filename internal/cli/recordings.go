package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alnah/go-callrec/internal/call"
	"github.com/alnah/go-callrec/internal/directory"
	"github.com/alnah/go-callrec/internal/format"
	"github.com/alnah/go-callrec/internal/notes"
)

// ListCmd creates the list command.
func ListCmd(env *Env) *cobra.Command {
	var starred bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved recordings, newest first",
		Example: `  callrec list
  callrec list --starred`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), env, starred)
		},
	}

	cmd.Flags().BoolVarP(&starred, "starred", "s", false, "Only show starred recordings")
	return cmd
}

// StarCmd creates the star command.
func StarCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:     "star <id>",
		Short:   "Star or unstar a recording",
		Example: `  callrec star 12`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runStar(cmd.Context(), env, id)
		},
	}
}

// NoteCmd creates the note command.
func NoteCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "note <id> [text]",
		Short: "Set or clear the notes of a recording",
		Long: `Set the notes of a recording. Without text, the notes are cleared.

Several words are joined with spaces.`,
		Example: `  callrec note 12 "call back on Monday"
  callrec note 12`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runNote(cmd.Context(), env, id, strings.Join(args[1:], " "))
		},
	}
}

// DeleteCmd creates the delete command.
func DeleteCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Short:   "Delete a recording and its audio file",
		Example: `  callrec delete 12`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runDelete(cmd.Context(), env, id)
		},
	}
}

// TranscribeCmd creates the transcribe command.
func TranscribeCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <id>",
		Short: "Transcribe a recording into its notes",
		Long: `Transcribe a recording with OpenAI and store the text as its notes,
replacing any notes already set.

Requires OPENAI_API_KEY. Recordings in 3GP (low quality and fallback
captures) and ADTS AAC (high quality) cannot be transcribed.`,
		Example: `  callrec transcribe 12`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runTranscribe(cmd.Context(), env, id)
		},
	}
}

// parseID parses a recording id argument.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidID)
	}
	return id, nil
}

// withStore opens the database, runs fn and closes it.
func withStore(env *Env, fn func(RecordStore) error) error {
	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}
	st, err := openStore(env, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return fn(st)
}

// runList prints recordings as a table on stdout.
func runList(ctx context.Context, env *Env, starredOnly bool) error {
	return withStore(env, func(st RecordStore) error {
		rows, err := st.List(ctx)
		if err != nil {
			return err
		}

		now := env.Now()
		tw := tabwriter.NewWriter(env.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tWHEN\tCALL\tWITH\tLENGTH\tSIZE\t")
		shown := 0
		for _, row := range rows {
			if starredOnly && !row.Starred {
				continue
			}
			rec := row.Record()
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				row.ID,
				format.When(rec.CompletedAt, now),
				rec.Direction,
				counterpart(rec),
				format.Duration(rec.Duration),
				fileSizeLabel(rec.FilePath),
				starMark(rec.Starred),
			)
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(env.Stderr, "No recordings.")
			return nil
		}
		return tw.Flush()
	})
}

// runStar toggles the starred flag.
func runStar(ctx context.Context, env *Env, id int64) error {
	return withStore(env, func(st RecordStore) error {
		starred, err := st.ToggleStar(ctx, id)
		if err != nil {
			return err
		}
		if starred {
			fmt.Fprintf(env.Stderr, "Starred recording %d\n", id)
		} else {
			fmt.Fprintf(env.Stderr, "Unstarred recording %d\n", id)
		}
		return nil
	})
}

// runNote replaces the notes of a recording.
func runNote(ctx context.Context, env *Env, id int64, text string) error {
	return withStore(env, func(st RecordStore) error {
		if err := st.SetNotes(ctx, id, strings.TrimSpace(text)); err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			fmt.Fprintf(env.Stderr, "Cleared notes of recording %d\n", id)
		} else {
			fmt.Fprintf(env.Stderr, "Saved notes of recording %d\n", id)
		}
		return nil
	})
}

// runDelete removes a recording row and its file.
func runDelete(ctx context.Context, env *Env, id int64) error {
	return withStore(env, func(st RecordStore) error {
		row, err := st.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := st.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(env.Stderr, "Deleted recording %d (%s)\n", id, row.FilePath)
		return nil
	})
}

// runTranscribe transcribes a saved recording and stores the text as notes.
func runTranscribe(ctx context.Context, env *Env, id int64) error {
	apiKey := env.Getenv(EnvOpenAIAPIKey)
	if apiKey == "" {
		return notes.ErrAPIKeyMissing
	}

	return withStore(env, func(st RecordStore) error {
		row, err := st.Get(ctx, id)
		if err != nil {
			return err
		}
		if !notes.Supported(row.FilePath) {
			return fmt.Errorf("%s: %w", row.FilePath, notes.ErrUnsupportedFormat)
		}

		fmt.Fprintf(env.Stderr, "Transcribing recording %d...\n", id)
		text, err := env.TranscriberFactory.NewTranscriber(apiKey).Transcribe(ctx, row.FilePath)
		if err != nil {
			return err
		}
		if err := st.SetNotes(ctx, id, text); err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, text)
		return nil
	})
}

// counterpart names the other party of a recorded call.
func counterpart(rec call.Record) string {
	switch {
	case rec.DisplayName != "":
		return rec.DisplayName
	case rec.Number != "":
		return directory.FormatNumber(rec.Number)
	default:
		return "-"
	}
}

// fileSizeLabel returns the size of the audio file, or "missing".
func fileSizeLabel(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "missing"
	}
	return format.Size(info.Size())
}

func starMark(starred bool) string {
	if starred {
		return "*"
	}
	return ""
}
