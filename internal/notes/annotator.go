package notes

import (
	"context"
	"log/slog"

	"github.com/alnah/go-callrec/internal/call"
)

// recordStore is the part of the record store the annotator needs.
// *store.Store implements it.
type recordStore interface {
	Insert(ctx context.Context, rec call.Record) (int64, error)
	SetNotes(ctx context.Context, id int64, notes string) error
}

// Annotator stores records and then fills their notes with a transcript.
// It is used in place of the store as the session's record sink.
type Annotator struct {
	store       recordStore
	transcriber Transcriber
	logger      *slog.Logger
}

// NewAnnotator wraps s. A nil logger discards log output.
func NewAnnotator(s recordStore, t Transcriber, logger *slog.Logger) *Annotator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Annotator{store: s, transcriber: t, logger: logger}
}

// Insert stores rec and returns its id. Transcription failures, including
// ctx ending mid-transcription, are logged and never returned: the recording
// is already safe at that point.
func (a *Annotator) Insert(ctx context.Context, rec call.Record) (int64, error) {
	id, err := a.store.Insert(ctx, rec)
	if err != nil {
		return 0, err
	}
	if rec.Notes != "" || !Supported(rec.FilePath) {
		return id, nil
	}

	logger := a.logger.With("recording", id, "file", rec.FilePath)
	text, err := a.transcriber.Transcribe(ctx, rec.FilePath)
	if err != nil {
		logger.Warn("transcription failed", "error", err)
		return id, nil
	}
	if text == "" {
		return id, nil
	}
	if err := a.store.SetNotes(ctx, id, text); err != nil {
		logger.Warn("saving transcript failed", "error", err)
		return id, nil
	}
	logger.Info("transcript saved", "chars", len(text))
	return id, nil
}
