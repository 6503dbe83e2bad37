package notes_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alnah/go-callrec/internal/call"
	"github.com/alnah/go-callrec/internal/notes"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type fakeStore struct {
	inserted  []call.Record
	insertErr error
	notes     map[int64]string
	notesErr  error
}

func (s *fakeStore) Insert(_ context.Context, rec call.Record) (int64, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.inserted = append(s.inserted, rec)
	return int64(len(s.inserted)), nil
}

func (s *fakeStore) SetNotes(_ context.Context, id int64, text string) error {
	if s.notesErr != nil {
		return s.notesErr
	}
	if s.notes == nil {
		s.notes = make(map[int64]string)
	}
	s.notes[id] = text
	return nil
}

type fakeTranscriber struct {
	text  string
	err   error
	paths []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) (string, error) {
	f.paths = append(f.paths, path)
	return f.text, f.err
}

// blockingTranscriber works until ctx is done.
type blockingTranscriber struct{}

func (blockingTranscriber) Transcribe(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// ---------------------------------------------------------------------------
// Annotator
// ---------------------------------------------------------------------------

func TestAnnotator_Insert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		rec            call.Record
		transcriber    *fakeTranscriber
		notesErr       error
		wantNotes      string
		wantTranscribe bool
	}{
		{
			name:           "transcript saved",
			rec:            call.Record{FilePath: "/rec/a.mp4"},
			transcriber:    &fakeTranscriber{text: "call me back"},
			wantNotes:      "call me back",
			wantTranscribe: true,
		},
		{
			name:        "unsupported container skipped",
			rec:         call.Record{FilePath: "/rec/a.3gp"},
			transcriber: &fakeTranscriber{text: "unused"},
		},
		{
			name:        "existing notes kept",
			rec:         call.Record{FilePath: "/rec/a.mp4", Notes: "mine"},
			transcriber: &fakeTranscriber{text: "unused"},
		},
		{
			name:           "transcription failure swallowed",
			rec:            call.Record{FilePath: "/rec/a.mp4"},
			transcriber:    &fakeTranscriber{err: notes.ErrAuthFailed},
			wantTranscribe: true,
		},
		{
			name:           "empty transcript not saved",
			rec:            call.Record{FilePath: "/rec/a.mp4"},
			transcriber:    &fakeTranscriber{},
			wantTranscribe: true,
		},
		{
			name:           "notes update failure swallowed",
			rec:            call.Record{FilePath: "/rec/a.mp4"},
			transcriber:    &fakeTranscriber{text: "hello"},
			notesErr:       errors.New("database is locked"),
			wantTranscribe: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := &fakeStore{notesErr: tt.notesErr}
			a := notes.NewAnnotator(store, tt.transcriber, nil)

			id, err := a.Insert(context.Background(), tt.rec)
			if err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
			if id != 1 || len(store.inserted) != 1 {
				t.Fatalf("Insert() id = %d, stored = %d, want one record with id 1", id, len(store.inserted))
			}
			if got := store.notes[id]; got != tt.wantNotes {
				t.Errorf("notes = %q, want %q", got, tt.wantNotes)
			}
			if got := len(tt.transcriber.paths) > 0; got != tt.wantTranscribe {
				t.Errorf("transcribed = %v, want %v", got, tt.wantTranscribe)
			}
		})
	}
}

func TestAnnotator_InsertFailure(t *testing.T) {
	t.Parallel()

	store := &fakeStore{insertErr: errors.New("disk full")}
	tr := &fakeTranscriber{text: "unused"}
	a := notes.NewAnnotator(store, tr, nil)

	if _, err := a.Insert(context.Background(), call.Record{FilePath: "/rec/a.mp4"}); err == nil {
		t.Fatal("Insert() error = nil, want error")
	}
	if len(tr.paths) != 0 {
		t.Error("transcribed a recording that was not stored")
	}
}

func TestAnnotator_CanceledTranscriptionKeepsRecord(t *testing.T) {
	t.Parallel()

	st := &fakeStore{}
	a := notes.NewAnnotator(st, blockingTranscriber{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	id, err := a.Insert(ctx, call.Record{FilePath: "/rec/Alice_20240305_142210_incoming.mp4"})
	if err != nil {
		t.Fatalf("Insert() error = %v, want nil once the record is stored", err)
	}
	if id != 1 || len(st.inserted) != 1 {
		t.Errorf("id = %d, inserted = %d, want 1 and 1", id, len(st.inserted))
	}
	if len(st.notes) != 0 {
		t.Errorf("notes = %v, want none", st.notes)
	}
}
