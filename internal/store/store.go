// Package store persists finalized call recordings in SQLite through GORM.
// Deleting a recording also removes its audio file.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alnah/go-callrec/internal/call"
	"github.com/alnah/go-callrec/internal/retry"
)

// ErrNotFound indicates no recording has the requested id.
var ErrNotFound = errors.New("recording not found")

// Stored call types.
const (
	callTypeIncoming = 1
	callTypeOutgoing = 2
)

// Recording is one row of the recordings table.
type Recording struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	PhoneNumber *string `gorm:"size:64;index"`
	ContactName *string `gorm:"size:200"`
	CallType    int     `gorm:"not null;index"`
	FilePath    string  `gorm:"size:1024;not null"`
	DurationMs  int64   `gorm:"not null"`
	Date        int64   `gorm:"not null;index"` // Completion time, epoch milliseconds.
	Starred     bool    `gorm:"not null;default:false"`
	Notes       *string `gorm:"type:text"`
}

func (Recording) TableName() string {
	return "recordings"
}

// Record converts the row back to the domain type.
func (r Recording) Record() call.Record {
	d := call.DirectionUnknown
	switch r.CallType {
	case callTypeIncoming:
		d = call.Incoming
	case callTypeOutgoing:
		d = call.Outgoing
	}
	return call.Record{
		Number:      deref(r.PhoneNumber),
		DisplayName: deref(r.ContactName),
		Direction:   d,
		FilePath:    r.FilePath,
		Duration:    time.Duration(r.DurationMs) * time.Millisecond,
		CompletedAt: time.UnixMilli(r.Date),
		Starred:     r.Starred,
		Notes:       deref(r.Notes),
	}
}

func fromRecord(rec call.Record) Recording {
	callType := callTypeOutgoing
	if rec.Direction == call.Incoming {
		callType = callTypeIncoming
	}
	return Recording{
		PhoneNumber: optional(rec.Number),
		ContactName: optional(rec.DisplayName),
		CallType:    callType,
		FilePath:    rec.FilePath,
		DurationMs:  rec.Duration.Milliseconds(),
		Date:        rec.CompletedAt.UnixMilli(),
		Starred:     rec.Starred,
		Notes:       optional(rec.Notes),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Store is the recordings database.
type Store struct {
	db      *gorm.DB
	retry   retry.Config
	remover func(string) error
}

// Option configures a Store.
type Option func(*Store)

// WithRetry sets the backoff used while the database is busy.
func WithRetry(cfg retry.Config) Option {
	return func(s *Store) { s.retry = cfg }
}

// WithFileRemover sets how Delete removes audio files.
func WithFileRemover(fn func(string) error) Option {
	return func(s *Store) { s.remover = fn }
}

// Open opens or creates the database at path and migrates the schema.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Recording{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	s := &Store{
		db:      db,
		retry:   retry.Config{MaxRetries: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second},
		remover: os.Remove,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isBusy reports SQLite lock contention, the only error worth retrying.
func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func (s *Store) do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return retry.Run(ctx, s.retry, func() error {
		return fn(s.db.WithContext(ctx))
	}, isBusy)
}

// Insert stores a finalized recording and returns its id.
func (s *Store) Insert(ctx context.Context, rec call.Record) (int64, error) {
	row := fromRecord(rec)
	err := s.do(ctx, func(tx *gorm.DB) error {
		row.ID = 0
		return tx.Create(&row).Error
	})
	if err != nil {
		return 0, fmt.Errorf("insert recording: %w", err)
	}
	return row.ID, nil
}

// Get returns one recording.
func (s *Store) Get(ctx context.Context, id int64) (Recording, error) {
	var row Recording
	err := s.do(ctx, func(tx *gorm.DB) error {
		return tx.First(&row, id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Recording{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return Recording{}, fmt.Errorf("get recording %d: %w", id, err)
	}
	return row, nil
}

// List returns every recording, newest first.
func (s *Store) List(ctx context.Context) ([]Recording, error) {
	var rows []Recording
	err := s.do(ctx, func(tx *gorm.DB) error {
		return tx.Order("date DESC").Order("id DESC").Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return rows, nil
}

// SetStarred marks or unmarks a recording.
func (s *Store) SetStarred(ctx context.Context, id int64, starred bool) error {
	return s.update(ctx, id, "starred", starred)
}

// ToggleStar flips the starred flag and returns the new value.
func (s *Store) ToggleStar(ctx context.Context, id int64) (bool, error) {
	row, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if err := s.SetStarred(ctx, id, !row.Starred); err != nil {
		return false, err
	}
	return !row.Starred, nil
}

// SetNotes replaces the notes of a recording. Empty notes are cleared.
func (s *Store) SetNotes(ctx context.Context, id int64, notes string) error {
	return s.update(ctx, id, "notes", optional(notes))
}

func (s *Store) update(ctx context.Context, id int64, column string, value any) error {
	var affected int64
	err := s.do(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&Recording{}).Where("id = ?", id).Update(column, value)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("update recording %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// Delete removes the row, then the audio file, in one transaction: the row
// is kept when the file cannot be removed, and the file is kept when the row
// cannot be deleted. A file that is already gone does not prevent the delete.
func (s *Store) Delete(ctx context.Context, id int64) error {
	row, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.do(ctx, func(tx *gorm.DB) error {
		return tx.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(&Recording{}, id).Error; err != nil {
				return fmt.Errorf("delete recording %d: %w", id, err)
			}
			if row.FilePath == "" {
				return nil
			}
			if err := s.remover(row.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove %s: %w", row.FilePath, err)
			}
			return nil
		})
	})
}
