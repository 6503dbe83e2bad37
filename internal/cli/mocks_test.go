package cli

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/alnah/go-callrec/internal/audio"
	"github.com/alnah/go-callrec/internal/call"
	"github.com/alnah/go-callrec/internal/config"
	"github.com/alnah/go-callrec/internal/directory"
	"github.com/alnah/go-callrec/internal/notes"
	"github.com/alnah/go-callrec/internal/profile"
	"github.com/alnah/go-callrec/internal/routing"
	"github.com/alnah/go-callrec/internal/store"
)

// ---------------------------------------------------------------------------
// Mock FFmpegResolver
// ---------------------------------------------------------------------------

type mockFFmpegResolver struct {
	ResolveFunc      func(ctx context.Context) (string, error)
	CheckVersionFunc func(ctx context.Context, ffmpegPath string)

	mu           sync.Mutex
	resolveCalls int
}

func (m *mockFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx)
	}
	return "/usr/bin/ffmpeg", nil
}

func (m *mockFFmpegResolver) CheckVersion(ctx context.Context, ffmpegPath string) {
	if m.CheckVersionFunc != nil {
		m.CheckVersionFunc(ctx, ffmpegPath)
	}
}

func (m *mockFFmpegResolver) ResolveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveCalls
}

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc func() (config.Config, error)

	mu        sync.Mutex
	loadCalls int
}

func (m *mockConfigLoader) Load() (config.Config, error) {
	m.mu.Lock()
	m.loadCalls++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc()
	}
	return config.Config{}, nil
}

func (m *mockConfigLoader) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// ---------------------------------------------------------------------------
// Mock StoreOpener + RecordStore
// ---------------------------------------------------------------------------

type mockStoreOpener struct {
	OpenErr error

	mu        sync.Mutex
	openPaths []string
	store     *mockStore
}

func (m *mockStoreOpener) Open(path string) (RecordStore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openPaths = append(m.openPaths, path)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	if m.store == nil {
		m.store = newMockStore()
	}
	return m.store, nil
}

func (m *mockStoreOpener) OpenPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.openPaths...)
}

// mockStore keeps rows in memory, with the semantics of store.Store.
type mockStore struct {
	InsertErr error

	mu      sync.Mutex
	rows    map[int64]store.Recording
	nextID  int64
	deleted []int64
	closed  int
}

func newMockStore() *mockStore {
	return &mockStore{rows: make(map[int64]store.Recording), nextID: 1}
}

func (m *mockStore) Insert(_ context.Context, rec call.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return 0, m.InsertErr
	}
	id := m.nextID
	m.nextID++
	m.rows[id] = recordingFrom(id, rec)
	return id, nil
}

func (m *mockStore) Get(_ context.Context, id int64) (store.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return store.Recording{}, fmt.Errorf("%w: %d", store.ErrNotFound, id)
	}
	return row, nil
}

func (m *mockStore) List(context.Context) ([]store.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]store.Recording, 0, len(m.rows))
	for _, row := range m.rows {
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b store.Recording) int {
		return cmp.Or(cmp.Compare(b.Date, a.Date), cmp.Compare(b.ID, a.ID))
	})
	return rows, nil
}

func (m *mockStore) ToggleStar(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return false, fmt.Errorf("%w: %d", store.ErrNotFound, id)
	}
	row.Starred = !row.Starred
	m.rows[id] = row
	return row.Starred, nil
}

func (m *mockStore) SetNotes(_ context.Context, id int64, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("%w: %d", store.ErrNotFound, id)
	}
	row.Notes = nil
	if notes != "" {
		row.Notes = &notes
	}
	m.rows[id] = row
	return nil
}

func (m *mockStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return fmt.Errorf("%w: %d", store.ErrNotFound, id)
	}
	delete(m.rows, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockStore) Records() []call.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	recs := make([]call.Record, len(ids))
	for i, id := range ids {
		recs[i] = m.rows[id].Record()
	}
	return recs
}

func (m *mockStore) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// recordingFrom builds the row store.Store would write for rec.
func recordingFrom(id int64, rec call.Record) store.Recording {
	opt := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	callType := 2
	if rec.Direction == call.Incoming {
		callType = 1
	}
	return store.Recording{
		ID:          id,
		PhoneNumber: opt(rec.Number),
		ContactName: opt(rec.DisplayName),
		CallType:    callType,
		FilePath:    rec.FilePath,
		DurationMs:  rec.Duration.Milliseconds(),
		Date:        rec.CompletedAt.UnixMilli(),
		Starred:     rec.Starred,
		Notes:       opt(rec.Notes),
	}
}

// ---------------------------------------------------------------------------
// Mock CapturerFactory + Capturer + Capture
// ---------------------------------------------------------------------------

type mockCapturerFactory struct {
	NewCapturerErr error

	mu          sync.Mutex
	ffmpegPaths []string
	configs     []config.Config
	capturer    *mockCapturer
}

func (m *mockCapturerFactory) NewCapturer(ffmpegPath string, cfg config.Config) (Capturer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ffmpegPaths = append(m.ffmpegPaths, ffmpegPath)
	m.configs = append(m.configs, cfg)
	if m.NewCapturerErr != nil {
		return nil, m.NewCapturerErr
	}
	if m.capturer == nil {
		m.capturer = &mockCapturer{}
	}
	return m.capturer, nil
}

func (m *mockCapturerFactory) FFmpegPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ffmpegPaths...)
}

type acquireCall struct {
	Source  audio.Source
	Profile profile.Profile
	Path    string
}

type mockCapturer struct {
	AcquireFunc     func(src audio.Source) error
	ListDevicesFunc func(ctx context.Context) ([]audio.Device, error)

	mu       sync.Mutex
	acquires []acquireCall
	captures []*mockCapture
}

func (m *mockCapturer) Acquire(_ context.Context, src audio.Source, p profile.Profile, outputPath string) (audio.Capture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquires = append(m.acquires, acquireCall{Source: src, Profile: p, Path: outputPath})
	if m.AcquireFunc != nil {
		if err := m.AcquireFunc(src); err != nil {
			return nil, err
		}
	}
	c := &mockCapture{done: make(chan struct{})}
	m.captures = append(m.captures, c)
	return c, nil
}

func (m *mockCapturer) ListDevices(ctx context.Context) ([]audio.Device, error) {
	if m.ListDevicesFunc != nil {
		return m.ListDevicesFunc(ctx)
	}
	return nil, nil
}

func (m *mockCapturer) Acquires() []acquireCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]acquireCall(nil), m.acquires...)
}

func (m *mockCapturer) Captures() []*mockCapture {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*mockCapture(nil), m.captures...)
}

type mockCapture struct {
	done chan struct{}

	mu       sync.Mutex
	started  bool
	stops    int
	abandons int
}

func (c *mockCapture) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *mockCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *mockCapture) Abandon() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandons++
	return nil
}

func (c *mockCapture) Done() <-chan struct{} { return c.done }

func (c *mockCapture) Counts() (stops, abandons int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops, c.abandons
}

// ---------------------------------------------------------------------------
// Mock RouterFactory
// ---------------------------------------------------------------------------

type mockRouterFactory struct{}

func (mockRouterFactory) NewRouter(config.Config) routing.Router { return routing.Nop{} }

// ---------------------------------------------------------------------------
// Mock DirectoryLoader
// ---------------------------------------------------------------------------

type mockDirectoryLoader struct {
	Contacts []directory.Contact
	LoadErr  error

	mu    sync.Mutex
	paths []string
}

func (m *mockDirectoryLoader) Load(path string) (Resolver, error) {
	m.mu.Lock()
	m.paths = append(m.paths, path)
	m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return directory.New(m.Contacts), nil
}

// ---------------------------------------------------------------------------
// Mock TranscriberFactory + Transcriber
// ---------------------------------------------------------------------------

type mockTranscriberFactory struct {
	NewTranscriberFunc func(apiKey string) notes.Transcriber

	mu                  sync.Mutex
	newTranscriberCalls []string // API keys passed
	transcriber         *mockTranscriber
}

func (m *mockTranscriberFactory) NewTranscriber(apiKey string) notes.Transcriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newTranscriberCalls = append(m.newTranscriberCalls, apiKey)

	if m.NewTranscriberFunc != nil {
		return m.NewTranscriberFunc(apiKey)
	}
	if m.transcriber == nil {
		m.transcriber = &mockTranscriber{}
	}
	return m.transcriber
}

func (m *mockTranscriberFactory) NewTranscriberCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.newTranscriberCalls...)
}

type mockTranscriber struct {
	TranscribeFunc func(ctx context.Context, audioPath string) (string, error)

	mu    sync.Mutex
	paths []string
}

func (m *mockTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	m.mu.Lock()
	m.paths = append(m.paths, audioPath)
	m.mu.Unlock()

	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audioPath)
	}
	return "transcribed text", nil
}

func (m *mockTranscriber) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.paths...)
}

// Compile-time interface checks.
var (
	_ FFmpegResolver     = (*mockFFmpegResolver)(nil)
	_ ConfigLoader       = (*mockConfigLoader)(nil)
	_ StoreOpener        = (*mockStoreOpener)(nil)
	_ RecordStore        = (*mockStore)(nil)
	_ CapturerFactory    = (*mockCapturerFactory)(nil)
	_ Capturer           = (*mockCapturer)(nil)
	_ audio.Capture      = (*mockCapture)(nil)
	_ RouterFactory      = mockRouterFactory{}
	_ DirectoryLoader    = (*mockDirectoryLoader)(nil)
	_ TranscriberFactory = (*mockTranscriberFactory)(nil)
	_ notes.Transcriber  = (*mockTranscriber)(nil)
)
