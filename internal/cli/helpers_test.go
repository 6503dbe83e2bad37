package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-callrec/internal/call"
	"github.com/alnah/go-callrec/internal/config"
)

// ---------------------------------------------------------------------------
// syncBuffer - thread-safe bytes.Buffer for concurrent test output
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Compile-time check that syncBuffer implements io.Writer.
var _ io.Writer = (*syncBuffer)(nil)

// ---------------------------------------------------------------------------
// testMocks - convenience struct for grouping all mocks
// ---------------------------------------------------------------------------

type testMocks struct {
	ffmpegResolver *mockFFmpegResolver
	configLoader   *mockConfigLoader
	storeOpener    *mockStoreOpener
	capturer       *mockCapturerFactory
	directory      *mockDirectoryLoader
	transcriber    *mockTranscriberFactory
}

func newTestMocks() *testMocks {
	return &testMocks{
		ffmpegResolver: &mockFFmpegResolver{},
		configLoader:   &mockConfigLoader{},
		storeOpener:    &mockStoreOpener{store: newMockStore()},
		capturer:       &mockCapturerFactory{capturer: &mockCapturer{}},
		directory:      &mockDirectoryLoader{},
		transcriber:    &mockTranscriberFactory{transcriber: &mockTranscriber{}},
	}
}

// ---------------------------------------------------------------------------
// testEnv - creates a fully mocked Env for testing
// ---------------------------------------------------------------------------

// testNow is the fixed clock of test environments.
var testNow = time.Date(2024, time.March, 5, 14, 30, 0, 0, time.Local)

// testEnvOptions configures a test environment.
type testEnvOptions struct {
	stdin  io.Reader
	getenv func(string) string
	now    func() time.Time
	mocks  *testMocks
}

// testEnvOption configures testEnv.
type testEnvOption func(*testEnvOptions)

func withTestStdin(s string) testEnvOption {
	return func(o *testEnvOptions) { o.stdin = strings.NewReader(s) }
}

func withTestGetenv(fn func(string) string) testEnvOption {
	return func(o *testEnvOptions) { o.getenv = fn }
}

// testEnv creates a test Env with all dependencies mocked.
// Returns the Env, its stdout and stderr buffers, and the mocks for assertions.
func testEnv(opts ...testEnvOption) (*Env, *syncBuffer, *syncBuffer, *testMocks) {
	options := &testEnvOptions{
		stdin:  strings.NewReader(""),
		getenv: staticEnv(map[string]string{EnvOpenAIAPIKey: "test-openai-key"}),
		now:    fixedTime(testNow),
		mocks:  newTestMocks(),
	}
	for _, opt := range opts {
		opt(options)
	}

	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	env := NewEnv(
		WithStdin(options.stdin),
		WithStdout(stdout),
		WithStderr(stderr),
		WithGetenv(options.getenv),
		WithNow(options.now),
		WithFFmpegResolver(options.mocks.ffmpegResolver),
		WithConfigLoader(options.mocks.configLoader),
		WithStoreOpener(options.mocks.storeOpener),
		WithCapturerFactory(options.mocks.capturer),
		WithRouterFactory(mockRouterFactory{}),
		WithDirectoryLoader(options.mocks.directory),
		WithTranscriberFactory(options.mocks.transcriber),
	)
	return env, stdout, stderr, options.mocks
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// fixedTime returns a function that always returns the given time.
func fixedTime(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// staticEnv returns a getenv function that returns values from the given map.
func staticEnv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}

// configValues returns a ConfigLoader serving values. Paths that would
// otherwise default to the user's home are pointed into a temp dir.
func configValues(t *testing.T, values map[string]string) *mockConfigLoader {
	t.Helper()
	dir := t.TempDir()
	v := map[string]string{
		config.KeyStorageDir:   filepath.Join(dir, "recordings"),
		config.KeyDBPath:       filepath.Join(dir, "recordings.db"),
		config.KeyContactsFile: filepath.Join(dir, "contacts.toml"),
	}
	for k, val := range values {
		v[k] = val
	}
	return &mockConfigLoader{
		LoadFunc: func() (config.Config, error) {
			return config.New(v), nil
		},
	}
}

// writeAudioFile creates a small file standing in for a recording.
func writeAudioFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, make([]byte, 2048), 0644); err != nil {
		t.Fatalf("failed to create test audio file: %v", err)
	}
	return path
}

// seed inserts records into the mock store and returns their ids in order.
func seed(t *testing.T, m *testMocks, recs ...call.Record) []int64 {
	t.Helper()
	ids := make([]int64, len(recs))
	for i, rec := range recs {
		id, err := m.storeOpener.store.Insert(t.Context(), rec)
		if err != nil {
			t.Fatalf("seed Insert() error = %v", err)
		}
		ids[i] = id
	}
	return ids
}

// newPipe returns a connected event stream. The writer is closed at cleanup.
func newPipe(t *testing.T) (*io.PipeReader, *io.PipeWriter) {
	t.Helper()
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	return pr, pw
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
