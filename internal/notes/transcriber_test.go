package notes_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/go-callrec/internal/notes"
)

// Notes:
// - Black-box testing via package notes_test.
// - Tests use short delays (1ms) to exercise backoff without slowing the suite.
// - Network I/O with a real OpenAI client is not covered.

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// mockAudioTranscriber implements the client subset used by OpenAITranscriber.
type mockAudioTranscriber struct {
	mu        sync.Mutex
	calls     []openai.AudioRequest
	responses []openai.AudioResponse
	errors    []error
}

func (m *mockAudioTranscriber) CreateTranscription(_ context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := len(m.calls)
	m.calls = append(m.calls, req)
	if idx < len(m.errors) && m.errors[idx] != nil {
		return openai.AudioResponse{}, m.errors[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return openai.AudioResponse{}, nil
}

func (m *mockAudioTranscriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func apiError(status int, msg string) *openai.APIError {
	return &openai.APIError{HTTPStatusCode: status, Message: msg}
}

func fastRetries() notes.TranscriberOption {
	return notes.WithRetryDelays(time.Millisecond, time.Millisecond)
}

// ---------------------------------------------------------------------------
// Transcribe
// ---------------------------------------------------------------------------

func TestTranscribe_Success(t *testing.T) {
	t.Parallel()

	mock := &mockAudioTranscriber{responses: []openai.AudioResponse{{Text: "  Hello, see you Monday.\n"}}}
	tr := notes.NewOpenAITranscriber(mock, notes.WithPrompt("Alice Martin"))

	got, err := tr.Transcribe(context.Background(), "/rec/Alice_20240101_120000_incoming.mp4")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "Hello, see you Monday." {
		t.Errorf("Transcribe() = %q, want trimmed text", got)
	}

	req := mock.calls[0]
	if req.Model != notes.ModelGPT4oMiniTranscribe {
		t.Errorf("Model = %q, want %q", req.Model, notes.ModelGPT4oMiniTranscribe)
	}
	if req.FilePath != "/rec/Alice_20240101_120000_incoming.mp4" {
		t.Errorf("FilePath = %q", req.FilePath)
	}
	if req.Prompt != "Alice Martin" {
		t.Errorf("Prompt = %q, want %q", req.Prompt, "Alice Martin")
	}
}

func TestTranscribe_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"/rec/a.aac", "/rec/a.3gp"} {
		mock := &mockAudioTranscriber{}
		tr := notes.NewOpenAITranscriber(mock)

		_, err := tr.Transcribe(context.Background(), path)
		if !errors.Is(err, notes.ErrUnsupportedFormat) {
			t.Errorf("Transcribe(%q) error = %v, want ErrUnsupportedFormat", path, err)
		}
		if mock.CallCount() != 0 {
			t.Errorf("Transcribe(%q) called the API %d times, want 0", path, mock.CallCount())
		}
	}
}

func TestTranscribe_Retry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		errs      []error
		opts      []notes.TranscriberOption
		wantErr   error
		wantCalls int
	}{
		{
			name:      "rate limit then success",
			errs:      []error{apiError(http.StatusTooManyRequests, "slow down"), nil},
			wantCalls: 2,
		},
		{
			name:      "server error then success",
			errs:      []error{apiError(http.StatusBadGateway, "bad gateway"), nil},
			wantCalls: 2,
		},
		{
			name:      "auth failure is not retried",
			errs:      []error{apiError(http.StatusUnauthorized, "invalid key")},
			wantErr:   notes.ErrAuthFailed,
			wantCalls: 1,
		},
		{
			name:      "quota is not retried",
			errs:      []error{apiError(http.StatusTooManyRequests, "You exceeded your current quota")},
			wantErr:   notes.ErrQuotaExceeded,
			wantCalls: 1,
		},
		{
			name: "retries exhausted",
			errs: []error{
				apiError(http.StatusTooManyRequests, "slow down"),
				apiError(http.StatusTooManyRequests, "slow down"),
				apiError(http.StatusTooManyRequests, "slow down"),
			},
			opts:      []notes.TranscriberOption{notes.WithMaxRetries(2)},
			wantErr:   notes.ErrRateLimit,
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := &mockAudioTranscriber{
				errors:    tt.errs,
				responses: make([]openai.AudioResponse, len(tt.errs)),
			}
			mock.responses[len(tt.errs)-1] = openai.AudioResponse{Text: "ok"}
			opts := append([]notes.TranscriberOption{fastRetries()}, tt.opts...)
			tr := notes.NewOpenAITranscriber(mock, opts...)

			_, err := tr.Transcribe(context.Background(), "/rec/a.mp4")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Transcribe() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Transcribe() error = %v, want %v", err, tt.wantErr)
			}
			if mock.CallCount() != tt.wantCalls {
				t.Errorf("API calls = %d, want %d", mock.CallCount(), tt.wantCalls)
			}
		})
	}
}

func TestTranscribe_CanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock := &mockAudioTranscriber{errors: []error{apiError(http.StatusServiceUnavailable, "down")}}
	tr := notes.NewOpenAITranscriber(mock, fastRetries())

	if _, err := tr.Transcribe(ctx, "/rec/a.mp4"); !errors.Is(err, context.Canceled) {
		t.Errorf("Transcribe() error = %v, want context.Canceled", err)
	}
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rate limit", apiError(429, "Rate limit reached"), notes.ErrRateLimit},
		{"billing", apiError(429, "check your billing details"), notes.ErrQuotaExceeded},
		{"unauthorized", apiError(401, "bad key"), notes.ErrAuthFailed},
		{"request timeout", apiError(408, "timeout"), notes.ErrTimeout},
		{"gateway timeout", apiError(504, "timeout"), notes.ErrTimeout},
		{"bad request", apiError(400, "invalid file"), notes.ErrBadRequest},
		{"forbidden", apiError(403, "region"), notes.ErrBadRequest},
		{"deadline", context.DeadlineExceeded, notes.ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := notes.ClassifyError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyError_Passthrough(t *testing.T) {
	t.Parallel()

	plain := errors.New("connection reset")
	if got := notes.ClassifyError(plain); got != plain {
		t.Errorf("ClassifyError() = %v, want unchanged error", got)
	}
}

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", notes.ErrRateLimit, true},
		{"timeout", notes.ErrTimeout, true},
		{"500", apiError(500, "oops"), true},
		{"503", apiError(503, "down"), true},
		{"quota", notes.ErrQuotaExceeded, false},
		{"auth", notes.ErrAuthFailed, false},
		{"canceled", context.Canceled, false},
		{"unknown", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := notes.IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSupported(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"a.mp4": true,
		"a.MP4": true,
		"a.wav": true,
		"a.aac": false,
		"a.3gp": false,
		"a":     false,
	}
	for path, want := range tests {
		if got := notes.Supported(path); got != want {
			t.Errorf("Supported(%q) = %v, want %v", path, got, want)
		}
	}
}
