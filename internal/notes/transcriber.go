// Package notes fills the notes of a finished recording with a transcript
// produced by OpenAI's transcription API.
package notes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/go-callrec/internal/retry"
)

// ModelGPT4oMiniTranscribe is the cost-effective transcription model.
// Not yet a constant in go-openai.
const ModelGPT4oMiniTranscribe = "gpt-4o-mini-transcribe"

// Default retry configuration.
const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second
)

// supportedExtensions are the containers the transcription endpoint accepts.
// Raw ADTS (.aac) and 3GPP (.3gp) captures are not among them.
var supportedExtensions = map[string]bool{
	".flac": true, ".m4a": true, ".mp3": true, ".mp4": true, ".mpeg": true,
	".mpga": true, ".oga": true, ".ogg": true, ".wav": true, ".webm": true,
}

// Supported reports whether the file at path can be transcribed.
func Supported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Transcriber transcribes audio files to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// audioTranscriber is the subset of *openai.Client used here.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Compile-time interface compliance checks.
var (
	_ Transcriber      = (*OpenAITranscriber)(nil)
	_ audioTranscriber = (*openai.Client)(nil)
)

// OpenAITranscriber transcribes audio using OpenAI's transcription API.
// It retries transient errors with exponential backoff.
type OpenAITranscriber struct {
	client audioTranscriber
	retry  retry.Config
	prompt string
}

// TranscriberOption configures an OpenAITranscriber.
type TranscriberOption func(*OpenAITranscriber)

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if n >= 0 {
			t.retry.MaxRetries = n
		}
	}
}

// WithRetryDelays sets the base and max delays for exponential backoff.
func WithRetryDelays(base, max time.Duration) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if base > 0 {
			t.retry.BaseDelay = base
		}
		if max > 0 {
			t.retry.MaxDelay = max
		}
	}
}

// WithPrompt gives the model context, such as names likely to be spoken.
func WithPrompt(prompt string) TranscriberOption {
	return func(t *OpenAITranscriber) { t.prompt = prompt }
}

// NewOpenAITranscriber creates a transcriber around client.
func NewOpenAITranscriber(client audioTranscriber, opts ...TranscriberOption) *OpenAITranscriber {
	t := &OpenAITranscriber{
		client: client,
		retry: retry.Config{
			MaxRetries: defaultMaxRetries,
			BaseDelay:  defaultBaseDelay,
			MaxDelay:   defaultMaxDelay,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcribe returns the text spoken in the audio file.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if !Supported(audioPath) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(audioPath))
	}
	req := openai.AudioRequest{
		Model:    ModelGPT4oMiniTranscribe,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatJSON,
		Prompt:   t.prompt,
	}
	text, err := retry.Do(ctx, t.retry, func() (string, error) {
		resp, err := t.client.CreateTranscription(ctx, req)
		if err != nil {
			return "", classifyError(err)
		}
		return resp.Text, nil
	}, isRetryableError)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// classifyError maps OpenAI API errors to the package sentinels.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			// Quota exhaustion needs user action; a plain rate limit passes.
			if strings.Contains(apiErr.Message, "quota") || strings.Contains(apiErr.Message, "billing") {
				return fmt.Errorf("%s: %w", apiErr.Message, ErrQuotaExceeded)
			}
			return fmt.Errorf("%s: %w", apiErr.Message, ErrRateLimit)
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", apiErr.Message, ErrAuthFailed)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return fmt.Errorf("%s: %w", apiErr.Message, ErrTimeout)
		case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%s: %w", apiErr.Message, ErrBadRequest)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", ErrTimeout)
	}
	return err
}

// isRetryableError reports transient failures: rate limits, timeouts and 5xx.
func isRetryableError(err error) bool {
	if errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return true
		}
	}
	return false
}
