package cli

import "errors"

// CLI-specific sentinel errors.
// These are validation/usage errors that don't belong to domain packages.

var (
	// ErrInvalidID indicates a recording id argument is not a positive integer.
	ErrInvalidID = errors.New("invalid recording id")

	// ErrEventsSource indicates the event stream could not be opened.
	ErrEventsSource = errors.New("cannot open call events")
)

// EnvOpenAIAPIKey is the environment variable holding the OpenAI API key.
const EnvOpenAIAPIKey = "OPENAI_API_KEY"
