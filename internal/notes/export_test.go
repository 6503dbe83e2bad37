package notes

// Function exports for unit testing internal logic.
var (
	ClassifyError    = classifyError
	IsRetryableError = isRetryableError
)
