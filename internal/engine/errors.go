package engine

import "fmt"

// tooBusyError signals worker-pool timeout/overflow for 429 mapping.
type tooBusyError struct{}

func (tooBusyError) Error() string { return "engine too busy" }

// ErrTooBusy constructs a tooBusyError.
func ErrTooBusy() error { return tooBusyError{} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	_, ok := err.(tooBusyError)
	return ok
}

// notReadyError signals the engine cannot serve yet (no model or no
// tokenizer) so the HTTP layer can return 503 instead of 500.
type notReadyError struct{ reason string }

func (e notReadyError) Error() string { return "engine not ready: " + e.reason }

// ErrNotReady constructs a notReadyError.
func ErrNotReady(reason string) error { return notReadyError{reason: reason} }

// IsNotReady reports whether err indicates a missing model or tokenizer.
func IsNotReady(err error) bool {
	_, ok := err.(notReadyError)
	return ok
}

// promptTooLongError rejects a request whose prompt tokenizes past the
// allowed token count. Generation never runs for these.
type promptTooLongError struct {
	tokens int
	limit  int
}

func (e promptTooLongError) Error() string {
	return fmt.Sprintf("prompt of %d tokens exceeds limit %d", e.tokens, e.limit)
}

// ErrPromptTooLong constructs a promptTooLongError.
func ErrPromptTooLong(tokens, limit int) error {
	return promptTooLongError{tokens: tokens, limit: limit}
}

// IsPromptTooLong reports whether err is a prompt-length rejection.
func IsPromptTooLong(err error) bool {
	_, ok := err.(promptTooLongError)
	return ok
}

// emptyPromptError rejects a request with no prompt text.
type emptyPromptError struct{}

func (emptyPromptError) Error() string { return "prompt is required" }

// ErrEmptyPrompt constructs an emptyPromptError.
func ErrEmptyPrompt() error { return emptyPromptError{} }

// IsEmptyPrompt reports whether err is an empty-prompt rejection.
func IsEmptyPrompt(err error) bool {
	_, ok := err.(emptyPromptError)
	return ok
}

// backendUnavailableError signals a compute backend that is not compiled in
// or failed to initialize.
type backendUnavailableError struct{ msg string }

func (e backendUnavailableError) Error() string { return e.msg }

// ErrBackendUnavailable constructs a backendUnavailableError.
func ErrBackendUnavailable(msg string) error { return backendUnavailableError{msg: msg} }

// IsBackendUnavailable reports whether err indicates a missing compute
// backend.
func IsBackendUnavailable(err error) bool {
	_, ok := err.(backendUnavailableError)
	return ok
}
