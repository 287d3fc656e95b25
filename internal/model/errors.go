package model

// notFoundError signals a missing model, tokenizer, or manifest file.
type notFoundError struct{ path string }

func (e notFoundError) Error() string { return "not found: " + e.path }

// ErrNotFound constructs a notFoundError for the given path.
func ErrNotFound(path string) error { return notFoundError{path: path} }

// IsNotFound reports whether err indicates a missing file.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}

// validationError signals a load rejected by verification (e.g. checksum
// mismatch). The model file itself may be well-formed.
type validationError struct{ msg string }

func (e validationError) Error() string { return e.msg }

// ErrValidation constructs a validationError.
func ErrValidation(msg string) error { return validationError{msg: msg} }

// IsValidation reports whether err indicates a rejected load or request.
func IsValidation(err error) bool {
	_, ok := err.(validationError)
	return ok
}
