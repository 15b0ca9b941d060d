package kv

import "errors"

var (
	// ErrInvalidKey is returned for empty keys, unsupported key parts and
	// stored keys that cannot be decoded.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidOption is returned for option values or combinations the
	// operation does not accept.
	ErrInvalidOption = errors.New("invalid option")

	// ErrInvalidConfig is returned when a store is constructed with an
	// out-of-range reap threshold or an unusable table name.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidValue is returned when a value cannot be serialized, or a
	// stored value is not valid JSON.
	ErrInvalidValue = errors.New("invalid value")

	// ErrNotFound is returned by Result.Decode when the result carries no value
	ErrNotFound = errors.New("not found")

	// ErrBackend matches every *BackendError via errors.Is
	ErrBackend = errors.New("backend failure")
)

// BackendError wraps an error surfaced by the storage driver
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return "kv " + e.Op + ": " + e.Err.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is reports ErrBackend as a match so callers need not know the driver error.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

func backendError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}
