package sbforensics

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexNotFound is returned when a reuse path does not hold an index
	ErrIndexNotFound = errors.New("index not found")
	// ErrInterrupted is returned when the shutdown channel closes mid-operation
	ErrInterrupted = errors.New("operation interrupted by shutdown")
	// ErrUnknownBackend is returned for an index backend name that is not supported
	ErrUnknownBackend = errors.New("unsupported index backend")
	// ErrUnknownHash is returned for a fingerprint algorithm that is not supported
	ErrUnknownHash = errors.New("unsupported hash algorithm")
	// ErrIndexMismatch is returned when a reused index was built with different block parameters
	ErrIndexMismatch = errors.New("index built with different block parameters")
)

// InputError reports a request that was rejected before any hashing began.
// Input errors are not retryable.
type InputError struct {
	Field  string
	Reason string
	Err    error // optional sentinel, e.g. ErrIndexNotFound
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err is (or wraps) an *InputError
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// interrupted reports whether the shutdown channel has been closed
func interrupted(shutdownChan <-chan struct{}) bool {
	if shutdownChan == nil {
		return false
	}
	select {
	case <-shutdownChan:
		return true
	default:
		return false
	}
}
