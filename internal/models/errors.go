package models

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrConfiguration reports invalid chunking or component settings. Fail fast.
	ErrConfiguration = errors.New("configuration error")
	// ErrEmptyInput is returned when adding zero passages to an index that does not exist yet.
	ErrEmptyInput = errors.New("empty input")
	// ErrNotIndexed is returned when querying an uninitialized index.
	ErrNotIndexed = errors.New("no documents indexed")
	// ErrInvalidArgument covers bad caller input such as k <= 0 or empty content.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrBackendTimeout matches any BackendError whose deadline expired.
	ErrBackendTimeout = errors.New("backend timeout")
)

// BackendError wraps a failed call to the embedding or language-model backend.
type BackendError struct {
	Backend string // "ollama", "openai", "onnx"
	Op      string // "embed", "chat", "generate", "tags"
	Err     error
	Timeout bool
}

func (e *BackendError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s: timed out: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrBackendTimeout) match timed-out backend calls.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackendTimeout && e.Timeout
}

// Retryable reports whether the same call may succeed later.
func (e *BackendError) Retryable() bool { return e.Timeout }

// IsBackendError reports whether err is or wraps a *BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// NewBackendError wraps err for backend and op, flagging deadline expiry and network timeouts.
func NewBackendError(backend, op string, err error) *BackendError {
	be := &BackendError{Backend: backend, Op: op, Err: err}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		be.Timeout = true
	}
	return be
}
