// Package apperr defines the error kinds shared across the streaming
// session layer, so the HTTP surface can map failures to status codes
// without string-sniffing error messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the HTTP layer's benefit.
type Kind int

const (
	// KindUnknown is the zero value; treated as an internal error.
	KindUnknown Kind = iota
	// KindIO covers filesystem and socket failures.
	KindIO
	// KindDecode covers malformed frames and bad UUIDs.
	KindDecode
	// KindNotFound covers unknown sessions and resources.
	KindNotFound
	// KindQueueClosed covers enqueue failures against a closed queue.
	KindQueueClosed
	// KindRecognizerFailure covers a single chunk's recognizer call failing.
	KindRecognizerFailure
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindDecode:
		return "decode"
	case KindNotFound:
		return "not_found"
	case KindQueueClosed:
		return "queue_closed"
	case KindRecognizerFailure:
		return "recognizer_failure"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind, so callers can recover
// the classification with errors.As while still chaining %w.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind. If err is nil, New returns nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Newf builds a Kind error from a format string, mirroring fmt.Errorf.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of err if it (or something it wraps) is an *Error,
// and KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err's classification matches kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
