package syncerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a sync failure
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindDirectoryNotFound
	KindRateLimited
	KindHTTP
	KindTimeout
	KindNetwork
	KindDecode
	KindTooLarge
	KindDepthExceeded
	KindDirectoryCreate
	KindWrite
	KindInvariantViolation
	KindCanceled
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindNotFound:           "not_found",
	KindDirectoryNotFound:  "directory_not_found",
	KindRateLimited:        "rate_limited",
	KindHTTP:               "http",
	KindTimeout:            "timeout",
	KindNetwork:            "network",
	KindDecode:             "decode",
	KindTooLarge:           "too_large",
	KindDepthExceeded:      "depth_exceeded",
	KindDirectoryCreate:    "directory_create",
	KindWrite:              "write",
	KindInvariantViolation: "invariant_violation",
	KindCanceled:           "canceled",
}

// String returns the snake_case name used in logs and JSON results
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure of a single remote or local operation
type Error struct {
	Kind       Kind
	Path       string
	Status     int
	StatusText string
	Timeout    time.Duration
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("File not found: %s", e.Path)
	case KindDirectoryNotFound:
		return fmt.Sprintf("Directory not found: %s", e.Path)
	case KindRateLimited:
		msg := "GitHub API rate limit exceeded. Please try again later."
		if e.Detail != "" {
			msg += " (" + e.Detail + ")"
		}
		return msg
	case KindHTTP:
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.StatusText)
	case KindTimeout:
		return fmt.Sprintf("Request timed out after %s", e.Timeout)
	case KindNetwork:
		return fmt.Sprintf("Network error: %v", e.Err)
	case KindDecode:
		return fmt.Sprintf("failed to decode listing for %s: %s", e.Path, e.cause())
	case KindTooLarge:
		return fmt.Sprintf("response for %s exceeds size limit: %s", e.Path, e.Detail)
	case KindDepthExceeded:
		return fmt.Sprintf("directory %s exceeds maximum depth %s", e.Path, e.Detail)
	case KindDirectoryCreate:
		return fmt.Sprintf("failed to create directory %s: %s", e.Path, e.cause())
	case KindWrite:
		return fmt.Sprintf("failed to write %s: %s", e.Path, e.cause())
	case KindInvariantViolation:
		return fmt.Sprintf("invariant violation for %s: %s", e.Path, e.Detail)
	case KindCanceled:
		return "operation canceled"
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "Unknown error occurred"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) cause() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Detail
}

// KindOf returns the Kind of err, or KindUnknown for foreign errors
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Invariant builds a KindInvariantViolation error for path
func Invariant(path, format string, args ...any) *Error {
	return &Error{Kind: KindInvariantViolation, Path: path, Detail: fmt.Sprintf(format, args...)}
}
