package docerr

import (
	"context"
	"errors"
)

// Sentinel errors shared by the classifier, the document reader and the cache.
var (
	ErrToolNotFound  = errors.New("ink coverage tool not found")
	ErrProcessLaunch = errors.New("failed to launch external process")
	ErrToolFailed    = errors.New("ink coverage tool failed without usable output")
	ErrParse         = errors.New("ink coverage output could not be interpreted")
	ErrInvalidInput  = errors.New("invalid input document")
	ErrNotFound      = errors.New("document not found")
	ErrStale         = errors.New("document changed on disk since it was loaded")
)

// Category maps an error to a short label used for metrics and HTTP mapping.
func Category(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStale):
		return "stale"
	case errors.Is(err, ErrToolNotFound):
		return "tool_not_found"
	case errors.Is(err, ErrProcessLaunch):
		return "launch_failed"
	case errors.Is(err, ErrToolFailed):
		return "tool_failed"
	case errors.Is(err, ErrParse):
		return "parse_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "other"
	}
}

// IsToolUnavailable reports whether err means color info is unknown because the
// tool could not run at all. Callers treat both cases the same way.
func IsToolUnavailable(err error) bool {
	return errors.Is(err, ErrToolNotFound) || errors.Is(err, ErrProcessLaunch)
}
