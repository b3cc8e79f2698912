package ports

import (
	"errors"
	"fmt"
)

// Sentinel outcomes of link resolution. ErrNoSelection is a normal negative
// outcome (the user dismissed the prompt) and must never be surfaced as an
// error notification.
var (
	ErrNoLinks     = errors.New("no link is found in current file")
	ErrNoSelection = errors.New("no link selected")
)

// SourcePos is a 1-based location inside selector text. Column counts UTF-16
// code units, matching the column convention of editor hosts.
type SourcePos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Offset int `json:"offset"`
}

// SourceSpan is the start/end pair reported by the selector parser.
type SourceSpan struct {
	Start SourcePos `json:"start"`
	End   SourcePos `json:"end"`
}

// SyntaxError is raised by the selector parser. Location is nil when the
// parser could not attribute the failure to a span (structural checks that
// run after parsing).
type SyntaxError struct {
	Message  string
	Location *SourceSpan
}

func (e *SyntaxError) Error() string {
	if e.Location == nil {
		return e.Message
	}
	return fmt.Sprintf("%d:%d: %s", e.Location.Start.Line, e.Location.Start.Column, e.Message)
}

// EvaluationError is raised by the evaluator after the selector parsed
// cleanly: unknown filters, bad filter input, invalid CSS compounds.
type EvaluationError struct {
	Message string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// FetchErrorKind classifies markup fetch failures.
type FetchErrorKind int

const (
	// FetchNotFound is a local file that does not exist.
	FetchNotFound FetchErrorKind = iota
	// FetchHTTPError is a response with a non-2xx status.
	FetchHTTPError
	// FetchNetworkError is a transport-level failure (dial, TLS, reset, body read).
	FetchNetworkError
	// FetchUnreadable is a local file that exists but cannot be read.
	FetchUnreadable
	// FetchTooLarge is a response body over the configured size limit.
	FetchTooLarge
)

// String returns the kind name.
func (k FetchErrorKind) String() string {
	switch k {
	case FetchNotFound:
		return "not_found"
	case FetchHTTPError:
		return "http_error"
	case FetchNetworkError:
		return "network_error"
	case FetchUnreadable:
		return "unreadable"
	case FetchTooLarge:
		return "too_large"
	default:
		return "unknown"
	}
}

// FetchError is returned by the markup fetcher.
type FetchError struct {
	Kind   FetchErrorKind
	URL    string
	Status int // HTTP status, FetchHTTPError only
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchNotFound:
		return fmt.Sprintf("file not found: %s", e.URL)
	case FetchHTTPError:
		return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.Status)
	default:
		if e.Err != nil {
			return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
		}
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsSyntaxError reports whether err carries a *SyntaxError.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}
