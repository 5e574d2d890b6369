// Package dataset loads, parses and filters per-state food-pantry datasets.
package dataset

import "errors"

// ErrorKind classifies a load failure.
type ErrorKind string

const (
	// KindConfiguration means no request was attempted (missing base URL or state).
	KindConfiguration ErrorKind = "configuration"
	// KindTransport covers network failures and non-success HTTP statuses.
	KindTransport ErrorKind = "transport"
	// KindFormat means the body was not valid JSON.
	KindFormat ErrorKind = "format"
)

// Sentinel errors matching each ErrorKind with errors.Is.
var (
	ErrConfiguration = errors.New("dataset: configuration error")
	ErrTransport     = errors.New("dataset: transport error")
	ErrFormat        = errors.New("dataset: format error")
)

// LoadError is returned by Loader.Load. SourceURL is the attempted URL and is
// empty only for configuration errors.
type LoadError struct {
	Kind      ErrorKind
	Message   string
	SourceURL string
	Err       error
}

func (e *LoadError) Error() string {
	if e.SourceURL == "" {
		return e.Message
	}
	return e.Message + " (" + e.SourceURL + ")"
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *LoadError) Is(target error) bool {
	switch e.Kind {
	case KindConfiguration:
		return target == ErrConfiguration
	case KindTransport:
		return target == ErrTransport
	case KindFormat:
		return target == ErrFormat
	}
	return false
}
