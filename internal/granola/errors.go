package granola

// In this file: the typed parse error shared by the decoder and the
// normalizer.

import (
	"fmt"
)

// ErrKind classifies a ParseError.  The set is closed: every failure the
// decoder or normalizer can produce maps onto exactly one kind.
type ErrKind string

const (
	// KindSourceUnreadable indicates the cache file is missing, not a
	// regular file, or could not be read.
	KindSourceUnreadable ErrKind = "SOURCE_UNREADABLE"
	// KindMalformedOuter indicates the outer document is not valid JSON.
	KindMalformedOuter ErrKind = "MALFORMED_OUTER"
	// KindMissingField indicates an expected key ("cache" or "state") is
	// absent.
	KindMissingField ErrKind = "MISSING_FIELD"
	// KindMalformedInner indicates the "cache" string failed the second
	// JSON decode.
	KindMalformedInner ErrKind = "MALFORMED_INNER"
	// KindUnexpectedShape indicates a value exists but is not the expected
	// container kind.
	KindUnexpectedShape ErrKind = "UNEXPECTED_SHAPE"
)

// ParseError is the error type for all cache decoding and normalization
// failures.  Key names the offending JSON key or file path, never the raw
// content.
type ParseError struct {
	Kind ErrKind
	Key  string
	Err  error
}

func (e *ParseError) Error() string {
	msg := string(e.Kind)
	if e.Key != "" {
		msg += ": " + e.Key
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports kind equality, so that callers can match against a prototype
// with errors.Is(err, &ParseError{Kind: KindMissingField}).
func (e *ParseError) Is(target error) bool {
	pe, ok := target.(*ParseError)
	return ok && pe.Kind == e.Kind
}

func parseErr(kind ErrKind, key string, err error) *ParseError {
	return &ParseError{Kind: kind, Key: key, Err: err}
}

func parseErrf(kind ErrKind, key, format string, a ...any) *ParseError {
	return &ParseError{Kind: kind, Key: key, Err: fmt.Errorf(format, a...)}
}
