package search

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuery indicates an n-gram with no tokens. Queries require n >= 1.
	ErrEmptyQuery = errors.New("query must hold at least one token")

	// ErrIncompatible indicates a persisted index whose vocabulary width or
	// corpus identity does not match the requested store.
	ErrIncompatible = errors.New("incompatible search index")

	// ErrMalformedIndex indicates an index file that cannot be parsed: bad
	// magic, unsupported version, truncated sections, or a failed checksum.
	// Recoverable under reuse: the loader rebuilds instead of failing.
	ErrMalformedIndex = errors.New("malformed search index file")
)

// BuildFailedError wraps the underlying cause of a failed index build.
// A failed build leaves no index file behind.
type BuildFailedError struct {
	cause error
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("search index build failed: %v", e.cause)
}

func (e *BuildFailedError) Unwrap() error { return e.cause }

// IncompatibleIndexError details a width or identity mismatch between a
// persisted index and the store it was opened against.
type IncompatibleIndexError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *IncompatibleIndexError) Error() string {
	return fmt.Sprintf("incompatible search index: %s is %s, store has %s", e.Field, e.Actual, e.Expected)
}

func (e *IncompatibleIndexError) Unwrap() error { return ErrIncompatible }
