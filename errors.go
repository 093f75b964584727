package tokensmith

import (
	"github.com/aflah02/tokensmith/corpus"
	"github.com/aflah02/tokensmith/pack"
	"github.com/aflah02/tokensmith/search"
)

// The full error taxonomy, re-exported so callers can match with errors.Is
// and errors.As against a single package.
var (
	// ErrCorruptIndex: the document index is malformed (bad magic,
	// non-monotonic offsets, or a sentinel disagreeing with the token file).
	ErrCorruptIndex = corpus.ErrCorruptIndex

	// ErrUnsupportedWidth: the vocabulary width is neither 16 nor 32 bits,
	// or the data does not fit the requested width.
	ErrUnsupportedWidth = corpus.ErrUnsupportedWidth

	// ErrOutOfRange: a document index or token range outside corpus bounds.
	ErrOutOfRange = corpus.ErrOutOfRange

	// ErrInsufficientCorpus: the split cannot supply the schedule's token
	// demand under a policy that forbids padding-only fallback.
	ErrInsufficientCorpus = pack.ErrInsufficientCorpus

	// ErrInvalidSplits: negative split ratios or a non-positive sum.
	ErrInvalidSplits = pack.ErrInvalidSplits

	// ErrPlanCacheMismatch: a cached plan disagrees with the requested
	// identity tuple. Recoverable: BuildOrLoad rebuilds instead of failing.
	ErrPlanCacheMismatch = pack.ErrPlanCacheMismatch

	// ErrIndexIncompatible: a persisted search index disagrees with the
	// store's vocabulary width or corpus identity. Recoverable likewise.
	ErrIndexIncompatible = search.ErrIncompatible

	// ErrIndexMalformed: a persisted search index that cannot be parsed
	// (bad magic, truncated sections, failed checksum). Recoverable likewise.
	ErrIndexMalformed = search.ErrMalformedIndex
)

// BuildFailedError wraps the cause of a failed search-index build.
// A failed build never leaves a partial index file on disk.
type BuildFailedError = search.BuildFailedError

// IncompatibleIndexError details the mismatching field of a persisted
// search index.
type IncompatibleIndexError = search.IncompatibleIndexError
