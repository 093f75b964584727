package corpus

import "errors"

var (
	// ErrCorruptIndex indicates a malformed document index: bad magic,
	// non-monotonic offsets, or a sentinel that disagrees with the token
	// file length.
	ErrCorruptIndex = errors.New("corrupt document index")

	// ErrUnsupportedWidth indicates a vocabulary width that is neither
	// 16 nor 32 bits, or token data that does not fit the requested width.
	ErrUnsupportedWidth = errors.New("unsupported vocabulary width")

	// ErrOutOfRange indicates a document index or token range outside the
	// corpus bounds.
	ErrOutOfRange = errors.New("out of range")
)
