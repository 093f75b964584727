package pack

import "errors"

var (
	// ErrInsufficientCorpus indicates the selected split cannot supply the
	// schedule's token demand under a policy that forbids padding-only
	// fallback.
	ErrInsufficientCorpus = errors.New("insufficient corpus for schedule")

	// ErrInvalidSplits indicates a split ratio string with negative entries
	// or a non-positive sum.
	ErrInvalidSplits = errors.New("invalid split ratios")

	// ErrPlanCacheMismatch indicates a cached plan whose identity tuple or
	// record count disagrees with the requested build.
	ErrPlanCacheMismatch = errors.New("plan cache mismatch")

	// ErrUnknownPolicy indicates an unrecognized packing policy name.
	ErrUnknownPolicy = errors.New("unknown packing policy")
)
