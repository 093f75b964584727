package search

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/aflah02/tokensmith/corpus"
)

// Options configures index construction and loading. None of the options
// affect query results.
type Options struct {
	// Logger receives build progress and cache decisions. Defaults to
	// slog.Default.
	Logger *slog.Logger

	// Verbose enables progress logging during construction.
	Verbose bool
}

func applyOptions(optFns []func(*Options)) Options {
	var o Options
	for _, fn := range optFns {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Build constructs an in-memory index over the store's full token stream.
func Build(store *corpus.Store, optFns ...func(*Options)) (*Index, error) {
	o := applyOptions(optFns)

	began := time.Now()
	progress := newProgressLogger(o, store.NumTokens())

	toks := decodeTokens(store)
	sa := buildSuffixArray(toks, progress)

	if o.Verbose {
		o.Logger.Info("search index built",
			"tokens", store.NumTokens(),
			"elapsed", time.Since(began))
	}

	return &Index{
		store: store,
		toks:  store.All(),
		sa:    memSuffixes(sa),
	}, nil
}

// BuildFile constructs the index and persists it to path. It either
// completes and leaves a valid index file, or fails with *BuildFailedError
// and leaves nothing behind.
func BuildFile(store *corpus.Store, path string, optFns ...func(*Options)) (*Index, error) {
	ix, err := Build(store, optFns...)
	if err != nil {
		return nil, &BuildFailedError{cause: err}
	}
	if err := ix.save(path); err != nil {
		return nil, &BuildFailedError{cause: err}
	}
	return ix, nil
}

// BuildOrLoad resolves whether a compatible index exists at path: with
// reuse, a compatible file is loaded; a missing, stale, or corrupt one
// triggers a fresh build that is then persisted.
func BuildOrLoad(store *corpus.Store, path string, reuse bool, optFns ...func(*Options)) (*Index, error) {
	o := applyOptions(optFns)

	if reuse {
		ix, err := Load(store, path)
		switch {
		case err == nil:
			if o.Verbose {
				o.Logger.Info("reusing search index", "path", path)
			}
			return ix, nil
		case errors.Is(err, ErrIncompatible):
			o.Logger.Warn("search index is incompatible, rebuilding", "path", path, "reason", err)
		case errors.Is(err, ErrMalformedIndex):
			o.Logger.Warn("search index is corrupt, rebuilding", "path", path, "reason", err)
		case os.IsNotExist(err):
			o.Logger.Info("no search index found, building", "path", path)
		default:
			return nil, err
		}
	}

	return BuildFile(store, path, optFns...)
}

// progressLogger reports doubling-round progress, throttled so large builds
// log at most once per second.
type progressLogger struct {
	log     *slog.Logger
	tokens  int64
	limiter *rate.Limiter
}

func newProgressLogger(o Options, tokens int64) *progressLogger {
	if !o.Verbose {
		return nil
	}
	return &progressLogger{
		log:     o.Logger,
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (p *progressLogger) round(prefixLen int64, elapsed time.Duration) {
	if p == nil || !p.limiter.Allow() {
		return
	}
	p.log.Info("sorting suffixes",
		"prefix_len", prefixLen,
		"tokens", p.tokens,
		"round_elapsed", elapsed)
}
