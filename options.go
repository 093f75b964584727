package tokensmith

import "github.com/aflah02/tokensmith/corpus"

type options struct {
	width    corpus.Width
	logger   *Logger
	verbose  bool
	padToken uint32
}

// Option configures Manager construction.
type Option func(*options)

// WithVocabSize selects the token width from the vocabulary size. Following
// the training pipeline's contract, only 2^16 and 2^32 are accepted; Open
// fails with ErrUnsupportedWidth otherwise.
func WithVocabSize(vocab uint64) Option {
	return func(o *options) {
		// Defer validation to Open so the error surfaces through one path.
		w, err := corpus.WidthForVocab(vocab)
		if err != nil {
			o.width = 0
			return
		}
		o.width = w
	}
}

// WithVocabWidth selects the token width directly.
func WithVocabWidth(w corpus.Width) Option {
	return func(o *options) {
		o.width = w
	}
}

// WithLogger sets the structured logger. Defaults to a text logger on
// stderr.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithVerbose enables progress logging during index and plan builds.
func WithVerbose(v bool) Option {
	return func(o *options) {
		o.verbose = v
	}
}

// WithPadToken sets the token used to pad short sequence slots. Default 0.
func WithPadToken(tok uint32) Option {
	return func(o *options) {
		o.padToken = tok
	}
}
