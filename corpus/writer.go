package corpus

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/aflah02/tokensmith/persistence"
)

// Writer creates a <prefix>.bin / <prefix>.idx pair, one document at a time.
//
// Tokenization happens upstream; the writer only lays already-tokenized
// documents out in the pipeline's binary format. The index file is written
// atomically on Close, so readers never observe a bin/idx pair that
// disagrees.
type Writer struct {
	prefix  string
	width   Width
	f       *os.File
	buf     *bufio.Writer
	sizes   []int64
	scratch []byte
	closed  bool
}

// NewWriter creates the token file at <prefix>.bin for writing.
func NewWriter(prefix string, width Width) (*Writer, error) {
	if !width.Valid() {
		return nil, fmt.Errorf("%w: %d bytes per token", ErrUnsupportedWidth, width)
	}
	f, err := os.Create(prefix + ".bin")
	if err != nil {
		return nil, fmt.Errorf("corpus: create token file: %w", err)
	}
	return &Writer{
		prefix: prefix,
		width:  width,
		f:      f,
		buf:    bufio.NewWriterSize(f, 1<<20),
	}, nil
}

// WriteDocument appends one document's tokens to the corpus.
func (w *Writer) WriteDocument(tokens []uint32) error {
	if w.closed {
		return fmt.Errorf("corpus: writer is closed")
	}
	maxTok := w.width.Max()
	w.scratch = w.scratch[:0]
	for _, t := range tokens {
		if t > maxTok {
			return fmt.Errorf("%w: token %d does not fit %s", ErrUnsupportedWidth, t, w.width)
		}
		w.scratch = w.width.encode(w.scratch, t)
	}
	if _, err := w.buf.Write(w.scratch); err != nil {
		return fmt.Errorf("corpus: write document: %w", err)
	}
	w.sizes = append(w.sizes, int64(len(tokens)))
	return nil
}

// DocumentCount returns the number of documents written so far.
func (w *Writer) DocumentCount() int { return len(w.sizes) }

// Close flushes and fsyncs the token file, then writes the index file
// atomically.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.buf.Flush(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("corpus: flush token file: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("corpus: sync token file: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("corpus: close token file: %w", err)
	}

	idx := writeIndex(w.sizes, w.width)
	return persistence.AtomicWriteFile(w.prefix+".idx", func(out io.Writer) error {
		_, err := io.Copy(out, bytes.NewReader(idx))
		return err
	})
}
