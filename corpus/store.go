package corpus

import (
	"fmt"

	"github.com/aflah02/tokensmith/persistence"
)

// Store is a read-only view over a tokenized corpus: a flat array of
// fixed-width token IDs plus its document-offset table.
//
// The token file stays memory-mapped for the store's lifetime. A Store is
// safe for concurrent readers; it performs no writes after Open.
type Store struct {
	prefix  string
	width   Width
	bin     *persistence.MappedFile
	toks    Tokens
	offsets []int64 // token offset per document, plus end sentinel
}

// Open maps <prefix>.bin and parses <prefix>.idx read-only.
//
// It fails with ErrUnsupportedWidth if width is not 16 or 32 bits or the
// index was written at a different width, and with ErrCorruptIndex if the
// offset table is not monotonic or its sentinel disagrees with the token
// file length.
func Open(prefix string, width Width) (*Store, error) {
	if !width.Valid() {
		return nil, fmt.Errorf("%w: %d bytes per token", ErrUnsupportedWidth, width)
	}

	bin, err := persistence.MmapReadOnly(prefix + ".bin")
	if err != nil {
		return nil, fmt.Errorf("corpus: open token file: %w", err)
	}
	if bin.Len()%width.Bytes() != 0 {
		_ = bin.Close()
		return nil, fmt.Errorf("%w: token file length %d is not a multiple of %d", ErrUnsupportedWidth, bin.Len(), width.Bytes())
	}

	offsets, err := readOffsets(prefix+".idx", width, int64(bin.Len()))
	if err != nil {
		_ = bin.Close()
		return nil, err
	}

	return &Store{
		prefix:  prefix,
		width:   width,
		bin:     bin,
		toks:    Tokens{data: bin.Bytes(), width: width},
		offsets: offsets,
	}, nil
}

// Prefix returns the dataset prefix the store was opened with.
func (s *Store) Prefix() string { return s.prefix }

// BinPath returns the path of the mapped token file.
func (s *Store) BinPath() string { return s.prefix + ".bin" }

// Width returns the token width of the corpus.
func (s *Store) Width() Width { return s.width }

// NumTokens returns the total number of tokens in the corpus.
func (s *Store) NumTokens() int64 { return s.offsets[len(s.offsets)-1] }

// DocumentCount returns the number of documents in the corpus.
func (s *Store) DocumentCount() int { return len(s.offsets) - 1 }

// DocumentSpan returns the [start, end) token range of document doc.
func (s *Store) DocumentSpan(doc int) (start, end int64, err error) {
	if doc < 0 || doc >= s.DocumentCount() {
		return 0, 0, fmt.Errorf("%w: document %d of %d", ErrOutOfRange, doc, s.DocumentCount())
	}
	return s.offsets[doc], s.offsets[doc+1], nil
}

// DocumentSize returns the token count of document doc.
func (s *Store) DocumentSize(doc int) (int64, error) {
	start, end, err := s.DocumentSpan(doc)
	if err != nil {
		return 0, err
	}
	return end - start, nil
}

// ReadRange returns a zero-copy view over tokens [start, end).
//
// The view aliases the memory map and must not outlive the store.
func (s *Store) ReadRange(start, end int64) (Tokens, error) {
	if start < 0 || end < start || end > s.NumTokens() {
		return Tokens{}, fmt.Errorf("%w: token range [%d, %d) of %d", ErrOutOfRange, start, end, s.NumTokens())
	}
	return s.toks.Slice(int(start), int(end)), nil
}

// TokenAt returns the token at absolute position i.
func (s *Store) TokenAt(i int64) uint32 { return s.toks.At(int(i)) }

// All returns a zero-copy view over the entire token stream.
func (s *Store) All() Tokens { return s.toks }

// Bytes exposes the raw mapped token file. Used for corpus fingerprinting.
func (s *Store) Bytes() []byte { return s.bin.Bytes() }

// Close unmaps the token file. All views become invalid.
func (s *Store) Close() error {
	return s.bin.Close()
}
