package search

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/aflah02/tokensmith/corpus"
	"github.com/aflah02/tokensmith/persistence"
)

// Index file layout (little-endian):
//
//	magic      [4]byte "TSIX"
//	version    uint16
//	width      uint8   bytes per token (2 or 4)
//	reserved   uint8
//	tokenCount uint64
//	corpusCRC  uint32  fingerprint of the token file
//	saCRC      uint32  CRC32 of the suffix-array section
//	suffixes   [tokenCount]uint64
//
// The raw uint64 section keeps the file mmap-friendly: a loaded index reads
// suffix positions straight out of the mapping.
var indexMagic = [4]byte{'T', 'S', 'I', 'X'}

const (
	indexVersion    = 1
	indexHeaderSize = 4 + 2 + 1 + 1 + 8 + 4 + 4
)

// fingerprintWindow bounds the corpus bytes hashed into the identity check,
// so load-time validation stays cheap on multi-gigabyte corpora.
const fingerprintWindow = 64 << 10

// corpusFingerprint hashes the first and last fingerprintWindow bytes of the
// token file. Combined with the token count it identifies the corpus well
// enough to catch swapped, truncated, or regenerated token files.
func corpusFingerprint(store *corpus.Store) uint32 {
	data := store.Bytes()
	cw := persistence.NewChecksumWriter(io.Discard)
	if len(data) <= 2*fingerprintWindow {
		_, _ = cw.Write(data)
	} else {
		_, _ = cw.Write(data[:fingerprintWindow])
		_, _ = cw.Write(data[len(data)-fingerprintWindow:])
	}
	return cw.Sum()
}

// writeSuffixes streams the suffix array as little-endian uint64 entries.
func writeSuffixes(w io.Writer, sa suffixes) error {
	var buf [8]byte
	n := sa.Len()
	for i := int64(0); i < n; i++ {
		binary.LittleEndian.PutUint64(buf[:], uint64(sa.At(i)))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// save writes the index atomically to path.
//
// The header carries the section checksum, so the suffix section is streamed
// twice: once through a checksummer, once to disk.
func (ix *Index) save(path string) error {
	cw := persistence.NewChecksumWriter(io.Discard)
	if err := writeSuffixes(cw, ix.sa); err != nil {
		return err
	}

	hdr := make([]byte, 0, indexHeaderSize)
	hdr = append(hdr, indexMagic[:]...)
	hdr = binary.LittleEndian.AppendUint16(hdr, indexVersion)
	hdr = append(hdr, byte(ix.store.Width()), 0)
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(ix.sa.Len()))
	hdr = binary.LittleEndian.AppendUint32(hdr, corpusFingerprint(ix.store))
	hdr = binary.LittleEndian.AppendUint32(hdr, cw.Sum())

	return persistence.AtomicWriteFile(path, func(w io.Writer) error {
		bw := bufio.NewWriterSize(w, 1<<20)
		if _, err := bw.Write(hdr); err != nil {
			return err
		}
		if err := writeSuffixes(bw, ix.sa); err != nil {
			return err
		}
		return bw.Flush()
	})
}

// Load memory-maps a persisted index at path and validates it against the
// store's vocabulary width and corpus identity.
func Load(store *corpus.Store, path string) (*Index, error) {
	mf, err := persistence.MmapReadOnly(path)
	if err != nil {
		return nil, err
	}
	ix, err := loadMapped(store, mf)
	if err != nil {
		_ = mf.Close()
		return nil, err
	}
	return ix, nil
}

func loadMapped(store *corpus.Store, mf *persistence.MappedFile) (*Index, error) {
	data := mf.Bytes()
	if len(data) < indexHeaderSize {
		return nil, fmt.Errorf("%w: truncated at %d bytes", ErrMalformedIndex, len(data))
	}
	if [4]byte(data[:4]) != indexMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformedIndex)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != indexVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedIndex, v)
	}

	width := corpus.Width(data[6])
	if width != store.Width() {
		return nil, &IncompatibleIndexError{
			Field:    "vocabulary width",
			Expected: store.Width().String(),
			Actual:   width.String(),
		}
	}

	tokenCount := binary.LittleEndian.Uint64(data[8:])
	if tokenCount != uint64(store.NumTokens()) {
		return nil, &IncompatibleIndexError{
			Field:    "token count",
			Expected: fmt.Sprint(store.NumTokens()),
			Actual:   fmt.Sprint(tokenCount),
		}
	}

	corpusCRC := binary.LittleEndian.Uint32(data[16:])
	if got := corpusFingerprint(store); got != corpusCRC {
		return nil, &IncompatibleIndexError{
			Field:    "corpus fingerprint",
			Expected: fmt.Sprintf("0x%08x", got),
			Actual:   fmt.Sprintf("0x%08x", corpusCRC),
		}
	}

	saCRC := binary.LittleEndian.Uint32(data[20:])
	saBytes := data[indexHeaderSize:]
	if uint64(len(saBytes)) != tokenCount*8 {
		return nil, fmt.Errorf("%w: suffix section is %d bytes, want %d", ErrMalformedIndex, len(saBytes), tokenCount*8)
	}
	if err := persistence.VerifyChecksum(saBytes, saCRC); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIndex, err)
	}

	return &Index{
		store: store,
		toks:  store.All(),
		sa:    mappedSuffixes(saBytes),
		mf:    mf,
	}, nil
}
