package corpus

import (
	"encoding/binary"
	"fmt"
)

// Width is the fixed byte width of a single token ID in the binary token
// file. It is selected once at store-open time and drives all index
// arithmetic; semantics never depend on it.
type Width uint8

const (
	// Width16 stores tokens as little-endian uint16 (vocabularies up to 2^16).
	Width16 Width = 2
	// Width32 stores tokens as little-endian uint32 (vocabularies up to 2^32).
	Width32 Width = 4
)

// dtype codes used by the document index header. These match the codes the
// sequential training pipeline writes for uint16 and int32 token arrays.
const (
	dtypeInt32  = 4
	dtypeUint16 = 8
)

// WidthForVocab maps a vocabulary size to the token width that holds it.
// Following the established pipeline, only 2^16 and 2^32 are accepted.
func WidthForVocab(vocab uint64) (Width, error) {
	switch vocab {
	case 1 << 16:
		return Width16, nil
	case 1 << 32:
		return Width32, nil
	default:
		return 0, fmt.Errorf("%w: vocab must be 2^16 or 2^32, got %d", ErrUnsupportedWidth, vocab)
	}
}

// Bytes returns the number of bytes per token.
func (w Width) Bytes() int { return int(w) }

// Valid reports whether w is one of the supported widths.
func (w Width) Valid() bool { return w == Width16 || w == Width32 }

// Max returns the largest token ID representable at this width.
func (w Width) Max() uint32 {
	if w == Width16 {
		return 1<<16 - 1
	}
	return 1<<32 - 1
}

func (w Width) String() string {
	switch w {
	case Width16:
		return "uint16"
	case Width32:
		return "uint32"
	default:
		return fmt.Sprintf("Width(%d)", uint8(w))
	}
}

func (w Width) dtype() byte {
	if w == Width16 {
		return dtypeUint16
	}
	return dtypeInt32
}

func widthForDtype(code byte) (Width, bool) {
	switch code {
	case dtypeUint16:
		return Width16, true
	case dtypeInt32:
		return Width32, true
	default:
		return 0, false
	}
}

// decode reads the token at element index i of b.
func (w Width) decode(b []byte, i int) uint32 {
	if w == Width16 {
		return uint32(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return binary.LittleEndian.Uint32(b[i*4:])
}

// encode appends tok to dst at this width.
func (w Width) encode(dst []byte, tok uint32) []byte {
	if w == Width16 {
		return binary.LittleEndian.AppendUint16(dst, uint16(tok))
	}
	return binary.LittleEndian.AppendUint32(dst, tok)
}
