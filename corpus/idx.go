package corpus

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Document index file layout (external contract, little-endian throughout):
//
//	magic   [9]byte  "MMIDIDX\x00\x00"
//	version uint64   1
//	dtype   uint8    token element type code (8=uint16, 4=int32)
//	seqCnt  uint64   number of documents
//	docCnt  uint64   length of the trailing document-index table
//	sizes   [seqCnt]int32   token count per document
//	ptrs    [seqCnt]int64   byte offset of each document in the .bin file
//	docIdx  [docCnt]int64   document boundary table
var idxMagic = [9]byte{'M', 'M', 'I', 'D', 'I', 'D', 'X', 0, 0}

const idxVersion = 1

const idxHeaderSize = 9 + 8 + 1 + 8 + 8

// readOffsets parses the index file at path and returns the token-offset
// table: one entry per document plus a sentinel equal to the total token
// count. binSize is the byte length of the companion token file, used to
// validate the sentinel.
func readOffsets(path string, width Width, binSize int64) ([]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < idxHeaderSize {
		return nil, fmt.Errorf("%w: index file too short (%d bytes)", ErrCorruptIndex, len(data))
	}
	for i, b := range idxMagic {
		if data[i] != b {
			return nil, fmt.Errorf("%w: bad magic", ErrCorruptIndex)
		}
	}
	if v := binary.LittleEndian.Uint64(data[9:]); v != idxVersion {
		return nil, fmt.Errorf("%w: unsupported index version %d", ErrCorruptIndex, v)
	}
	dw, ok := widthForDtype(data[17])
	if !ok {
		return nil, fmt.Errorf("%w: unknown dtype code %d", ErrUnsupportedWidth, data[17])
	}
	if dw != width {
		return nil, fmt.Errorf("%w: index holds %s tokens, store opened as %s", ErrUnsupportedWidth, dw, width)
	}

	seqCnt := binary.LittleEndian.Uint64(data[18:])
	docCnt := binary.LittleEndian.Uint64(data[26:])
	need := uint64(idxHeaderSize) + seqCnt*4 + seqCnt*8 + docCnt*8
	if uint64(len(data)) < need {
		return nil, fmt.Errorf("%w: index file truncated: have %d bytes, need %d", ErrCorruptIndex, len(data), need)
	}

	sizes := data[idxHeaderSize:]
	ptrs := sizes[seqCnt*4:]

	wb := int64(width.Bytes())
	offsets := make([]int64, seqCnt+1)
	var prevEnd int64
	for i := uint64(0); i < seqCnt; i++ {
		size := int64(int32(binary.LittleEndian.Uint32(sizes[i*4:])))
		ptr := int64(binary.LittleEndian.Uint64(ptrs[i*8:]))
		if size < 0 {
			return nil, fmt.Errorf("%w: negative document size at %d", ErrCorruptIndex, i)
		}
		if ptr != prevEnd {
			return nil, fmt.Errorf("%w: non-monotonic pointer at document %d: got %d, want %d", ErrCorruptIndex, i, ptr, prevEnd)
		}
		if ptr%wb != 0 {
			return nil, fmt.Errorf("%w: misaligned pointer at document %d", ErrCorruptIndex, i)
		}
		offsets[i] = ptr / wb
		prevEnd = ptr + size*wb
	}
	if prevEnd != binSize {
		return nil, fmt.Errorf("%w: sentinel offset %d does not match token file length %d", ErrCorruptIndex, prevEnd, binSize)
	}
	offsets[seqCnt] = binSize / wb
	return offsets, nil
}

// writeIndex serializes the index for documents with the given token sizes.
func writeIndex(sizes []int64, width Width) []byte {
	seqCnt := uint64(len(sizes))
	buf := make([]byte, 0, idxHeaderSize+len(sizes)*20+8)
	buf = append(buf, idxMagic[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, idxVersion)
	buf = append(buf, width.dtype())
	buf = binary.LittleEndian.AppendUint64(buf, seqCnt)
	buf = binary.LittleEndian.AppendUint64(buf, seqCnt+1)
	for _, s := range sizes {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(s)))
	}
	wb := int64(width.Bytes())
	var ptr int64
	for _, s := range sizes {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(ptr))
		ptr += s * wb
	}
	// Document boundary table: one boundary per document plus the end sentinel.
	for i := uint64(0); i <= seqCnt; i++ {
		buf = binary.LittleEndian.AppendUint64(buf, i)
	}
	return buf
}
