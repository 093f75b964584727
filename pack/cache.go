package pack

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/aflah02/tokensmith/corpus"
	"github.com/aflah02/tokensmith/persistence"
)

// Plan cache file layout (little-endian):
//
//	magic     [4]byte "TSPL"
//	version   uint16
//	policy    uint8
//	split     uint8
//	seed      int64
//	iters     uint32
//	batch     uint32
//	seqLen    uint32
//	extra     uint32
//	padToken  uint32
//	splitsLen uint16 + splits string bytes
//	records   uint64
//	rawLen    uint64   uncompressed record-section length
//	compLen   uint64   compressed record-section length
//	crc       uint32   CRC32 of the compressed section
//	zstd-compressed record section
//
// The header carries the full identity tuple so a stale cache is detected
// before any record is decoded.
var planMagic = [4]byte{'T', 'S', 'P', 'L'}

const planVersion = 1

// PlanPath derives the cache location for cfg, mirroring the training
// pipeline's indexmap naming: <prefix>_<split>_<ns>ns_<sl>sl_<seed>s_<policy>.plan.
func PlanPath(savePrefix string, cfg BuildConfig) string {
	return fmt.Sprintf("%s_%s_%dns_%dsl_%ds_%s.plan",
		savePrefix, cfg.Split, cfg.Schedule.NumSlots(), cfg.Schedule.TrainSeqLen, cfg.Seed, cfg.Policy)
}

// SavePlan writes the plan atomically to path.
func SavePlan(path string, plan *Plan) error {
	raw := encodeRecords(plan.Records)
	comp, err := compress(raw)
	if err != nil {
		return fmt.Errorf("pack: compress plan: %w", err)
	}

	hdr := make([]byte, 0, 64+len(plan.SplitsStr))
	hdr = append(hdr, planMagic[:]...)
	hdr = binary.LittleEndian.AppendUint16(hdr, planVersion)
	hdr = append(hdr, byte(plan.Policy), byte(plan.Split))
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(plan.Seed))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(plan.Schedule.TrainIters))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(plan.Schedule.TrainBatchSize))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(plan.Schedule.TrainSeqLen))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(plan.ExtraTokens))
	hdr = binary.LittleEndian.AppendUint32(hdr, plan.PadToken)
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(len(plan.SplitsStr)))
	hdr = append(hdr, plan.SplitsStr...)
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(len(plan.Records)))
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(len(raw)))
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(len(comp)))
	hdr = binary.LittleEndian.AppendUint32(hdr, persistence.ComputeChecksum(comp))

	return persistence.AtomicWriteFile(path, func(w io.Writer) error {
		if _, err := w.Write(hdr); err != nil {
			return err
		}
		_, err := w.Write(comp)
		return err
	})
}

// LoadPlan reads the cache at path and validates its identity tuple and
// record count against cfg. Any disagreement fails with ErrPlanCacheMismatch.
func LoadPlan(path string, cfg BuildConfig) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := &byteReader{b: data}

	var magic [4]byte
	r.bytes(magic[:])
	if magic != planMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrPlanCacheMismatch)
	}
	if v := r.u16(); v != planVersion {
		return nil, fmt.Errorf("%w: unsupported plan version %d", ErrPlanCacheMismatch, v)
	}

	plan := &Plan{
		Policy:   Policy(r.u8()),
		Split:    Split(r.u8()),
		Seed:     int64(r.u64()),
		PadToken: 0,
	}
	plan.Schedule = Schedule{
		TrainIters:     int(r.u32()),
		TrainBatchSize: int(r.u32()),
		TrainSeqLen:    int(r.u32()),
	}
	plan.ExtraTokens = int(r.u32())
	plan.PadToken = r.u32()
	splitsLen := int(r.u16())
	splits := make([]byte, splitsLen)
	r.bytes(splits)
	plan.SplitsStr = string(splits)

	recordCount := r.u64()
	rawLen := r.u64()
	compLen := r.u64()
	crc := r.u32()
	if r.err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrPlanCacheMismatch)
	}

	if err := planIdentityMatches(plan, recordCount, cfg); err != nil {
		return nil, err
	}

	comp := make([]byte, compLen)
	r.bytes(comp)
	if r.err != nil {
		return nil, fmt.Errorf("%w: truncated record section", ErrPlanCacheMismatch)
	}
	if err := persistence.VerifyChecksum(comp, crc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanCacheMismatch, err)
	}

	raw, err := decompress(comp, rawLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanCacheMismatch, err)
	}
	plan.Records, err = decodeRecords(raw, recordCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanCacheMismatch, err)
	}
	return plan, nil
}

func planIdentityMatches(plan *Plan, recordCount uint64, cfg BuildConfig) error {
	switch {
	case plan.Schedule != cfg.Schedule:
		return fmt.Errorf("%w: schedule %+v, want %+v", ErrPlanCacheMismatch, plan.Schedule, cfg.Schedule)
	case plan.Seed != cfg.Seed:
		return fmt.Errorf("%w: seed %d, want %d", ErrPlanCacheMismatch, plan.Seed, cfg.Seed)
	case plan.Policy != cfg.Policy:
		return fmt.Errorf("%w: policy %s, want %s", ErrPlanCacheMismatch, plan.Policy, cfg.Policy)
	case plan.Split != cfg.Split:
		return fmt.Errorf("%w: split %s, want %s", ErrPlanCacheMismatch, plan.Split, cfg.Split)
	case plan.SplitsStr != cfg.SplitsStr:
		return fmt.Errorf("%w: splits %q, want %q", ErrPlanCacheMismatch, plan.SplitsStr, cfg.SplitsStr)
	case plan.ExtraTokens != cfg.ExtraTokens:
		return fmt.Errorf("%w: extra tokens %d, want %d", ErrPlanCacheMismatch, plan.ExtraTokens, cfg.ExtraTokens)
	case plan.PadToken != cfg.PadToken:
		return fmt.Errorf("%w: pad token %d, want %d", ErrPlanCacheMismatch, plan.PadToken, cfg.PadToken)
	case recordCount != uint64(cfg.Schedule.NumSlots()):
		return fmt.Errorf("%w: %d records, want %d", ErrPlanCacheMismatch, recordCount, cfg.Schedule.NumSlots())
	}
	return nil
}

// BuildOrLoadPlan loads the cached plan for cfg when reuse is true and the
// cache matches; otherwise it builds from scratch and persists. A stale or
// corrupt cache is not an error here: it triggers a rebuild.
func BuildOrLoadPlan(store *corpus.Store, savePrefix string, cfg BuildConfig, reuse bool) (*Plan, error) {
	path := PlanPath(savePrefix, cfg)

	if reuse {
		plan, err := LoadPlan(path, cfg)
		switch {
		case err == nil:
			if cfg.Verbose {
				cfg.logger().Info("reusing cached plan", "path", path)
			}
			return plan, nil
		case errors.Is(err, ErrPlanCacheMismatch):
			cfg.logger().Warn("cached plan is stale, rebuilding", "path", path, "reason", err)
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	plan, err := BuildPlan(store, cfg)
	if err != nil {
		return nil, err
	}
	if err := SavePlan(path, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func encodeRecords(records []Record) []byte {
	var size int
	for _, r := range records {
		size += 16 + len(r.Spans)*24
	}
	buf := make([]byte, 0, size)
	for _, r := range records {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(r.Pad))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(r.Spans)))
		for _, s := range r.Spans {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(s.Doc))
			buf = binary.LittleEndian.AppendUint64(buf, uint64(s.Start))
			buf = binary.LittleEndian.AppendUint64(buf, uint64(s.End))
		}
	}
	return buf
}

func decodeRecords(raw []byte, count uint64) ([]Record, error) {
	r := &byteReader{b: raw}
	records := make([]Record, count)
	for i := range records {
		rec := Record{Index: int64(i), Pad: int64(r.u64())}
		spanCount := r.u64()
		if r.err != nil || spanCount > uint64(len(raw)/24)+1 {
			return nil, fmt.Errorf("truncated record %d", i)
		}
		if spanCount > 0 {
			rec.Spans = make([]Span, spanCount)
			for j := range rec.Spans {
				rec.Spans[j] = Span{
					Doc:   int64(r.u64()),
					Start: int64(r.u64()),
					End:   int64(r.u64()),
				}
			}
		}
		if r.err != nil {
			return nil, fmt.Errorf("truncated record %d", i)
		}
		records[i] = rec
	}
	if len(r.b) != r.off {
		return nil, fmt.Errorf("trailing bytes after %d records", count)
	}
	return records, nil
}

func compress(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

func decompress(comp []byte, rawLen uint64) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(comp, make([]byte, 0, rawLen))
	if err != nil {
		return nil, err
	}
	if uint64(len(raw)) != rawLen {
		return nil, fmt.Errorf("decompressed %d bytes, want %d", len(raw), rawLen)
	}
	return raw, nil
}

// byteReader is a cursor over a byte slice that latches the first overrun.
type byteReader struct {
	b   []byte
	off int
	err error
}

func (r *byteReader) take(n int) []byte {
	if r.err != nil || r.off+n > len(r.b) {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b
}

func (r *byteReader) bytes(dst []byte) {
	if b := r.take(len(dst)); b != nil {
		copy(dst, b)
	}
}

func (r *byteReader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *byteReader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *byteReader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *byteReader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}
