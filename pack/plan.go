package pack

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/aflah02/tokensmith/corpus"
)

// Span references tokens [Start, End) of document Doc. A span never crosses
// a document boundary.
type Span struct {
	Doc   int64
	Start int64
	End   int64
}

// Len returns the span's token count.
func (s Span) Len() int64 { return s.End - s.Start }

// Record describes one sequence slot: the spans whose concatenation,
// followed by Pad padding tokens, fills exactly seqLen+extra tokens.
type Record struct {
	Index int64
	Spans []Span
	Pad   int64
}

// TokenLen returns the number of real (non-pad) tokens in the record.
func (r Record) TokenLen() int64 {
	var n int64
	for _, s := range r.Spans {
		n += s.Len()
	}
	return n
}

// FirstDocument returns the document supplying the record's first token,
// or -1 for an all-pad record.
func (r Record) FirstDocument() int64 {
	if len(r.Spans) == 0 {
		return -1
	}
	return r.Spans[0].Doc
}

// LastDocument returns the document supplying the record's last real token,
// or -1 for an all-pad record.
func (r Record) LastDocument() int64 {
	if len(r.Spans) == 0 {
		return -1
	}
	return r.Spans[len(r.Spans)-1].Doc
}

// Plan is the complete, immutable sequence mapping for one simulated
// training run over one split.
type Plan struct {
	Schedule    Schedule
	Seed        int64
	Policy      Policy
	SplitsStr   string
	Split       Split
	ExtraTokens int
	PadToken    uint32

	Records []Record

	docIndexOnce sync.Once
	docIndex     map[int64]*roaring.Bitmap
}

// SlotLen returns the target token length of every slot.
func (p *Plan) SlotLen() int64 {
	return int64(p.Schedule.TrainSeqLen + p.ExtraTokens)
}

// NumRecords returns the number of sequence records in the plan.
func (p *Plan) NumRecords() int64 { return int64(len(p.Records)) }

// Record returns the record for sequence slot i.
func (p *Plan) Record(i int64) (Record, error) {
	if i < 0 || i >= p.NumRecords() {
		return Record{}, fmt.Errorf("%w: sequence %d of %d", corpus.ErrOutOfRange, i, p.NumRecords())
	}
	return p.Records[i], nil
}

// Sequence materializes slot i against the store: span tokens concatenated
// in order, then Pad copies of the pad token.
func (p *Plan) Sequence(store *corpus.Store, i int64) ([]uint32, error) {
	rec, err := p.Record(i)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, p.SlotLen())
	for _, sp := range rec.Spans {
		start, _, err := store.DocumentSpan(int(sp.Doc))
		if err != nil {
			return nil, err
		}
		view, err := store.ReadRange(start+sp.Start, start+sp.End)
		if err != nil {
			return nil, err
		}
		out = view.AppendTo(out)
	}
	for j := int64(0); j < rec.Pad; j++ {
		out = append(out, p.PadToken)
	}
	return out, nil
}

// SequenceSegments materializes slot i as one token slice per document
// segment, preserving the span structure for inspection tooling. Padding is
// not included.
func (p *Plan) SequenceSegments(store *corpus.Store, i int64) ([][]uint32, error) {
	rec, err := p.Record(i)
	if err != nil {
		return nil, err
	}
	segs := make([][]uint32, 0, len(rec.Spans))
	for _, sp := range rec.Spans {
		start, _, err := store.DocumentSpan(int(sp.Doc))
		if err != nil {
			return nil, err
		}
		view, err := store.ReadRange(start+sp.Start, start+sp.End)
		if err != nil {
			return nil, err
		}
		segs = append(segs, view.Materialize())
	}
	return segs, nil
}

// RecordsForDocument returns the indexes of every record holding a span on
// doc, ascending. The inverted mapping is built once, lazily, as compressed
// bitmaps.
func (p *Plan) RecordsForDocument(doc int64) []uint32 {
	p.docIndexOnce.Do(func() {
		p.docIndex = make(map[int64]*roaring.Bitmap)
		for _, rec := range p.Records {
			for _, sp := range rec.Spans {
				bm, ok := p.docIndex[sp.Doc]
				if !ok {
					bm = roaring.New()
					p.docIndex[sp.Doc] = bm
				}
				bm.Add(uint32(rec.Index))
			}
		}
	})
	bm, ok := p.docIndex[doc]
	if !ok {
		return nil
	}
	return bm.ToArray()
}

// validateRecords checks the per-record slot-length invariant.
func (p *Plan) validateRecords() error {
	slot := p.SlotLen()
	for _, rec := range p.Records {
		if got := rec.TokenLen() + rec.Pad; got != slot {
			return fmt.Errorf("pack: record %d holds %d tokens, want %d", rec.Index, got, slot)
		}
	}
	return nil
}
