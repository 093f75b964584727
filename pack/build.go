package pack

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/aflah02/tokensmith/corpus"
)

// BuildConfig is the full identity tuple of a plan plus build-time knobs
// that do not affect the result (logger, verbosity).
type BuildConfig struct {
	Schedule    Schedule
	Seed        int64
	Policy      Policy
	SplitsStr   string
	Split       Split
	ExtraTokens int
	PadToken    uint32

	Logger  *slog.Logger
	Verbose bool
}

func (c BuildConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// BuildPlan computes the sequence mapping for cfg from scratch.
//
// The shuffle step is sequential so the seeded permutation reproduces
// exactly; span assignment over the fixed order is parallelized.
func BuildPlan(store *corpus.Store, cfg BuildConfig) (*Plan, error) {
	if err := cfg.Schedule.Validate(); err != nil {
		return nil, err
	}
	if cfg.ExtraTokens < 0 {
		return nil, fmt.Errorf("extra tokens must be non-negative, got %d", cfg.ExtraTokens)
	}

	ratios, err := ParseSplitRatios(cfg.SplitsStr)
	if err != nil {
		return nil, err
	}
	bounds := PartitionDocuments(ratios, store.DocumentCount())
	start, end := splitRange(bounds, cfg.Split)

	plan := &Plan{
		Schedule:    cfg.Schedule,
		Seed:        cfg.Seed,
		Policy:      cfg.Policy,
		SplitsStr:   cfg.SplitsStr,
		Split:       cfg.Split,
		ExtraTokens: cfg.ExtraTokens,
		PadToken:    cfg.PadToken,
	}

	began := time.Now()

	switch cfg.Policy {
	case PolicyPacked:
		plan.Records, err = buildPacked(store, cfg, start, end)
	case PolicyPackUntilOverflow:
		rng := newShuffleRNG(cfg.Seed)
		docs := permutation(rng, start, end)
		reshuffle := func(d []int64) { fisherYates(rng, d) }
		plan.Records, err = buildPackUntilOverflow(store, cfg, docs, reshuffle)
	case PolicyUnpacked:
		plan.Records, err = buildUnpacked(store, cfg, start, end)
	default:
		err = fmt.Errorf("%w: %d", ErrUnknownPolicy, cfg.Policy)
	}
	if err != nil {
		return nil, err
	}

	if err := plan.validateRecords(); err != nil {
		return nil, err
	}

	if cfg.Verbose {
		cfg.logger().Info("plan built",
			"split", cfg.Split.String(),
			"policy", cfg.Policy.String(),
			"records", len(plan.Records),
			"elapsed", time.Since(began))
	}
	return plan, nil
}

// buildPacked walks an epoch-replicated shuffled document stream and cuts it
// into slots of seqLen stride with a seqLen+extra window (consecutive slots
// overlap by the extra lookahead). Slots never pad.
func buildPacked(store *corpus.Store, cfg BuildConfig, start, end int) ([]Record, error) {
	numSlots := cfg.Schedule.NumSlots()
	seqLen := int64(cfg.Schedule.TrainSeqLen)
	slotLen := seqLen + int64(cfg.ExtraTokens)

	splitDocs := end - start
	var tokensPerEpoch int64
	for d := start; d < end; d++ {
		size, err := store.DocumentSize(d)
		if err != nil {
			return nil, err
		}
		tokensPerEpoch += size
	}
	if splitDocs == 0 || tokensPerEpoch == 0 {
		return nil, fmt.Errorf("%w: split %s holds no tokens", ErrInsufficientCorpus, cfg.Split)
	}

	need := numSlots*seqLen + int64(cfg.ExtraTokens)
	epochs := (need + tokensPerEpoch - 1) / tokensPerEpoch
	if epochs > 1 && cfg.Verbose {
		cfg.logger().Warn("schedule spans multiple epochs; documents repeat",
			"epochs", epochs)
	}

	// The whole epoch-replicated stream is shuffled in one pass, so slot
	// content depends only on (seed, documentCount).
	stream := make([]int64, 0, epochs*int64(splitDocs))
	for e := int64(0); e < epochs; e++ {
		for d := start; d < end; d++ {
			stream = append(stream, int64(d))
		}
	}
	fisherYates(newShuffleRNG(cfg.Seed), stream)

	// Prefix sums over the stream give each slot an independent token range.
	cum := make([]int64, len(stream)+1)
	for i, d := range stream {
		size, _ := store.DocumentSize(int(d))
		cum[i+1] = cum[i] + size
	}

	records := make([]Record, numSlots)
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	const chunk = 4096
	for lo := int64(0); lo < numSlots; lo += chunk {
		lo := lo
		hi := min(lo+chunk, numSlots)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				first := i * seqLen
				records[i] = Record{
					Index: i,
					Spans: spansForRange(store, stream, cum, first, first+slotLen),
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// spansForRange maps the token-stream range [first, last) onto document
// spans using the stream prefix sums.
func spansForRange(store *corpus.Store, stream []int64, cum []int64, first, last int64) []Span {
	// First stream document covering position first.
	di := sort.Search(len(stream), func(i int) bool { return cum[i+1] > first })
	var spans []Span
	pos := first
	for pos < last {
		doc := stream[di]
		size := cum[di+1] - cum[di]
		// Empty documents contribute no span.
		if size == 0 {
			di++
			continue
		}
		off := pos - cum[di]
		take := min(size-off, last-pos)
		spans = append(spans, Span{Doc: doc, Start: off, End: off + take})
		pos += take
		di++
	}
	return spans
}

// buildPackUntilOverflow packs whole documents greedily. When the next
// document would overflow the slot, the slot closes short (padded) and the
// document opens the next one; a document larger than a whole slot is
// chopped across consecutive slots. The document order reshuffles whenever
// the split is exhausted.
func buildPackUntilOverflow(store *corpus.Store, cfg BuildConfig, docs []int64, reshuffle func([]int64)) ([]Record, error) {
	numSlots := cfg.Schedule.NumSlots()
	capacity := int64(cfg.Schedule.TrainSeqLen + cfg.ExtraTokens)

	var haveTokens bool
	for _, d := range docs {
		size, err := store.DocumentSize(int(d))
		if err != nil {
			return nil, err
		}
		if size > 0 {
			haveTokens = true
			break
		}
	}
	if !haveTokens {
		return nil, fmt.Errorf("%w: split %s holds no tokens", ErrInsufficientCorpus, cfg.Split)
	}

	progress := newProgress(cfg)

	records := make([]Record, 0, numSlots)
	cur := Record{}
	var filled int64
	closeSlot := func() {
		cur.Index = int64(len(records))
		cur.Pad = capacity - filled
		records = append(records, cur)
		cur = Record{}
		filled = 0
		progress.step(int64(len(records)), numSlots)
	}

	di := 0
	for int64(len(records)) < numSlots {
		if di == len(docs) {
			di = 0
			reshuffle(docs)
		}
		doc := docs[di]
		size, _ := store.DocumentSize(int(doc))
		di++
		// Empty documents contribute no span.
		if size == 0 {
			continue
		}

		if filled+size <= capacity {
			cur.Spans = append(cur.Spans, Span{Doc: doc, Start: 0, End: size})
			filled += size
			if filled == capacity {
				closeSlot()
			}
			continue
		}

		// Overflow: close the running slot short, then lay the document out
		// from the top of a fresh slot, chopping as often as needed.
		if filled > 0 {
			closeSlot()
		}
		var off int64
		for size-off > capacity && int64(len(records)) < numSlots {
			cur.Spans = append(cur.Spans, Span{Doc: doc, Start: off, End: off + capacity})
			filled = capacity
			closeSlot()
			off += capacity
		}
		if int64(len(records)) == numSlots {
			break
		}
		if size-off > 0 {
			cur.Spans = append(cur.Spans, Span{Doc: doc, Start: off, End: size})
			filled = size - off
			if filled == capacity {
				closeSlot()
			}
		}
	}
	return records, nil
}

// buildUnpacked maps slot i to the split's i-th document in corpus order,
// wrapping modulo the split size. Documents are truncated or padded to the
// slot length; short documents are not an error.
func buildUnpacked(store *corpus.Store, cfg BuildConfig, start, end int) ([]Record, error) {
	numSlots := cfg.Schedule.NumSlots()
	slotLen := int64(cfg.Schedule.TrainSeqLen + cfg.ExtraTokens)

	count := end - start
	if count == 0 {
		return nil, fmt.Errorf("%w: split %s holds no documents", ErrInsufficientCorpus, cfg.Split)
	}

	progress := newProgress(cfg)

	records := make([]Record, numSlots)
	for i := int64(0); i < numSlots; i++ {
		doc := int64(start) + i%int64(count)
		size, err := store.DocumentSize(int(doc))
		if err != nil {
			return nil, err
		}
		take := min(size, slotLen)
		rec := Record{Index: i, Pad: slotLen - take}
		if take > 0 {
			rec.Spans = []Span{{Doc: doc, Start: 0, End: take}}
		}
		records[i] = rec
		progress.step(i+1, numSlots)
	}
	return records, nil
}

// progressLogger throttles slot-progress logging during verbose builds.
type progressLogger struct {
	log     *slog.Logger
	limiter *rate.Limiter
}

func newProgress(cfg BuildConfig) *progressLogger {
	if !cfg.Verbose {
		return nil
	}
	return &progressLogger{
		log:     cfg.logger(),
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (p *progressLogger) step(done, total int64) {
	if p == nil || !p.limiter.Allow() {
		return
	}
	p.log.Info("packing sequences", "done", done, "total", total)
}
