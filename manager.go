package tokensmith

import (
	"fmt"

	"github.com/aflah02/tokensmith/corpus"
	"github.com/aflah02/tokensmith/pack"
	"github.com/aflah02/tokensmith/search"
)

// Manager owns a memory-mapped token store and wires the packing engine and
// search index over it on demand. The two setups are independent and
// explicit, so workflows that only search never pay for plan construction
// and vice versa.
//
// After setup, all methods are safe for concurrent readers.
type Manager struct {
	store  *corpus.Store
	logger *Logger
	opts   options

	searchIdx *search.Index
	plan      *pack.Plan
}

// Open maps <prefix>.bin and <prefix>.idx read-only.
func Open(prefix string, optFns ...Option) (*Manager, error) {
	o := options{width: corpus.Width16}
	for _, fn := range optFns {
		fn(&o)
	}
	if !o.width.Valid() {
		return nil, fmt.Errorf("%w: vocab must be 2^16 or 2^32", ErrUnsupportedWidth)
	}
	if o.logger == nil {
		o.logger = NewLogger(nil)
	}

	store, err := corpus.Open(prefix, o.width)
	if err != nil {
		return nil, err
	}

	return &Manager{
		store:  store,
		logger: o.logger.WithDataset(prefix),
		opts:   o,
	}, nil
}

// Store returns the underlying token store.
func (m *Manager) Store() *corpus.Store { return m.store }

// Logger returns the manager's logger.
func (m *Manager) Logger() *Logger { return m.logger }

// SetupSearch builds or loads the search index at indexPath. With reuse, a
// compatible persisted index is loaded; a missing, stale, or corrupt one is
// rebuilt and persisted.
//
// Not done automatically at Open: index construction is a heavy batch
// operation that search-free workflows should never pay for.
func (m *Manager) SetupSearch(indexPath string, reuse bool) error {
	if m.searchIdx != nil {
		return fmt.Errorf("tokensmith: search already initialized")
	}
	ix, err := search.BuildOrLoad(m.store, indexPath, reuse, func(o *search.Options) {
		o.Logger = m.logger.Logger
		o.Verbose = m.opts.verbose
	})
	if err != nil {
		return err
	}
	if !ix.IsSorted() {
		_ = ix.Close()
		return fmt.Errorf("tokensmith: search index is not in suffix order")
	}
	m.searchIdx = ix
	return nil
}

// Search returns the search index. Nil before SetupSearch.
func (m *Manager) Search() *search.Index { return m.searchIdx }

// PackingConfig is the identity tuple for a packing plan.
type PackingConfig struct {
	Schedule    pack.Schedule
	Seed        int64
	Policy      pack.Policy
	Splits      string
	Split       pack.Split
	ExtraTokens int
}

// SetupPacking builds or loads the packing plan for cfg, caching it under
// savePrefix. With reuse, a cached plan matching the full tuple is loaded;
// a stale cache triggers a rebuild.
func (m *Manager) SetupPacking(savePrefix string, cfg PackingConfig, reuse bool) error {
	if m.plan != nil {
		return fmt.Errorf("tokensmith: packing already initialized")
	}
	plan, err := pack.BuildOrLoadPlan(m.store, savePrefix, pack.BuildConfig{
		Schedule:    cfg.Schedule,
		Seed:        cfg.Seed,
		Policy:      cfg.Policy,
		SplitsStr:   cfg.Splits,
		Split:       cfg.Split,
		ExtraTokens: cfg.ExtraTokens,
		PadToken:    m.opts.padToken,
		Logger:      m.logger.Logger,
		Verbose:     m.opts.verbose,
	}, reuse)
	if err != nil {
		return err
	}
	m.plan = plan
	return nil
}

// Plan returns the packing plan. Nil before SetupPacking.
func (m *Manager) Plan() *pack.Plan { return m.plan }

// Sequence materializes training sequence i: span tokens in order, then
// padding.
func (m *Manager) Sequence(i int64) ([]uint32, error) {
	if m.plan == nil {
		return nil, fmt.Errorf("tokensmith: packing not initialized")
	}
	return m.plan.Sequence(m.store, i)
}

// Sequences materializes a batch of training sequences by index.
func (m *Manager) Sequences(indexes []int64) ([][]uint32, error) {
	out := make([][]uint32, len(indexes))
	for j, i := range indexes {
		seq, err := m.Sequence(i)
		if err != nil {
			return nil, err
		}
		out[j] = seq
	}
	return out, nil
}

// SequenceDetails describes one training sequence for inspection tooling.
type SequenceDetails struct {
	Index         int64
	Segments      [][]uint32 // one slice per document segment, padding excluded
	Documents     []int64    // document per segment, in order
	FirstDocument int64
	LastDocument  int64
	Pad           int64
}

// InspectSequence returns sequence i split by document segment, with the
// first/last document metadata the inspection tools surface.
func (m *Manager) InspectSequence(i int64) (SequenceDetails, error) {
	if m.plan == nil {
		return SequenceDetails{}, fmt.Errorf("tokensmith: packing not initialized")
	}
	rec, err := m.plan.Record(i)
	if err != nil {
		return SequenceDetails{}, err
	}
	segs, err := m.plan.SequenceSegments(m.store, i)
	if err != nil {
		return SequenceDetails{}, err
	}
	docs := make([]int64, len(rec.Spans))
	for j, sp := range rec.Spans {
		docs[j] = sp.Doc
	}
	return SequenceDetails{
		Index:         i,
		Segments:      segs,
		Documents:     docs,
		FirstDocument: rec.FirstDocument(),
		LastDocument:  rec.LastDocument(),
		Pad:           rec.Pad,
	}, nil
}

// Close releases the search index mapping (if any) and the token store.
func (m *Manager) Close() error {
	var first error
	if m.searchIdx != nil {
		if err := m.searchIdx.Close(); err != nil {
			first = err
		}
		m.searchIdx = nil
	}
	if err := m.store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
