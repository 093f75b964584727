package pack

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aflah02/tokensmith/corpus"
)

// buildStore writes a corpus where document d holds sizes[d] tokens, each
// token encoding (d, position) as d*100+pos so sequence content is traceable.
func buildStore(t *testing.T, sizes []int) *corpus.Store {
	t.Helper()
	prefix := filepath.Join(t.TempDir(), "data")
	w, err := corpus.NewWriter(prefix, corpus.Width16)
	require.NoError(t, err)
	for d, n := range sizes {
		doc := make([]uint32, n)
		for i := range doc {
			doc[i] = uint32(d*100 + i)
		}
		require.NoError(t, w.WriteDocument(doc))
	}
	require.NoError(t, w.Close())

	s, err := corpus.Open(prefix, corpus.Width16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func trainAllConfig(iters, batch, seqLen int, seed int64, policy Policy) BuildConfig {
	return BuildConfig{
		Schedule:  Schedule{TrainIters: iters, TrainBatchSize: batch, TrainSeqLen: seqLen},
		Seed:      seed,
		Policy:    policy,
		SplitsStr: "100,0,0",
		Split:     SplitTrain,
	}
}

func TestParseSplitRatios(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want [3]float64
	}{
		{"969,30,1", [3]float64{0.969, 0.03, 0.001}},
		{"8/1/1", [3]float64{0.8, 0.1, 0.1}},
		{"1", [3]float64{1, 0, 0}},
		{"3,1", [3]float64{0.75, 0.25, 0}},
	} {
		got, err := ParseSplitRatios(tc.in)
		require.NoError(t, err, tc.in)
		for i := range got {
			assert.InDelta(t, tc.want[i], got[i], 1e-12, "%s [%d]", tc.in, i)
		}
	}

	for _, in := range []string{"abc", "1,x,2", "-1,2,0", "0,0,0", ""} {
		_, err := ParseSplitRatios(in)
		assert.ErrorIs(t, err, ErrInvalidSplits, in)
	}
}

func TestPartitionDocuments(t *testing.T) {
	ratios, err := ParseSplitRatios("969,30,1")
	require.NoError(t, err)

	bounds := PartitionDocuments(ratios, 1000)
	assert.Equal(t, [4]int{0, 969, 999, 1000}, bounds)

	// Rounding surplus lands on the first split; sizes always sum to size.
	for _, size := range []int{1, 7, 10, 33, 999} {
		b := PartitionDocuments(ratios, size)
		assert.Equal(t, 0, b[0])
		assert.Equal(t, size, b[3], "size %d", size)
		for i := 1; i < 4; i++ {
			assert.GreaterOrEqual(t, b[i], b[i-1], "size %d boundary %d", size, i)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Policy
	}{
		{"packed", PolicyPacked},
		{"pack_until_overflow", PolicyPackUntilOverflow},
		{"unpacked", PolicyUnpacked},
	} {
		got, err := ParsePolicy(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.in, got.String())
	}

	_, err := ParsePolicy("round_robin")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestShuffleDeterminism(t *testing.T) {
	a := permutation(newShuffleRNG(1234), 0, 64)
	b := permutation(newShuffleRNG(1234), 0, 64)
	c := permutation(newShuffleRNG(1235), 0, 64)

	assert.Equal(t, a, b, "same seed must reproduce the permutation")
	assert.NotEqual(t, a, c, "different seed must reorder")
	assert.ElementsMatch(t, a, c)
}

func TestBuildUnpacked(t *testing.T) {
	store := buildStore(t, []int{10, 30, 10})
	cfg := trainAllConfig(5, 1, 20, 42, PolicyUnpacked)

	plan, err := BuildPlan(store, cfg)
	require.NoError(t, err)
	require.Equal(t, int64(5), plan.NumRecords())

	// Slot i maps to document i mod 3 in corpus order.
	for i := int64(0); i < 5; i++ {
		rec, err := plan.Record(i)
		require.NoError(t, err)
		require.Len(t, rec.Spans, 1)
		assert.Equal(t, i%3, rec.Spans[0].Doc)
	}

	// Document 0 is short: padded to the slot length.
	seq, err := plan.Sequence(store, 0)
	require.NoError(t, err)
	require.Len(t, seq, 20)
	assert.Equal(t, uint32(9), seq[9])
	for _, tok := range seq[10:] {
		assert.Equal(t, plan.PadToken, tok)
	}

	// Document 1 is long: truncated, never padded.
	rec, err := plan.Record(1)
	require.NoError(t, err)
	assert.Equal(t, Span{Doc: 1, Start: 0, End: 20}, rec.Spans[0])
	assert.Equal(t, int64(0), rec.Pad)
}

func TestBuildPackUntilOverflow(t *testing.T) {
	store := buildStore(t, []int{5, 5, 15})
	cfg := trainAllConfig(3, 1, 10, 0, PolicyPackUntilOverflow)

	docs := []int64{0, 1, 2}
	records, err := buildPackUntilOverflow(store, cfg, docs, func([]int64) {})
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Two whole documents fill the first slot exactly.
	assert.Equal(t, []Span{{Doc: 0, Start: 0, End: 5}, {Doc: 1, Start: 0, End: 5}}, records[0].Spans)
	assert.Equal(t, int64(0), records[0].Pad)

	// The oversized document is chopped from the top of a fresh slot.
	assert.Equal(t, []Span{{Doc: 2, Start: 0, End: 10}}, records[1].Spans)
	assert.Equal(t, int64(0), records[1].Pad)

	// Its remainder opens the next slot; the wrapped-around first document
	// completes it.
	assert.Equal(t, []Span{{Doc: 2, Start: 10, End: 15}, {Doc: 0, Start: 0, End: 5}}, records[2].Spans)
	assert.Equal(t, int64(0), records[2].Pad)
}

func TestBuildPackUntilOverflowPadsShortSlot(t *testing.T) {
	store := buildStore(t, []int{7})
	cfg := trainAllConfig(1, 1, 10, 0, PolicyPackUntilOverflow)

	// The single document fills 7 of 10; appending it again would overflow,
	// so the slot closes short and pads.
	records, err := buildPackUntilOverflow(store, cfg, []int64{0}, func([]int64) {})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []Span{{Doc: 0, Start: 0, End: 7}}, records[0].Spans)
	assert.Equal(t, int64(3), records[0].Pad)
}

func TestBuildPacked(t *testing.T) {
	store := buildStore(t, []int{13, 7, 21, 9, 17, 5, 11, 3})
	cfg := trainAllConfig(4, 2, 16, 7, PolicyPacked)

	plan, err := BuildPlan(store, cfg)
	require.NoError(t, err)
	require.Equal(t, int64(8), plan.NumRecords())

	// Packed slots never pad and spans never cross document boundaries.
	for _, rec := range plan.Records {
		assert.Equal(t, int64(0), rec.Pad, "slot %d", rec.Index)
		assert.Equal(t, plan.SlotLen(), rec.TokenLen(), "slot %d", rec.Index)
		for _, sp := range rec.Spans {
			size, err := store.DocumentSize(int(sp.Doc))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, sp.Start, int64(0))
			assert.LessOrEqual(t, sp.End, size)
			assert.Less(t, sp.Start, sp.End)
		}
	}
}

func TestBuildPackedDeterminism(t *testing.T) {
	store := buildStore(t, []int{13, 7, 21, 9, 17, 5, 11, 3})

	a, err := BuildPlan(store, trainAllConfig(6, 2, 16, 99, PolicyPacked))
	require.NoError(t, err)
	b, err := BuildPlan(store, trainAllConfig(6, 2, 16, 99, PolicyPacked))
	require.NoError(t, err)
	c, err := BuildPlan(store, trainAllConfig(6, 2, 16, 100, PolicyPacked))
	require.NoError(t, err)

	assert.Equal(t, a.Records, b.Records, "same seed must reproduce the plan")
	assert.NotEqual(t, a.Records, c.Records, "different seed must reorder the stream")
}

func TestBuildPackedExtraTokenOverlap(t *testing.T) {
	store := buildStore(t, []int{13, 7, 21, 9, 17})
	cfg := trainAllConfig(4, 1, 8, 3, PolicyPacked)
	cfg.ExtraTokens = 1

	plan, err := BuildPlan(store, cfg)
	require.NoError(t, err)

	// With one extra lookahead token, slot i's last token is slot i+1's first.
	for i := int64(0); i < plan.NumRecords()-1; i++ {
		cur, err := plan.Sequence(store, i)
		require.NoError(t, err)
		next, err := plan.Sequence(store, i+1)
		require.NoError(t, err)
		require.Len(t, cur, 9)
		assert.Equal(t, cur[8], next[0], "slot %d lookahead", i)
	}
}

func TestBuildPackedMultiEpoch(t *testing.T) {
	// 10 tokens per epoch, 4 slots of 5 need 20: the stream replicates the
	// corpus across epochs instead of failing.
	store := buildStore(t, []int{4, 6})
	plan, err := BuildPlan(store, trainAllConfig(4, 1, 5, 3, PolicyPacked))
	require.NoError(t, err)

	var total int64
	for _, rec := range plan.Records {
		total += rec.TokenLen()
	}
	assert.Equal(t, int64(20), total)
}

func TestBuildRespectsSplitBoundaries(t *testing.T) {
	store := buildStore(t, []int{6, 6, 6, 6, 6, 6, 6, 6, 6, 6})
	cfg := trainAllConfig(4, 1, 6, 11, PolicyPacked)
	cfg.SplitsStr = "8,1,1"
	cfg.Split = SplitValidation

	plan, err := BuildPlan(store, cfg)
	require.NoError(t, err)

	// "8,1,1" over 10 documents leaves validation exactly document 8.
	for _, rec := range plan.Records {
		for _, sp := range rec.Spans {
			assert.Equal(t, int64(8), sp.Doc)
		}
	}
}

func TestBuildEmptySplit(t *testing.T) {
	store := buildStore(t, []int{6, 6})
	cfg := trainAllConfig(1, 1, 4, 0, PolicyUnpacked)
	cfg.SplitsStr = "100,0,0"
	cfg.Split = SplitTest

	_, err := BuildPlan(store, cfg)
	assert.ErrorIs(t, err, ErrInsufficientCorpus)
}

func TestBuildRejectsBadConfig(t *testing.T) {
	store := buildStore(t, []int{6})

	cfg := trainAllConfig(0, 1, 4, 0, PolicyPacked)
	_, err := BuildPlan(store, cfg)
	assert.Error(t, err)

	cfg = trainAllConfig(1, 1, 4, 0, PolicyPacked)
	cfg.ExtraTokens = -1
	_, err = BuildPlan(store, cfg)
	assert.Error(t, err)

	cfg = trainAllConfig(1, 1, 4, 0, Policy(9))
	_, err = BuildPlan(store, cfg)
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestEmptyDocumentsContributeNoSpans(t *testing.T) {
	store := buildStore(t, []int{3, 0, 4, 0, 5})

	assertNoEmptySpans := func(t *testing.T, records []Record) {
		t.Helper()
		for _, rec := range records {
			for _, sp := range rec.Spans {
				assert.Less(t, sp.Start, sp.End, "slot %d", rec.Index)
				assert.NotContains(t, []int64{1, 3}, sp.Doc, "slot %d", rec.Index)
			}
		}
	}

	t.Run("Packed", func(t *testing.T) {
		plan, err := BuildPlan(store, trainAllConfig(3, 1, 4, 5, PolicyPacked))
		require.NoError(t, err)
		assertNoEmptySpans(t, plan.Records)
	})

	t.Run("PackUntilOverflow", func(t *testing.T) {
		cfg := trainAllConfig(2, 1, 10, 0, PolicyPackUntilOverflow)
		records, err := buildPackUntilOverflow(store, cfg, []int64{0, 1, 2, 3, 4}, func([]int64) {})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assertNoEmptySpans(t, records)

		// The empty documents between 0 and 2 are passed over entirely.
		assert.Equal(t, []Span{{Doc: 0, Start: 0, End: 3}, {Doc: 2, Start: 0, End: 4}}, records[0].Spans)
		assert.Equal(t, int64(3), records[0].Pad)
	})

	t.Run("Unpacked", func(t *testing.T) {
		plan, err := BuildPlan(store, trainAllConfig(5, 1, 4, 0, PolicyUnpacked))
		require.NoError(t, err)
		assertNoEmptySpans(t, plan.Records)

		// Slot 1 maps to the empty document: all pad, no span.
		rec, err := plan.Record(1)
		require.NoError(t, err)
		assert.Empty(t, rec.Spans)
		assert.Equal(t, int64(4), rec.Pad)
		assert.Equal(t, int64(-1), rec.FirstDocument())
	})
}

func TestRecordsForDocument(t *testing.T) {
	store := buildStore(t, []int{8, 8, 8})
	plan, err := BuildPlan(store, trainAllConfig(5, 1, 8, 0, PolicyUnpacked))
	require.NoError(t, err)

	assert.Equal(t, []uint32{0, 3}, plan.RecordsForDocument(0))
	assert.Equal(t, []uint32{1, 4}, plan.RecordsForDocument(1))
	assert.Equal(t, []uint32{2}, plan.RecordsForDocument(2))
	assert.Nil(t, plan.RecordsForDocument(7))
}

func TestPlanCacheRoundTrip(t *testing.T) {
	store := buildStore(t, []int{13, 7, 21, 9, 17})
	cfg := trainAllConfig(4, 2, 10, 17, PolicyPacked)
	cfg.ExtraTokens = 1
	cfg.PadToken = 2

	plan, err := BuildPlan(store, cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cache.plan")
	require.NoError(t, SavePlan(path, plan))

	loaded, err := LoadPlan(path, cfg)
	require.NoError(t, err)
	assert.Equal(t, plan.Records, loaded.Records)
	assert.Equal(t, plan.Schedule, loaded.Schedule)
	assert.Equal(t, plan.Seed, loaded.Seed)
	assert.Equal(t, plan.SplitsStr, loaded.SplitsStr)
	assert.Equal(t, plan.PadToken, loaded.PadToken)
}

func TestPlanCacheMismatch(t *testing.T) {
	store := buildStore(t, []int{13, 7, 21, 9, 17})
	cfg := trainAllConfig(4, 2, 10, 17, PolicyPacked)

	plan, err := BuildPlan(store, cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "cache.plan")
	require.NoError(t, SavePlan(path, plan))

	mutations := map[string]func(*BuildConfig){
		"seed":   func(c *BuildConfig) { c.Seed = 18 },
		"seqlen": func(c *BuildConfig) { c.Schedule.TrainSeqLen = 12 },
		"policy": func(c *BuildConfig) { c.Policy = PolicyUnpacked },
		"split":  func(c *BuildConfig) { c.Split = SplitValidation },
		"splits": func(c *BuildConfig) { c.SplitsStr = "90,9,1" },
		"extra":  func(c *BuildConfig) { c.ExtraTokens = 1 },
		"pad":    func(c *BuildConfig) { c.PadToken = 1 },
		"iters":  func(c *BuildConfig) { c.Schedule.TrainIters = 5 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			stale := cfg
			mutate(&stale)
			_, err := LoadPlan(path, stale)
			assert.ErrorIs(t, err, ErrPlanCacheMismatch)
		})
	}
}

func TestBuildOrLoadPlan(t *testing.T) {
	store := buildStore(t, []int{13, 7, 21, 9, 17})
	cfg := trainAllConfig(4, 2, 10, 17, PolicyPacked)
	savePrefix := filepath.Join(t.TempDir(), "data")
	path := PlanPath(savePrefix, cfg)

	built, err := BuildOrLoadPlan(store, savePrefix, cfg, true)
	require.NoError(t, err)
	assert.FileExists(t, path)

	reused, err := BuildOrLoadPlan(store, savePrefix, cfg, true)
	require.NoError(t, err)
	assert.Equal(t, built.Records, reused.Records)

	// reuse=false always rebuilds but still refreshes the cache.
	rebuilt, err := BuildOrLoadPlan(store, savePrefix, cfg, false)
	require.NoError(t, err)
	assert.Equal(t, built.Records, rebuilt.Records)
}

func TestPlanPathEncodesIdentity(t *testing.T) {
	cfg := trainAllConfig(100, 8, 2048, 1234, PolicyPacked)
	got := PlanPath("/data/pile", cfg)
	assert.Equal(t, "/data/pile_train_800ns_2048sl_1234s_packed.plan", got)
}
