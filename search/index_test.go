package search

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aflah02/tokensmith/corpus"
)

func makeStore(t *testing.T, tokens []uint32) *corpus.Store {
	t.Helper()
	prefix := filepath.Join(t.TempDir(), "data")
	w, err := corpus.NewWriter(prefix, corpus.Width16)
	require.NoError(t, err)
	require.NoError(t, w.WriteDocument(tokens))
	require.NoError(t, w.Close())

	s, err := corpus.Open(prefix, corpus.Width16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIndexQueries(t *testing.T) {
	store := makeStore(t, []uint32{5, 1, 2, 5, 1, 3})
	ix, err := Build(store)
	require.NoError(t, err)

	count, err := ix.Count([]uint32{5, 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	ok, err := ix.Contains([]uint32{5, 1})
	require.NoError(t, err)
	assert.True(t, ok)

	pos, err := ix.Positions([]uint32{5, 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 3}, pos)

	next, err := ix.CountNext([]uint32{5, 1})
	require.NoError(t, err)
	assert.Equal(t, map[uint32]int64{2: 1, 3: 1}, next)
}

func TestIndexAbsentQuery(t *testing.T) {
	store := makeStore(t, []uint32{5, 1, 2, 5, 1, 3})
	ix, err := Build(store)
	require.NoError(t, err)

	count, err := ix.Count([]uint32{9})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	ok, err := ix.Contains([]uint32{1, 5})
	require.NoError(t, err)
	assert.False(t, ok)

	pos, err := ix.Positions([]uint32{9, 9})
	require.NoError(t, err)
	assert.Empty(t, pos)

	next, err := ix.CountNext([]uint32{9})
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestIndexEmptyQuery(t *testing.T) {
	store := makeStore(t, []uint32{1, 2, 3})
	ix, err := Build(store)
	require.NoError(t, err)

	_, err = ix.Count(nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = ix.Contains([]uint32{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = ix.Positions(nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = ix.CountNext(nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestIndexQueryAtCorpusEnd(t *testing.T) {
	store := makeStore(t, []uint32{1, 2, 3})
	ix, err := Build(store)
	require.NoError(t, err)

	// The final token occurs once and is followed by nothing.
	next, err := ix.CountNext([]uint32{3})
	require.NoError(t, err)
	assert.Empty(t, next)

	count, err := ix.Count([]uint32{2, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestIndexIsSorted(t *testing.T) {
	store := makeStore(t, []uint32{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5})
	ix, err := Build(store)
	require.NoError(t, err)
	assert.True(t, ix.IsSorted())
}

// naive scans the corpus directly; the index must agree with it on every
// query.
type naive []uint32

func (c naive) matches(query []uint32) []int64 {
	var pos []int64
	for i := 0; i+len(query) <= len(c); i++ {
		ok := true
		for j, q := range query {
			if c[i+j] != q {
				ok = false
				break
			}
		}
		if ok {
			pos = append(pos, int64(i))
		}
	}
	return pos
}

func (c naive) countNext(query []uint32) map[uint32]int64 {
	res := make(map[uint32]int64)
	for _, p := range c.matches(query) {
		if end := int(p) + len(query); end < len(c) {
			res[c[end]]++
		}
	}
	return res
}

func TestIndexAgreesWithScan(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	tokens := make([]uint32, 400)
	for i := range tokens {
		tokens[i] = uint32(rng.IntN(4))
	}
	store := makeStore(t, tokens)
	ix, err := Build(store)
	require.NoError(t, err)
	require.True(t, ix.IsSorted())

	ref := naive(tokens)
	queries := [][]uint32{
		{0}, {1}, {2}, {3},
		{0, 0}, {1, 2}, {3, 3}, {2, 0},
		{0, 1, 2}, {3, 2, 1}, {1, 1, 1}, {2, 3, 0, 1},
	}
	for _, q := range queries {
		want := ref.matches(q)

		count, err := ix.Count(q)
		require.NoError(t, err)
		assert.Equal(t, int64(len(want)), count, "count %v", q)

		pos, err := ix.Positions(q)
		require.NoError(t, err)
		if len(want) == 0 {
			assert.Empty(t, pos, "positions %v", q)
		} else {
			assert.Equal(t, want, pos, "positions %v", q)
		}

		next, err := ix.CountNext(q)
		require.NoError(t, err)
		assert.Equal(t, ref.countNext(q), next, "count next %v", q)
	}
}

func TestIndexPersistRoundTrip(t *testing.T) {
	tokens := []uint32{5, 1, 2, 5, 1, 3, 5, 1, 2}
	store := makeStore(t, tokens)
	path := filepath.Join(t.TempDir(), "data.sa")

	built, err := BuildFile(store, path)
	require.NoError(t, err)

	loaded, err := Load(store, path)
	require.NoError(t, err)
	defer loaded.Close()
	assert.True(t, loaded.IsSorted())

	for _, q := range [][]uint32{{5, 1}, {1, 2}, {5, 1, 3}, {9}} {
		wantCount, err := built.Count(q)
		require.NoError(t, err)
		gotCount, err := loaded.Count(q)
		require.NoError(t, err)
		assert.Equal(t, wantCount, gotCount, "count %v", q)

		wantPos, err := built.Positions(q)
		require.NoError(t, err)
		gotPos, err := loaded.Positions(q)
		require.NoError(t, err)
		assert.Equal(t, wantPos, gotPos, "positions %v", q)

		wantNext, err := built.CountNext(q)
		require.NoError(t, err)
		gotNext, err := loaded.CountNext(q)
		require.NoError(t, err)
		assert.Equal(t, wantNext, gotNext, "count next %v", q)
	}
}

func TestLoadRejectsForeignCorpus(t *testing.T) {
	store := makeStore(t, []uint32{5, 1, 2, 5, 1, 3})
	path := filepath.Join(t.TempDir(), "data.sa")
	_, err := BuildFile(store, path)
	require.NoError(t, err)

	t.Run("TokenCount", func(t *testing.T) {
		other := makeStore(t, []uint32{5, 1, 2, 5})
		_, err := Load(other, path)
		assert.ErrorIs(t, err, ErrIncompatible)

		var incompatible *IncompatibleIndexError
		require.ErrorAs(t, err, &incompatible)
		assert.Equal(t, "token count", incompatible.Field)
	})

	t.Run("Fingerprint", func(t *testing.T) {
		// Same length, different content.
		other := makeStore(t, []uint32{5, 1, 2, 5, 1, 4})
		_, err := Load(other, path)
		assert.ErrorIs(t, err, ErrIncompatible)
	})
}

func TestLoadRejectsCorruptIndex(t *testing.T) {
	store := makeStore(t, []uint32{5, 1, 2, 5, 1, 3})
	path := filepath.Join(t.TempDir(), "data.sa")
	_, err := BuildFile(store, path)
	require.NoError(t, err)

	pristine, err := os.ReadFile(path)
	require.NoError(t, err)

	corrupt := func(t *testing.T, mutate func([]byte)) error {
		t.Helper()
		data := append([]byte(nil), pristine...)
		mutate(data)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		t.Cleanup(func() { _ = os.WriteFile(path, pristine, 0o644) })

		_, err := Load(store, path)
		return err
	}

	t.Run("BadMagic", func(t *testing.T) {
		err := corrupt(t, func(b []byte) { b[0] = 'X' })
		assert.ErrorIs(t, err, ErrMalformedIndex)
	})

	t.Run("BadVersion", func(t *testing.T) {
		err := corrupt(t, func(b []byte) { b[4] = 99 })
		assert.ErrorIs(t, err, ErrMalformedIndex)
	})

	t.Run("TruncatedSection", func(t *testing.T) {
		data := append([]byte(nil), pristine[:len(pristine)-8]...)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		t.Cleanup(func() { _ = os.WriteFile(path, pristine, 0o644) })

		_, err := Load(store, path)
		assert.ErrorIs(t, err, ErrMalformedIndex)
	})

	t.Run("BadChecksum", func(t *testing.T) {
		err := corrupt(t, func(b []byte) { b[len(b)-1] ^= 0xff })
		assert.ErrorIs(t, err, ErrMalformedIndex)
		assert.ErrorContains(t, err, "checksum mismatch")
	})
}

func TestBuildOrLoad(t *testing.T) {
	store := makeStore(t, []uint32{5, 1, 2, 5, 1, 3})
	path := filepath.Join(t.TempDir(), "data.sa")

	ix, err := BuildOrLoad(store, path, true)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.True(t, ix.IsSorted())

	// Second call must reuse the persisted file.
	again, err := BuildOrLoad(store, path, true)
	require.NoError(t, err)
	defer again.Close()

	count, err := again.Count([]uint32{5, 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// A corrupt file is repaired, not surfaced — whether the damage is in
	// the suffix section or in the header itself.
	for name, mutate := range map[string]func([]byte){
		"section": func(b []byte) { b[len(b)-1] ^= 0xff },
		"header":  func(b []byte) { b[0] = 'X' },
	} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		mutate(data)
		require.NoError(t, os.WriteFile(path, data, 0o644))

		repaired, err := BuildOrLoad(store, path, true)
		require.NoError(t, err, "%s corruption must trigger a rebuild", name)
		count, err = repaired.Count([]uint32{5, 1})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count, "%s corruption", name)
	}
}

func TestBuildFileFailure(t *testing.T) {
	store := makeStore(t, []uint32{1, 2, 3})
	path := filepath.Join(t.TempDir(), "missing", "nested", "data.sa")
	// A regular file where a parent directory should be makes the write fail.
	require.NoError(t, os.WriteFile(filepath.Dir(filepath.Dir(path)), []byte("x"), 0o644))

	_, err := BuildFile(store, path)
	var failed *BuildFailedError
	assert.ErrorAs(t, err, &failed)
}
