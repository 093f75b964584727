package search

import (
	"encoding/binary"
	"slices"
	"sort"

	"github.com/aflah02/tokensmith/corpus"
	"github.com/aflah02/tokensmith/persistence"
)

// suffixes abstracts over a freshly built suffix array and one loaded
// zero-copy from a memory-mapped index file.
type suffixes interface {
	Len() int64
	At(i int64) int64
}

type memSuffixes []int64

func (s memSuffixes) Len() int64       { return int64(len(s)) }
func (s memSuffixes) At(i int64) int64 { return s[i] }

// mappedSuffixes reads uint64 entries directly out of the mapped file.
type mappedSuffixes []byte

func (s mappedSuffixes) Len() int64 { return int64(len(s) / 8) }
func (s mappedSuffixes) At(i int64) int64 {
	return int64(binary.LittleEndian.Uint64(s[i*8:]))
}

// Index answers exact-match n-gram queries against a token store.
//
// The index borrows the store's mapping and never mutates after
// construction; it is safe for concurrent readers. Close the index (not the
// store) to release a mapped index file.
type Index struct {
	store *corpus.Store
	toks  corpus.Tokens
	sa    suffixes
	mf    *persistence.MappedFile
}

// Store returns the token store the index was built over.
func (ix *Index) Store() *corpus.Store { return ix.store }

// NumTokens returns the indexed corpus length.
func (ix *Index) NumTokens() int64 { return ix.sa.Len() }

// Close releases the mapped index file, if any. The store stays open.
func (ix *Index) Close() error {
	if ix.mf != nil {
		err := ix.mf.Close()
		ix.mf = nil
		ix.sa = nil
		return err
	}
	return nil
}

// compareSuffix orders the suffix at pos against query, comparing at most
// len(query) tokens. A proper prefix match reports 0.
func (ix *Index) compareSuffix(pos int64, query []uint32) int {
	n := int64(ix.toks.Len())
	for _, q := range query {
		if pos >= n {
			return -1
		}
		t := ix.toks.At(int(pos))
		if t < q {
			return -1
		}
		if t > q {
			return 1
		}
		pos++
	}
	return 0
}

// equalRange returns the suffix-array slice [lo, hi) of suffixes starting
// with query.
func (ix *Index) equalRange(query []uint32) (lo, hi int64) {
	n := int(ix.sa.Len())
	lo = int64(sort.Search(n, func(i int) bool {
		return ix.compareSuffix(ix.sa.At(int64(i)), query) >= 0
	}))
	hi = int64(sort.Search(n, func(i int) bool {
		return ix.compareSuffix(ix.sa.At(int64(i)), query) > 0
	}))
	return lo, hi
}

// Count returns the number of occurrences of query in the corpus.
// An absent n-gram counts zero; it is not an error.
func (ix *Index) Count(query []uint32) (int64, error) {
	if len(query) == 0 {
		return 0, ErrEmptyQuery
	}
	lo, hi := ix.equalRange(query)
	return hi - lo, nil
}

// Contains reports whether query occurs at all. Unlike Count it needs only
// one binary search.
func (ix *Index) Contains(query []uint32) (bool, error) {
	if len(query) == 0 {
		return false, ErrEmptyQuery
	}
	n := int(ix.sa.Len())
	lo := sort.Search(n, func(i int) bool {
		return ix.compareSuffix(ix.sa.At(int64(i)), query) >= 0
	})
	return lo < n && ix.compareSuffix(ix.sa.At(int64(lo)), query) == 0, nil
}

// Positions returns every starting token-index of query, ascending, without
// duplicates.
func (ix *Index) Positions(query []uint32) ([]int64, error) {
	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}
	lo, hi := ix.equalRange(query)
	out := make([]int64, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, ix.sa.At(i))
	}
	slices.Sort(out)
	return out, nil
}

// CountNext returns the frequency of each token immediately following query.
// The map is empty when query never occurs or occurs only at corpus end.
//
// Within the matching suffix-array range all suffixes share the query
// prefix, so they are ordered by the token that follows it; each distinct
// next token is one contiguous run found by binary search rather than
// enumeration.
func (ix *Index) CountNext(query []uint32) (map[uint32]int64, error) {
	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}
	lo, hi := ix.equalRange(query)
	n := int64(ix.toks.Len())
	m := int64(len(query))

	res := make(map[uint32]int64)
	i := lo
	// The at-most-one suffix of exact length m sorts first and has no
	// following token.
	if i < hi && ix.sa.At(i)+m == n {
		i++
	}
	for i < hi {
		tok := ix.toks.At(int(ix.sa.At(i) + m))
		j := i + int64(sort.Search(int(hi-i), func(k int) bool {
			return ix.toks.At(int(ix.sa.At(i+int64(k))+m)) > tok
		}))
		res[tok] += j - i
		i = j
	}
	return res, nil
}

// IsSorted verifies the suffix array is in strictly ascending suffix order.
// Construction and loading guarantee this; it exists for tests and for
// validating externally produced index files.
func (ix *Index) IsSorted() bool {
	n := ix.sa.Len()
	for i := int64(1); i < n; i++ {
		if !ix.suffixLess(ix.sa.At(i-1), ix.sa.At(i)) {
			return false
		}
	}
	return true
}

func (ix *Index) suffixLess(a, b int64) bool {
	n := int64(ix.toks.Len())
	for a < n && b < n {
		ta, tb := ix.toks.At(int(a)), ix.toks.At(int(b))
		if ta != tb {
			return ta < tb
		}
		a++
		b++
	}
	return a > b // the shorter suffix (a ran out first) sorts lower
}
