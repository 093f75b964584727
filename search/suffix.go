package search

import (
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aflah02/tokensmith/corpus"
)

// decodeTokens materializes the whole corpus into a dense token slice for
// construction. Decoding is partitioned across workers; the result is
// position-for-position identical regardless of worker count.
func decodeTokens(store *corpus.Store) []uint32 {
	n := store.NumTokens()
	toks := make([]uint32, n)
	view := store.All()

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	const chunk = 1 << 20
	for lo := int64(0); lo < n; lo += chunk {
		lo := lo
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				toks[i] = view.At(int(i))
			}
			return nil
		})
	}
	_ = g.Wait()
	return toks
}

// buildSuffixArray sorts all suffix positions of toks by prefix doubling.
//
// Ranks start as raw token values; each round extends the compared prefix
// from k to 2k tokens until every rank is distinct. Runs in O(n log^2 n)
// comparisons and 24n bytes of working memory.
func buildSuffixArray(toks []uint32, progress *progressLogger) []int64 {
	n := len(toks)
	sa := make([]int64, n)
	rank := make([]int64, n)
	next := make([]int64, n)
	for i := range sa {
		sa[i] = int64(i)
		rank[i] = int64(toks[i])
	}
	if n <= 1 {
		return sa
	}

	rankAt := func(i int64) int64 {
		if i >= int64(n) {
			return -1
		}
		return rank[i]
	}

	for k := int64(1); ; k *= 2 {
		began := time.Now()
		sort.Slice(sa, func(a, b int) bool {
			ra, rb := rank[sa[a]], rank[sa[b]]
			if ra != rb {
				return ra < rb
			}
			return rankAt(sa[a]+k) < rankAt(sa[b]+k)
		})

		next[sa[0]] = 0
		for i := 1; i < n; i++ {
			prev, cur := sa[i-1], sa[i]
			next[cur] = next[prev]
			if rank[prev] != rank[cur] || rankAt(prev+k) != rankAt(cur+k) {
				next[cur]++
			}
		}
		rank, next = next, rank

		progress.round(2*k, time.Since(began))

		if rank[sa[n-1]] == int64(n-1) {
			return sa
		}
	}
}
