package pack

import "math/rand/v2"

// Document shuffling must reproduce bit-for-bit across runs and
// implementations, so the permutation algorithm is part of the contract:
// Fisher-Yates driven by PCG-XSL-RR 128/64 (math/rand/v2's PCG), seeded with
// (seed, shuffleStreamSel). Nothing here may fall back to a
// library-default shuffle.

// shuffleStreamSel is the fixed PCG stream selector for plan shuffles.
const shuffleStreamSel = 0x9e3779b97f4a7c15

func newShuffleRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), shuffleStreamSel))
}

// fisherYates shuffles docs in place.
func fisherYates(rng *rand.Rand, docs []int64) {
	for i := len(docs) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		docs[i], docs[j] = docs[j], docs[i]
	}
}

// permutation returns a shuffled copy of the documents [start, end).
func permutation(rng *rand.Rand, start, end int) []int64 {
	docs := make([]int64, end-start)
	for i := range docs {
		docs[i] = int64(start + i)
	}
	fisherYates(rng, docs)
	return docs
}
