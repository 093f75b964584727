// Package search answers exact-match n-gram queries over the full token
// stream: occurrence counts, starting positions, containment, and the
// distribution of next tokens.
//
// The index is a suffix array over token positions. Queries are binary
// searches against the memory-mapped corpus, so their cost grows with the
// n-gram length and the result size, never with the corpus size. Results
// are always exact: every answer matches what a linear scan would report.
package search
