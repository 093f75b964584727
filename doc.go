// Package tokensmith manages large tokenized text corpora stored as flat
// binary token arrays with companion document indexes, for language-model
// training and interpretability workflows.
//
// The Manager is the single entry point. It owns the memory-mapped token
// store and wires up the two core subsystems on demand: the deterministic
// batch-packing engine (pack) and the token n-gram search index (search).
//
//	m, err := tokensmith.Open("data/corpus", tokensmith.WithVocabSize(1<<16))
//	if err != nil { ... }
//	defer m.Close()
//
//	if err := m.SetupSearch("data/corpus.tsix", true); err != nil { ... }
//	count, err := m.Search().Count([]uint32{5, 1})
package tokensmith
