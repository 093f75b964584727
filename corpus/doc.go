// Package corpus implements the token store: a read-only memory-mapped view
// over a flat binary token file (<prefix>.bin) and its companion document
// index (<prefix>.idx), in the layout consumed by sequential training
// pipelines.
//
// The store owns the mapping for its lifetime; everything handed out by
// ReadRange is a borrowed zero-copy view that becomes invalid after Close.
package corpus
