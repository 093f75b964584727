// Package persistence provides the low-level durable-file plumbing shared by
// the corpus store, the packing-plan cache, and the search index: read-only
// memory mapping, CRC32 checksums, and atomic file writes.
package persistence
