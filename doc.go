/*
Package corekv implements the core data structures of an embedded, ordered
key-value storage engine modeled on the LevelDB design: an LSM-tree
structured store with a skip-list-backed memtable, prefix-compressed
sorted-table blocks, and a merging iterator that composes multiple sorted
streams into one logical view.

# Scope

This package and its internal/ subpackages implement the read/write path's
backbone — comparator, varint/fixed codec, skip list, memtable, block
builder/iterator, table builder/reader skeleton, and merging iterator — not
a full embedded database. The write-ahead log, manifest/version-set,
compaction scheduling, and the public DB façade are named as external
collaborators but are not implemented here.

# Concurrency

The engine is designed for a single writer plus concurrent readers.
Individual Iterator instances are not safe for concurrent use; each
goroutine should use its own iterator.

# On-disk format

Blocks and table footers are bit-compatible with the reference LevelDB
layout: little-endian fixed integers, a plain trailing restart count per
block, and a fixed 48-byte table footer.
*/
package corekv
