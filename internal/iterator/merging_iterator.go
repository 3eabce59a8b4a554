// Package iterator provides the uniform iterator contract shared by every
// ordered cursor in the engine (skip list, block, table, memtable) plus the
// MergingIterator that fuses several of them into one sorted stream.
//
// MergingIterator's direction-switching behavior mirrors the reference
// LevelDB merging iterator: advancing backward after a run of forward steps
// (or vice versa) requires re-synchronizing every non-current child, since
// each child's own cursor otherwise remembers only its own forward or
// reverse position, not the merge's.
package iterator

import (
	"github.com/corekv/corekv/internal/dbformat"
	"github.com/corekv/corekv/internal/logging"
)

// Iterator is the interface implemented by every ordered cursor in the
// engine: the skip-list iterator, block iterator, table iterator, memtable
// iterator, and MergingIterator itself.
type Iterator interface {
	// Valid returns true if the iterator is positioned at a valid entry.
	Valid() bool

	// Key returns the current key. The key is valid until the next call to Next/Seek/etc.
	Key() []byte

	// Value returns the current value.
	Value() []byte

	// SeekToFirst positions the iterator at the first entry.
	SeekToFirst()

	// SeekToLast positions the iterator at the last entry.
	SeekToLast()

	// Seek positions the iterator at the first entry with key >= target.
	Seek(target []byte)

	// Next advances to the next entry.
	Next()

	// Prev moves to the previous entry.
	Prev()

	// Error returns any error encountered during iteration.
	Error() error
}

type direction int

const (
	dirForward direction = iota
	dirReverse
)

// MergingIterator merges multiple sorted child iterators into a single
// sorted stream, without deduplicating identical keys across children —
// that is the job of whatever consults sequence numbers above it (a DB-level
// iterator collapsing versions of the same user key).
//
// Unlike a heap-based merge, MergingIterator rescans all children on every
// step. This is O(K) per step rather than O(log K), but it is what lets
// direction switches (Next after Prev, or vice versa) be handled by
// resyncing every child explicitly instead of maintaining two heaps; K is
// small in practice (a handful of memtables and table iterators per read).
type MergingIterator struct {
	children   []Iterator
	comparator func(a, b []byte) int
	current    int // index into children, -1 if no child is current
	dir        direction
	err        error
	logger     logging.Logger
}

// NewMergingIterator creates a merging iterator over children, ordering
// entries with comparator. If comparator is nil, internal keys are compared
// by user key ascending, sequence number descending. An optional logger
// receives a warning, tagged logging.NSIterator, the first time any child
// reports an error; omitting it discards log output.
func NewMergingIterator(children []Iterator, comparator func(a, b []byte) int, logger ...logging.Logger) *MergingIterator {
	if comparator == nil {
		comparator = dbformat.CompareInternalKeys
	}
	log := logging.Discard
	if len(logger) > 0 && !logging.IsNil(logger[0]) {
		log = logger[0]
	}
	return &MergingIterator{
		children:   children,
		comparator: comparator,
		current:    -1,
		dir:        dirForward,
		logger:     log,
	}
}

// recordErr stores the first child error observed and logs it once.
func (mi *MergingIterator) recordErr(err error) {
	if err == nil {
		return
	}
	if mi.err == nil {
		mi.logger.Warnf("%schild iterator error: %v", logging.NSIterator, err)
	}
	mi.err = err
}

// Valid returns true if the iterator is positioned at a valid entry.
func (mi *MergingIterator) Valid() bool {
	return mi.current >= 0 && mi.current < len(mi.children) && mi.children[mi.current].Valid()
}

// Key returns the current key.
func (mi *MergingIterator) Key() []byte {
	if !mi.Valid() {
		return nil
	}
	return mi.children[mi.current].Key()
}

// Value returns the current value.
func (mi *MergingIterator) Value() []byte {
	if !mi.Valid() {
		return nil
	}
	return mi.children[mi.current].Value()
}

// Error returns the first error observed on any child.
func (mi *MergingIterator) Error() error {
	return mi.err
}

// SeekToFirst positions every child at its first entry and selects the
// smallest current key.
func (mi *MergingIterator) SeekToFirst() {
	mi.err = nil
	mi.dir = dirForward
	for _, child := range mi.children {
		child.SeekToFirst()
		if err := child.Error(); err != nil {
			mi.recordErr(err)
		}
	}
	mi.findSmallest()
}

// SeekToLast positions every child at its last entry and selects the
// largest current key.
func (mi *MergingIterator) SeekToLast() {
	mi.err = nil
	mi.dir = dirReverse
	for _, child := range mi.children {
		child.SeekToLast()
		if err := child.Error(); err != nil {
			mi.recordErr(err)
		}
	}
	mi.findLargest()
}

// Seek positions every child at the first entry with key >= target and
// selects the smallest current key.
func (mi *MergingIterator) Seek(target []byte) {
	mi.err = nil
	mi.dir = dirForward
	for _, child := range mi.children {
		child.Seek(target)
		if err := child.Error(); err != nil {
			mi.recordErr(err)
		}
	}
	mi.findSmallest()
}

// Next advances to the next entry in merge order.
func (mi *MergingIterator) Next() {
	if !mi.Valid() {
		return
	}

	mi.updateDirection(dirForward)

	mi.children[mi.current].Next()
	if err := mi.children[mi.current].Error(); err != nil {
		mi.recordErr(err)
	}

	mi.findSmallest()
}

// Prev moves to the previous entry in merge order.
func (mi *MergingIterator) Prev() {
	if !mi.Valid() {
		return
	}

	mi.updateDirection(dirReverse)

	mi.children[mi.current].Prev()
	if err := mi.children[mi.current].Error(); err != nil {
		mi.recordErr(err)
	}

	mi.findLargest()
}

// updateDirection resyncs every non-current child so that it reads one
// entry past (forward) or one entry before (reverse) the merge's current
// key, then records the new direction. It is a no-op when the merge is
// already moving that way.
func (mi *MergingIterator) updateDirection(want direction) {
	if mi.dir == want {
		return
	}
	mi.dir = want

	current := mi.current
	key := append([]byte(nil), mi.children[current].Key()...)

	for i, child := range mi.children {
		if i == current {
			continue
		}

		switch want {
		case dirForward:
			child.Seek(key)
			// A child landing exactly on the merge's current key is a
			// duplicate of the entry just consumed; skip past it so Next
			// doesn't re-emit it. Internal keys carry unique sequence
			// numbers, so true duplicates are not expected in practice.
			if child.Valid() && mi.comparator(child.Key(), key) == 0 {
				child.Next()
			}
		case dirReverse:
			child.Seek(key)
			if child.Valid() {
				child.Prev()
			} else {
				child.SeekToLast()
			}
		}

		if err := child.Error(); err != nil {
			mi.recordErr(err)
		}
	}
}

// findSmallest scans all valid children and selects the one with the
// smallest current key.
func (mi *MergingIterator) findSmallest() {
	mi.find(func(a, b []byte) bool { return mi.comparator(a, b) < 0 })
}

// findLargest scans all valid children and selects the one with the
// largest current key.
func (mi *MergingIterator) findLargest() {
	mi.find(func(a, b []byte) bool { return mi.comparator(a, b) > 0 })
}

// find selects the child whose key wins under better(candidate, current).
func (mi *MergingIterator) find(better func(a, b []byte) bool) {
	best := -1
	for i, child := range mi.children {
		if !child.Valid() {
			continue
		}
		if best == -1 || better(child.Key(), mi.children[best].Key()) {
			best = i
		}
	}
	mi.current = best
}
