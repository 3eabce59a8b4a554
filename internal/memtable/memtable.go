package memtable

import (
	"sync"
	"sync/atomic"

	"github.com/corekv/corekv/internal/dbformat"
	"github.com/corekv/corekv/internal/encoding"
	"github.com/corekv/corekv/internal/logging"
)

// MemTable is the write-absorbing in-memory table: a SkipList keyed by
// encoded entries, holding writes before they are flushed to a table.
//
// Entry format stored in the SkipList:
//
//	internal_key_size : varint32 (length of internal_key)
//	internal_key      : internal_key_size bytes (user_key + 8-byte tag)
//	value_size        : varint32 (length of value; 0 for deletions)
//	value             : value_size bytes
type MemTable struct {
	skiplist *SkipList
	compare  Comparator

	// Memory usage tracking, in addition to the skip list's own node-size
	// estimate: this counts the bytes of each encoded entry.
	memoryUsage int64

	// Sequence number range covered by entries added so far.
	firstSeqno    dbformat.SequenceNumber
	earliestSeqno dbformat.SequenceNumber

	mu sync.Mutex

	logger logging.Logger
}

// NewMemTable creates a new MemTable using cmp to order user keys. An
// optional logger receives open events and lookup-corruption warnings,
// tagged logging.NSMemTable; omitting it discards log output.
func NewMemTable(cmp Comparator, logger ...logging.Logger) *MemTable {
	if cmp == nil {
		cmp = BytewiseComparator
	}

	ikc := dbformat.NewInternalKeyComparator(dbformat.UserKeyComparer(cmp), "")
	internalCmp := func(a, b []byte) int {
		return compareMemTableEntries(a, b, ikc)
	}

	log := logging.Discard
	if len(logger) > 0 && !logging.IsNil(logger[0]) {
		log = logger[0]
	}

	log.Debugf("%sopened", logging.NSMemTable)

	return &MemTable{
		skiplist:      NewSkipList(internalCmp),
		compare:       cmp,
		earliestSeqno: ^dbformat.SequenceNumber(0),
		logger:        log,
	}
}

// extractInternalKey extracts the internal key from a memtable entry.
func extractInternalKey(entry []byte) []byte {
	if len(entry) < 2 {
		return nil
	}
	keyLen, n, err := encoding.DecodeVarint32(entry)
	if err != nil || int(keyLen) > len(entry)-n {
		return nil
	}
	return entry[n : n+int(keyLen)]
}

// compareMemTableEntries compares two memtable entries by their internal
// key: ascending user key, then descending sequence number (newer first).
func compareMemTableEntries(a, b []byte, ikc *dbformat.InternalKeyComparator) int {
	aInternalKey := extractInternalKey(a)
	bInternalKey := extractInternalKey(b)

	if aInternalKey == nil || bInternalKey == nil {
		return ikc.UserCompare()(a, b)
	}
	if len(aInternalKey) < dbformat.NumInternalBytes || len(bInternalKey) < dbformat.NumInternalBytes {
		return ikc.UserCompare()(aInternalKey, bInternalKey)
	}

	return ikc.Compare(aInternalKey, bInternalKey)
}

// Add inserts a key-value pair into the memtable at the given sequence
// number and type. typ is either dbformat.TypeValue or
// dbformat.TypeDeletion.
func (mt *MemTable) Add(seq dbformat.SequenceNumber, typ dbformat.ValueType, key, value []byte) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	internalKeyLen := len(key) + dbformat.NumInternalBytes
	tag := dbformat.PackSequenceAndType(seq, typ)

	entry := make([]byte, 0, encoding.VarintLength(uint64(internalKeyLen))+internalKeyLen+encoding.VarintLength(uint64(len(value)))+len(value))
	entry = encoding.AppendVarint32(entry, uint32(internalKeyLen))
	entry = append(entry, key...)
	entry = encoding.AppendFixed64(entry, tag)
	entry = encoding.AppendVarint32(entry, uint32(len(value)))
	entry = append(entry, value...)

	mt.skiplist.Insert(entry)

	atomic.AddInt64(&mt.memoryUsage, int64(len(entry)))

	if seq < mt.earliestSeqno {
		mt.earliestSeqno = seq
	}
	if seq > mt.firstSeqno {
		mt.firstSeqno = seq
	}
}

// LookupResult describes the outcome of a memtable Get.
type LookupResult int

const (
	// LookupNotFound means no entry for the key exists in this memtable.
	LookupNotFound LookupResult = iota
	// LookupFound means a live value was found.
	LookupFound
	// LookupDeleted means the most recent visible entry is a tombstone.
	LookupDeleted
)

// Get looks up the most recent value for key visible at or before seq.
// Outcomes follow the uniform Value/Deleted/NotFound contract.
func (mt *MemTable) Get(key []byte, seq dbformat.SequenceNumber) (value []byte, result LookupResult) {
	lookupKey := make([]byte, 0, len(key)+dbformat.NumInternalBytes)
	lookupKey = append(lookupKey, key...)
	lookupKey = encoding.AppendFixed64(lookupKey, dbformat.PackSequenceAndType(seq, dbformat.ValueTypeForSeek))

	iter := mt.skiplist.NewIterator()
	iter.Seek(buildLookupEntry(lookupKey))

	if !iter.Valid() {
		return nil, LookupNotFound
	}

	entryKey, entryValue, entrySeq, entryType, ok := parseEntry(iter.Key())
	if !ok {
		mt.logger.Warnf("%smalformed entry at lookup key, skipping", logging.NSMemTable)
		return nil, LookupNotFound
	}
	if mt.compare(key, entryKey) != 0 || entrySeq > seq {
		return nil, LookupNotFound
	}

	switch entryType {
	case dbformat.TypeValue:
		return entryValue, LookupFound
	case dbformat.TypeDeletion:
		return nil, LookupDeleted
	default:
		return nil, LookupNotFound
	}
}

// buildLookupEntry builds a seekable prefix: the length-prefixed internal
// key with no trailing value, which sorts immediately before any entry
// carrying that same internal key.
func buildLookupEntry(internalKey []byte) []byte {
	entry := make([]byte, 0, encoding.VarintLength(uint64(len(internalKey)))+len(internalKey))
	entry = encoding.AppendVarint32(entry, uint32(len(internalKey)))
	entry = append(entry, internalKey...)
	return entry
}

// parseEntry parses a memtable entry and returns its components.
func parseEntry(entry []byte) (key, value []byte, seq dbformat.SequenceNumber, typ dbformat.ValueType, ok bool) {
	if len(entry) < 2 {
		return nil, nil, 0, 0, false
	}

	keyLen, n, err := encoding.DecodeVarint32(entry)
	if err != nil || int(keyLen) > len(entry)-n {
		return nil, nil, 0, 0, false
	}
	entry = entry[n:]

	if keyLen < dbformat.NumInternalBytes {
		return nil, nil, 0, 0, false
	}

	internalKey := entry[:keyLen]
	entry = entry[keyLen:]

	key = internalKey[:keyLen-dbformat.NumInternalBytes]
	tag := encoding.DecodeFixed64(internalKey[keyLen-dbformat.NumInternalBytes:])
	seq, typ = dbformat.UnpackSequenceAndType(tag)

	if len(entry) < 1 {
		return key, nil, seq, typ, true
	}

	valueLen, n, err := encoding.DecodeVarint32(entry)
	if err != nil {
		return nil, nil, 0, 0, false
	}
	entry = entry[n:]

	if int(valueLen) > len(entry) {
		return nil, nil, 0, 0, false
	}

	value = entry[:valueLen]
	return key, value, seq, typ, true
}

// ApproximateMemoryUsage returns the approximate number of bytes consumed
// by entries added to the memtable so far.
func (mt *MemTable) ApproximateMemoryUsage() int64 {
	return atomic.LoadInt64(&mt.memoryUsage)
}

// Count returns the number of entries in the memtable.
func (mt *MemTable) Count() int64 {
	return mt.skiplist.Count()
}

// Empty returns true if the memtable has no entries.
func (mt *MemTable) Empty() bool {
	return mt.Count() == 0
}

// NewIterator returns an iterator over the memtable's raw entries, newest
// version of each user key first.
func (mt *MemTable) NewIterator() *MemTableIterator {
	return &MemTableIterator{
		iter:    mt.skiplist.NewIterator(),
		compare: mt.compare,
	}
}

// MemTableIterator iterates over memtable entries in internal-key order.
type MemTableIterator struct {
	iter    *Iterator
	compare Comparator

	userKey []byte
	value   []byte
	seq     dbformat.SequenceNumber
	typ     dbformat.ValueType
	valid   bool
}

// Valid returns true if the iterator is positioned at a valid entry.
func (it *MemTableIterator) Valid() bool {
	return it.valid && it.iter.Valid()
}

// SeekToFirst positions the iterator at the first entry.
func (it *MemTableIterator) SeekToFirst() {
	it.iter.SeekToFirst()
	it.parseCurrentEntry()
}

// SeekToLast positions the iterator at the last entry.
func (it *MemTableIterator) SeekToLast() {
	it.iter.SeekToLast()
	it.parseCurrentEntry()
}

// Seek positions the iterator at the first entry whose internal key is >=
// target (target is a raw internal key, user_key||tag).
func (it *MemTableIterator) Seek(target []byte) {
	it.iter.Seek(buildLookupEntry(target))
	it.parseCurrentEntry()
}

// Next advances to the next entry.
func (it *MemTableIterator) Next() {
	it.iter.Next()
	it.parseCurrentEntry()
}

// Prev moves to the previous entry.
func (it *MemTableIterator) Prev() {
	it.iter.Prev()
	it.parseCurrentEntry()
}

// UserKey returns the user key (without internal key suffix).
func (it *MemTableIterator) UserKey() []byte {
	return it.userKey
}

// Key returns the full internal key (userKey + sequence + type tag).
func (it *MemTableIterator) Key() []byte {
	key := make([]byte, 0, len(it.userKey)+dbformat.NumInternalBytes)
	key = append(key, it.userKey...)
	key = encoding.AppendFixed64(key, dbformat.PackSequenceAndType(it.seq, it.typ))
	return key
}

// Value returns the value.
func (it *MemTableIterator) Value() []byte {
	return it.value
}

// Error returns any error encountered during iteration. A skip-list-backed
// memtable iterator never fails once constructed.
func (it *MemTableIterator) Error() error {
	return nil
}

// Sequence returns the sequence number of the current entry.
func (it *MemTableIterator) Sequence() dbformat.SequenceNumber {
	return it.seq
}

// Type returns the value type of the current entry.
func (it *MemTableIterator) Type() dbformat.ValueType {
	return it.typ
}

// parseCurrentEntry parses the current entry from the underlying skiplist
// iterator into the cached fields.
func (it *MemTableIterator) parseCurrentEntry() {
	if !it.iter.Valid() {
		it.valid = false
		it.userKey = nil
		it.value = nil
		return
	}

	var ok bool
	it.userKey, it.value, it.seq, it.typ, ok = parseEntry(it.iter.Key())
	it.valid = ok
}
