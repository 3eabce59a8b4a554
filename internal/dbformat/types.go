// Package dbformat implements the internal key format shared by the
// memtable, block, and table layers.
//
// An internal key is the concatenation of a user key and an 8-byte trailer
// packing a 56-bit sequence number and an 8-bit value type. The total order
// over internal keys is: ascending by user key, then descending by
// sequence number for equal user keys, so that a seek for the newest
// version of a key visible at a given snapshot lands directly on it.
package dbformat

import (
	"errors"
	"fmt"

	"github.com/corekv/corekv/internal/encoding"

	"github.com/corekv/corekv"
)

// SequenceNumber is a 56-bit sequence number, stored in the upper 56 bits
// of the 8-byte internal-key trailer.
type SequenceNumber uint64

// MaxSequenceNumber is the maximum representable sequence number (2^56 - 1).
const MaxSequenceNumber SequenceNumber = (1 << 56) - 1

// NumInternalBytes is the size of the internal key trailer (sequence + type).
const NumInternalBytes = 8

// ValueType discriminates a live value from a tombstone. These two values
// are embedded in the on-disk format and must never change.
type ValueType uint8

const (
	// TypeDeletion marks a tombstone: the key is considered absent.
	TypeDeletion ValueType = 0x00
	// TypeValue marks a live payload.
	TypeValue ValueType = 0x01
)

// ValueTypeForSeek is used when constructing a lookup key for the newest
// version of a user key: the largest type value, so that the packed
// trailer (seq<<8)|type sorts before any real entry with the same
// sequence number.
const ValueTypeForSeek = TypeValue

var (
	// ErrCorruptedKey is returned when an internal key is malformed.
	ErrCorruptedKey = errors.New("dbformat: corrupted internal key")

	// ErrKeyTooSmall is returned when an internal key is smaller than the trailer.
	ErrKeyTooSmall = errors.New("dbformat: internal key too small")

	// ErrInvalidValueType is returned when the value type is not recognized.
	ErrInvalidValueType = errors.New("dbformat: invalid value type")
)

// IsValueType reports whether t is one of the two recognized value types.
func IsValueType(t ValueType) bool {
	return t == TypeDeletion || t == TypeValue
}

// PackSequenceAndType packs a sequence number and value type into a 64-bit
// trailer: (sequence << 8) | type.
func PackSequenceAndType(seq SequenceNumber, t ValueType) uint64 {
	return (uint64(seq) << 8) | uint64(t)
}

// UnpackSequenceAndType extracts the sequence number and value type from a
// packed 64-bit trailer.
func UnpackSequenceAndType(packed uint64) (SequenceNumber, ValueType) {
	return SequenceNumber(packed >> 8), ValueType(packed & 0xFF)
}

// ParsedInternalKey is an internal key broken into its constituent parts.
type ParsedInternalKey struct {
	UserKey  []byte
	Sequence SequenceNumber
	Type     ValueType
}

// String returns a human-readable representation.
func (p *ParsedInternalKey) String() string {
	return fmt.Sprintf("{UserKey: %q, Seq: %d, Type: %d}", p.UserKey, p.Sequence, p.Type)
}

// EncodedLength returns the length of the encoded internal key.
func (p *ParsedInternalKey) EncodedLength() int {
	return len(p.UserKey) + NumInternalBytes
}

// AppendInternalKey appends the encoding of key to dst and returns the
// extended slice.
func AppendInternalKey(dst []byte, key *ParsedInternalKey) []byte {
	dst = append(dst, key.UserKey...)
	packed := PackSequenceAndType(key.Sequence, key.Type)
	return encoding.AppendFixed64(dst, packed)
}

// ParseInternalKey parses an internal key from data. The returned key's
// UserKey aliases data. Returns ErrKeyTooSmall or ErrInvalidValueType on
// corruption; the parsed key is still populated in the latter case so
// callers with paranoid_checks disabled may choose to proceed.
func ParseInternalKey(data []byte) (*ParsedInternalKey, error) {
	n := len(data)
	if n < NumInternalBytes {
		return nil, fmt.Errorf("%w: %w", ErrKeyTooSmall, corekv.ErrCorruption)
	}

	packed := encoding.DecodeFixed64(data[n-NumInternalBytes:])
	seq, t := UnpackSequenceAndType(packed)

	result := &ParsedInternalKey{
		UserKey:  data[:n-NumInternalBytes],
		Sequence: seq,
		Type:     t,
	}

	if !IsValueType(t) {
		return result, fmt.Errorf("%w: %w", ErrInvalidValueType, corekv.ErrCorruption)
	}

	return result, nil
}

// ExtractUserKey returns the user key portion of an internal key.
// REQUIRES: len(internalKey) >= NumInternalBytes.
func ExtractUserKey(internalKey []byte) []byte {
	if len(internalKey) < NumInternalBytes {
		return nil
	}
	return internalKey[:len(internalKey)-NumInternalBytes]
}

// ExtractValueType returns the value type from an internal key.
// REQUIRES: len(internalKey) >= NumInternalBytes.
func ExtractValueType(internalKey []byte) ValueType {
	if len(internalKey) < NumInternalBytes {
		return TypeDeletion
	}
	n := len(internalKey)
	packed := encoding.DecodeFixed64(internalKey[n-NumInternalBytes:])
	return ValueType(packed & 0xFF)
}

// ExtractSequenceNumber returns the sequence number from an internal key.
// REQUIRES: len(internalKey) >= NumInternalBytes.
func ExtractSequenceNumber(internalKey []byte) SequenceNumber {
	if len(internalKey) < NumInternalBytes {
		return 0
	}
	n := len(internalKey)
	packed := encoding.DecodeFixed64(internalKey[n-NumInternalBytes:])
	return SequenceNumber(packed >> 8)
}

// InternalKey is an encoded internal key stored as a byte slice.
type InternalKey []byte

// NewInternalKey builds an encoded internal key from its parts.
func NewInternalKey(userKey []byte, seq SequenceNumber, t ValueType) InternalKey {
	return AppendInternalKey(nil, &ParsedInternalKey{
		UserKey:  userKey,
		Sequence: seq,
		Type:     t,
	})
}

// UserKey returns the user key portion.
func (k InternalKey) UserKey() []byte { return ExtractUserKey(k) }

// Sequence returns the sequence number.
func (k InternalKey) Sequence() SequenceNumber { return ExtractSequenceNumber(k) }

// Type returns the value type.
func (k InternalKey) Type() ValueType { return ExtractValueType(k) }

// Valid reports whether this is a structurally valid internal key.
func (k InternalKey) Valid() bool {
	if len(k) < NumInternalBytes {
		return false
	}
	_, err := ParseInternalKey(k)
	return err == nil
}

// Parse returns the parsed internal key.
func (k InternalKey) Parse() (*ParsedInternalKey, error) { return ParseInternalKey(k) }

// UserKeyComparer compares two user keys: negative if a < b, positive if
// a > b, zero if equal.
type UserKeyComparer func(a, b []byte) int

// BytewiseCompare is the default user key comparer (lexicographic order).
func BytewiseCompare(a, b []byte) int {
	minLen := min(len(a), len(b))
	for i := range minLen {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	if len(a) < len(b) {
		return -1
	}
	if len(a) > len(b) {
		return 1
	}
	return 0
}

// InternalKeyComparator orders internal keys: ascending by user key (via
// the wrapped user comparator), then descending by the packed
// (sequence,type) trailer for equal user keys.
type InternalKeyComparator struct {
	userCompare UserKeyComparer
	name        string
}

// NewInternalKeyComparator builds an InternalKeyComparator wrapping the
// given user-key comparer (BytewiseCompare if nil), labeled with name for
// on-disk comparator-identity checks.
func NewInternalKeyComparator(userCompare UserKeyComparer, name string) *InternalKeyComparator {
	if userCompare == nil {
		userCompare = BytewiseCompare
	}
	if name == "" {
		name = "leveldb.BytewiseComparator"
	}
	return &InternalKeyComparator{userCompare: userCompare, name: name}
}

// DefaultInternalKeyComparator is the default comparator using bytewise
// user key ordering.
var DefaultInternalKeyComparator = NewInternalKeyComparator(BytewiseCompare, "")

// Name returns the identity of the wrapped user comparator, used to reject
// reopening a table written with a different comparator.
func (c *InternalKeyComparator) Name() string { return c.name }

// Compare compares two internal keys.
func (c *InternalKeyComparator) Compare(a, b []byte) int {
	userKeyA := ExtractUserKey(a)
	userKeyB := ExtractUserKey(b)
	if userKeyA == nil {
		userKeyA = a
	}
	if userKeyB == nil {
		userKeyB = b
	}

	if cmp := c.userCompare(userKeyA, userKeyB); cmp != 0 {
		return cmp
	}

	// User keys are equal: higher (sequence,type) trailer sorts first.
	if len(a) >= NumInternalBytes && len(b) >= NumInternalBytes {
		trailerA := encoding.DecodeFixed64(a[len(a)-NumInternalBytes:])
		trailerB := encoding.DecodeFixed64(b[len(b)-NumInternalBytes:])
		switch {
		case trailerA > trailerB:
			return -1
		case trailerA < trailerB:
			return 1
		}
	}
	return 0
}

// CompareUserKey compares just the user key portion of two internal keys.
func (c *InternalKeyComparator) CompareUserKey(a, b []byte) int {
	userKeyA := ExtractUserKey(a)
	userKeyB := ExtractUserKey(b)
	if userKeyA == nil {
		userKeyA = a
	}
	if userKeyB == nil {
		userKeyB = b
	}
	return c.userCompare(userKeyA, userKeyB)
}

// UserCompare returns the wrapped user-key comparison function.
func (c *InternalKeyComparator) UserCompare() UserKeyComparer { return c.userCompare }

// CompareInternalKeys compares two internal keys using the default
// bytewise comparator.
func CompareInternalKeys(a, b []byte) int {
	return DefaultInternalKeyComparator.Compare(a, b)
}
