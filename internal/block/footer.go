// footer.go implements the table footer: the fixed-size trailer at the end
// of every table file, locating the metaindex and index blocks.
package block

import "encoding/binary"

// TableMagicNumber identifies a file as a table in this format.
const TableMagicNumber uint64 = 0xdb4775248b80fb57

// MagicNumberLengthByte is the length of the magic number in bytes.
const MagicNumberLengthByte = 8

// BlockTrailerSize is the size of the per-block trailer: 1 byte
// compression type + 4 bytes checksum.
const BlockTrailerSize = 5

// Footer encapsulates the fixed information stored at the tail of every
// table file: two block handles (metaindex, index) padded to a fixed
// width, followed by the magic number. Total encoded size is 48 bytes.
type Footer struct {
	// MetaindexHandle locates the metaindex block (filter block handle,
	// comparator name, and other table-level metadata).
	MetaindexHandle Handle

	// IndexHandle locates the (top-level) index block.
	IndexHandle Handle
}

// EncodedLength is the fixed size of an encoded Footer: the two block
// handles written back to back and zero-padded together to
// 2*MaxEncodedLength bytes, plus the magic number.
const EncodedLength = 2*MaxEncodedLength + MagicNumberLengthByte

// DecodeFooter decodes a Footer from the last EncodedLength bytes of data.
// Returns ErrBadBlockFooter if the data is too short or the magic number
// does not match.
func DecodeFooter(data []byte) (*Footer, error) {
	if len(data) < EncodedLength {
		return nil, wrapCorruption(ErrBadBlockFooter)
	}
	data = data[len(data)-EncodedLength:]

	magicOffset := len(data) - MagicNumberLengthByte
	magic := binary.LittleEndian.Uint64(data[magicOffset:])
	if magic != TableMagicNumber {
		return nil, wrapCorruption(ErrBadBlockFooter)
	}

	footer := &Footer{}

	var err error
	var remaining []byte
	footer.MetaindexHandle, remaining, err = DecodeHandle(data)
	if err != nil {
		return nil, err
	}

	footer.IndexHandle, _, err = DecodeHandle(remaining)
	if err != nil {
		return nil, err
	}

	return footer, nil
}

// EncodeTo encodes the footer into a fixed EncodedLength-byte buffer.
func (f *Footer) EncodeTo() []byte {
	buf := make([]byte, EncodedLength)

	n := 0
	encoded := f.MetaindexHandle.EncodeTo(nil)
	n += copy(buf[n:], encoded)

	encoded = f.IndexHandle.EncodeTo(nil)
	n += copy(buf[n:], encoded)

	// The remainder up to the magic number is zero padding, already the
	// buffer's zero value.

	binary.LittleEndian.PutUint64(buf[EncodedLength-MagicNumberLengthByte:], TableMagicNumber)

	return buf
}
