// Package table provides SST file reading and writing.
//
// TableBuilder assembles a sequence of data blocks through block.Builder,
// recording an index entry for each flushed block, and closes out the file
// with a metaindex block (filter + properties) and a fixed-size footer.
package table

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/corekv/corekv/internal/block"
	"github.com/corekv/corekv/internal/checksum"
	"github.com/corekv/corekv/internal/compression"
	"github.com/corekv/corekv/internal/encoding"
	"github.com/corekv/corekv/internal/filter"
	"github.com/corekv/corekv/internal/logging"

	"github.com/corekv/corekv"
)

// BuilderOptions configures the TableBuilder.
type BuilderOptions struct {
	// BlockSize is the target size for data blocks (default: 4KB).
	BlockSize int

	// BlockRestartInterval is the number of keys between restart points (default: 16).
	BlockRestartInterval int

	// ChecksumType is the checksum algorithm applied to every block trailer.
	ChecksumType checksum.Type

	// ComparatorName is the name of the key comparator, recorded in the
	// properties block. Reader.Open does not read or check it, so a table
	// built with a different ordering is not refused.
	ComparatorName string

	// FilterBitsPerKey controls Bloom filter accuracy (default: 10 = ~1% FP rate).
	// Set to 0 to disable filter.
	FilterBitsPerKey int

	// FilterPolicy is the name of the filter policy, recorded in the
	// metaindex block.
	FilterPolicy string

	// Compression is the compression type for data blocks.
	Compression compression.Type

	// Comparator orders the keys written to the table; it is threaded
	// through to every block iterator a reader constructs over this file.
	Comparator block.Comparator

	// Logger receives a flush summary when Finish completes. If nil,
	// logging.Discard is used.
	Logger logging.Logger
}

// DefaultBuilderOptions returns default options for TableBuilder.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		BlockSize:            4096,
		BlockRestartInterval: 16,
		ChecksumType:         checksum.TypeCRC32C,
		ComparatorName:       "corekv.BytewiseComparator",
		FilterBitsPerKey:     10,
		FilterPolicy:         "corekv.BuiltinBloomFilter",
		Compression:          compression.NoCompression,
	}
}

// TableBuilder builds SST files in the block-based table format.
type TableBuilder struct {
	writer  io.Writer
	options BuilderOptions

	dataBlock       *block.Builder
	indexBlock      *block.Builder
	propertiesBlock *block.Builder

	filterBuilder *filter.BloomFilterBuilder

	pendingIndexEntry bool
	pendingHandle     block.Handle
	lastKey           []byte

	offset uint64

	numEntries    uint64
	numDataBlocks uint64
	rawKeySize    uint64
	rawValueSize  uint64
	dataSize      uint64
	indexSize     uint64
	filterSize    uint64

	finished bool
	err      error
}

// NewTableBuilder creates a new TableBuilder that writes to w.
func NewTableBuilder(w io.Writer, opts BuilderOptions) *TableBuilder {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 4096
	}
	if opts.BlockRestartInterval <= 0 {
		opts.BlockRestartInterval = 16
	}
	if opts.ChecksumType == checksum.TypeNoChecksum {
		opts.ChecksumType = checksum.TypeCRC32C
	}
	if opts.ComparatorName == "" {
		opts.ComparatorName = "corekv.BytewiseComparator"
	}
	if opts.Comparator == nil {
		opts.Comparator = bytes.Compare
	}
	if logging.IsNil(opts.Logger) {
		opts.Logger = logging.Discard
	}

	tb := &TableBuilder{
		writer:          w,
		options:         opts,
		dataBlock:       block.NewBuilder(opts.BlockRestartInterval),
		indexBlock:      block.NewBuilder(1),
		propertiesBlock: block.NewBuilder(1),
	}

	if opts.FilterBitsPerKey > 0 {
		tb.filterBuilder = filter.NewBloomFilterBuilder(opts.FilterBitsPerKey)
	}

	return tb
}

// Add adds a key-value pair to the table.
// Keys must be added in sorted order.
func (tb *TableBuilder) Add(key, value []byte) error {
	if tb.finished {
		return errors.New("table: builder already finished")
	}
	if tb.err != nil {
		return tb.err
	}

	if tb.pendingIndexEntry {
		sep := findShortestSeparator(tb.lastKey, key, tb.options.Comparator)
		tb.indexBlock.Add(sep, tb.pendingHandle.EncodeToSlice())
		tb.pendingIndexEntry = false
	}

	tb.dataBlock.Add(key, value)
	tb.numEntries++
	tb.rawKeySize += uint64(len(key))
	tb.rawValueSize += uint64(len(value))

	if tb.filterBuilder != nil {
		userKey := key
		if len(key) > 8 {
			userKey = key[:len(key)-8]
		}
		tb.filterBuilder.AddKey(userKey)
	}

	tb.lastKey = append(tb.lastKey[:0], key...)

	if tb.dataBlock.EstimatedSize() >= tb.options.BlockSize {
		if err := tb.flushDataBlock(); err != nil {
			tb.err = err
			return err
		}
	}

	return nil
}

// flushDataBlock writes the current data block to the file.
func (tb *TableBuilder) flushDataBlock() error {
	if tb.dataBlock.Empty() {
		return nil
	}

	blockContents := tb.dataBlock.Finish()

	handle, err := tb.writeBlockWithTrailer(blockContents)
	if err != nil {
		return err
	}

	tb.dataSize += handle.Size
	tb.numDataBlocks++

	tb.pendingHandle = handle
	tb.pendingIndexEntry = true

	tb.dataBlock.Reset()

	return nil
}

// writeBlockWithTrailer writes a block with its trailer (compression type +
// checksum). Returns the handle (offset, size) of the written block.
func (tb *TableBuilder) writeBlockWithTrailer(blockData []byte) (block.Handle, error) {
	compressedData := blockData
	compressionType := compression.NoCompression

	if tb.options.Compression != compression.NoCompression {
		compressed, err := compression.Compress(tb.options.Compression, blockData)
		if err == nil && compressed != nil && len(compressed) < len(blockData) {
			prefix := encoding.AppendVarint32(nil, uint32(len(blockData)))
			compressedData = append(prefix, compressed...)
			compressionType = tb.options.Compression
		}
	}

	handle := block.Handle{
		Offset: tb.offset,
		Size:   uint64(len(compressedData)),
	}

	n, err := tb.writer.Write(compressedData)
	if err != nil {
		return block.Handle{}, fmt.Errorf("table: write block: %w: %w", err, corekv.ErrIOError)
	}
	tb.offset += uint64(n)

	trailer := make([]byte, block.BlockTrailerSize)
	trailer[0] = byte(compressionType)

	cksum := checksum.ComputeChecksum(tb.options.ChecksumType, compressedData, trailer[0])
	binary.LittleEndian.PutUint32(trailer[1:], cksum)

	n, err = tb.writer.Write(trailer)
	if err != nil {
		return block.Handle{}, fmt.Errorf("table: write block trailer: %w: %w", err, corekv.ErrIOError)
	}
	tb.offset += uint64(n)

	return handle, nil
}

// Finish finalizes the table and writes the footer.
// After calling Finish, the TableBuilder should not be used.
func (tb *TableBuilder) Finish() error {
	if tb.finished {
		return errors.New("table: builder already finished")
	}
	if tb.err != nil {
		return tb.err
	}
	tb.finished = true

	if err := tb.flushDataBlock(); err != nil {
		tb.err = err
		return err
	}

	if tb.pendingIndexEntry {
		succ := findShortSuccessor(tb.lastKey, tb.options.Comparator)
		tb.indexBlock.Add(succ, tb.pendingHandle.EncodeToSlice())
		tb.pendingIndexEntry = false
	}

	type metaEntry struct {
		key   string
		value []byte
	}
	var metaEntries []metaEntry

	if tb.filterBuilder != nil && tb.filterBuilder.NumKeys() > 0 {
		filterHandle, err := tb.writeFilterBlock()
		if err != nil {
			tb.err = err
			return err
		}
		metaEntries = append(metaEntries, metaEntry{"filter." + tb.options.FilterPolicy, filterHandle.EncodeToSlice()})
	}

	propertiesHandle, err := tb.writePropertiesBlock()
	if err != nil {
		tb.err = err
		return err
	}
	metaEntries = append(metaEntries, metaEntry{"corekv.properties", propertiesHandle.EncodeToSlice()})

	indexContents := tb.indexBlock.Finish()
	indexHandle, err := tb.writeBlockWithTrailer(indexContents)
	if err != nil {
		tb.err = err
		return err
	}
	tb.indexSize = indexHandle.Size

	sort.Slice(metaEntries, func(i, j int) bool {
		return metaEntries[i].key < metaEntries[j].key
	})

	metaindexBuilder := block.NewBuilder(1)
	for _, entry := range metaEntries {
		metaindexBuilder.Add([]byte(entry.key), entry.value)
	}

	metaindexContents := metaindexBuilder.Finish()
	metaindexHandle, err := tb.writeBlockWithTrailer(metaindexContents)
	if err != nil {
		tb.err = err
		return err
	}

	if err := tb.writeFooter(metaindexHandle, indexHandle); err != nil {
		tb.err = err
		return err
	}

	tb.options.Logger.Infof("%sflushed %d entries into %d data blocks, %d bytes",
		logging.NSTable, tb.numEntries, tb.numDataBlocks, tb.offset)
	return nil
}

// writeFilterBlock writes the Bloom filter block.
func (tb *TableBuilder) writeFilterBlock() (block.Handle, error) {
	filterData := tb.filterBuilder.Finish()
	tb.filterSize = uint64(len(filterData))

	handle := block.Handle{
		Offset: tb.offset,
		Size:   uint64(len(filterData)),
	}

	n, err := tb.writer.Write(filterData)
	if err != nil {
		return block.Handle{}, fmt.Errorf("table: write filter block: %w: %w", err, corekv.ErrIOError)
	}
	tb.offset += uint64(n)

	trailer := make([]byte, block.BlockTrailerSize)
	trailer[0] = byte(compression.NoCompression)
	cksum := checksum.ComputeChecksum(tb.options.ChecksumType, filterData, trailer[0])
	binary.LittleEndian.PutUint32(trailer[1:], cksum)

	n, err = tb.writer.Write(trailer)
	if err != nil {
		return block.Handle{}, fmt.Errorf("table: write filter trailer: %w: %w", err, corekv.ErrIOError)
	}
	tb.offset += uint64(n)

	return handle, nil
}

// writePropertiesBlock writes the table properties block.
func (tb *TableBuilder) writePropertiesBlock() (block.Handle, error) {
	type prop struct {
		name  string
		value []byte
	}
	var properties []prop

	addUint64Prop := func(name string, value uint64) {
		buf := make([]byte, encoding.MaxVarintLen64)
		n := encoding.PutVarint64(buf, value)
		properties = append(properties, prop{name: name, value: buf[:n]})
	}
	addStringProp := func(name string, value string) {
		properties = append(properties, prop{name: name, value: []byte(value)})
	}

	addStringProp("corekv.comparator", tb.options.ComparatorName)
	addStringProp("corekv.compression", tb.options.Compression.String())
	addUint64Prop("corekv.data.size", tb.dataSize)
	if tb.options.FilterPolicy != "" && tb.filterSize > 0 {
		addStringProp("corekv.filter.policy", tb.options.FilterPolicy)
	}
	addUint64Prop("corekv.filter.size", tb.filterSize)
	addUint64Prop("corekv.index.size", tb.indexSize)
	addUint64Prop("corekv.num.data.blocks", tb.numDataBlocks)
	addUint64Prop("corekv.num.entries", tb.numEntries)
	addUint64Prop("corekv.raw.key.size", tb.rawKeySize)
	addUint64Prop("corekv.raw.value.size", tb.rawValueSize)

	sort.Slice(properties, func(i, j int) bool {
		return properties[i].name < properties[j].name
	})

	props := block.NewBuilder(1)
	for _, p := range properties {
		props.Add([]byte(p.name), p.value)
	}

	propsContents := props.Finish()
	return tb.writeBlockWithTrailer(propsContents)
}

// writeFooter writes the SST file footer.
func (tb *TableBuilder) writeFooter(metaindexHandle, indexHandle block.Handle) error {
	footer := &block.Footer{
		MetaindexHandle: metaindexHandle,
		IndexHandle:     indexHandle,
	}

	footerData := footer.EncodeTo()
	_, err := tb.writer.Write(footerData)
	if err != nil {
		return fmt.Errorf("table: write footer: %w: %w", err, corekv.ErrIOError)
	}
	tb.offset += uint64(len(footerData))

	return nil
}

// Abandon abandons the table being built.
// After calling Abandon, the TableBuilder should not be used.
func (tb *TableBuilder) Abandon() {
	tb.finished = true
}

// NumEntries returns the number of entries added so far.
func (tb *TableBuilder) NumEntries() uint64 {
	return tb.numEntries
}

// FileSize returns the size of the file generated so far.
func (tb *TableBuilder) FileSize() uint64 {
	return tb.offset
}

// Status returns any error encountered during building.
func (tb *TableBuilder) Status() error {
	return tb.err
}

// findShortestSeparator returns a key in [lastKeyOfBlock, nextKey) that is
// as short as possible, preferring to just reuse lastKeyOfBlock when no
// shorter separator can be found. A nil cmp falls back to lastKeyOfBlock
// unchanged.
func findShortestSeparator(lastKeyOfBlock, nextKey []byte, cmp block.Comparator) []byte {
	if cmp == nil {
		return lastKeyOfBlock
	}

	minLen := len(lastKeyOfBlock)
	if len(nextKey) < minLen {
		minLen = len(nextKey)
	}

	diffIndex := 0
	for diffIndex < minLen && lastKeyOfBlock[diffIndex] == nextKey[diffIndex] {
		diffIndex++
	}

	if diffIndex >= minLen {
		return lastKeyOfBlock
	}

	lastByte := lastKeyOfBlock[diffIndex]
	if lastByte >= 0xff || lastByte+1 >= nextKey[diffIndex] {
		return lastKeyOfBlock
	}

	shortest := append([]byte{}, lastKeyOfBlock[:diffIndex+1]...)
	shortest[diffIndex]++
	if cmp(shortest, lastKeyOfBlock) > 0 && cmp(shortest, nextKey) < 0 {
		return shortest
	}
	return lastKeyOfBlock
}

// findShortSuccessor returns a short key >= key, used as the index entry
// for the final block in the file (there is no following key to bound it).
func findShortSuccessor(key []byte, cmp block.Comparator) []byte {
	if cmp == nil {
		return key
	}
	for i, b := range key {
		if b != 0xff {
			successor := append([]byte{}, key[:i+1]...)
			successor[i]++
			if cmp(successor, key) > 0 {
				return successor
			}
			return key
		}
	}
	return key
}
