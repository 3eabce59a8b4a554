// Package table provides SST file reading and writing functionality.
//
// SST File Layout:
//
//	[data block 1]
//	[data block 2]
//	...
//	[data block N]
//	[filter block]      (optional)
//	[properties block]
//	[index block]
//	[metaindex block]
//	[Footer]             (fixed size, at end of file)
package table

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/corekv/corekv/internal/block"
	"github.com/corekv/corekv/internal/cache"
	"github.com/corekv/corekv/internal/checksum"
	"github.com/corekv/corekv/internal/compression"
	"github.com/corekv/corekv/internal/encoding"
	"github.com/corekv/corekv/internal/filter"
	"github.com/corekv/corekv/internal/logging"

	"github.com/corekv/corekv"
)

var (
	// ErrInvalidSST indicates the file is not a valid SST file.
	ErrInvalidSST = errors.New("table: invalid SST file")

	// ErrChecksumMismatch indicates a block checksum verification failed.
	ErrChecksumMismatch = errors.New("table: checksum mismatch")

	// ErrBlockNotFound indicates a requested block was not found.
	ErrBlockNotFound = errors.New("table: block not found")
)

// ReadableFile is an interface for reading from an SST file.
type ReadableFile interface {
	io.Closer

	// ReadAt reads len(p) bytes from the file starting at offset.
	ReadAt(p []byte, off int64) (n int, err error)

	// Size returns the total size of the file.
	Size() int64
}

// ReaderOptions controls the behavior of the table reader.
type ReaderOptions struct {
	// VerifyChecksums enables checksum verification for all blocks.
	VerifyChecksums bool

	// ChecksumType is the checksum algorithm the table was written with.
	// The footer does not carry this itself, so the reader must be told.
	ChecksumType checksum.Type

	// Comparator orders the keys in this table; threaded through to every
	// block iterator the reader constructs.
	Comparator block.Comparator

	// BlockCache, if set, caches decoded data blocks keyed by
	// (FileNumber, block offset) so repeated reads of hot blocks skip the
	// file read, checksum check, and decompression. Nil disables caching.
	BlockCache *cache.LRUCache

	// FileNumber identifies this table within BlockCache's key space. It
	// has no meaning when BlockCache is nil.
	FileNumber uint64

	// Logger receives open events tagged logging.NSTable and block checksum
	// and decode failures tagged logging.NSBlock.
	// If nil, logging.Discard is used.
	Logger logging.Logger
}

// DefaultReaderOptions returns ReaderOptions matching DefaultBuilderOptions.
func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{
		VerifyChecksums: true,
		ChecksumType:    checksum.TypeCRC32C,
		Comparator:      bytes.Compare,
		Logger:          logging.Discard,
	}
}

// Reader reads an SST file in the block-based table format.
type Reader struct {
	file    ReadableFile
	size    int64
	options ReaderOptions

	footer *block.Footer

	propertiesHandle block.Handle
	filterHandle     block.Handle

	indexBlock *block.Block
	properties *TableProperties

	filterReader *filter.BloomFilterReader
}

// Open opens an SST file for reading.
func Open(file ReadableFile, opts ReaderOptions) (*Reader, error) {
	size := file.Size()
	if size < int64(block.EncodedLength) {
		return nil, fmt.Errorf("table: file too small to hold a footer: %w", corekv.ErrCorruption)
	}
	if opts.Comparator == nil {
		opts.Comparator = bytes.Compare
	}
	if opts.ChecksumType == 0 {
		opts.ChecksumType = checksum.TypeCRC32C
	}
	if logging.IsNil(opts.Logger) {
		opts.Logger = logging.Discard
	}

	r := &Reader{
		file:    file,
		size:    size,
		options: opts,
	}

	if err := r.readFooter(); err != nil {
		r.options.Logger.Warnf("%sopen failed: bad footer: %v", logging.NSTable, err)
		return nil, err
	}

	if err := r.readMetaindex(); err != nil {
		r.options.Logger.Warnf("%sopen failed: bad metaindex block: %v", logging.NSTable, err)
		return nil, err
	}

	if err := r.readIndex(); err != nil {
		r.options.Logger.Warnf("%sopen failed: bad index block: %v", logging.NSTable, err)
		return nil, err
	}

	if err := r.readFilter(); err != nil {
		r.filterReader = nil
	}

	r.options.Logger.Infof("%sopened file number %d, %d bytes", logging.NSTable, opts.FileNumber, size)
	return r, nil
}

// readFooter reads and parses the footer from the end of the file.
func (r *Reader) readFooter() error {
	footerSize := block.EncodedLength
	if r.size < int64(footerSize) {
		footerSize = int(r.size)
	}

	buf := make([]byte, footerSize)
	offset := r.size - int64(footerSize)
	if _, err := r.file.ReadAt(buf, offset); err != nil {
		return fmt.Errorf("table: read footer: %w: %w", err, corekv.ErrIOError)
	}

	footer, err := block.DecodeFooter(buf)
	if err != nil {
		return err
	}

	r.footer = footer
	return nil
}

// readMetaindex reads and parses the metaindex block.
func (r *Reader) readMetaindex() error {
	if r.footer.MetaindexHandle.IsNull() {
		return nil
	}

	metaBlock, err := r.readBlock(r.footer.MetaindexHandle)
	if err != nil {
		return err
	}

	iter := metaBlock.NewIterator(r.options.Comparator)
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		name := string(iter.Key())
		handleBytes := iter.Value()

		handle, _, err := block.DecodeHandle(handleBytes)
		if err != nil {
			continue
		}

		switch {
		case name == "corekv.properties":
			r.propertiesHandle = handle
		case strings.HasPrefix(name, "filter."):
			r.filterHandle = handle
		}
	}

	return nil
}

// readIndex reads and caches the index block.
func (r *Reader) readIndex() error {
	if r.footer.IndexHandle.IsNull() {
		return fmt.Errorf("%w: %w", ErrBlockNotFound, corekv.ErrCorruption)
	}

	indexBlock, err := r.readBlock(r.footer.IndexHandle)
	if err != nil {
		return err
	}

	r.indexBlock = indexBlock
	return nil
}

// readFilter reads and caches the filter block if present.
func (r *Reader) readFilter() error {
	if r.filterHandle.IsNull() {
		return nil
	}

	trailerSize := block.BlockTrailerSize
	totalSize := int(r.filterHandle.Size) + trailerSize

	buf := make([]byte, totalSize)
	if _, err := r.file.ReadAt(buf, int64(r.filterHandle.Offset)); err != nil {
		return fmt.Errorf("table: read filter block: %w: %w", err, corekv.ErrIOError)
	}

	filterData := buf[:r.filterHandle.Size]

	r.filterReader = filter.NewBloomFilterReader(filterData)
	return nil
}

// KeyMayMatch returns true if the key may be in this SST file.
func (r *Reader) KeyMayMatch(key []byte) bool {
	if r.filterReader == nil {
		return true
	}
	return r.filterReader.MayContain(key)
}

// HasFilter returns true if this table has a Bloom filter.
func (r *Reader) HasFilter() bool {
	return r.filterReader != nil
}

// maxBlockSize is the maximum size we'll allocate for a single block.
// This prevents memory exhaustion from corrupted block handles.
const maxBlockSize = 256 * 1024 * 1024

// readBlock reads and optionally verifies a block from the file, serving it
// from r.options.BlockCache when present.
func (r *Reader) readBlock(handle block.Handle) (*block.Block, error) {
	var cacheKey cache.CacheKey
	if r.options.BlockCache != nil {
		cacheKey = cache.CacheKey{FileNumber: r.options.FileNumber, BlockOffset: handle.Offset}
		if h := r.options.BlockCache.Lookup(cacheKey); h != nil {
			data := h.Value()
			r.options.BlockCache.Release(h)
			return block.NewBlock(data)
		}
	}

	trailerSize := block.BlockTrailerSize

	const maxInt64AsUint64 = ^uint64(0) >> 1
	if handle.Offset > maxInt64AsUint64 {
		return nil, fmt.Errorf("block offset %d exceeds maximum %d: %w: %w", handle.Offset, maxInt64AsUint64, ErrInvalidSST, corekv.ErrCorruption)
	}

	if handle.Size > maxBlockSize {
		return nil, fmt.Errorf("block size %d exceeds maximum %d: %w: %w", handle.Size, maxBlockSize, ErrInvalidSST, corekv.ErrCorruption)
	}

	totalSize := int(handle.Size) + trailerSize

	end := handle.Offset + uint64(totalSize)
	if end < handle.Offset || end > uint64(r.size) {
		return nil, fmt.Errorf("block at offset %d size %d exceeds file size %d: %w: %w",
			handle.Offset, totalSize, r.size, ErrInvalidSST, corekv.ErrCorruption)
	}

	buf := make([]byte, totalSize)
	n, err := r.file.ReadAt(buf, int64(handle.Offset))
	if err != nil {
		return nil, fmt.Errorf("table: read block at offset %d: %w: %w", handle.Offset, err, corekv.ErrIOError)
	}
	if n < totalSize {
		return nil, fmt.Errorf("%w: short read at offset %d: %w", ErrInvalidSST, handle.Offset, corekv.ErrCorruption)
	}

	blockData := buf[:handle.Size]
	compressionByte := buf[len(buf)-trailerSize]
	storedChecksum := encoding.DecodeFixed32(buf[len(buf)-4:])

	if r.options.VerifyChecksums {
		computed := checksum.ComputeChecksum(r.options.ChecksumType, blockData, compressionByte)
		if computed != storedChecksum {
			r.options.Logger.Errorf("%sblock at offset %d: checksum mismatch: got %#08x want %#08x",
				logging.NSBlock, handle.Offset, computed, storedChecksum)
			return nil, fmt.Errorf("%w: %w", ErrChecksumMismatch, corekv.ErrCorruption)
		}
	}

	compressionType := compression.Type(compressionByte)
	if compressionType != compression.NoCompression {
		size, prefixLen, err := encoding.DecodeVarint32(blockData)
		if err != nil {
			return nil, fmt.Errorf("decode compressed block size prefix: %w", err)
		}
		compressedData := blockData[prefixLen:]

		decompressed, err := compression.DecompressWithSize(compressionType, compressedData, int(size))
		if err != nil {
			return nil, fmt.Errorf("decompress block at offset %d: %w: %w", handle.Offset, err, corekv.ErrCorruption)
		}
		blockData = decompressed
	}

	if r.options.BlockCache != nil {
		h := r.options.BlockCache.Insert(cacheKey, blockData, uint64(len(blockData)))
		r.options.BlockCache.Release(h)
	}

	blk, err := block.NewBlock(blockData)
	if err != nil {
		r.options.Logger.Errorf("%sblock at offset %d: %v", logging.NSBlock, handle.Offset, err)
		return nil, err
	}
	return blk, nil
}

// NewIterator returns an iterator over the table contents.
// The iterator is initially invalid; call SeekToFirst or Seek before use.
func (r *Reader) NewIterator() *TableIterator {
	return &TableIterator{
		reader:    r,
		indexIter: r.indexBlock.NewIterator(r.options.Comparator),
	}
}

// Close releases resources associated with the reader.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Footer returns the parsed footer.
func (r *Reader) Footer() *block.Footer {
	return r.footer
}

// Properties returns the table properties, loading them if necessary.
func (r *Reader) Properties() (*TableProperties, error) {
	if r.properties != nil {
		return r.properties, nil
	}

	if r.propertiesHandle.IsNull() {
		return nil, fmt.Errorf("%w: %w", ErrBlockNotFound, corekv.ErrNotFound)
	}

	propsBlock, err := r.readBlock(r.propertiesHandle)
	if err != nil {
		return nil, err
	}

	props, err := ParsePropertiesBlock(propsBlock, r.options.Comparator)
	if err != nil {
		return nil, err
	}

	r.properties = props
	return props, nil
}

// TableIterator iterates over key-value pairs in an SST file.
type TableIterator struct {
	reader    *Reader
	indexIter *block.Iterator
	dataBlock *block.Block
	dataIter  *block.Iterator
	err       error
}

// Valid returns true if the iterator is positioned at a valid entry.
func (it *TableIterator) Valid() bool {
	return it.err == nil && it.dataIter != nil && it.dataIter.Valid()
}

// SeekToFirst positions the iterator at the first entry.
func (it *TableIterator) SeekToFirst() {
	it.indexIter.SeekToFirst()
	it.loadDataBlock()
	if it.dataIter != nil {
		it.dataIter.SeekToFirst()
	}
}

// SeekToLast positions the iterator at the last entry.
func (it *TableIterator) SeekToLast() {
	it.indexIter.SeekToLast()
	it.loadDataBlock()
	if it.dataIter != nil {
		it.dataIter.SeekToLast()
	}
}

// Seek positions the iterator at the first entry with key >= target.
func (it *TableIterator) Seek(target []byte) {
	it.indexIter.Seek(target)
	if !it.indexIter.Valid() {
		it.dataIter = nil
		return
	}
	it.loadDataBlock()
	if it.dataIter != nil {
		it.dataIter.Seek(target)
	}
}

// Next moves to the next entry.
func (it *TableIterator) Next() {
	if it.dataIter == nil {
		return
	}
	it.dataIter.Next()
	if !it.dataIter.Valid() {
		it.indexIter.Next()
		it.loadDataBlock()
		if it.dataIter != nil {
			it.dataIter.SeekToFirst()
		}
	}
}

// Prev moves to the previous entry.
func (it *TableIterator) Prev() {
	if it.dataIter == nil {
		return
	}
	it.dataIter.Prev()
	if !it.dataIter.Valid() {
		it.indexIter.Prev()
		it.loadDataBlock()
		if it.dataIter != nil {
			it.dataIter.SeekToLast()
		}
	}
}

// Key returns the current key.
func (it *TableIterator) Key() []byte {
	if it.dataIter == nil {
		return nil
	}
	return it.dataIter.Key()
}

// Value returns the current value.
func (it *TableIterator) Value() []byte {
	if it.dataIter == nil {
		return nil
	}
	return it.dataIter.Value()
}

// Error returns any error encountered during iteration.
func (it *TableIterator) Error() error {
	return it.err
}

// loadDataBlock loads the data block pointed to by the current index entry.
func (it *TableIterator) loadDataBlock() {
	if !it.indexIter.Valid() {
		it.dataBlock = nil
		it.dataIter = nil
		return
	}

	handle, _, err := block.DecodeHandle(it.indexIter.Value())
	if err != nil {
		it.err = err
		it.dataBlock = nil
		it.dataIter = nil
		return
	}

	dataBlock, err := it.reader.readBlock(handle)
	if err != nil {
		it.err = err
		it.dataBlock = nil
		it.dataIter = nil
		return
	}

	it.dataBlock = dataBlock
	it.dataIter = dataBlock.NewIterator(it.reader.options.Comparator)
}
