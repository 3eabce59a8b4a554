package corekv

// options.go collects the configuration knobs a database open accepts.
// Every field here corresponds to an entry in the engine's configuration
// table; defaults match the reference LevelDB design.

import (
	"github.com/corekv/corekv/internal/cache"
	"github.com/corekv/corekv/internal/checksum"
	"github.com/corekv/corekv/internal/compression"
	"github.com/corekv/corekv/internal/filter"
	"github.com/corekv/corekv/internal/logging"
	"github.com/corekv/corekv/internal/vfs"
)

// Logger is an alias for the logging.Logger interface, letting callers
// supply their own implementation without importing internal/logging.
type Logger = logging.Logger

// CompressionType selects the per-block compression codec.
type CompressionType = compression.Type

// Compression type constants. None and Snappy are the pair named in the
// configuration table; the others are additional opaque codecs the table
// writer also understands.
const (
	CompressionNone   = compression.NoCompression
	CompressionSnappy = compression.SnappyCompression
	CompressionZlib   = compression.ZlibCompression
	CompressionLZ4    = compression.LZ4Compression
	CompressionZstd   = compression.ZstdCompression
)

// ChecksumType selects the algorithm used for block trailers.
type ChecksumType = checksum.Type

// Checksum type constants.
const (
	ChecksumNone   = checksum.TypeNoChecksum
	ChecksumCRC32C = checksum.TypeCRC32C
	ChecksumXXH3   = checksum.TypeXXH3
)

// FilterPolicy is an opaque per-table predicate. The table reader exposes
// the filter through Reader.KeyMayMatch, which can rule a key out without
// reading a data block; the table iterator does not consult it. The only
// implementation provided is a Bloom
// filter; a nil FilterPolicy disables filter blocks entirely.
type FilterPolicy = filter.Policy

// NewBloomFilterPolicy returns a Bloom filter policy with the given
// bits-per-key (the default configuration uses 10, per bloom(10)).
func NewBloomFilterPolicy(bitsPerKey int) FilterPolicy {
	return filter.NewBloomPolicy(bitsPerKey)
}

// Options carries every configuration knob accepted at database/table
// open. Nothing here is a package-level singleton (§9 "Global/default
// state"): Comparator, Env, BlockCache, and Logger are explicit fields
// that DefaultOptions populates, but callers are free to override any of
// them.
type Options struct {
	// CreateIfMissing causes Open to create the database if it does not exist.
	CreateIfMissing bool

	// ErrorIfExists causes Open to return an error if the database already exists.
	ErrorIfExists bool

	// ParanoidChecks enables aggressive checksum verification.
	ParanoidChecks bool

	// Comparator defines the order of user keys. If nil, a default
	// bytewise comparator is used. Nothing in this module checks, on
	// reopen, that the comparator matches the one used to write (§4.A).
	Comparator Comparator

	// Env is the filesystem abstraction; vfs.FS has no clock or sleep
	// operations. If nil, the OS filesystem (vfs.Default()) is used.
	Env vfs.FS

	// WriteBufferSize is the approximate memtable size that triggers a
	// flush to a table. Default: 4 MiB.
	WriteBufferSize int

	// MaxOpenFiles bounds the table cache. Default: 1024.
	MaxOpenFiles int

	// MaxFileSize is the target size of a table before the write path
	// rolls over to a new one. Default: 2 MiB.
	MaxFileSize int64

	// BlockCacheCapacity is the shared LRU block cache's byte budget.
	// Default: 8 MiB.
	BlockCacheCapacity int64

	// BlockCache is the shared LRU block cache instance. DefaultOptions
	// fills it with a new 8 MiB cache; a nil BlockCache is not replaced.
	BlockCache *cache.LRUCache

	// BlockSize is the target uncompressed size of a data block before
	// the table builder flushes it. Default: 4 KiB.
	BlockSize int

	// BlockRestartInterval is the number of entries between block restart
	// points. Default: 16.
	BlockRestartInterval int

	// Compression selects the per-block compression codec. Default: none.
	Compression CompressionType

	// ChecksumType selects the block-trailer checksum algorithm. Default: CRC32C.
	ChecksumType ChecksumType

	// ReuseLogs, if true, appends to a prior write-ahead log on reopen
	// instead of rolling a new one. Consumed by the (out-of-scope) write
	// path; carried here only as a named configuration knob.
	ReuseLogs bool

	// ReuseManifest, if true, appends to a prior manifest on reopen.
	// Consumed by the (out-of-scope) manifest/version-set; carried here
	// only as a named configuration knob.
	ReuseManifest bool

	// FilterPolicy builds an opaque per-table filter. Default: bloom(10).
	FilterPolicy FilterPolicy

	// Logger receives structured log lines for database operations. If
	// nil, logging.Discard is used.
	Logger Logger
}

// DefaultOptions returns an Options populated with the engine's documented
// defaults (§6).
func DefaultOptions() *Options {
	return &Options{
		CreateIfMissing:      true,
		ErrorIfExists:        false,
		ParanoidChecks:       false,
		Comparator:           DefaultComparator(),
		Env:                  vfs.Default(),
		WriteBufferSize:      4 * 1024 * 1024,
		MaxOpenFiles:         1024,
		MaxFileSize:          2 * 1024 * 1024,
		BlockCacheCapacity:   8 * 1024 * 1024,
		BlockCache:           cache.NewLRUCache(8 * 1024 * 1024),
		BlockSize:            4096,
		BlockRestartInterval: 16,
		Compression:          CompressionNone,
		ChecksumType:         ChecksumCRC32C,
		ReuseLogs:            true,
		ReuseManifest:        true,
		FilterPolicy:         NewBloomFilterPolicy(10),
		Logger:               logging.Discard,
	}
}

// ReadOptions configures a single read or iterator creation.
type ReadOptions struct {
	// VerifyChecksums enables checksum verification for blocks touched by
	// this read.
	VerifyChecksums bool

	// FillCache indicates whether blocks read to satisfy this operation
	// should be inserted into the block cache.
	FillCache bool

	// Snapshot restricts visibility to mutations committed at or before
	// the snapshot's sequence number. If nil, the most recent state is used.
	Snapshot *Snapshot
}

// DefaultReadOptions returns ReadOptions with default values.
func DefaultReadOptions() *ReadOptions {
	return &ReadOptions{
		VerifyChecksums: true,
		FillCache:       true,
	}
}

// Snapshot is a frozen sequence-number boundary: a read under a snapshot
// sees only mutations with sequence number at most the snapshot's.
type Snapshot struct {
	Sequence uint64
}
