package corekv

import "errors"

// Error taxonomy (§7). These are kinds, not specific messages: callers
// distinguish error classes with errors.Is, while each layer wraps with
// fmt.Errorf("...: %w", ...) to attach context on the way up.
var (
	// ErrNotFound indicates the requested key is absent or tombstoned.
	// Recoverable at the caller.
	ErrNotFound = errors.New("corekv: not found")

	// ErrCorruption indicates a checksum mismatch, an unparseable varint,
	// an impossible block layout, or a truncated file.
	ErrCorruption = errors.New("corekv: corruption")

	// ErrIOError indicates an underlying environment (filesystem) failure.
	ErrIOError = errors.New("corekv: I/O error")

	// ErrInvalidArgument indicates a caller contract violation, such as a
	// non-ascending key passed to a block builder, or an unrecognized
	// comparator name on reopen.
	ErrInvalidArgument = errors.New("corekv: invalid argument")

	// ErrPermission indicates a filesystem permission failure.
	ErrPermission = errors.New("corekv: permission denied")

	// ErrAlreadyExists indicates a create operation found an existing
	// database when ErrorIfExists was requested, or similar.
	ErrAlreadyExists = errors.New("corekv: already exists")
)
