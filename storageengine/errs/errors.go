// Package errs collects the sentinel errors the storage engine reports
// to callers. Wrap them with fmt.Errorf("...: %w", errs.ErrNotFound) at
// call sites so errors.Is keeps working through the stack.
package errs

import "errors"

var (
	// ErrDuplicateKey is returned when insert violates primary-key
	// uniqueness.
	ErrDuplicateKey = errors.New("gdb: duplicate key")

	// ErrNotFound is returned by select/update/delete on a key that is
	// absent or tombstoned.
	ErrNotFound = errors.New("gdb: record not found")

	// ErrInvalidUpdate is returned when an update attempts to modify
	// the key column.
	ErrInvalidUpdate = errors.New("gdb: cannot update the key column")

	// ErrBufferPoolExhausted is returned when every frame is pinned and
	// none can be evicted to satisfy a Get or New.
	ErrBufferPoolExhausted = errors.New("gdb: buffer pool exhausted")

	// ErrIOError names the filesystem/serialization failure kind. The
	// engine's own I/O failures wrap the underlying os or encoding/json
	// error instead, so errors.Is against ErrIOError does not match them.
	ErrIOError = errors.New("gdb: io error")

	// ErrCorruptPage marks a page whose on-disk contents could not be
	// trusted past some prefix of slots; recovery truncates to the
	// consistent prefix instead of failing open.
	ErrCorruptPage = errors.New("gdb: corrupt page")

	// ErrTableExists is returned by CreateTable for a name already in
	// the catalog.
	ErrTableExists = errors.New("gdb: table already exists")

	// ErrTableNotFound is returned by GetTable for an unknown name.
	ErrTableNotFound = errors.New("gdb: table not found")

	// ErrIndexExists is returned by CreateIndex on a column that
	// already has one.
	ErrIndexExists = errors.New("gdb: index already exists")

	// ErrNoIndex is returned by DropIndex/Locate on a column with no
	// index.
	ErrNoIndex = errors.New("gdb: no index for column")

	// ErrDataDirLocked is returned by Open when another process holds
	// the data directory's advisory lock.
	ErrDataDirLocked = errors.New("gdb: data directory is in use by another process")
)
