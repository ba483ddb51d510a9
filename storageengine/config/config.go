// Package config centralizes the tunables used by the storage engine:
// physical column layout, buffer pool sizing, page identity, and RID
// allocation policy. Changing these after data has been written can
// break recovery of an existing data directory.
package config

const (
	// IndirectionColumn points to the newest tail (base) or the
	// previous version (tail).
	IndirectionColumn = 0
	// RIDColumn stores the record's own RID, redundantly, on every row.
	RIDColumn = 1
	// TimestampColumn holds the insertion/update time in epoch
	// milliseconds.
	TimestampColumn = 2
	// SchemaColumn is a bitmask of user-column updates, meaningful on
	// tail records only.
	SchemaColumn = 3
	// MetaColumns is the number of physical meta columns preceding the
	// user columns on every row.
	MetaColumns = 4
)

const (
	// PageCapacity is the number of int64 slots held by a single page.
	PageCapacity = 512

	// BufferPoolSize is the default number of resident frames.
	BufferPoolSize = 64

	// FlushOnClose mirrors the source's default: Database.Close always
	// flushes the buffer pool via BufferPool.FlushAll.
	FlushOnClose = true
)

const (
	// BaseRIDStart is the first RID handed out by a table's base
	// counter.
	BaseRIDStart = 1
	// TailRIDStart is the first RID handed out by a table's tail
	// counter; kept far above any realistic base RID so the two spaces
	// never collide, which lets the page directory and recovery logic
	// tell base and tail records apart by RID alone if needed.
	TailRIDStart = 1_000_000_000
)

const (
	// MergeTailThreshold is carried over from the source's background
	// merge trigger policy. Nothing in this build reads it yet: merge
	// is caller-triggered only, via Table.Merge or WithMergeOnClose.
	MergeTailThreshold = 3

	// DBMetadataFile is the catalog file written by Database.Close and
	// read by Open.
	DBMetadataFile = "metadata.json"

	// PageFileSuffix is the suffix of every on-disk page file.
	PageFileSuffix = ".page.json"

	// LockFileName is the advisory lock file guarding a data directory
	// against a second process opening it concurrently.
	LockFileName = ".lock"
)
