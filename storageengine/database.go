package storageengine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/minacio00/gdb/storageengine/buffer"
	"github.com/minacio00/gdb/storageengine/config"
	"github.com/minacio00/gdb/storageengine/errs"
	"github.com/minacio00/gdb/storageengine/page"
	"github.com/sirupsen/logrus"
)

// Database owns the on-disk directory, the shared buffer pool, and
// every open Table. A Database is single-writer/single-reader: it
// holds an advisory file lock on its data directory from Open until
// Close.
type Database struct {
	mu sync.RWMutex

	path string
	log  *logrus.Logger
	pool *buffer.Pool
	lock *flock.Flock

	mergeOnClose bool

	tables map[string]*Table
}

// Option configures Open using the functional-options pattern.
type Option func(*options)

type options struct {
	bufferPoolSize int
	log            *logrus.Logger
	mergeOnClose   bool
}

// WithBufferPoolSize overrides the number of frames held by the
// shared buffer pool (default config.BufferPoolSize).
func WithBufferPoolSize(n int) Option {
	return func(o *options) { o.bufferPoolSize = n }
}

// WithLogger supplies a logrus.Logger to use for diagnostics. Open
// installs its own default logger (text formatter, Info level) if
// this is not provided.
func WithLogger(log *logrus.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMergeOnClose runs Merge on every table during Close when
// enabled.
func WithMergeOnClose(enabled bool) Option {
	return func(o *options) { o.mergeOnClose = enabled }
}

func defaultOptions() *options {
	return &options{
		bufferPoolSize: config.BufferPoolSize,
		mergeOnClose:   false,
	}
}

// diskStore persists one table's pages as JSON files under
// <dbPath>/<table>/{base,tail}/col_<i>_page_<n>.page.json, fulfilling
// buffer.PageStore.
type diskStore struct {
	root string
	log  *logrus.Logger
}

func (d *diskStore) pagePath(id page.ID) string {
	region := "tail"
	if id.Base {
		region = "base"
	}
	return filepath.Join(d.root, id.Table, region, fmt.Sprintf("col_%d_page_%d%s", id.Column, id.Number, config.PageFileSuffix))
}

func (d *diskStore) ReadPage(id page.ID) (*page.Page, error) {
	data, err := os.ReadFile(d.pagePath(id))
	if os.IsNotExist(err) {
		return page.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("diskStore: read %s: %w", id, err)
	}
	if truncated, terr := page.Truncated(data); terr == nil && truncated {
		d.log.WithError(errs.ErrCorruptPage).WithField("page", id.String()).Warn("page truncated to its consistent prefix")
	}
	p, err := page.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("diskStore: %s: %w", id, err)
	}
	return p, nil
}

func (d *diskStore) WritePage(id page.ID, p *page.Page) error {
	path := d.pagePath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("diskStore: mkdir for %s: %w", id, err)
	}
	data, err := p.Serialize()
	if err != nil {
		return fmt.Errorf("diskStore: serialize %s: %w", id, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("diskStore: write %s: %w", id, err)
	}
	return nil
}

// dbMetadata is the persisted directory of tables, written on Close
// and read back on Open. On disk it is the bare JSON array of Tables.
type dbMetadata struct {
	Tables []tableMetadata `json:"tables"`
}

type tableMetadata struct {
	Name       string `json:"name"`
	NumColumns int    `json:"num_columns"`
	KeyIndex   int    `json:"key_index"`
}

// Open acquires the data directory, taking an advisory lock so a
// second process cannot open the same directory concurrently, and
// recovers every table found in its metadata file.
func Open(path string, opts ...Option) (*Database, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logrus.New()
		o.log.SetLevel(logrus.InfoLevel)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("storageengine: open %s: %w", path, err)
	}

	lockPath := filepath.Join(path, config.LockFileName)
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("storageengine: lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("storageengine: %s: %w", path, errs.ErrDataDirLocked)
	}

	store := &diskStore{root: path, log: o.log}
	pool := buffer.New(o.bufferPoolSize, store, o.log)

	db := &Database{
		path:         path,
		log:          o.log,
		pool:         pool,
		lock:         lock,
		mergeOnClose: o.mergeOnClose,
		tables:       make(map[string]*Table),
	}

	meta, err := db.readMetadata()
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	for _, tm := range meta.Tables {
		t := newTable(tm.Name, tm.NumColumns, tm.KeyIndex, pool, o.log)
		if err := t.Recover(store); err != nil {
			lock.Unlock()
			return nil, fmt.Errorf("storageengine: recover table %s: %w", tm.Name, err)
		}
		db.tables[tm.Name] = t
	}

	return db, nil
}

func (db *Database) metadataPath() string {
	return filepath.Join(db.path, config.DBMetadataFile)
}

func (db *Database) readMetadata() (*dbMetadata, error) {
	data, err := os.ReadFile(db.metadataPath())
	if os.IsNotExist(err) {
		return &dbMetadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storageengine: read metadata: %w", err)
	}
	var meta dbMetadata
	if err := json.Unmarshal(data, &meta.Tables); err != nil {
		return nil, fmt.Errorf("storageengine: parse metadata: %w", err)
	}
	return &meta, nil
}

func (db *Database) writeMetadata() error {
	meta := dbMetadata{Tables: []tableMetadata{}}
	for _, t := range db.tables {
		meta.Tables = append(meta.Tables, tableMetadata{
			Name:       t.name,
			NumColumns: t.numColumns,
			KeyIndex:   t.keyIndex,
		})
	}
	data, err := json.MarshalIndent(meta.Tables, "", "  ")
	if err != nil {
		return fmt.Errorf("storageengine: marshal metadata: %w", err)
	}
	if err := os.WriteFile(db.metadataPath(), data, 0o644); err != nil {
		return fmt.Errorf("storageengine: write metadata: %w", err)
	}
	return nil
}

// CreateTable creates a new table with numColumns user columns, whose
// keyIndex-th column is the primary key.
func (db *Database) CreateTable(name string, numColumns, keyIndex int) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.tables[name]; exists {
		return nil, fmt.Errorf("storageengine: table %s: %w", name, errs.ErrTableExists)
	}
	if keyIndex < 0 || keyIndex >= numColumns {
		return nil, fmt.Errorf("storageengine: table %s: key index %d out of range", name, keyIndex)
	}
	t := newTable(name, numColumns, keyIndex, db.pool, db.log)
	db.tables[name] = t
	return t, nil
}

// GetTable returns a previously created or recovered table.
func (db *Database) GetTable(name string) (*Table, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	t, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("storageengine: table %s: %w", name, errs.ErrTableNotFound)
	}
	return t, nil
}

// Close runs Merge on every table if configured, flushes all dirty
// pages, persists the table directory, and releases the data
// directory lock.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.mergeOnClose {
		for name, t := range db.tables {
			if err := t.Merge(); err != nil {
				db.log.WithError(err).WithField("table", name).Warn("merge on close failed")
			}
		}
	}

	if err := db.pool.FlushAll(); err != nil {
		return fmt.Errorf("storageengine: close: %w", err)
	}
	if err := db.writeMetadata(); err != nil {
		return err
	}
	if err := db.lock.Unlock(); err != nil {
		return fmt.Errorf("storageengine: release lock: %w", err)
	}
	return nil
}
