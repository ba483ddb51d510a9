package storageengine

import (
	"fmt"
	"math"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/minacio00/gdb/storageengine/buffer"
	"github.com/minacio00/gdb/storageengine/config"
	"github.com/minacio00/gdb/storageengine/errs"
	"github.com/minacio00/gdb/storageengine/index"
	"github.com/minacio00/gdb/storageengine/page"
	"github.com/sirupsen/logrus"
)

// pageLoc is one physical column's (page number, slot) location for a
// given RID. All physical columns of a record share the same slot
// index within their own column's page, per invariant I1.
type pageLoc struct {
	pageNumber int
	slot       int
}

// Table owns the page directory, RID counters, deleted set, and
// indexes for one logical table. All operations run on the caller's
// thread; there is no internal scheduler.
type Table struct {
	name       string
	numColumns int // U
	keyIndex   int

	pool *buffer.Pool
	log  *logrus.Logger

	nextBaseRID int64
	nextTailRID int64

	// basePageNumber/baseSlotCount (and their tail counterparts) track
	// the append point shared by every physical column, since all
	// columns of a table roll over to a new page in lockstep.
	basePageNumber int
	baseSlotCount  int
	tailPageNumber int
	tailSlotCount  int

	pageDirectory map[int64][]pageLoc
	deleted       *roaring.Bitmap

	pk      index.Index
	indexes map[int]index.Index

	lastTimestamp int64
}

func newTable(name string, numColumns, keyIndex int, pool *buffer.Pool, log *logrus.Logger) *Table {
	return &Table{
		name:           name,
		numColumns:     numColumns,
		keyIndex:       keyIndex,
		pool:           pool,
		log:            log,
		basePageNumber: -1,
		tailPageNumber: -1,
		pageDirectory:  make(map[int64][]pageLoc),
		deleted:        roaring.New(),
		pk:             index.NewOrdered(true),
		indexes:        make(map[int]index.Index),
	}
}

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

// NumColumns returns the number of user columns (U).
func (t *Table) NumColumns() int { return t.numColumns }

// KeyIndex returns the user-column index of the primary key.
func (t *Table) KeyIndex() int { return t.keyIndex }

func (t *Table) physicalColumns() int {
	return config.MetaColumns + t.numColumns
}

func (t *Table) now() int64 {
	ms := time.Now().UnixMilli()
	if ms <= t.lastTimestamp {
		ms = t.lastTimestamp + 1
	}
	t.lastTimestamp = ms
	return ms
}

// --- page access --------------------------------------------------------

func (t *Table) readPhysical(rid int64, physicalCol int) (int64, error) {
	locs, ok := t.pageDirectory[rid]
	if !ok {
		return 0, fmt.Errorf("table %s: rid %d: %w", t.name, rid, errs.ErrNotFound)
	}
	loc := locs[physicalCol]
	id := page.ID{Table: t.name, Column: physicalCol, Number: loc.pageNumber, Base: rid < config.TailRIDStart}
	h, err := t.pool.Get(id)
	if err != nil {
		return 0, fmt.Errorf("table %s: %w", t.name, err)
	}
	defer h.Unpin(false)
	return h.Page().Read(loc.slot)
}

func (t *Table) writePhysical(rid int64, physicalCol int, value int64) error {
	locs, ok := t.pageDirectory[rid]
	if !ok {
		return fmt.Errorf("table %s: rid %d: %w", t.name, rid, errs.ErrNotFound)
	}
	loc := locs[physicalCol]
	id := page.ID{Table: t.name, Column: physicalCol, Number: loc.pageNumber, Base: rid < config.TailRIDStart}
	h, err := t.pool.Get(id)
	if err != nil {
		return fmt.Errorf("table %s: %w", t.name, err)
	}
	defer h.Unpin(true)
	return h.Page().Overwrite(loc.slot, value)
}

func (t *Table) readMeta(rid int64, metaCol int) (int64, error) {
	return t.readPhysical(rid, metaCol)
}

func (t *Table) readUser(rid int64, userCol int) (int64, error) {
	return t.readPhysical(rid, config.MetaColumns+userCol)
}

// appendRow writes one full physical row (meta + user values) across
// every column's current page, creating a new page in lockstep for
// every column when the current one is full or doesn't exist yet.
func (t *Table) appendRow(base bool, meta [config.MetaColumns]int64, userValues []int64) ([]pageLoc, error) {
	pageNumber, slotCount := t.basePageNumber, t.baseSlotCount
	if !base {
		pageNumber, slotCount = t.tailPageNumber, t.tailSlotCount
	}

	newPage := pageNumber < 0 || slotCount >= config.PageCapacity
	if newPage {
		pageNumber++
		slotCount = 0
	}

	physical := t.physicalColumns()
	locs := make([]pageLoc, physical)
	values := make([]int64, physical)
	copy(values[:config.MetaColumns], meta[:])
	copy(values[config.MetaColumns:], userValues)

	for col := 0; col < physical; col++ {
		id := page.ID{Table: t.name, Column: col, Number: pageNumber, Base: base}
		var h *buffer.Handle
		var err error
		if newPage {
			h, err = t.pool.New(id)
		} else {
			h, err = t.pool.Get(id)
		}
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", t.name, err)
		}
		slot, ok := h.Page().Write(values[col])
		h.Unpin(true)
		if !ok {
			return nil, fmt.Errorf("table %s: page %s unexpectedly full", t.name, id)
		}
		locs[col] = pageLoc{pageNumber: pageNumber, slot: slot}
	}

	if base {
		t.basePageNumber, t.baseSlotCount = pageNumber, slotCount+1
	} else {
		t.tailPageNumber, t.tailSlotCount = pageNumber, slotCount+1
	}
	return locs, nil
}

// --- insert / update / delete -------------------------------------------

// Insert creates a new base record. values must have exactly
// NumColumns entries.
func (t *Table) Insert(values []int64) (int64, error) {
	if len(values) != t.numColumns {
		return 0, fmt.Errorf("table %s: insert: expected %d columns, got %d", t.name, t.numColumns, len(values))
	}
	key := values[t.keyIndex]
	if len(t.pk.Locate(key)) > 0 {
		return 0, fmt.Errorf("table %s: insert key %d: %w", t.name, key, errs.ErrDuplicateKey)
	}

	rid := t.nextBaseRID
	if rid == 0 {
		rid = config.BaseRIDStart
	}

	meta := [config.MetaColumns]int64{
		config.IndirectionColumn: rid,
		config.RIDColumn:         rid,
		config.TimestampColumn:   t.now(),
		config.SchemaColumn:      0,
	}
	locs, err := t.appendRow(true, meta, values)
	if err != nil {
		return 0, err
	}
	t.pageDirectory[rid] = locs
	t.nextBaseRID = rid + 1

	if err := t.pk.Insert(key, rid); err != nil {
		return 0, fmt.Errorf("table %s: %w", t.name, err)
	}
	for col, idx := range t.indexes {
		_ = idx.Insert(values[col], rid)
	}
	return rid, nil
}

// Update applies a cumulative tail update to the record with the given
// key. newValues[i] == nil means "no change"; newValues[keyIndex] MUST
// be nil.
func (t *Table) Update(key int64, newValues []*int64) error {
	if len(newValues) != t.numColumns {
		return fmt.Errorf("table %s: update: expected %d columns, got %d", t.name, t.numColumns, len(newValues))
	}
	if newValues[t.keyIndex] != nil {
		return fmt.Errorf("table %s: update key %d: %w", t.name, key, errs.ErrInvalidUpdate)
	}

	rids := t.pk.Locate(key)
	if len(rids) == 0 {
		return fmt.Errorf("table %s: update key %d: %w", t.name, key, errs.ErrNotFound)
	}
	rid := rids[0]

	allCols := make([]int, t.numColumns)
	for i := range allCols {
		allCols[i] = i
	}
	current, err := t.Compose(rid, allCols, 0)
	if err != nil {
		return err
	}

	var mask int64
	for c, v := range newValues {
		if v != nil && *v != current[c] {
			mask |= 1 << uint(c)
		}
	}
	if mask == 0 {
		return nil
	}

	prevHead, err := t.readMeta(rid, config.IndirectionColumn)
	if err != nil {
		return err
	}

	tailRid := t.nextTailRID
	if tailRid == 0 {
		tailRid = config.TailRIDStart
	}

	userVals := make([]int64, t.numColumns)
	for c := 0; c < t.numColumns; c++ {
		if mask&(1<<uint(c)) != 0 {
			userVals[c] = *newValues[c]
		}
	}

	meta := [config.MetaColumns]int64{
		config.IndirectionColumn: prevHead,
		config.RIDColumn:         tailRid,
		config.TimestampColumn:   t.now(),
		config.SchemaColumn:      mask,
	}
	locs, err := t.appendRow(false, meta, userVals)
	if err != nil {
		return err
	}
	t.pageDirectory[tailRid] = locs
	t.nextTailRID = tailRid + 1

	if err := t.writePhysical(rid, config.IndirectionColumn, tailRid); err != nil {
		return err
	}

	for c, idx := range t.indexes {
		if c == t.keyIndex {
			continue
		}
		if mask&(1<<uint(c)) != 0 {
			_ = idx.Update(current[c], userVals[c], rid)
		}
	}
	return nil
}

// Delete tombstones the record with the given key. Its tail chain is
// left intact on disk; readers gate on the deleted set.
func (t *Table) Delete(key int64) error {
	rids := t.pk.Locate(key)
	if len(rids) == 0 {
		return fmt.Errorf("table %s: delete key %d: %w", t.name, key, errs.ErrNotFound)
	}
	rid := rids[0]

	// Compose the current value of every secondary-indexed column
	// before tombstoning: readUser would return the base page's raw,
	// possibly stale, slot value, but the index entry was moved to the
	// composed value by the last Update that touched it.
	current := make(map[int]int64, len(t.indexes))
	for c := range t.indexes {
		v, err := t.Compose(rid, []int{c}, 0)
		if err != nil {
			return err
		}
		current[c] = v[0]
	}

	t.deleted.Add(uint32(rid))
	t.pk.Delete(key, rid)
	for c, idx := range t.indexes {
		idx.Delete(current[c], rid)
	}
	return nil
}

// --- indexes -------------------------------------------------------------

// CreateIndex builds a hash index over column, scanning live base
// records (respecting the deleted set) and indexing each one's newest
// composed value.
func (t *Table) CreateIndex(column int) error {
	if column == t.keyIndex {
		return fmt.Errorf("table %s: column %d: %w", t.name, column, errs.ErrIndexExists)
	}
	if _, exists := t.indexes[column]; exists {
		return fmt.Errorf("table %s: column %d: %w", t.name, column, errs.ErrIndexExists)
	}
	idx := index.NewHash(false)
	for _, rid := range t.liveBaseRIDs() {
		v, err := t.Compose(rid, []int{column}, 0)
		if err != nil {
			return err
		}
		_ = idx.Insert(v[0], rid)
	}
	t.indexes[column] = idx
	return nil
}

// DropIndex releases the mapping for column.
func (t *Table) DropIndex(column int) error {
	if _, exists := t.indexes[column]; !exists {
		return fmt.Errorf("table %s: column %d: %w", t.name, column, errs.ErrNoIndex)
	}
	delete(t.indexes, column)
	return nil
}

// liveBaseRIDs returns every base RID currently reachable through the
// PK index, i.e. every live (not-deleted) record (invariant I3).
func (t *Table) liveBaseRIDs() []int64 {
	return t.pk.LocateRange(math.MinInt64, math.MaxInt64)
}

// Locate returns the base RIDs currently holding value in column. The
// key column is always locatable through the primary-key index; any
// other column requires a prior CreateIndex call.
func (t *Table) Locate(value int64, column int) ([]int64, error) {
	if column == t.keyIndex {
		return t.pk.Locate(value), nil
	}
	idx, ok := t.indexes[column]
	if !ok {
		return nil, fmt.Errorf("table %s: column %d: %w", t.name, column, errs.ErrNoIndex)
	}
	return idx.Locate(value), nil
}

// LocateRangeByKey returns every base RID whose primary key falls in
// [lo, hi].
func (t *Table) LocateRangeByKey(lo, hi int64) []int64 {
	return t.pk.LocateRange(lo, hi)
}

// --- merge ---------------------------------------------------------------

// Merge composes the newest version of every live record and
// overwrites the base's user-column slots in place, then resets its
// INDIRECTION to itself and SCHEMA to 0. Merge is destructive: once
// run, a record's older versions are no longer reachable through
// Compose.
func (t *Table) Merge() error {
	allCols := make([]int, t.numColumns)
	for i := range allCols {
		allCols[i] = i
	}
	for _, rid := range t.liveBaseRIDs() {
		values, err := t.Compose(rid, allCols, 0)
		if err != nil {
			return err
		}
		for c, v := range values {
			if err := t.writePhysical(rid, config.MetaColumns+c, v); err != nil {
				return err
			}
		}
		if err := t.writePhysical(rid, config.IndirectionColumn, rid); err != nil {
			return err
		}
		if err := t.writePhysical(rid, config.SchemaColumn, 0); err != nil {
			return err
		}
	}
	return nil
}
