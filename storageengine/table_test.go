package storageengine

import (
	"testing"

	"github.com/minacio00/gdb/storageengine/buffer"
	"github.com/minacio00/gdb/storageengine/errs"
	"github.com/minacio00/gdb/storageengine/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	pages map[page.ID][]byte
}

func newMemStore() *memStore {
	return &memStore{pages: make(map[page.ID][]byte)}
}

func (m *memStore) ReadPage(id page.ID) (*page.Page, error) {
	data, ok := m.pages[id]
	if !ok {
		return page.New(), nil
	}
	return page.Deserialize(data)
}

func (m *memStore) WritePage(id page.ID, p *page.Page) error {
	data, err := p.Serialize()
	if err != nil {
		return err
	}
	m.pages[id] = data
	return nil
}

func newTestTable(numColumns, keyIndex int) *Table {
	pool := buffer.New(64, newMemStore(), nil)
	return newTable("t", numColumns, keyIndex, pool, nil)
}

func p(v int64) *int64 { return &v }

func TestInsertAndSelectNewest(t *testing.T) {
	tbl := newTestTable(3, 0)
	rid, err := tbl.Insert([]int64{1, 100, 200})
	require.NoError(t, err)

	got, err := tbl.Compose(rid, []int{0, 1, 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 100, 200}, got)
}

func TestInsertDuplicateKeyRejected(t *testing.T) {
	tbl := newTestTable(2, 0)
	_, err := tbl.Insert([]int64{1, 10})
	require.NoError(t, err)
	_, err = tbl.Insert([]int64{1, 20})
	assert.ErrorIs(t, err, errs.ErrDuplicateKey)
}

func TestUpdateCreatesTailAndComposeLayersIt(t *testing.T) {
	tbl := newTestTable(3, 0)
	_, err := tbl.Insert([]int64{1, 100, 200})
	require.NoError(t, err)

	require.NoError(t, tbl.Update(1, []*int64{nil, p(999), nil}))

	rids, err := tbl.Locate(1, 0)
	require.NoError(t, err)
	require.Len(t, rids, 1)
	rid := rids[0]

	got, err := tbl.Compose(rid, []int{0, 1, 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 999, 200}, got)
}

func TestUpdateKeyColumnRejected(t *testing.T) {
	tbl := newTestTable(2, 0)
	_, err := tbl.Insert([]int64{1, 10})
	require.NoError(t, err)
	err = tbl.Update(1, []*int64{p(2), nil})
	assert.ErrorIs(t, err, errs.ErrInvalidUpdate)
}

func TestComposeRelativeVersionsWalkHistory(t *testing.T) {
	tbl := newTestTable(2, 0)
	_, err := tbl.Insert([]int64{1, 10})
	require.NoError(t, err)
	require.NoError(t, tbl.Update(1, []*int64{nil, p(20)}))
	require.NoError(t, tbl.Update(1, []*int64{nil, p(30)}))

	rids, _ := tbl.Locate(1, 0)
	rid := rids[0]

	newest, err := tbl.Compose(rid, []int{1}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{30}, newest)

	oneBack, err := tbl.Compose(rid, []int{1}, -1)
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, oneBack)

	base, err := tbl.Compose(rid, []int{1}, -2)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, base)

	// clamps beyond the start of history
	clamped, err := tbl.Compose(rid, []int{1}, -100)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, clamped)
}

func TestDeleteRemovesFromIndexAndComposeFails(t *testing.T) {
	tbl := newTestTable(2, 0)
	rid, err := tbl.Insert([]int64{1, 10})
	require.NoError(t, err)

	require.NoError(t, tbl.Delete(1))
	_, err = tbl.Compose(rid, []int{1}, 0)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = tbl.Locate(1, 0)
	require.NoError(t, err)
	rids, _ := tbl.Locate(1, 0)
	assert.Empty(t, rids)
}

func TestCreateIndexThenLocateByNonKeyColumn(t *testing.T) {
	tbl := newTestTable(2, 0)
	_, err := tbl.Insert([]int64{1, 500})
	require.NoError(t, err)
	_, err = tbl.Insert([]int64{2, 500})
	require.NoError(t, err)

	require.NoError(t, tbl.CreateIndex(1))
	rids, err := tbl.Locate(500, 1)
	require.NoError(t, err)
	assert.Len(t, rids, 2)
}

func TestLocateWithoutIndexFails(t *testing.T) {
	tbl := newTestTable(2, 0)
	_, err := tbl.Insert([]int64{1, 500})
	require.NoError(t, err)
	_, err = tbl.Locate(500, 1)
	assert.ErrorIs(t, err, errs.ErrNoIndex)
}

func TestMergeCollapsesHistoryIntoBase(t *testing.T) {
	tbl := newTestTable(2, 0)
	rid, err := tbl.Insert([]int64{1, 10})
	require.NoError(t, err)
	require.NoError(t, tbl.Update(1, []*int64{nil, p(20)}))
	require.NoError(t, tbl.Update(1, []*int64{nil, p(30)}))

	require.NoError(t, tbl.Merge())

	got, err := tbl.Compose(rid, []int{1}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{30}, got)

	indirection, err := tbl.readMeta(rid, 0)
	require.NoError(t, err)
	assert.Equal(t, rid, indirection)
}

func TestPageRolloverAcrossManyInserts(t *testing.T) {
	tbl := newTestTable(1, 0)
	for i := int64(0); i < 1200; i++ {
		_, err := tbl.Insert([]int64{i})
		require.NoError(t, err)
	}
	assert.True(t, tbl.basePageNumber >= 2)

	rids, err := tbl.Locate(777, 0)
	require.NoError(t, err)
	require.Len(t, rids, 1)
	got, err := tbl.Compose(rids[0], []int{0}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{777}, got)
}
