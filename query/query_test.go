package query

import (
	"os"
	"testing"

	"github.com/minacio00/gdb/storageengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*storageengine.Database, *storageengine.Table) {
	dir, err := os.MkdirTemp("", "gdb-query-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := storageengine.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tbl, err := db.CreateTable("accounts", 3, 0)
	require.NoError(t, err)
	return db, tbl
}

func ptr(v int64) *int64 { return &v }

func TestInsertAndSelectNewest(t *testing.T) {
	_, tbl := openTestDB(t)
	q := New(tbl)

	_, err := q.Insert([]int64{1, 100, 0})
	require.NoError(t, err)

	recs, err := q.Select(1, 0, []int{0, 1, 2})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []int64{1, 100, 0}, recs[0].Columns)
}

func TestUpdateThenSelectVersions(t *testing.T) {
	_, tbl := openTestDB(t)
	q := New(tbl)

	_, err := q.Insert([]int64{1, 100, 0})
	require.NoError(t, err)
	require.NoError(t, q.Update(1, []*int64{nil, ptr(200), nil}))
	require.NoError(t, q.Update(1, []*int64{nil, ptr(300), nil}))

	newest, err := q.SelectVersion(1, 0, []int{1}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{300}, newest[0].Columns)

	oneBack, err := q.SelectVersion(1, 0, []int{1}, -1)
	require.NoError(t, err)
	assert.Equal(t, []int64{200}, oneBack[0].Columns)
}

func TestSumAcrossKeyRange(t *testing.T) {
	_, tbl := openTestDB(t)
	q := New(tbl)

	for i := int64(1); i <= 5; i++ {
		_, err := q.Insert([]int64{i, i * 10, 0})
		require.NoError(t, err)
	}

	total, err := q.Sum(2, 4, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 20+30+40, total)
}

func TestDeleteRemovesRecord(t *testing.T) {
	_, tbl := openTestDB(t)
	q := New(tbl)

	_, err := q.Insert([]int64{1, 100, 0})
	require.NoError(t, err)
	require.NoError(t, q.Delete(1))

	_, err = q.Select(1, 0, []int{1})
	assert.Error(t, err)
}
