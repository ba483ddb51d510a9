// Package query provides the caller-facing façade over a
// storageengine.Table: the handful of relational verbs a client
// actually issues (insert, select, update, delete, sum), each
// expressed in terms of a primary key rather than raw RIDs.
package query

import (
	"fmt"

	"github.com/minacio00/gdb/storageengine"
	"github.com/minacio00/gdb/storageengine/errs"
)

// Query wraps one table and exposes its CRUD and aggregate verbs.
type Query struct {
	table *storageengine.Table
}

// New returns a Query façade over table.
func New(table *storageengine.Table) *Query {
	return &Query{table: table}
}

// Insert creates a new record. values must have exactly
// table.NumColumns() entries, in column order.
func (q *Query) Insert(values []int64) (int64, error) {
	return q.table.Insert(values)
}

// Select returns the newest version of the record(s) identified by
// key on the lookup column, projected onto columns.
func (q *Query) Select(key int64, lookupColumn int, columns []int) ([]storageengine.Record, error) {
	return q.SelectVersion(key, lookupColumn, columns, 0)
}

// SelectVersion is Select with an explicit relative version: 0 is the
// newest version, -1 is one update before that, and so on. A version
// older than the record's full history clamps to the base row.
func (q *Query) SelectVersion(key int64, lookupColumn int, columns []int, relativeVersion int) ([]storageengine.Record, error) {
	rids, err := q.table.Locate(key, lookupColumn)
	if err != nil {
		return nil, err
	}
	if len(rids) == 0 {
		return nil, fmt.Errorf("query: key %d: %w", key, errs.ErrNotFound)
	}

	out := make([]storageengine.Record, 0, len(rids))
	for _, rid := range rids {
		vals, err := q.table.Compose(rid, columns, relativeVersion)
		if err != nil {
			return nil, err
		}
		keyVal, err := q.table.Compose(rid, []int{q.table.KeyIndex()}, relativeVersion)
		if err != nil {
			return nil, err
		}
		out = append(out, storageengine.Record{RID: rid, Key: keyVal[0], Columns: vals})
	}
	return out, nil
}

// Update applies a cumulative update to the record with the given
// key. newValues[i] == nil means "leave column i unchanged"; the key
// column's entry must be nil.
func (q *Query) Update(key int64, newValues []*int64) error {
	return q.table.Update(key, newValues)
}

// Delete removes the record with the given key.
func (q *Query) Delete(key int64) error {
	return q.table.Delete(key)
}

// Sum returns the sum of column over every live record whose key
// falls in [lo, hi], at the newest version.
func (q *Query) Sum(lo, hi int64, column int) (int64, error) {
	return q.SumVersion(lo, hi, column, 0)
}

// SumVersion is Sum at an explicit relative version.
func (q *Query) SumVersion(lo, hi int64, column int, relativeVersion int) (int64, error) {
	rids := q.table.LocateRangeByKey(lo, hi)
	var total int64
	for _, rid := range rids {
		vals, err := q.table.Compose(rid, []int{column}, relativeVersion)
		if err != nil {
			return 0, err
		}
		total += vals[0]
	}
	return total, nil
}
