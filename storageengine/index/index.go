// Package index implements the per-column value -> set<base RID>
// mappings used for primary-key uniqueness and secondary lookups.
// Two implementations are provided behind a common interface: a plain
// hash map for point lookups, and a github.com/google/btree-backed
// ordered index for range scans (used by sum/sum_version over the
// primary key).
package index

import (
	"sort"

	"github.com/google/btree"
	"github.com/minacio00/gdb/storageengine/errs"
)

// Index maps column values to the set of base RIDs that currently
// carry that value. A unique index (the PK index always is one)
// rejects an Insert that would give a second RID the same value.
type Index interface {
	// Locate returns the base RIDs currently holding value.
	Locate(value int64) []int64
	// LocateRange returns the base RIDs whose value falls in [lo, hi].
	LocateRange(lo, hi int64) []int64
	// Insert records that rid now holds value. Returns
	// errs.ErrDuplicateKey if the index is unique and value is already
	// held by a different RID.
	Insert(value int64, rid int64) error
	// Delete removes the (value, rid) entry.
	Delete(value int64, rid int64)
	// Update moves rid from oldValue to newValue in one step.
	Update(oldValue, newValue int64, rid int64) error
	// Unique reports whether this index enforces one RID per value.
	Unique() bool
}

// --- hash-backed index -------------------------------------------------

type hashIndex struct {
	unique  bool
	entries map[int64]map[int64]struct{}
}

// NewHash returns a hash-backed Index. Pass unique=true for a
// primary-key-style index.
func NewHash(unique bool) Index {
	return &hashIndex{unique: unique, entries: make(map[int64]map[int64]struct{})}
}

func (h *hashIndex) Locate(value int64) []int64 {
	set, ok := h.entries[value]
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(set))
	for rid := range set {
		out = append(out, rid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *hashIndex) LocateRange(lo, hi int64) []int64 {
	var out []int64
	for value, set := range h.entries {
		if value < lo || value > hi {
			continue
		}
		for rid := range set {
			out = append(out, rid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *hashIndex) Insert(value int64, rid int64) error {
	if h.unique {
		if set, ok := h.entries[value]; ok {
			for existing := range set {
				if existing != rid {
					return errs.ErrDuplicateKey
				}
			}
		}
	}
	set, ok := h.entries[value]
	if !ok {
		set = make(map[int64]struct{})
		h.entries[value] = set
	}
	set[rid] = struct{}{}
	return nil
}

func (h *hashIndex) Delete(value int64, rid int64) {
	set, ok := h.entries[value]
	if !ok {
		return
	}
	delete(set, rid)
	if len(set) == 0 {
		delete(h.entries, value)
	}
}

func (h *hashIndex) Update(oldValue, newValue int64, rid int64) error {
	if oldValue == newValue {
		return nil
	}
	if err := h.Insert(newValue, rid); err != nil {
		return err
	}
	h.Delete(oldValue, rid)
	return nil
}

func (h *hashIndex) Unique() bool { return h.unique }

// --- btree-backed ordered index ----------------------------------------

// bucket is the btree.Item stored per distinct value: the value itself
// plus the set of base RIDs currently holding it.
type bucket struct {
	value int64
	rids  map[int64]struct{}
}

func (b *bucket) Less(than btree.Item) bool {
	return b.value < than.(*bucket).value
}

type orderedIndex struct {
	unique bool
	tree   *btree.BTree
}

// NewOrdered returns a github.com/google/btree-backed Index capable of
// efficient LocateRange.
func NewOrdered(unique bool) Index {
	return &orderedIndex{unique: unique, tree: btree.New(32)}
}

func (o *orderedIndex) find(value int64) *bucket {
	item := o.tree.Get(&bucket{value: value})
	if item == nil {
		return nil
	}
	return item.(*bucket)
}

func (o *orderedIndex) Locate(value int64) []int64 {
	b := o.find(value)
	if b == nil {
		return nil
	}
	out := make([]int64, 0, len(b.rids))
	for rid := range b.rids {
		out = append(out, rid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (o *orderedIndex) LocateRange(lo, hi int64) []int64 {
	var out []int64
	o.tree.AscendGreaterOrEqual(&bucket{value: lo}, func(item btree.Item) bool {
		b := item.(*bucket)
		if b.value > hi {
			return false
		}
		for rid := range b.rids {
			out = append(out, rid)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (o *orderedIndex) Insert(value int64, rid int64) error {
	b := o.find(value)
	if o.unique && b != nil {
		for existing := range b.rids {
			if existing != rid {
				return errs.ErrDuplicateKey
			}
		}
	}
	if b == nil {
		b = &bucket{value: value, rids: make(map[int64]struct{})}
		o.tree.ReplaceOrInsert(b)
	}
	b.rids[rid] = struct{}{}
	return nil
}

func (o *orderedIndex) Delete(value int64, rid int64) {
	b := o.find(value)
	if b == nil {
		return
	}
	delete(b.rids, rid)
	if len(b.rids) == 0 {
		o.tree.Delete(&bucket{value: value})
	}
}

func (o *orderedIndex) Update(oldValue, newValue int64, rid int64) error {
	if oldValue == newValue {
		return nil
	}
	if err := o.Insert(newValue, rid); err != nil {
		return err
	}
	o.Delete(oldValue, rid)
	return nil
}

func (o *orderedIndex) Unique() bool { return o.unique }
