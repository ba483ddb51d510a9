// Package page implements the fixed-capacity slotted container that
// backs one column of one table for one page number. A page is
// append-only: existing slots are only ever overwritten by the merge
// operation on a base page.
package page

import (
	"encoding/json"
	"fmt"

	"github.com/minacio00/gdb/storageengine/config"
)

// ID identifies a page by table name, physical column index, page
// number within that column, and whether it belongs to the base or
// tail region. It is comparable, so it can be used directly as a map
// key by the buffer pool's frame table.
type ID struct {
	Table  string
	Column int
	Number int
	Base   bool
}

// String renders the on-disk path for this page, relative to the
// table's directory: base/col_<i>_page_<n>.page.json or
// tail/col_<i>_page_<n>.page.json.
func (id ID) String() string {
	kind := "tail"
	if id.Base {
		kind = "base"
	}
	return fmt.Sprintf("%s/col_%d_page_%d%s", kind, id.Column, id.Number, config.PageFileSuffix)
}

// Page holds up to config.PageCapacity signed 64-bit slots plus a
// slot count. Slots are appended via Write; the only other mutation is
// Overwrite, reserved for merge writeback.
type Page struct {
	slots []int64
}

// New returns an empty page with capacity for config.PageCapacity
// slots.
func New() *Page {
	return &Page{slots: make([]int64, 0, config.PageCapacity)}
}

// HasCapacity reports whether one more slot can be written.
func (p *Page) HasCapacity() bool {
	return len(p.slots) < config.PageCapacity
}

// SlotCount returns the number of slots written so far.
func (p *Page) SlotCount() int {
	return len(p.slots)
}

// Write appends value to the page and returns its slot index, or
// false if the page is full.
func (p *Page) Write(value int64) (int, bool) {
	if !p.HasCapacity() {
		return 0, false
	}
	p.slots = append(p.slots, value)
	return len(p.slots) - 1, true
}

// Overwrite replaces the value at an existing slot. Reserved for
// merge's in-place rewrite of base user columns.
func (p *Page) Overwrite(slot int, value int64) error {
	if slot < 0 || slot >= len(p.slots) {
		return fmt.Errorf("page: overwrite slot %d out of range [0,%d)", slot, len(p.slots))
	}
	p.slots[slot] = value
	return nil
}

// Read returns the value at slot.
func (p *Page) Read(slot int) (int64, error) {
	if slot < 0 || slot >= len(p.slots) {
		return 0, fmt.Errorf("page: read slot %d out of range [0,%d)", slot, len(p.slots))
	}
	return p.slots[slot], nil
}

// wireFormat is the on-disk JSON shape: a slot count plus the slots
// actually written. Any stable encoding round-trips these two fields;
// JSON keeps the page files human-inspectable during development.
type wireFormat struct {
	SlotCount int     `json:"slot_count"`
	Slots     []int64 `json:"slots"`
}

// Serialize renders the page to its on-disk byte form.
func (p *Page) Serialize() ([]byte, error) {
	return json.Marshal(wireFormat{SlotCount: len(p.slots), Slots: p.slots})
}

// Deserialize reconstructs a page from bytes previously produced by
// Serialize. If the slot count recorded in the header exceeds the
// number of slots actually present (a half-flushed write), the page is
// truncated to the shorter, consistent length rather than failing;
// callers that care should compare against the header count to decide
// whether to report a warning.
func Deserialize(data []byte) (*Page, error) {
	var wf wireFormat
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("page: deserialize: %w", err)
	}
	n := wf.SlotCount
	if n > len(wf.Slots) {
		n = len(wf.Slots)
	}
	slots := make([]int64, n, config.PageCapacity)
	copy(slots, wf.Slots[:n])
	return &Page{slots: slots}, nil
}

// Truncated reports whether the header's declared slot count disagreed
// with the number of slots actually decoded, i.e. this page was
// recovered from a partial write.
func Truncated(data []byte) (bool, error) {
	var wf wireFormat
	if err := json.Unmarshal(data, &wf); err != nil {
		return false, fmt.Errorf("page: deserialize: %w", err)
	}
	return wf.SlotCount > len(wf.Slots), nil
}
