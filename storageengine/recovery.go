package storageengine

import (
	"fmt"

	"github.com/minacio00/gdb/storageengine/config"
	"github.com/minacio00/gdb/storageengine/page"
)

// pageReader is the subset of buffer.PageStore recovery needs: direct
// page reads that bypass the buffer pool, since recovery runs before
// the table's page directory (and therefore Table.readPhysical) is
// usable.
type pageReader interface {
	ReadPage(id page.ID) (*page.Page, error)
}

// Recover rebuilds the page directory, RID counters, and primary-key
// index for a table by replaying its on-disk pages. The deleted set is
// not persisted, so it is left empty. It is
// called once by Open for every table named in the database's
// metadata file, before the table is handed back to a caller.
//
// Both regions (base, tail) are scanned independently: for each page
// number starting at 0, every physical column's page is read; a page
// number is considered to not exist once the RID column's page for it
// is entirely empty. The region's page/slot bookkeeping is restored
// from the last non-empty page found.
func (t *Table) Recover(store pageReader) error {
	if err := t.recoverRegion(store, true); err != nil {
		return err
	}
	if err := t.recoverRegion(store, false); err != nil {
		return err
	}
	return nil
}

func (t *Table) recoverRegion(store pageReader, base bool) error {
	physical := t.physicalColumns()
	pageNumber := -1
	slotCount := 0
	var maxRid int64 = -1

	for n := 0; ; n++ {
		ridPage, err := store.ReadPage(page.ID{Table: t.name, Column: config.RIDColumn, Number: n, Base: base})
		if err != nil {
			return fmt.Errorf("table %s: recover page %d: %w", t.name, n, err)
		}
		if ridPage.SlotCount() == 0 {
			break
		}

		cols := make([]*page.Page, physical)
		cols[config.RIDColumn] = ridPage
		minSlots := ridPage.SlotCount()
		for c := 0; c < physical; c++ {
			if c == config.RIDColumn {
				continue
			}
			p, err := store.ReadPage(page.ID{Table: t.name, Column: c, Number: n, Base: base})
			if err != nil {
				return fmt.Errorf("table %s: recover page %d col %d: %w", t.name, n, c, err)
			}
			cols[c] = p
			if p.SlotCount() < minSlots {
				minSlots = p.SlotCount()
			}
		}

		for slot := 0; slot < minSlots; slot++ {
			rid, err := cols[config.RIDColumn].Read(slot)
			if err != nil {
				return fmt.Errorf("table %s: recover page %d slot %d: %w", t.name, n, slot, err)
			}

			locs := make([]pageLoc, physical)
			for c := 0; c < physical; c++ {
				locs[c] = pageLoc{pageNumber: n, slot: slot}
			}
			t.pageDirectory[rid] = locs
			if rid > maxRid {
				maxRid = rid
			}

			// On-disk pages carry no tombstone bit, so a record that
			// was deleted before the last close is indistinguishable
			// from a live one on replay and comes back into the PK
			// index.
			if base {
				key, err := cols[config.MetaColumns+t.keyIndex].Read(slot)
				if err != nil {
					return err
				}
				_ = t.pk.Insert(key, rid)
			}
		}

		pageNumber = n
		slotCount = minSlots
	}

	if base {
		t.basePageNumber, t.baseSlotCount = pageNumber, slotCount
		if maxRid >= 0 {
			t.nextBaseRID = maxRid + 1
		}
	} else {
		t.tailPageNumber, t.tailSlotCount = pageNumber, slotCount
		if maxRid >= 0 {
			t.nextTailRID = maxRid + 1
		}
	}
	return nil
}

