package storageengine

import (
	"fmt"

	"github.com/minacio00/gdb/storageengine/config"
	"github.com/minacio00/gdb/storageengine/errs"
)

// maxChainWalk bounds the number of tail hops Compose will follow
// before giving up. A correctly functioning table never approaches
// this; it exists only to turn a corrupted indirection cycle into an
// error instead of an infinite loop.
const maxChainWalk = 1_000_000

// Compose materializes the values of columns for the base record rid
// as of version steps back from the newest version (0 = newest, -1 =
// one update earlier, and so on). Versions beyond the start of the
// record's history clamp to the oldest available version (the base
// row itself).
//
// The walk starts at the record's current INDIRECTION head and
// follows tail pointers toward the base, counting hops. The newest
// `-steps` tails (clamped to the full chain) are then left out
// entirely, and every older tail still in scope is layered onto the
// base row oldest-to-newest, applying each one's SCHEMA mask.
func (t *Table) Compose(rid int64, columns []int, steps int) ([]int64, error) {
	if t.deleted.Contains(uint32(rid)) {
		return nil, fmt.Errorf("table %s: rid %d: %w", t.name, rid, errs.ErrNotFound)
	}
	if steps > 0 {
		steps = 0
	}

	head, err := t.readMeta(rid, config.IndirectionColumn)
	if err != nil {
		return nil, err
	}

	// Walk the chain from head back toward the base, collecting every
	// RID visited (head first). chain[i] is i hops back from newest.
	chain := make([]int64, 0, 8)
	cursor := head
	for hops := 0; ; hops++ {
		if hops > maxChainWalk {
			return nil, fmt.Errorf("table %s: rid %d: indirection chain exceeds %d hops", t.name, rid, maxChainWalk)
		}
		chain = append(chain, cursor)
		if cursor == rid {
			break
		}
		next, err := t.readMeta(cursor, config.IndirectionColumn)
		if err != nil {
			return nil, err
		}
		cursor = next
	}

	// skip is how many of the newest tails to leave out entirely;
	// clamp beyond the start of history to "skip everything", landing
	// on the base row alone.
	skip := -steps
	if skip > len(chain)-1 {
		skip = len(chain) - 1
	}

	values := make([]int64, len(columns))
	for i, c := range columns {
		v, err := t.readUser(rid, c)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	// Apply the surviving tails oldest-to-newest: chain[len(chain)-2]
	// (the oldest tail, just above the base) down to chain[skip] (the
	// newest one still in scope), so a newer write of the same column
	// wins over an older one.
	for i := len(chain) - 2; i >= skip; i-- {
		tailRid := chain[i]
		if tailRid == rid {
			continue // the base row itself, already the starting point
		}
		mask, err := t.readMeta(tailRid, config.SchemaColumn)
		if err != nil {
			return nil, err
		}
		for idx, c := range columns {
			if mask&(1<<uint(c)) == 0 {
				continue
			}
			v, err := t.readUser(tailRid, c)
			if err != nil {
				return nil, err
			}
			values[idx] = v
		}
	}

	return values, nil
}
