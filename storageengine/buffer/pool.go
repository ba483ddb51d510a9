// Package buffer implements the in-memory page cache sitting between
// the table and the on-disk page files: pin/unpin reference counts, a
// dirty flag per resident frame, LRU-ish eviction, and write-back on
// eviction or FlushAll.
package buffer

import (
	"container/list"
	"fmt"

	"github.com/minacio00/gdb/storageengine/errs"
	"github.com/minacio00/gdb/storageengine/page"
	"github.com/sirupsen/logrus"
)

// PageStore is the on-disk backing store a Pool loads misses from and
// writes dirty frames back to. The storageengine package's diskStore
// implements this so the pool never needs to know about table
// directories or file names directly.
type PageStore interface {
	ReadPage(id page.ID) (*page.Page, error)
	WritePage(id page.ID, p *page.Page) error
}

type frame struct {
	id       page.ID
	page     *page.Page
	pinCount int
	dirty    bool
	elem     *list.Element
}

// Pool is a fixed-capacity buffer pool keyed by page.ID.
type Pool struct {
	capacity int
	store    PageStore
	log      *logrus.Logger

	frames map[page.ID]*frame
	// lru holds page.ID values; the front is most recently used, the
	// back is least recently used.
	lru *list.List
}

// New returns a buffer pool with room for capacity resident frames,
// backed by store.
func New(capacity int, store PageStore, log *logrus.Logger) *Pool {
	if log == nil {
		log = logrus.New()
	}
	return &Pool{
		capacity: capacity,
		store:    store,
		log:      log,
		frames:   make(map[page.ID]*frame),
		lru:      list.New(),
	}
}

// Handle is a pinned, borrowed view of a resident page. It is only
// valid while pinned; callers must pair every Get/New with exactly one
// Unpin, including on error paths.
type Handle struct {
	pool     *Pool
	id       page.ID
	frame    *frame
	unpinned bool
}

// Page returns the underlying page for reads and writes. The handle's
// owner is responsible for calling Unpin(true) after any write.
func (h *Handle) Page() *page.Page {
	return h.frame.page
}

// Unpin decrements the handle's pin count and marks the frame dirty if
// dirty is true. Unpinning an already-unpinned handle is a no-op, not
// an error, so defer-based release code never has to track whether an
// earlier explicit Unpin already ran.
func (h *Handle) Unpin(dirty bool) {
	if h.unpinned {
		return
	}
	h.unpinned = true
	h.pool.unpin(h.frame, dirty)
}

func (p *Pool) touch(f *frame) {
	if f.elem != nil {
		p.lru.MoveToFront(f.elem)
		return
	}
	f.elem = p.lru.PushFront(f.id)
}

func (p *Pool) unpin(f *frame, dirty bool) {
	if dirty {
		f.dirty = true
	}
	if f.pinCount > 0 {
		f.pinCount--
	}
}

// Get returns a pinned handle for id, loading it from the backing
// store on a cache miss. If the pool is full and no frame can be
// evicted to make room, it returns errs.ErrBufferPoolExhausted.
func (p *Pool) Get(id page.ID) (*Handle, error) {
	if f, ok := p.frames[id]; ok {
		f.pinCount++
		p.touch(f)
		return &Handle{pool: p, id: id, frame: f}, nil
	}

	if err := p.makeRoom(); err != nil {
		return nil, err
	}

	pg, err := p.store.ReadPage(id)
	if err != nil {
		return nil, fmt.Errorf("buffer: load page %s: %w", id, err)
	}

	f := &frame{id: id, page: pg, pinCount: 1}
	p.frames[id] = f
	p.touch(f)
	return &Handle{pool: p, id: id, frame: f}, nil
}

// New allocates a brand-new, empty, pinned page resident in the pool
// and marks it dirty. It fails the same way Get does if no frame is
// available.
func (p *Pool) New(id page.ID) (*Handle, error) {
	if _, exists := p.frames[id]; exists {
		return nil, fmt.Errorf("buffer: page %s already resident", id)
	}
	if err := p.makeRoom(); err != nil {
		return nil, err
	}
	f := &frame{id: id, page: page.New(), pinCount: 1, dirty: true}
	p.frames[id] = f
	p.touch(f)
	return &Handle{pool: p, id: id, frame: f}, nil
}

// makeRoom evicts frames until there is space for one more resident
// page, or returns ErrBufferPoolExhausted if every frame is pinned.
func (p *Pool) makeRoom() error {
	if len(p.frames) < p.capacity {
		return nil
	}
	return p.evictOne()
}

// evictOne removes one unpinned frame from the pool, flushing it first
// if dirty. The least recently used clean, unpinned frame is chosen
// first; a dirty frame is evicted only when no unpinned frame is
// clean. Eviction is therefore not strictly LRU: a clean frame can be
// evicted ahead of a dirty frame that was used less recently.
func (p *Pool) evictOne() error {
	victim := p.pickVictim(false) // clean-first pass
	if victim == nil {
		victim = p.pickVictim(true) // fall back to any unpinned frame
	}
	if victim == nil {
		return errs.ErrBufferPoolExhausted
	}

	if victim.dirty {
		if err := p.store.WritePage(victim.id, victim.page); err != nil {
			return fmt.Errorf("buffer: evict flush %s: %w", victim.id, err)
		}
	}

	p.lru.Remove(victim.elem)
	delete(p.frames, victim.id)
	return nil
}

// pickVictim scans from the back of the LRU list (least recently
// used) forward. With allowDirty false it only returns a clean,
// unpinned frame; with it true it returns the least recently used
// unpinned frame regardless of dirtiness.
func (p *Pool) pickVictim(allowDirty bool) *frame {
	for e := p.lru.Back(); e != nil; e = e.Prev() {
		id := e.Value.(page.ID)
		f := p.frames[id]
		if f.pinCount != 0 {
			continue
		}
		if !allowDirty && f.dirty {
			continue
		}
		return f
	}
	return nil
}

// FlushAll writes every dirty resident page back to the store and
// clears their dirty flags. Pinned pages are flushed too; FlushAll
// does not require pages to be unpinned first.
func (p *Pool) FlushAll() error {
	for id, f := range p.frames {
		if !f.dirty {
			continue
		}
		if err := p.store.WritePage(id, f.page); err != nil {
			return fmt.Errorf("buffer: flush %s: %w", id, err)
		}
		f.dirty = false
	}
	return nil
}

// Resident reports whether id currently has a frame in the pool, for
// tests that want to assert on eviction behavior without reaching into
// internals.
func (p *Pool) Resident(id page.ID) bool {
	_, ok := p.frames[id]
	return ok
}

// Size returns the number of frames currently resident.
func (p *Pool) Size() int {
	return len(p.frames)
}
