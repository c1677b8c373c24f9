package handle

import (
	"fmt"
	"sync"
)

// BlockSize is the number of handles per lazily-allocated block.
const BlockSize = 1024

// MaxBlocks bounds the table to ~4M live handles per process; exceeding it
// is a fatal condition in the framework's error design: there is no
// recovery, the caller gets an error and is expected to treat the process
// as unable to continue.
const MaxBlocks = 4096

// Table is the process-wide (or per-tree, see object.RootHelper) handle
// array. It is safe for concurrent use; callers that want batched,
// lock-free-ish allocation should keep their own small free list refilled
// from Reserve and returned through MarkFreed/Reclaim in bulk (see
// FreeList).
type Table struct {
	mu     sync.Mutex
	blocks [][]Handle
	free   int32 // head of the free list (handle.next chain), NoOix if empty
}

// NewTable constructs an empty handle table.
func NewTable() *Table {
	return &Table{free: NoOix}
}

// ErrTableFull is returned when the block-count limit has been exhausted.
type ErrTableFull struct{}

func (ErrTableFull) Error() string {
	return fmt.Sprintf("handle table: block limit (%d blocks x %d) exhausted", MaxBlocks, BlockSize)
}

func (t *Table) blockFor(oix int32) *Handle {
	b := oix / BlockSize
	i := oix % BlockSize
	return &t.blocks[b][i]
}

// growLocked appends one more block, initializing its handles into the
// free list. Caller must hold t.mu.
func (t *Table) growLocked() error {
	if len(t.blocks) >= MaxBlocks {
		return ErrTableFull{}
	}
	base := int32(len(t.blocks)) * BlockSize
	block := make([]Handle, BlockSize)
	for i := range block {
		oix := base + int32(i)
		block[i].Oix = oix
		block[i].next = t.free
		t.free = oix
	}
	t.blocks = append(t.blocks, block)
	return nil
}

// Reserve hands out n fresh or recycled handle oixs. Each returned handle
// has Ucnt left untouched (freshly grown handles start at Ucnt 0; recycled
// ones already carry the generation bumped by the prior Release) and
// Owner/Flags/Oid zeroed for the caller to fill in.
func (t *Table) Reserve(n int) ([]int32, error) {
	if n <= 0 {
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]int32, 0, n)
	for len(out) < n {
		if t.free == NoOix {
			if err := t.growLocked(); err != nil {
				// Return what we could reserve back to the free list so a
				// partial failure doesn't leak handles.
				for _, oix := range out {
					h := t.blockFor(oix)
					h.next = t.free
					t.free = oix
				}
				return nil, err
			}
		}
		oix := t.free
		h := t.blockFor(oix)
		t.free = h.next
		h.Owner = nil
		h.Oid = 0
		h.Flags = 0
		h.ObjectParent = NoOix
		h.RBParent = NoOix
		h.RBLeft = NoOix
		h.RBRight = NoOix
		h.FirstChild = NoOix
		out = append(out, oix)
	}
	return out, nil
}

// Release returns handles to the free list, bumping each one's generation
// counter so that any surviving (oix, ucnt) pair becomes stale (invariant 2
// of the data model: a handle's identity is never reused while live).
func (t *Table) Release(oixs []int32) {
	if len(oixs) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, oix := range oixs {
		h := t.blockFor(oix)
		h.Ucnt++
		h.Owner = nil
		h.next = t.free
		t.free = oix
	}
}

// MarkFreed bumps oix's generation counter and clears its owner, without
// returning it to the free list. Called the instant an object is
// destroyed, so a stale (oix, ucnt) pair goes unresolvable immediately —
// independent of when the oix actually makes it back onto the table's own
// free chain (see handle.FreeList, which caches freed oixs locally before
// flushing them back via Reclaim).
func (t *Table) MarkFreed(oix int32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.blockFor(oix)
	h.Ucnt++
	h.Owner = nil
}

// Reclaim pushes already-freed oixs onto the table's free list for reuse
// by Reserve. Unlike Release, it does not bump Ucnt: callers must have
// already done so (via MarkFreed) before an oix reaches Reclaim.
func (t *Table) Reclaim(oixs []int32) {
	if len(oixs) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, oix := range oixs {
		h := t.blockFor(oix)
		h.next = t.free
		t.free = oix
	}
}

// Lookup returns the handle at oix, or nil if oix was never allocated.
func (t *Table) Lookup(oix int32) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if oix < 0 || int(oix) >= len(t.blocks)*BlockSize {
		return nil
	}
	return t.blockFor(oix)
}

// Get resolves a full (oix, ucnt) identity, returning (handle, true) only
// when the handle is live and the generation matches (testable property 3
// / 4: stale references must fail).
func (t *Table) Get(id ID) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id.Oix < 0 || int(id.Oix) >= len(t.blocks)*BlockSize {
		return nil, false
	}
	h := t.blockFor(id.Oix)
	if h.free() || h.Ucnt != id.Ucnt {
		return nil, false
	}
	return h, true
}

// GetOix resolves a bare oix with no generation check, for addressing
// grammar that allows the ucnt suffix to be omitted. Returns (handle,
// true) as long as the oix is currently live, regardless of which
// generation it is on.
func (t *Table) GetOix(oix int32) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if oix < 0 || int(oix) >= len(t.blocks)*BlockSize {
		return nil, false
	}
	h := t.blockFor(oix)
	if h.free() {
		return nil, false
	}
	return h, true
}
