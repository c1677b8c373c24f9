package handle

// FreeList is a per-tree private cache of reserved-but-unused handle oixs.
// It exists so that common object new/delete churn inside one thread's
// tree doesn't contend the process-global Table lock on every allocation:
// it batch-refills from the Table when empty and batch-returns when it
// grows past twice the current refill size. Batch size grows geometrically
// (capped) so short-lived threads with few objects stay cheap.
type FreeList struct {
	table *Table
	slots []int32

	batch    int
	minBatch int
	maxBatch int
}

// NewFreeList creates a free list refilling in batches of minBatch,
// doubling on repeated empties up to maxBatch.
func NewFreeList(t *Table, minBatch, maxBatch int) *FreeList {
	if minBatch <= 0 {
		minBatch = 8
	}
	if maxBatch < minBatch {
		maxBatch = 256
	}
	return &FreeList{table: t, batch: minBatch, minBatch: minBatch, maxBatch: maxBatch}
}

// Take returns one fresh oix, refilling from the table in batches as
// needed.
func (f *FreeList) Take() (int32, error) {
	if len(f.slots) == 0 {
		got, err := f.table.Reserve(f.batch)
		if err != nil {
			return NoOix, err
		}
		f.slots = append(f.slots, got...)
		if f.batch < f.maxBatch {
			f.batch *= 2
			if f.batch > f.maxBatch {
				f.batch = f.maxBatch
			}
		}
	}
	n := len(f.slots) - 1
	oix := f.slots[n]
	f.slots = f.slots[:n]
	return oix, nil
}

// Give marks oix freed immediately — bumping its generation counter so any
// surviving (oix, ucnt) pair goes stale right away — then caches it
// locally, batch-flushing to the table's global free list once the cache
// grows past twice the current refill size (so a burst of deletes doesn't
// hoard handles other threads need).
func (f *FreeList) Give(oix int32) {
	f.table.MarkFreed(oix)
	f.slots = append(f.slots, oix)
	if len(f.slots) > 2*f.batch {
		flush := len(f.slots) - f.batch
		f.table.Reclaim(f.slots[:flush])
		f.slots = f.slots[flush:]
	}
}

// Drain returns every cached oix back to the table's free list; used when
// a tree (and its root helper) is torn down. The generation bump already
// happened at Give time, so this only needs to make the oixs reusable.
func (f *FreeList) Drain() {
	if len(f.slots) == 0 {
		return
	}
	f.table.Reclaim(f.slots)
	f.slots = nil
}
