package pipeline

// ROBEntry tracks one in-flight instance.
type ROBEntry struct {
	ID InstanceID
	// Busy is set until the result is written back.
	Busy bool
	// Valid is cleared for entries that must never commit.
	Valid bool
	// Speculative is set while an older branch has not committed.
	Speculative bool
	// ReadyCycle is the cycle writeback cleared Busy.
	ReadyCycle uint64
}

// ReorderBuffer is a bounded circular FIFO of entries in fetch order.
type ReorderBuffer struct {
	entries []ROBEntry
	head    int
	count   int
}

// NewReorderBuffer creates an empty buffer with the given capacity.
func NewReorderBuffer(size int) *ReorderBuffer {
	return &ReorderBuffer{entries: make([]ROBEntry, size)}
}

// Len returns the number of occupied entries.
func (r *ReorderBuffer) Len() int {
	return r.count
}

// Cap returns the capacity.
func (r *ReorderBuffer) Cap() int {
	return len(r.entries)
}

// Full reports whether no entry can be allocated.
func (r *ReorderBuffer) Full() bool {
	return r.count == len(r.entries)
}

// push appends an entry at the tail and returns its slot.
func (r *ReorderBuffer) push(e ROBEntry) int {
	slot := (r.head + r.count) % len(r.entries)
	r.entries[slot] = e
	r.count++
	return slot
}

// Head returns the oldest entry.
func (r *ReorderBuffer) Head() (*ROBEntry, bool) {
	if r.count == 0 {
		return nil, false
	}
	return &r.entries[r.head], true
}

func (r *ReorderBuffer) pop() {
	r.entries[r.head] = ROBEntry{}
	r.head = (r.head + 1) % len(r.entries)
	r.count--
}

// At returns the entry in slot.
func (r *ReorderBuffer) At(slot int) *ROBEntry {
	return &r.entries[slot]
}

// Entries returns the occupied entries oldest first.
func (r *ReorderBuffer) Entries() []ROBEntry {
	out := make([]ROBEntry, 0, r.count)
	r.each(func(e *ROBEntry) { out = append(out, *e) })
	return out
}

func (r *ReorderBuffer) each(fn func(e *ROBEntry)) {
	for i := 0; i < r.count; i++ {
		fn(&r.entries[(r.head+i)%len(r.entries)])
	}
}

func (r *ReorderBuffer) clear() {
	for i := range r.entries {
		r.entries[i] = ROBEntry{}
	}
	r.head = 0
	r.count = 0
}

// Clone returns a deep copy.
func (r *ReorderBuffer) Clone() *ReorderBuffer {
	return &ReorderBuffer{
		entries: append([]ROBEntry(nil), r.entries...),
		head:    r.head,
		count:   r.count,
	}
}
