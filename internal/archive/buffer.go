package archive

import (
	"sync"
)

// Buffer is a FIFO of Records that grows on demand up to a limit. Pushing
// into a full Buffer evicts the oldest record.
type Buffer struct {
	mu     sync.Mutex
	items  []Record
	head   int
	count  int
	limit  int
	closed bool
	ready  chan struct{}

	pushed  int64
	drained int64
	dropped int64
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Len     int
	Cap     int
	Limit   int
	Pushed  int64
	Drained int64
	Dropped int64
}

// NewBuffer creates a Buffer holding at most limit records.
func NewBuffer(limit int) *Buffer {
	if limit < 1 {
		limit = 1
	}
	initial := min(limit, 64)
	return &Buffer{
		items: make([]Record, initial),
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// Push appends rec. It returns false once the buffer is closed.
func (b *Buffer) Push(rec Record) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	if b.count == len(b.items) {
		if len(b.items) < b.limit {
			b.resize(min(2*len(b.items), b.limit))
		} else {
			// Full: evict the oldest.
			b.items[b.head] = Record{}
			b.head = (b.head + 1) % len(b.items)
			b.count--
			b.dropped++
		}
	}

	b.items[(b.head+b.count)%len(b.items)] = rec
	b.count++
	b.pushed++

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return true
}

// Drain removes up to max records, oldest first. max <= 0 drains everything.
func (b *Buffer) Drain(max int) []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}

	out := make([]Record, n)
	for i := range out {
		out[i] = b.items[b.head]
		b.items[b.head] = Record{}
		b.head = (b.head + 1) % len(b.items)
	}
	b.count -= n
	b.drained += int64(n)

	return out
}

// Ready is signalled after a Push. Receivers should Drain until empty.
func (b *Buffer) Ready() <-chan struct{} {
	return b.ready
}

// Close stops further pushes. Buffered records can still be drained.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns buffer statistics.
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Len:     b.count,
		Cap:     len(b.items),
		Limit:   b.limit,
		Pushed:  b.pushed,
		Drained: b.drained,
		Dropped: b.dropped,
	}
}

// resize must be called with mu held.
func (b *Buffer) resize(size int) {
	items := make([]Record, size)
	for i := 0; i < b.count; i++ {
		items[i] = b.items[(b.head+i)%len(b.items)]
	}
	b.items = items
	b.head = 0
}
