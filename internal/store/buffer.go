package store

import "sync"

// Buffer is a bounded ring decoupling the receive path from the
// database writer. When full, Push evicts the oldest entry instead of
// blocking: for market data a fresh snapshot is worth more than a
// backlog, and the receive path must never stall on the writer.
type Buffer[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	pushed  int64
	popped  int64
	dropped int64
}

// NewBuffer creates a buffer holding at most capacity items.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	b := &Buffer[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push adds an item, evicting the oldest when full. Returns false if
// the buffer is closed.
func (b *Buffer[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	if b.count == b.capacity {
		// Evict oldest
		var zero T
		b.buf[b.head] = zero
		b.head = (b.head + 1) % b.capacity
		b.count--
		b.dropped++
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.pushed++

	b.cond.Signal()
	return true
}

// Pop removes and returns the oldest item, blocking until one is
// available or the buffer is closed. Returns false once the buffer is
// closed and drained.
func (b *Buffer[T]) Pop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// TryPop removes the oldest item without blocking.
func (b *Buffer[T]) TryPop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// Drain removes up to max items (all items when max <= 0).
func (b *Buffer[T]) Drain(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n := b.count
	if max > 0 && max < n {
		n = max
	}
	out := make([]T, n)
	for i := range out {
		out[i] = b.popLocked()
	}
	return out
}

func (b *Buffer[T]) popLocked() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero // clear reference for GC
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.popped++
	return item
}

// Close closes the buffer. Push returns false afterwards; blocked Pop
// calls drain remaining items then return false.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

// Len returns the current number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// BufferStats contains buffer counters.
type BufferStats struct {
	Count    int
	Capacity int
	Pushed   int64
	Popped   int64
	Dropped  int64
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:    b.count,
		Capacity: b.capacity,
		Pushed:   b.pushed,
		Popped:   b.popped,
		Dropped:  b.dropped,
	}
}
