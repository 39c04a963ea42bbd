// Pipeline moves decoded pulse intervals from the acquisition read loop
// to a slower consumer as ordered, timer-paced batches.
package pipeline

import (
	"sync"
	"time"
)

// Item is one decoded interval value together with the host-side time at
// which it entered the queue.
type Item struct {
	Value   uint32
	Arrival time.Time
}

// Queue is a FIFO hand-off between the acquisition goroutine (single
// producer) and the batch dispatcher (single consumer). Push is safe to
// call concurrently with DrainAll. A capacity of zero means the queue
// grows without bound; a positive capacity bounds memory by discarding
// the oldest unread items on overflow, counted by Dropped. Push never
// blocks either way.
type Queue struct {
	mu       sync.Mutex
	items    []Item
	capacity int
	dropped  uint64
}

// NewQueue creates a queue. capacity <= 0 selects the unbounded mode.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{capacity: capacity}
}

// Push appends one item, discarding the oldest queued item first if the
// queue is bounded and full.
func (q *Queue) Push(it Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.items) >= q.capacity {
		drop := len(q.items) - q.capacity + 1
		q.items = append(q.items[:0], q.items[drop:]...)
		q.dropped += uint64(drop)
	}
	q.items = append(q.items, it)
}

// DrainAll removes and returns every queued item in insertion order.
// Ownership of the returned slice passes to the caller. Returns nil when
// the queue is empty.
func (q *Queue) DrainAll() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len reports the number of items currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped reports how many items the bounded mode has discarded since
// the queue was created.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
