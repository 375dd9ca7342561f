package event

import "sync"

// Queue is an unbounded FIFO of events. Push and TryPop are safe for
// concurrent use; a live broker stream pushes fills while the engine pops.
type Queue struct {
	mu    sync.Mutex
	items []Event
	head  int
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends ev to the tail.
func (q *Queue) Push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
}

// TryPop removes and returns the head event. It never blocks; ok is false
// when the queue is empty.
func (q *Queue) TryPop() (ev Event, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return nil, false
	}
	ev = q.items[q.head]
	q.items[q.head] = nil
	q.head++

	// Reclaim the consumed prefix once the queue drains.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return ev, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
