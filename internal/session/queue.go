package session

import "sync"

// fifo is an unbounded single-consumer queue. push never blocks, so provider
// callbacks and commits can hand work over while other locks are held.
type fifo[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{}
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{signal: make(chan struct{}, 1)}
}

// push appends item; it reports false once the queue is closed.
func (q *fifo[T]) push(item T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.wake()
	return true
}

// pop blocks until an item is available. After close it keeps returning the
// remaining items and then reports false.
func (q *fifo[T]) pop() (T, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, false
		}
		q.mu.Unlock()

		<-q.signal
	}
}

func (q *fifo[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wake()
}

func (q *fifo[T]) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
