// Package fifo is a mutex-guarded doubly linked list queue. Despite
// its source file's name, fifo_mcas_adt.c is itself, by its own
// top-of-file comment, "a blocking pthreaded queue and not even
// optimized" rather than the lock-free CAS design its header
// describes — the lock-free queue that file was meant to become was
// never finished. This package keeps that as what it is: a simple,
// correct, mutex-guarded stand-in, not a lock-free structure.
package fifo

import "sync"

type node[V any] struct {
	v    V
	prev *node[V]
	next *node[V]
}

// Queue is a FIFO queue of V, safe for concurrent use. The zero value
// is not ready to use; call New.
type Queue[V any] struct {
	mu   sync.Mutex
	head *node[V]
	tail *node[V]
	len  int
}

// New returns an empty Queue.
func New[V any]() *Queue[V] {
	return &Queue[V]{}
}

// Enqueue adds v at the head of the queue. It corresponds to
// osi_cas_fifo_enqueue's blocking-queue branch.
func (q *Queue[V]) Enqueue(v V) {
	n := &node[V]{v: v}

	q.mu.Lock()
	defer q.mu.Unlock()

	n.next = q.head
	if q.head == nil {
		q.tail = n
	} else {
		q.head.prev = n
	}
	q.head = n
	q.len++
}

// Dequeue removes and returns the value at the tail of the queue,
// reporting false if the queue is empty. It corresponds to the
// dequeue side of the same blocking-queue implementation.
func (q *Queue[V]) Dequeue() (v V, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.tail
	if n == nil {
		return v, false
	}

	q.tail = n.prev
	if q.tail == nil {
		q.head = nil
	} else {
		q.tail.next = nil
	}
	q.len--
	return n.v, true
}

// Len returns the number of values currently queued.
func (q *Queue[V]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len
}
