package cmdcore

import (
	"slices"
	"sync"
)

type sessionQueue struct {
	mu    sync.Mutex
	items []*Session
}

func newSessionQueue() *sessionQueue {
	return &sessionQueue{}
}

// push appends s. When the queue was empty, onFirst runs before the lock
// is released.
func (q *sessionQueue) push(s *Session, onFirst func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, s)
	if len(q.items) == 1 {
		onFirst()
	}
}

func (q *sessionQueue) front() *Session {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// popFront removes s if it is at the front and then calls onPopped with
// whether more sessions remain, still holding the lock.
func (q *sessionQueue) popFront(s *Session, onPopped func(more bool)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 || q.items[0] != s {
		return false
	}

	q.items[0] = nil
	q.items = q.items[1:]
	onPopped(len(q.items) > 0)
	return true
}

func (q *sessionQueue) snapshot() []*Session {
	q.mu.Lock()
	defer q.mu.Unlock()

	return slices.Clone(q.items)
}

func (q *sessionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
