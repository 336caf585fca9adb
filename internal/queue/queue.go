// Package queue is the blocking FIFO that hands cut audio chunks from
// session goroutines to the translation worker pool. Adapted from the
// teacher's RecordingSession.chunks slice (internal/session/recording.go),
// which the old ticker-driven processQueue polled; here, a sync.Cond lets
// idle workers block instead of poll.
package queue

import (
	"sync"

	"speechbridge/internal/recognizer"
)

// Queue is an unbounded, mutex-and-condvar-guarded FIFO of translation
// requests.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []recognizer.TranslationRequest
	closed bool
}

// New returns an empty, open Queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends req to the tail of the queue and wakes one blocked
// worker, if any are waiting.
func (q *Queue) Enqueue(req recognizer.TranslationRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, req)
	q.cond.Signal()
}

// Dequeue blocks until an item is available or the queue is closed. ok is
// false only once the queue is closed and drained.
func (q *Queue) Dequeue() (req recognizer.TranslationRequest, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return recognizer.TranslationRequest{}, false
	}
	req = q.items[0]
	q.items = q.items[1:]
	return req, true
}

// Close marks the queue closed and wakes every blocked worker so they can
// exit. Items already queued are still handed out by Dequeue until the
// queue is empty; Enqueue calls made after Close are ignored.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len reports how many requests are currently queued, for diagnostics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
