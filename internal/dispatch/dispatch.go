// Package dispatch runs the worker pool that pulls cut audio chunks off
// the translation queue and feeds them to a recognizer. It sits between
// internal/queue and internal/recognizer (and so cannot live inside
// either package without an import cycle, since the queue's item type is
// a recognizer.TranslationRequest).
package dispatch

import (
	"context"
	"log"
	"sync"

	"speechbridge/internal/apperr"
	"speechbridge/internal/queue"
	"speechbridge/internal/recognizer"
	"speechbridge/internal/sessionstore"
)

// Pool runs workerCount goroutines, each pulling requests off q and
// running them through rec, emitting every resulting segment to emit.
type Pool struct {
	q     *queue.Queue
	store *sessionstore.Store
	rec   recognizer.Recognizer
	emit  func(recognizer.TranslationResponse)

	wg sync.WaitGroup
}

// NewPool constructs a Pool. Call Start to launch its workers. store is
// consulted before every dispatch so a request for a session that has
// already been finalized (and so is no longer valid) is dropped rather
// than run through the recognizer.
func NewPool(q *queue.Queue, store *sessionstore.Store, rec recognizer.Recognizer, emit func(recognizer.TranslationResponse)) *Pool {
	return &Pool{q: q, store: store, rec: rec, emit: emit}
}

// Start launches workerCount worker goroutines. Workers run until q is
// closed.
func (p *Pool) Start(ctx context.Context, workerCount int) {
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
}

// Wait blocks until every worker goroutine has returned, i.e. until the
// queue has been closed and drained.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		req, ok := p.q.Dequeue()
		if !ok {
			return
		}
		p.handle(ctx, req)
	}
}

// handle runs one request through the recognizer. If the recognizer
// returns an error, or emits nothing at all, a synthetic empty final
// segment is emitted in its place so the session's completion condition
// (which requires a final response for every sequence number through
// end-of-stream) can still be satisfied instead of stalling forever on a
// recognizer failure or a chunk that was pure silence.
func (p *Pool) handle(ctx context.Context, req recognizer.TranslationRequest) {
	var valid bool
	err := p.store.Read(req.SessionID, func(rec *sessionstore.Record) error {
		valid = rec.Valid
		return nil
	})
	if apperr.KindOf(err) == apperr.KindNotFound {
		log.Printf("dispatch: couldn't load session with id %d", req.SessionID)
		return
	}
	if !valid {
		log.Printf("dispatch: skipping no longer valid session %d", req.SessionID)
		return
	}

	emitted := false
	wrappedEmit := func(resp recognizer.TranslationResponse) {
		emitted = true
		p.emit(resp)
	}

	err = p.rec.Translate(ctx, req, wrappedEmit)
	if err != nil {
		log.Printf("dispatch: recognizer failed for session %d sequence %d: %v", req.SessionID, req.SequenceNumber, err)
	}
	if err != nil || !emitted {
		p.emit(recognizer.TranslationResponse{
			SessionID:      req.SessionID,
			SequenceNumber: req.SequenceNumber,
			SegmentNumber:  0,
			NumSegments:    1,
			Text:           "",
			IsFinal:        true,
		})
	}
}
