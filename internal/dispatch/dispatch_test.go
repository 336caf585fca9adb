package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"speechbridge/internal/audio"
	"speechbridge/internal/queue"
	"speechbridge/internal/recognizer"
	"speechbridge/internal/sessionstore"
)

type fakeRecognizer struct {
	responses []recognizer.TranslationResponse
	err       error
}

func (f *fakeRecognizer) Translate(ctx context.Context, req recognizer.TranslationRequest, emit func(recognizer.TranslationResponse)) error {
	for _, r := range f.responses {
		emit(r)
	}
	return f.err
}

func collect(n int, timeout time.Duration) (chan recognizer.TranslationResponse, func() []recognizer.TranslationResponse) {
	ch := make(chan recognizer.TranslationResponse, n)
	var mu sync.Mutex
	var got []recognizer.TranslationResponse
	go func() {
		for i := 0; i < n; i++ {
			select {
			case r := <-ch:
				mu.Lock()
				got = append(got, r)
				mu.Unlock()
			case <-time.After(timeout):
				return
			}
		}
	}()
	return ch, func() []recognizer.TranslationResponse {
		time.Sleep(timeout)
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

// newValidSession registers a valid session in store under id and returns
// that id, so dispatch's validity check passes.
func newValidSession(store *sessionstore.Store, id int) int {
	rec := &sessionstore.Record{
		Valid:        true,
		Buffer:       audio.NewBuffer(),
		Translations: sessionstore.NewCollection(),
		Outbound:     make(chan []byte, 8),
	}
	store.InsertWithID(id, rec)
	return id
}

func TestPool_EmitsRecognizerOutput(t *testing.T) {
	q := queue.New()
	store := sessionstore.New()
	newValidSession(store, 1)
	rec := &fakeRecognizer{responses: []recognizer.TranslationResponse{
		{SessionID: 1, SequenceNumber: 0, Text: "hello", IsFinal: true, NumSegments: 1},
	}}

	ch, results := collect(1, 200*time.Millisecond)
	pool := NewPool(q, store, rec, func(r recognizer.TranslationResponse) { ch <- r })
	pool.Start(context.Background(), 1)

	q.Enqueue(recognizer.TranslationRequest{SessionID: 1, SequenceNumber: 0})
	q.Close()
	pool.Wait()

	got := results()
	if len(got) != 1 || got[0].Text != "hello" {
		t.Fatalf("got %+v", got)
	}
}

func TestPool_SynthesizesEmptyFinalOnRecognizerError(t *testing.T) {
	q := queue.New()
	store := sessionstore.New()
	newValidSession(store, 5)
	rec := &fakeRecognizer{err: errors.New("boom")}

	ch, results := collect(1, 200*time.Millisecond)
	pool := NewPool(q, store, rec, func(r recognizer.TranslationResponse) { ch <- r })
	pool.Start(context.Background(), 1)

	q.Enqueue(recognizer.TranslationRequest{SessionID: 5, SequenceNumber: 2})
	q.Close()
	pool.Wait()

	got := results()
	if len(got) != 1 {
		t.Fatalf("got %d responses, want 1 synthetic final", len(got))
	}
	if !got[0].IsFinal || got[0].Text != "" || got[0].SequenceNumber != 2 {
		t.Fatalf("synthetic response = %+v", got[0])
	}
}

func TestPool_SynthesizesEmptyFinalOnNoEmit(t *testing.T) {
	q := queue.New()
	store := sessionstore.New()
	newValidSession(store, 9)
	rec := &fakeRecognizer{} // no responses, no error: e.g. pure silence

	ch, results := collect(1, 200*time.Millisecond)
	pool := NewPool(q, store, rec, func(r recognizer.TranslationResponse) { ch <- r })
	pool.Start(context.Background(), 1)

	q.Enqueue(recognizer.TranslationRequest{SessionID: 9, SequenceNumber: 1})
	q.Close()
	pool.Wait()

	got := results()
	if len(got) != 1 || !got[0].IsFinal {
		t.Fatalf("got %+v, want one synthetic final", got)
	}
}

func TestPool_SkipsInvalidSession(t *testing.T) {
	q := queue.New()
	store := sessionstore.New()
	rec := &sessionstore.Record{
		Valid:        false,
		Buffer:       audio.NewBuffer(),
		Translations: sessionstore.NewCollection(),
		Outbound:     make(chan []byte, 8),
	}
	store.InsertWithID(3, rec)

	called := false

	ch, results := collect(1, 100*time.Millisecond)
	pool := NewPool(q, store, &fakeRecognizer{}, func(r recognizer.TranslationResponse) {
		called = true
		ch <- r
	})
	pool.Start(context.Background(), 1)

	q.Enqueue(recognizer.TranslationRequest{SessionID: 3, SequenceNumber: 0})
	q.Close()
	pool.Wait()
	results()

	if called {
		t.Fatalf("expected no emit for an invalid session")
	}
}
