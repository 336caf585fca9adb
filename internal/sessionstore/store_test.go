package sessionstore

import (
	"sync"
	"testing"

	"speechbridge/internal/apperr"
	"speechbridge/internal/audio"
)

func newTestRecord(uuid string) *Record {
	return &Record{
		UUID:         uuid,
		Buffer:       audio.NewBuffer(),
		Translations: NewCollection(),
		Outbound:     make(chan []byte, 8),
	}
}

func TestStore_InsertGetFindByUUID(t *testing.T) {
	s := New()
	rec := newTestRecord("abc-123")
	id := s.Insert(rec)

	got, err := s.Get(id)
	if err != nil || got != rec {
		t.Fatalf("Get(%d) = %v, %v", id, got, err)
	}

	byUUID, err := s.FindByUUID("abc-123")
	if err != nil || byUUID != rec {
		t.Fatalf("FindByUUID = %v, %v", byUUID, err)
	}
}

func TestStore_GetMissingReturnsNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(42)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("err kind = %v, want KindNotFound", apperr.KindOf(err))
	}
}

func TestStore_RemoveDeletes(t *testing.T) {
	s := New()
	id := s.Insert(newTestRecord("x"))
	s.Remove(id)
	if _, err := s.Get(id); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not-found after Remove")
	}
}

func TestStore_MutateIsSerializedAcrossGoroutines(t *testing.T) {
	s := New()
	id := s.Insert(newTestRecord("concurrent"))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Mutate(id, func(rec *Record) error {
				rec.SequenceNumber++
				return nil
			})
		}()
	}
	wg.Wait()

	rec, _ := s.Get(id)
	if rec.SequenceNumber != 100 {
		t.Fatalf("SequenceNumber = %d, want 100 (no lost updates)", rec.SequenceNumber)
	}
}

func TestStore_MutatePanicIsRecoveredAndRolledBack(t *testing.T) {
	s := New()
	rec := newTestRecord("panicky")
	rec.SequenceNumber = 5
	id := s.Insert(rec)

	err := s.Mutate(id, func(r *Record) error {
		r.SequenceNumber = 999
		panic("boom")
	})
	if err == nil {
		t.Fatal("Mutate with a panicking callback returned nil error, want non-nil")
	}
	if apperr.KindOf(err) != apperr.KindUnknown {
		t.Fatalf("err kind = %v, want KindUnknown", apperr.KindOf(err))
	}

	got, getErr := s.Get(id)
	if getErr != nil {
		t.Fatalf("Get: %v", getErr)
	}
	if got.SequenceNumber != 5 {
		t.Fatalf("SequenceNumber after panicking Mutate = %d, want 5 (rolled back)", got.SequenceNumber)
	}

	// The store's own lock must not be left held by the panic.
	if _, err := s.Get(id); err != nil {
		t.Fatalf("store appears locked after recovered panic: %v", err)
	}
}

func TestStore_InsertWithIDAdvancesNextID(t *testing.T) {
	s := New()
	s.InsertWithID(50, newTestRecord("restored"))
	next := s.Insert(newTestRecord("fresh"))
	if next <= 50 {
		t.Fatalf("Insert after InsertWithID(50, ...) gave id %d, want > 50", next)
	}
}

func TestStore_ReadAndReadByUUIDSeeMutations(t *testing.T) {
	s := New()
	rec := newTestRecord("snapshot-me")
	id := s.Insert(rec)

	_ = s.Mutate(id, func(r *Record) error {
		r.SequenceNumber = 7
		return nil
	})

	var byID, byUUID int
	if err := s.Read(id, func(r *Record) error { byID = r.SequenceNumber; return nil }); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := s.ReadByUUID("snapshot-me", func(r *Record) error { byUUID = r.SequenceNumber; return nil }); err != nil {
		t.Fatalf("ReadByUUID: %v", err)
	}
	if byID != 7 || byUUID != 7 {
		t.Fatalf("Read/ReadByUUID saw SequenceNumber %d/%d, want 7/7", byID, byUUID)
	}
}

func TestStore_ReadByUUIDMissingReturnsNotFound(t *testing.T) {
	s := New()
	err := s.ReadByUUID("nope", func(*Record) error { return nil })
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("err kind = %v, want KindNotFound", apperr.KindOf(err))
	}
}

func TestRecord_StatusReflectsSequenceAndTranslationCount(t *testing.T) {
	rec := newTestRecord("status-me")
	rec.Language = "de"
	rec.Resource = "chapter1"
	rec.SampleRate = 44100
	rec.SequenceNumber = 3
	rec.Translations.Add(0, Segment{SegmentNumber: 0, NumSegments: 1, Text: "hallo", IsFinal: true})
	rec.Translations.Add(1, Segment{SegmentNumber: 0, NumSegments: 1, Text: "welt", IsFinal: true})

	status := rec.Status()
	if status.UUID != "status-me" || status.Language != "de" || status.Resource != "chapter1" {
		t.Fatalf("Status identity fields wrong: %+v", status)
	}
	if status.SampleRate != 44100 {
		t.Fatalf("SampleRate = %d, want 44100", status.SampleRate)
	}
	if status.TranscriptionJobCount != 3 {
		t.Fatalf("TranscriptionJobCount = %d, want 3", status.TranscriptionJobCount)
	}
	if status.TranscriptionCompletedCount != 2 {
		t.Fatalf("TranscriptionCompletedCount = %d, want 2", status.TranscriptionCompletedCount)
	}
}

func TestRecord_CloseOnceRunsExactlyOnce(t *testing.T) {
	rec := newTestRecord("close-me")
	var calls int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.CloseOnce(func() { calls++ })
		}()
	}
	wg.Wait()
	if calls != 1 {
		t.Fatalf("CloseOnce ran %d times, want 1", calls)
	}
}
