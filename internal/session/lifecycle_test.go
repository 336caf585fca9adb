package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"speechbridge/internal/queue"
	"speechbridge/internal/sessionstore"
	"speechbridge/internal/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	store := sessionstore.New()
	q := queue.New()
	return NewManager(store, q, dir, nil, &storage.MinioClient{})
}

func TestManager_RegisterCreatesSessionDir(t *testing.T) {
	m := newTestManager(t)
	rec, err := m.Register("de", 44100, "chapter1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if rec.UUID == "" {
		t.Fatalf("Register left UUID empty")
	}
	if _, err := os.Stat(filepath.Join(m.RecordingsDir, rec.UUID)); err != nil {
		t.Fatalf("session dir not created: %v", err)
	}
	if got, err := m.Store.Get(rec.ID); err != nil || got != rec {
		t.Fatalf("registered record not retrievable from store: %v, %v", got, err)
	}
}

func TestManager_CloseStreamOnEmptySessionJustClosesOutbound(t *testing.T) {
	m := newTestManager(t)
	rec, err := m.Register("de", 44100, "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	m.closeStream(rec.ID)

	select {
	case _, open := <-rec.Outbound:
		if open {
			t.Fatalf("Outbound should be closed, got an open value")
		}
	default:
		t.Fatalf("Outbound should already be closed and drained")
	}
}

func TestManager_CloseStreamFlushesBufferedAudio(t *testing.T) {
	m := newTestManager(t)
	rec, err := m.Register("de", 44100, "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	rec.Buffer.Append(make([]float32, 512))
	rec.SequenceNumber = 2

	m.closeStream(rec.ID)

	if m.Queue.Len() != 1 {
		t.Fatalf("Queue.Len() = %d, want 1 flushed final chunk", m.Queue.Len())
	}
	req, ok := m.Queue.Dequeue()
	if !ok {
		t.Fatalf("Dequeue returned ok=false")
	}
	if req.SequenceNumber != 2 {
		t.Fatalf("final chunk SequenceNumber = %d, want 2", req.SequenceNumber)
	}

	got, err := m.Store.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastSequence != 2 {
		t.Fatalf("LastSequence = %d, want 2", got.LastSequence)
	}
	if got.SequenceNumber != 3 {
		t.Fatalf("SequenceNumber = %d, want 3", got.SequenceNumber)
	}
	if _, err := os.Stat(rec.RecordingPath); err != nil {
		t.Fatalf("expected recording file to exist: %v", err)
	}
}

func TestManager_CloseStreamIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	rec, err := m.Register("de", 44100, "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	rec.Buffer.Append(make([]float32, 128))
	rec.SequenceNumber = 1

	m.closeStream(rec.ID)
	m.closeStream(rec.ID)

	if m.Queue.Len() != 1 {
		t.Fatalf("Queue.Len() = %d after double closeStream, want exactly 1", m.Queue.Len())
	}
}

func TestManager_FinalizeWritesTranscriptAndMetadata(t *testing.T) {
	m := newTestManager(t)
	rec, err := m.Register("de", 44100, "chapter1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	rec.Translations.Add(0, sessionstore.Segment{SegmentNumber: 0, NumSegments: 1, Text: "hallo welt", IsFinal: true})

	m.Finalize(rec.ID)

	data, err := os.ReadFile(rec.TranscriptPath)
	if err != nil {
		t.Fatalf("transcript file: %v", err)
	}
	if string(data) != "hallo welt" {
		t.Fatalf("transcript = %q, want %q", data, "hallo welt")
	}

	metaBytes, err := os.ReadFile(rec.MetadataPath)
	if err != nil {
		t.Fatalf("metadata file: %v", err)
	}
	var meta metadataFile
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		t.Fatalf("metadata unmarshal: %v", err)
	}
	if meta.UUID != rec.UUID || meta.Resource != "chapter1" || meta.Language != "de" {
		t.Fatalf("metadata = %+v, want matching identity fields", meta)
	}

	got, err := m.Store.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Valid {
		t.Fatalf("Valid = true after Finalize, want false")
	}
}

func TestManager_FinalizeIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	rec, err := m.Register("de", 44100, "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	m.Finalize(rec.ID)
	// A second call must not try to close rec.Outbound again (which would
	// panic) or re-run the write/mirror side effects.
	m.Finalize(rec.ID)
}

func TestManager_RestoreReloadsSessionsAsInvalid(t *testing.T) {
	m := newTestManager(t)
	rec, err := m.Register("de", 16000, "chapter1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	rec.Translations.Add(0, sessionstore.Segment{SegmentNumber: 0, NumSegments: 1, Text: "restored text", IsFinal: true})
	m.Finalize(rec.ID)

	fresh := NewManager(sessionstore.New(), queue.New(), m.RecordingsDir, nil, &storage.MinioClient{})
	if err := fresh.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	restored, err := fresh.Store.FindByUUID(rec.UUID)
	if err != nil {
		t.Fatalf("FindByUUID after restore: %v", err)
	}
	if restored.Valid {
		t.Fatalf("restored session Valid = true, want false")
	}
	if restored.Language != "de" || restored.SampleRate != 16000 || restored.Resource != "chapter1" {
		t.Fatalf("restored identity fields wrong: %+v", restored)
	}
	if restored.Translations.Transcript() != "restored text" {
		t.Fatalf("restored transcript = %q, want %q", restored.Translations.Transcript(), "restored text")
	}

	// Restore seeds every record with LastSequence=1 rather than recovering
	// the chunk count from disk, so a restored session reports
	// transcription_job_count=2 (the walkthrough's two-chunk session, sequence
	// 0 and 1) whatever it held; the session finalized here held one chunk.
	if status := restored.Status(); status.TranscriptionJobCount != 2 {
		t.Fatalf("restored Status().TranscriptionJobCount = %d, want 2", status.TranscriptionJobCount)
	}
}

func TestManager_RestoreOnMissingDirIsNotAnError(t *testing.T) {
	m := NewManager(sessionstore.New(), queue.New(), filepath.Join(t.TempDir(), "does-not-exist"), nil, &storage.MinioClient{})
	if err := m.Restore(); err != nil {
		t.Fatalf("Restore on missing dir: %v", err)
	}
}

func TestManager_SweepExpiredFinalizesStaleSessions(t *testing.T) {
	m := newTestManager(t)
	rec, err := m.Register("de", 44100, "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	_ = m.Store.Mutate(rec.ID, func(r *sessionstore.Record) error {
		r.UpdatedAt = time.Now().Add(-25 * time.Hour)
		return nil
	})

	m.sweepExpired()

	if _, err := m.Store.Get(rec.ID); err == nil {
		t.Fatalf("expired session still present in store")
	}
}

func TestManager_SweepExpiredLeavesFreshSessions(t *testing.T) {
	m := newTestManager(t)
	rec, err := m.Register("de", 44100, "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	m.sweepExpired()

	if _, err := m.Store.Get(rec.ID); err != nil {
		t.Fatalf("fresh session was swept: %v", err)
	}
}

func TestManager_RunExpirySweepStopsOnContextCancel(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		m.RunExpirySweep(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RunExpirySweep did not return after context cancellation")
	}
}
