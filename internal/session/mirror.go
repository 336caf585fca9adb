package session

import (
	"context"
	"log"
	"time"

	"speechbridge/internal/sessionindex"
	"speechbridge/internal/sessionstore"
)

// mirror pushes a finalized session's summary into the optional Postgres
// index and archives its recording/transcript into the optional MinIO
// bucket. Both are best-effort: the flat-file store under RecordingsDir
// remains the system of record, so a failure here is logged and
// swallowed rather than blocking finalization.
func (m *Manager) mirror(rec *sessionstore.Record, transcript string) {
	if m.Index != nil {
		err := m.Index.RecordFinalized(sessionindex.FinalizedSession{
			UUID:           rec.UUID,
			Resource:       rec.Resource,
			Language:       rec.Language,
			SampleRate:     rec.SampleRate,
			SequenceCount:  rec.LastSequence + 1,
			Transcript:     transcript,
			RecordingPath:  rec.RecordingPath,
			TranscriptPath: rec.TranscriptPath,
			CreatedAt:      rec.CreatedAt,
		})
		if err != nil {
			log.Printf("session %s: sessionindex mirror failed: %v", rec.UUID, err)
		}
	}

	if m.Archive.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := m.Archive.ArchiveSession(ctx, rec.UUID, rec.RecordingPath, []byte(transcript)); err != nil {
			log.Printf("session %s: archive mirror failed: %v", rec.UUID, err)
		}
	}
}
