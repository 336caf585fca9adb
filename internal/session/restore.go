package session

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"speechbridge/internal/audio"
	"speechbridge/internal/sessionstore"
)

// Restore scans RecordingsDir for session directories left behind by a
// previous run and reloads them as invalid (read-only) sessions, so the
// listing, transcript, and compare endpoints keep working across a
// restart. Mirrors the original server's restore_sessions: every
// restored session is forced to SequenceNumber=1, LastSequence=1,
// Valid=false regardless of how many chunks it actually held, since the
// flat files on disk (not the in-memory sequence bookkeeping) are what
// those endpoints read from.
func (m *Manager) Restore() error {
	entries, err := os.ReadDir(m.RecordingsDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.RecordingsDir, entry.Name())
		rec, err := m.loadSession(dir)
		if err != nil {
			log.Printf("session: skipping %s during restore: %v", dir, err)
			continue
		}
		m.Store.Insert(rec)
	}
	return nil
}

func (m *Manager) loadSession(dir string) (*sessionstore.Record, error) {
	metadataPath := filepath.Join(dir, "metadata.json")
	data, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, err
	}

	var meta metadataFile
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	transcriptPath := filepath.Join(dir, meta.UUID+".txt")
	transcriptBytes, err := os.ReadFile(transcriptPath)
	transcript := ""
	if err == nil {
		transcript = string(transcriptBytes)
	}

	return &sessionstore.Record{
		UUID:           meta.UUID,
		Resource:       meta.Resource,
		Language:       meta.Language,
		SampleRate:     meta.SampleRate,
		Buffer:         audio.NewBuffer(),
		SequenceNumber: 1,
		LastSequence:   1,
		Valid:          false,
		Translations:   sessionstore.NewCollectionFromTranscript(transcript),
		RecordingPath:  filepath.Join(dir, meta.UUID+".wav"),
		TranscriptPath: transcriptPath,
		MetadataPath:   metadataPath,
		CreatedAt:      meta.CreatedAt,
		UpdatedAt:      meta.UpdatedAt,
		Outbound:       make(chan []byte), // restored sessions never stream; never written to
	}, nil
}
