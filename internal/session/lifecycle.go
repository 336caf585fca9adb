// Package session owns a streaming session's whole lifecycle: accepting
// a WebSocket connection, reading and segmenting audio, closing the
// stream when the client disconnects, and finalizing once every chunk's
// translation has arrived. Grounded on the original server's session.rs
// (user_connected, user_message, mark_session_for_closure,
// finalize_session, restore_sessions, expire_sessions) and the teacher's
// HandleConn/HandleWebSocket read-loop idiom
// (internal/session/session.go, internal/session/recording.go).
package session

import (
	"log"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"speechbridge/internal/audio"
	"speechbridge/internal/queue"
	"speechbridge/internal/recognizer"
	"speechbridge/internal/sessionindex"
	"speechbridge/internal/sessionstore"
	"speechbridge/internal/storage"
	"speechbridge/internal/wav"
)

// ExpireAfter mirrors the original server's expire_sessions threshold:
// a session untouched for this long is dropped from the table entirely.
const ExpireAfter = 24 * time.Hour

// ReadTimeout is how long Accept waits for the next WebSocket frame
// before treating the connection as gone, mirroring the original
// server's RECV_TIMEOUT_SECONDS.
const ReadTimeout = 15 * time.Second

// Manager coordinates every live session: where new ones are persisted,
// which queue cut chunks are dispatched to, and the optional index/
// archive mirrors finalization feeds.
type Manager struct {
	Store *sessionstore.Store
	Queue *queue.Queue

	RecordingsDir string
	Index         *sessionindex.Store // nil if DATABASE_URL unset
	Archive       *storage.MinioClient // nil/disabled if MINIO_ENABLED!=true
}

// NewManager constructs a Manager. recordingsDir must already exist or be
// creatable; sessions fail to register if it isn't.
func NewManager(store *sessionstore.Store, q *queue.Queue, recordingsDir string, index *sessionindex.Store, archive *storage.MinioClient) *Manager {
	return &Manager{Store: store, Queue: q, RecordingsDir: recordingsDir, Index: index, Archive: archive}
}

// Register creates a new session record, allocates its on-disk paths, and
// inserts it into the store. It does not start reading audio — Accept
// (ws.go) does that once the caller is ready to pump frames.
func (m *Manager) Register(language string, sampleRate int, resourceName string) (*sessionstore.Record, error) {
	id := uuid.New().String()
	dir := filepath.Join(m.RecordingsDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	now := time.Now()
	rec := &sessionstore.Record{
		UUID:           id,
		Resource:       resourceName,
		Language:       language,
		SampleRate:     sampleRate,
		Buffer:         audio.NewBuffer(),
		Valid:          true,
		Translations:   sessionstore.NewCollection(),
		RecordingPath:  filepath.Join(dir, id+".wav"),
		TranscriptPath: filepath.Join(dir, id+".txt"),
		MetadataPath:   filepath.Join(dir, "metadata.json"),
		CreatedAt:      now,
		UpdatedAt:      now,
		Outbound:       make(chan []byte, 256),
	}
	m.Store.Insert(rec)
	return rec, nil
}

// metadataFile is the JSON shape written to disk at finalization and read
// back at startup by Restore. It deliberately does not carry the
// transcript text itself — that lives in the session's .txt file, read
// separately — mirroring the original server's write_metadata, which
// serializes SessionData's plain fields only.
type metadataFile struct {
	Language       string    `json:"language"`
	UUID           string    `json:"uuid"`
	Resource       string    `json:"resource,omitempty"`
	SampleRate     int       `json:"sample_rate"`
	SequenceNumber int       `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// closeStream runs once a session's inbound WebSocket loop has ended
// (client disconnected or went quiet past ReadTimeout): it flushes
// whatever audio remains unsent, enqueues it as the session's final
// chunk, and sets LastSequence so the integrator can recognize
// completion. Mirrors mark_session_for_closure exactly, including the
// early return for a session that never sent any audio at all.
func (m *Manager) closeStream(id int) {
	rec, err := m.Store.Get(id)
	if err != nil {
		return
	}

	rec.CloseOnce(func() {
		// SequenceNumber is read and bumped inside the same Mutate call
		// rather than read bare beforehand: closeStream can run from the
		// read loop's own exit path or from a concurrent /close/<uuid>
		// request (RequestClose) while that loop is still live, and the
		// two must not observe or advance the sequence independently.
		var lastSequence int
		var hadAudio bool
		_ = m.Store.Mutate(id, func(r *sessionstore.Record) error {
			hadAudio = r.SequenceNumber != 0
			if !hadAudio {
				r.Valid = false
				return nil
			}
			lastSequence = r.SequenceNumber
			r.LastSequence = lastSequence
			r.SequenceNumber = lastSequence + 1
			r.UpdatedAt = time.Now()
			return nil
		})

		if !hadAudio {
			// Closed under FinalizeOnce so a later expiry sweep does not
			// close the channel a second time.
			rec.FinalizeOnce(func() { close(rec.Outbound) })
			return
		}

		payload := rec.Buffer.DrainAll()
		if len(payload) > 0 {
			if err := wav.AppendToFile(rec.RecordingPath, payload, rec.SampleRate); err != nil {
				log.Printf("session %s: failed to persist final audio: %v", rec.UUID, err)
			}
		}

		m.Queue.Enqueue(recognizer.TranslationRequest{
			SessionID:      id,
			SequenceNumber: lastSequence,
			SampleRate:     rec.SampleRate,
			Samples:        payload,
			Language:       rec.Language,
		})
	})
}

// RequestClose triggers end-of-stream for id from outside its own
// inbound read loop — the /close/<uuid> HTTP endpoint's entry point.
// It runs the same closure logic the read loop runs on disconnect, then
// forcibly unblocks that loop's pending ReadMessage call if the client
// is still connected, so it can exit and stop touching the buffer.
// Mirrors mark_session_for_closure_uuid.
func (m *Manager) RequestClose(id int) {
	m.closeStream(id)

	rec, err := m.Store.Get(id)
	if err != nil {
		return
	}
	if rec.CloseConn != nil {
		_ = rec.CloseConn()
	}
}

// Finalize runs exactly once per session, the moment its translation
// collection reports Complete(): it writes the transcript and metadata
// files, mirrors them to the session index and archive if configured,
// closes the outbound channel (ending the WebSocket pump), and marks the
// session invalid. Grounded on SessionData::finalize_session.
func (m *Manager) Finalize(id int) {
	rec, err := m.Store.Get(id)
	if err != nil {
		return
	}

	rec.FinalizeOnce(func() {
		transcript := rec.Translations.Transcript()

		if err := os.WriteFile(rec.TranscriptPath, []byte(transcript), 0o644); err != nil {
			log.Printf("session %s: failed to write transcript: %v", rec.UUID, err)
		}

		meta := metadataFile{
			Language:       rec.Language,
			UUID:           rec.UUID,
			Resource:       rec.Resource,
			SampleRate:     rec.SampleRate,
			SequenceNumber: rec.SequenceNumber,
			CreatedAt:      rec.CreatedAt,
			UpdatedAt:      time.Now(),
		}
		if data, err := json.Marshal(meta); err != nil {
			log.Printf("session %s: failed to marshal metadata: %v", rec.UUID, err)
		} else if err := os.WriteFile(rec.MetadataPath, data, 0o644); err != nil {
			log.Printf("session %s: failed to write metadata: %v", rec.UUID, err)
		}

		m.mirror(rec, transcript)

		_ = m.Store.Mutate(id, func(r *sessionstore.Record) error {
			r.Valid = false
			return nil
		})

		close(rec.Outbound)
		log.Printf("session %s: finalized", rec.UUID)
	})
}
