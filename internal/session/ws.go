package session

import (
	"encoding/binary"
	"log"
	"math"
	"time"

	"github.com/gorilla/websocket"

	json "github.com/goccy/go-json"

	"speechbridge/internal/recognizer"
	"speechbridge/internal/segment"
	"speechbridge/internal/sessionstore"
	"speechbridge/internal/wav"
)

// greeting is the first message sent over a freshly accepted connection,
// telling the client the UUID its session was registered under.
type greeting struct {
	UUID string `json:"uuid"`
}

// Accept registers a new session for conn and drives it for its entire
// life: it sends the initial UUID greeting, starts the outbound pump,
// and runs the inbound read loop until the client disconnects or goes
// quiet past ReadTimeout. It returns once the connection is fully done
// with — closeStream and any in-flight finalization have both settled
// enough that the caller may safely return from the HTTP handler.
func (m *Manager) Accept(conn *websocket.Conn, language string, sampleRate int, resourceName string) {
	rec, err := m.Register(language, sampleRate, resourceName)
	if err != nil {
		log.Printf("session: failed to register session: %v", err)
		conn.Close()
		return
	}

	if data, err := json.Marshal(greeting{UUID: rec.UUID}); err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("session %s: failed to send greeting: %v", rec.UUID, err)
		}
	}

	id := rec.ID
	rec.CloseConn = conn.Close

	done := make(chan struct{})
	go m.pumpOutbound(conn, rec, done)

	m.readLoop(conn, id, rec)

	m.closeStream(id)
	conn.Close()
	<-done
}

// pumpOutbound drains rec.Outbound and writes each frame to the client,
// ending once Outbound is closed at finalization (Finalize) or the
// connection itself errors out.
func (m *Manager) pumpOutbound(conn *websocket.Conn, rec *sessionstore.Record, done chan struct{}) {
	defer close(done)
	for frame := range rec.Outbound {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Printf("session %s: outbound write failed: %v", rec.UUID, err)
			return
		}
	}
}

// readLoop consumes binary PCM frames from conn until the client closes
// the stream or ReadTimeout elapses with no frame received, mirroring
// the original server's recv().await-with-timeout loop.
func (m *Manager) readLoop(conn *websocket.Conn, id int, rec *sessionstore.Record) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
			return
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		m.handleFrame(id, rec, data)
	}
}

// handleFrame appends one binary frame's worth of little-endian float32
// samples to the session's buffer, and if the segmenter decides the
// buffer should be cut, persists and dispatches the resulting chunk.
func (m *Manager) handleFrame(id int, rec *sessionstore.Record, data []byte) {
	samples := bytesToFloat32(data)
	if len(samples) == 0 {
		return
	}
	rec.Buffer.Append(samples)

	snapshot := rec.Buffer.Snapshot()
	pivot, ok := segment.Find(snapshot, rec.SampleRate)
	if !ok {
		return
	}

	payload := rec.Buffer.Cut(pivot)
	if len(payload) == 0 {
		return
	}

	if err := wav.AppendToFile(rec.RecordingPath, payload, rec.SampleRate); err != nil {
		log.Printf("session %s: failed to persist chunk: %v", rec.UUID, err)
	}

	// SequenceNumber is read and bumped inside the same Mutate call since
	// a concurrent /close/<uuid> request can be running closeStream
	// against this same record while the read loop is still live.
	var sequenceNumber int
	_ = m.Store.Mutate(id, func(r *sessionstore.Record) error {
		sequenceNumber = r.SequenceNumber
		r.SequenceNumber = sequenceNumber + 1
		r.UpdatedAt = time.Now()
		return nil
	})
	m.Queue.Enqueue(recognizer.TranslationRequest{
		SessionID:      id,
		SequenceNumber: sequenceNumber,
		SampleRate:     rec.SampleRate,
		Samples:        payload,
		Language:       rec.Language,
	})
}

// bytesToFloat32 decodes a little-endian float32 PCM frame. Trailing
// bytes that don't make a full sample are dropped.
func bytesToFloat32(data []byte) []float32 {
	n := len(data) / 4
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
