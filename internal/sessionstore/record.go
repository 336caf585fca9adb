package sessionstore

import (
	"sync"
	"time"

	"speechbridge/internal/audio"
)

// Record is one streaming session's full state: the raw audio buffer, the
// translation collection, sequencing bookkeeping, and the paths it
// persists to. A *Record is always reached through the Store, which
// serializes writes to it the way the teacher's room registry serializes
// writes to a meeting's participant map.
type Record struct {
	ID       int
	UUID     string
	Resource string // practice resource name, empty for a bare recording session
	Language string

	SampleRate int
	Buffer     *audio.Buffer

	SequenceNumber int  // next sequence number to assign to an outgoing chunk
	LastSequence   int  // set once end-of-stream is seen; 0 means "not yet known"
	Valid          bool // false once finalized

	Translations *Collection

	RecordingPath  string
	TranscriptPath string
	MetadataPath   string

	CreatedAt time.Time
	UpdatedAt time.Time

	Outbound chan []byte // serialized JSON frames waiting to be written to the client socket

	// CloseConn, if set by the code accepting this session's connection,
	// forcibly unblocks its inbound read loop — used when an HTTP
	// /close/<uuid> request arrives for a session whose client is still
	// connected.
	CloseConn func() error

	finalizeOnce sync.Once
	closeOnce    sync.Once
}

// Status mirrors the JSON body returned by the /status/<uuid> endpoint.
type Status struct {
	Language                    string `json:"language"`
	UUID                        string `json:"uuid"`
	Resource                    string `json:"resource,omitempty"`
	SampleRate                  int    `json:"sample_rate"`
	TranscriptionJobCount       int    `json:"transcription_job_count"`
	TranscriptionCompletedCount int    `json:"transcription_completed_count"`
}

// Status renders this record's current Status snapshot. TranscriptionJobCount
// is LastSequence+1 once end-of-stream is known (LastSequence != 0): for a
// live session, the true total chunk count, sequence numbers
// 0..LastSequence inclusive (a restored session is seeded with
// LastSequence=1, so it always reports 2).
// Before that, SequenceNumber (the next sequence number to assign) is the
// best available estimate, since the final count isn't known yet.
func (r *Record) Status() Status {
	jobCount := r.SequenceNumber
	if r.LastSequence != 0 {
		jobCount = r.LastSequence + 1
	}
	return Status{
		Language:                    r.Language,
		UUID:                        r.UUID,
		Resource:                    r.Resource,
		SampleRate:                  r.SampleRate,
		TranscriptionJobCount:       jobCount,
		TranscriptionCompletedCount: r.Translations.Count(),
	}
}

// Complete reports whether every chunk up to and including the true final
// one (sequence number LastSequence) has arrived and completed, given
// end-of-stream has been observed (LastSequence > 0, set by the session
// lifecycle only once at least one chunk has ever been cut). Sequence
// numbers run 0..LastSequence inclusive, so a fully arrived transcript has
// translation_count == LastSequence+1; the strict ">" matches the
// original server's completion check exactly.
func (r *Record) Complete() bool {
	if r.LastSequence == 0 {
		return false
	}
	return r.Translations.Count() > r.LastSequence && r.Translations.HasFinal(r.LastSequence)
}

// FinalizeOnce runs fn exactly once for this record, guarding against
// Finalize, the expiry sweep and closeStream's no-audio path all racing to
// close the same session's outbound channel.
func (r *Record) FinalizeOnce(fn func()) {
	r.finalizeOnce.Do(fn)
}

// CloseOnce runs fn exactly once for this record, guarding against the
// stream's own read-loop exit and an explicit /close/<uuid> request both
// racing to mark the same session closed.
func (r *Record) CloseOnce(fn func()) {
	r.closeOnce.Do(fn)
}

// mutableFields is every field a Store.Mutate callback may legitimately
// modify, snapshotted so a panicking callback can be rolled back without
// copying the record's sync.Once locks (which a whole-struct copy would).
type mutableFields struct {
	SequenceNumber int
	LastSequence   int
	Valid          bool
	UpdatedAt      time.Time
	CloseConn      func() error
}

func (r *Record) snapshot() mutableFields {
	return mutableFields{
		SequenceNumber: r.SequenceNumber,
		LastSequence:   r.LastSequence,
		Valid:          r.Valid,
		UpdatedAt:      r.UpdatedAt,
		CloseConn:      r.CloseConn,
	}
}

func (r *Record) restore(snap mutableFields) {
	r.SequenceNumber = snap.SequenceNumber
	r.LastSequence = snap.LastSequence
	r.Valid = snap.Valid
	r.UpdatedAt = snap.UpdatedAt
	r.CloseConn = snap.CloseConn
}
