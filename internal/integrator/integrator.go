// Package integrator is the single chokepoint where a recognizer's output
// rejoins a session: it orders the segment into the session's translation
// collection, writes it out to the client socket, and decides whether the
// session has now run to completion. Grounded on the original server's
// process_transcription (original_source/server/src/session.rs), adapted
// into the teacher's error-wrapping and logging idiom.
package integrator

import (
	"log"

	json "github.com/goccy/go-json"

	"speechbridge/internal/apperr"
	"speechbridge/internal/recognizer"
	"speechbridge/internal/sessionstore"
)

// wireSegment is the JSON frame pushed to the client over the outbound
// WebSocket channel for one recognized segment.
type wireSegment struct {
	SequenceNumber int    `json:"sequence_number"`
	SegmentNumber  int    `json:"segment_number"`
	NumSegments    int    `json:"num_segments"`
	Text           string `json:"text"`
	IsFinal        bool   `json:"is_final"`
}

// Integrator wires recognizer output back into the session store.
type Integrator struct {
	store *sessionstore.Store

	// OnComplete, if set, is invoked with a session's ID once that
	// session's Complete() condition becomes true. The session lifecycle
	// package hooks this to trigger finalization.
	OnComplete func(sessionID int)
}

// New returns an Integrator backed by store.
func New(store *sessionstore.Store) *Integrator {
	return &Integrator{store: store}
}

// Integrate appends resp to its session's translation collection, pushes
// it to the client's outbound channel, and fires OnComplete if the
// session has just become complete. A not-found session (it may have
// expired and been removed between dispatch and recognition finishing) is
// logged once and otherwise ignored — this does not reproduce the
// original server's habit of logging "couldn't load session" on every
// dispatch regardless of whether the session was actually missing. A
// response for a session that is no longer valid is logged and discarded.
func (in *Integrator) Integrate(resp recognizer.TranslationResponse) {
	var becameComplete bool

	err := in.store.Mutate(resp.SessionID, func(rec *sessionstore.Record) error {
		if !rec.Valid {
			log.Printf("integrator: session %d no longer valid, dropping segment for sequence %d", resp.SessionID, resp.SequenceNumber)
			return nil
		}
		rec.Translations.Add(resp.SequenceNumber, sessionstore.Segment{
			SegmentNumber: resp.SegmentNumber,
			NumSegments:   resp.NumSegments,
			Text:          resp.Text,
			IsFinal:       resp.IsFinal,
		})

		frame, marshalErr := json.Marshal(wireSegment{
			SequenceNumber: resp.SequenceNumber,
			SegmentNumber:  resp.SegmentNumber,
			NumSegments:    resp.NumSegments,
			Text:           resp.Text,
			IsFinal:        resp.IsFinal,
		})
		if marshalErr != nil {
			return marshalErr
		}

		select {
		case rec.Outbound <- frame:
		default:
			log.Printf("session %s: outbound channel full, dropping segment for sequence %d", rec.UUID, resp.SequenceNumber)
		}

		becameComplete = rec.Complete()
		return nil
	})

	if apperr.KindOf(err) == apperr.KindNotFound {
		log.Printf("integrator: session %d not found, dropping segment for sequence %d", resp.SessionID, resp.SequenceNumber)
		return
	}
	if err != nil {
		log.Printf("integrator: failed to integrate segment for session %d: %v", resp.SessionID, err)
		return
	}

	if becameComplete && in.OnComplete != nil {
		in.OnComplete(resp.SessionID)
	}
}
