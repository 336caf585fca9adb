// Package sessionstore holds the process-wide table of active streaming
// sessions. It is adapted from the teacher project's internal/meeting room
// registry (internal/meeting/room.go): a map protected by a single
// sync.RWMutex, read-heavy call sites taking RLock and the rarer
// mutating call sites taking the full Lock, rather than one lock per
// session — matching the original server's many-reader/one-writer
// session table.
package sessionstore

import (
	"log"
	"sync"
	"time"

	"speechbridge/internal/apperr"
)

// Store is the process-wide table of sessions, keyed by integer session
// ID and looked up by UUID from the outside world.
type Store struct {
	mu      sync.RWMutex
	records map[int]*Record
	nextID  int
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[int]*Record), nextID: 1}
}

// Insert adds rec under a freshly allocated ID and returns that ID.
func (s *Store) Insert(rec *Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	rec.ID = id
	s.records[id] = rec
	return id
}

// InsertWithID adds rec under an explicit ID, for callers that need IDs
// assigned out of band (tests fabricating a known ID to dispatch against).
// It also advances nextID past id if needed.
func (s *Store) InsertWithID(id int, rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = id
	s.records[id] = rec
	if id >= s.nextID {
		s.nextID = id + 1
	}
}

// Get returns the record for id, or a not-found error.
func (s *Store) Get(id int) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "no session with id %d", id)
	}
	return rec, nil
}

// FindByUUID scans for the record whose UUID matches uuid. The scan is
// linear since sessions are looked up by UUID far less often than by
// integer ID (only on the public HTTP surface), matching the cost profile
// the teacher's room lookups accept.
func (s *Store) FindByUUID(uuid string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.UUID == uuid {
			return rec, nil
		}
	}
	return nil, apperr.Newf(apperr.KindNotFound, "no session with uuid %s", uuid)
}

// Remove deletes id from the table, e.g. once a session has been
// finalized and no longer needs to accept dispatches.
func (s *Store) Remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// ReadByUUID is FindByUUID and Read combined under a single RLock, so a
// status/transcript snapshot read is serialized against Mutate without a
// separate lookup-then-read race.
func (s *Store) ReadByUUID(uuid string, fn func(rec *Record) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.UUID == uuid {
			return fn(rec)
		}
	}
	return apperr.Newf(apperr.KindNotFound, "no session with uuid %s", uuid)
}

// Read runs fn with shared access to the store, serialized against
// Mutate's exclusive access so a Status()/Transcript() snapshot read
// never races a concurrent field write. Unlike Get, it takes the
// closure form so callers never hold a *Record past the RLock's scope.
func (s *Store) Read(id int, fn func(rec *Record) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "no session with id %d", id)
	}
	return fn(rec)
}

// Mutate runs fn with exclusive access to the store, serializing it
// against every other reader and writer. Worker goroutines call this to
// apply a translation result or flip validity, the same way the original
// server takes its session table's write lock from a worker thread via
// the bridge executor. UpdatedAt is stamped with the current time before
// fn runs, so fn may still set it explicitly.
//
// A panicking fn is recovered and logged rather than taking the whole
// server down; the record is rolled back to its pre-callback state first,
// so no entry is ever left poisoned mid-mutation.
func (s *Store) Mutate(id int, fn func(rec *Record) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "no session with id %d", id)
	}

	before := rec.snapshot()
	defer func() {
		if r := recover(); r != nil {
			rec.restore(before)
			log.Printf("sessionstore: recovered panic in Mutate(id=%d): %v", id, r)
			err = apperr.Newf(apperr.KindUnknown, "mutation panicked: %v", r)
		}
	}()
	rec.UpdatedAt = time.Now()
	return fn(rec)
}

// All returns a snapshot slice of every record currently in the table, for
// the expiry sweep and the session listing page.
func (s *Store) All() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}
