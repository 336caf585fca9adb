package session

import (
	"context"
	"log"
	"time"
)

// ExpirySweepInterval is how often RunExpirySweep checks the table for
// stale sessions.
const ExpirySweepInterval = 10 * time.Minute

// RunExpirySweep periodically removes sessions that have sat untouched
// for longer than ExpireAfter, freeing the in-memory table of streams
// whose clients vanished without a clean close. It runs until ctx is
// canceled. Mirrors the original server's expire_sessions sweep.
func (m *Manager) RunExpirySweep(ctx context.Context) {
	ticker := time.NewTicker(ExpirySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepExpired()
		}
	}
}

func (m *Manager) sweepExpired() {
	now := time.Now()
	for _, rec := range m.Store.All() {
		if now.Sub(rec.UpdatedAt) <= ExpireAfter {
			continue
		}
		rec.FinalizeOnce(func() {
			close(rec.Outbound)
		})
		m.Store.Remove(rec.ID)
		log.Printf("session %s: expired after %s idle", rec.UUID, now.Sub(rec.UpdatedAt).Round(time.Second))
	}
}
