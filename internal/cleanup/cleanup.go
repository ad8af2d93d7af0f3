// Package cleanup implements retention: failed and abandoned uploads are
// removed from storage and from the metadata store after a configured age.
package cleanup

import (
	"context"
	"log"
	"time"

	"github.com/JLAD75/FileGuard/internal/backend"
	"github.com/JLAD75/FileGuard/internal/models"
	"github.com/JLAD75/FileGuard/internal/store"
)

// Stats summarizes one cleanup run.
type Stats struct {
	Deleted int `json:"deleted_files"`
	Failed  int `json:"failed_deletions"`
}

// Janitor runs retention cleanup jobs.
type Janitor struct {
	store   store.Store
	backend backend.Backend
}

func NewJanitor(st store.Store, be backend.Backend) *Janitor {
	return &Janitor{store: st, backend: be}
}

// Run deletes every failed upload and every pending upload older than the
// given number of days, cascading deletion to the backing storage object.
// An object already absent from storage does not block record deletion:
// pending uploads may never have assembled one. Per-file failures are
// counted, logged and skipped; the run continues.
func (j *Janitor) Run(ctx context.Context, days int) (Stats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	expired, err := j.store.ListExpired(ctx, cutoff)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, rec := range expired {
		if _, err := j.backend.DeleteFile(ctx, rec.ID, rec.OwnerID); err != nil {
			stats.Failed++
			log.Printf("[Cleanup] failed to delete storage object for %s: %v", rec.ID, err)
			continue
		}
		if err := j.store.DeleteFile(ctx, rec.ID); err != nil {
			stats.Failed++
			log.Printf("[Cleanup] failed to delete record %s: %v", rec.ID, err)
			continue
		}
		stats.Deleted++
		log.Printf("[Cleanup] deleted file %s", rec.ID)
	}

	event := models.AuditEvent{
		ActorID: nil, // system action
		Action:  models.ActionSystemCleanup,
		Details: map[string]interface{}{
			"deleted_files":    stats.Deleted,
			"failed_deletions": stats.Failed,
			"cutoff_date":      cutoff.Format(time.RFC3339),
		},
	}
	if err := j.store.RecordAudit(ctx, event); err != nil {
		return stats, err
	}

	log.Printf("[Cleanup] completed: %d deleted, %d failed", stats.Deleted, stats.Failed)
	return stats, nil
}
