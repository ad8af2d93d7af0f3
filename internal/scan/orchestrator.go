package scan

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/JLAD75/FileGuard/internal/backend"
	"github.com/JLAD75/FileGuard/internal/models"
	"github.com/JLAD75/FileGuard/internal/queue"
	"github.com/JLAD75/FileGuard/internal/store"
)

// Result text for files the daemon cleared.
const resultClean = "No threats detected"

// Orchestrator processes scan jobs from the queue: it moves a file's scan
// status forward through pending -> scanning -> {clean, infected, error,
// skipped} and never backward.
type Orchestrator struct {
	store   store.Store
	backend backend.Backend
	scanner Scanner
	enabled bool
}

// NewOrchestrator wires the orchestrator. With enabled=false every job
// completes immediately as skipped and the scanner is never called.
func NewOrchestrator(st store.Store, be backend.Backend, scanner Scanner, enabled bool) *Orchestrator {
	return &Orchestrator{store: st, backend: be, scanner: scanner, enabled: enabled}
}

// ProcessJob runs one scan attempt. A returned error means the attempt
// failed and the job should be redelivered; nil means the job is finished,
// whatever the verdict. Jobs are safe to repeat: a file already in a
// terminal state is left untouched.
func (o *Orchestrator) ProcessJob(ctx context.Context, job queue.ScanJob) error {
	rec, err := o.store.GetFile(ctx, job.FileID, job.OwnerID)
	if err != nil {
		return fmt.Errorf("scan job for %s: %w", job.FileID, err)
	}

	if rec.ScanStatus.Terminal() {
		log.Printf("[Scan] file %s already %s, skipping", rec.ID, rec.ScanStatus)
		return nil
	}
	if rec.UploadStatus != models.UploadComplete {
		return fmt.Errorf("file %s upload not complete (status %s)", rec.ID, rec.UploadStatus)
	}

	// Commit scanning before touching the daemon, so a crash mid-scan is
	// externally observable.
	if err := o.store.UpdateScanStatus(ctx, rec.ID, models.ScanScanning, ""); err != nil {
		return fmt.Errorf("failed to mark %s scanning: %w", rec.ID, err)
	}

	if !o.enabled {
		log.Printf("[Scan] ClamAV disabled, skipping scan for %s", rec.ID)
		return o.store.UpdateScanStatus(ctx, rec.ID, models.ScanSkipped, "ClamAV disabled")
	}

	if err := o.scanner.Ping(); err != nil {
		// Daemon unreachable: leave the record in scanning and let the
		// queue redeliver.
		return fmt.Errorf("scan of %s: %w", rec.ID, err)
	}

	data, err := o.readFile(ctx, rec)
	if err != nil {
		o.setErrorBestEffort(ctx, rec.ID, err)
		return fmt.Errorf("failed to read %s for scanning: %w", rec.ID, err)
	}

	result, err := o.scanner.ScanBytes(data)
	if err != nil {
		o.setErrorBestEffort(ctx, rec.ID, err)
		return fmt.Errorf("scan of %s: %w", rec.ID, err)
	}

	switch result.Verdict {
	case VerdictClean:
		if err := o.store.UpdateScanStatus(ctx, rec.ID, models.ScanClean, resultClean); err != nil {
			return fmt.Errorf("failed to mark %s clean: %w", rec.ID, err)
		}
		log.Printf("[Scan] file %s is clean", rec.ID)

	case VerdictInfected:
		owner := rec.OwnerID
		event := models.AuditEvent{
			ActorID: &owner,
			Action:  models.ActionScanInfected,
			Details: map[string]interface{}{
				"file_id":    rec.ID,
				"virus_name": result.VirusName,
				"severity":   "critical",
			},
		}
		resultText := fmt.Sprintf("Virus found: %s", result.VirusName)
		if err := o.store.MarkInfected(ctx, rec.ID, resultText, event); err != nil {
			return fmt.Errorf("failed to mark %s infected: %w", rec.ID, err)
		}
		log.Printf("[Scan] virus detected in %s: %s", rec.ID, result.VirusName)

	default:
		if err := o.store.UpdateScanStatus(ctx, rec.ID, models.ScanError, result.Message); err != nil {
			return fmt.Errorf("failed to mark %s errored: %w", rec.ID, err)
		}
		log.Printf("[Scan] scan error for %s: %s", rec.ID, result.Message)
	}

	return nil
}

// readFile buffers the whole object in memory; the daemon scans complete
// content, not partial streams.
func (o *Orchestrator) readFile(ctx context.Context, rec *models.FileRecord) ([]byte, error) {
	stream, err := o.backend.DownloadFile(ctx, rec.ID, rec.OwnerID)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return io.ReadAll(stream)
}

func (o *Orchestrator) setErrorBestEffort(ctx context.Context, fileID string, cause error) {
	msg := fmt.Sprintf("Scan failed: %v", cause)
	if err := o.store.UpdateScanStatus(ctx, fileID, models.ScanError, msg); err != nil {
		log.Printf("[Scan] warning: failed to record scan error for %s: %v", fileID, err)
	}
}
