// Package store persists FileRecord metadata and the append-only audit
// trail. The Backend owns the bytes; this package owns everything about them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/JLAD75/FileGuard/internal/models"
)

// ErrNotFound is returned when no record matches, including ownership
// mismatches: a caller asking for another user's file learns nothing beyond
// "not found".
var ErrNotFound = errors.New("file record not found")

// Store is the metadata persistence contract consumed by the upload
// coordinator, the scan orchestrator and the cleanup job.
type Store interface {
	CreateFile(ctx context.Context, rec *models.FileRecord) error

	// GetFile loads a record scoped to its owner. Returns ErrNotFound when
	// the id does not exist or belongs to someone else.
	GetFile(ctx context.Context, fileID, ownerID string) (*models.FileRecord, error)

	ListFiles(ctx context.Context, ownerID string) ([]models.FileRecord, error)

	UpdateUploadStatus(ctx context.Context, fileID string, status models.UploadStatus) error

	UpdateScanStatus(ctx context.Context, fileID string, status models.ScanStatus, result string) error

	// MarkInfected commits the infected verdict and its audit event
	// atomically; the event is the canonical proof of the detection and
	// must not be lost if the process dies between the two writes.
	MarkInfected(ctx context.Context, fileID, result string, event models.AuditEvent) error

	// ListExpired returns records eligible for retention cleanup: failed
	// uploads, and pending uploads created before the cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]models.FileRecord, error)

	DeleteFile(ctx context.Context, fileID string) error

	RecordAudit(ctx context.Context, event models.AuditEvent) error
}
