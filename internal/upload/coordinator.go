// Package upload owns the chunk-receive / finalize / cleanup protocol
// against a chosen storage backend.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JLAD75/FileGuard/internal/backend"
	"github.com/JLAD75/FileGuard/internal/models"
	"github.com/JLAD75/FileGuard/internal/queue"
	"github.com/JLAD75/FileGuard/internal/store"
)

// InitRequest declares a new file before any bytes are sent. The name and
// data-encryption key arrive already encrypted; the coordinator stores them
// opaquely.
type InitRequest struct {
	SizeBytes     int64  `json:"size_bytes"`
	MimeType      string `json:"mime_type"`
	EncryptedName string `json:"encrypted_name"`
	WrappedDEK    string `json:"wrapped_dek"`
}

// Coordinator drives the upload state machine:
// pending -> uploading -> {complete, failed}.
type Coordinator struct {
	store   store.Store
	backend backend.Backend
	jobs    queue.Publisher
	locks   lockTable
}

func NewCoordinator(st store.Store, be backend.Backend, jobs queue.Publisher) *Coordinator {
	return &Coordinator{store: st, backend: be, jobs: jobs}
}

// Init creates the FileRecord in pending; no storage bytes exist yet.
func (c *Coordinator) Init(ctx context.Context, ownerID string, req InitRequest) (*models.FileRecord, error) {
	now := time.Now().UTC()
	rec := &models.FileRecord{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		SizeBytes:     req.SizeBytes,
		MimeType:      req.MimeType,
		EncryptedName: req.EncryptedName,
		WrappedDEK:    req.WrappedDEK,
		UploadStatus:  models.UploadPending,
		ScanStatus:    models.ScanPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.store.CreateFile(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ReceiveChunk persists one chunk after verifying ownership. Chunks may
// arrive in any order and are delivered at least once; a resend of the same
// index overwrites silently. A storage failure moves the record to failed;
// already-written chunks are left for retention cleanup.
func (c *Coordinator) ReceiveChunk(ctx context.Context, fileID, ownerID string, chunkIndex int, data []byte) error {
	rec, err := c.store.GetFile(ctx, fileID, ownerID)
	if err != nil {
		return err
	}

	if _, err := c.backend.UploadChunk(ctx, fileID, chunkIndex, data, ownerID); err != nil {
		if uerr := c.store.UpdateUploadStatus(ctx, fileID, models.UploadFailed); uerr != nil {
			log.Printf("[Upload] warning: failed to mark %s failed: %v", fileID, uerr)
		}
		return fmt.Errorf("failed to store chunk %d: %w", chunkIndex, err)
	}

	// Informational only; correctness does not depend on this flip.
	if rec.UploadStatus == models.UploadPending {
		if err := c.store.UpdateUploadStatus(ctx, fileID, models.UploadUploading); err != nil {
			log.Printf("[Upload] warning: failed to mark %s uploading: %v", fileID, err)
		}
	}
	return nil
}

// Complete assembles the declared chunk set into one object and marks the
// upload complete. Finalize is serialized per file id; a second Complete on
// an already-complete record is a no-op. A missing chunk leaves the status
// unchanged so the client can resend and retry; any other assembly failure
// is terminal.
func (c *Coordinator) Complete(ctx context.Context, fileID, ownerID string, totalChunks int) (*models.FileRecord, error) {
	unlock := c.locks.acquire(fileID)
	defer unlock()

	rec, err := c.store.GetFile(ctx, fileID, ownerID)
	if err != nil {
		return nil, err
	}
	if rec.UploadStatus == models.UploadComplete {
		return rec, nil
	}

	if _, err := c.backend.FinalizeUpload(ctx, fileID, totalChunks, ownerID); err != nil {
		var missing *backend.MissingChunkError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("upload incomplete: %w", err)
		}
		if uerr := c.store.UpdateUploadStatus(ctx, fileID, models.UploadFailed); uerr != nil {
			log.Printf("[Upload] warning: failed to mark %s failed: %v", fileID, uerr)
		}
		return nil, fmt.Errorf("failed to assemble file: %w", err)
	}

	if err := c.store.UpdateUploadStatus(ctx, fileID, models.UploadComplete); err != nil {
		return nil, err
	}
	rec.UploadStatus = models.UploadComplete

	event := models.AuditEvent{
		ActorID: &ownerID,
		Action:  models.ActionUploadComplete,
		Details: map[string]interface{}{
			"file_id":      fileID,
			"size_bytes":   rec.SizeBytes,
			"total_chunks": totalChunks,
		},
	}
	if err := c.store.RecordAudit(ctx, event); err != nil {
		log.Printf("[Upload] warning: failed to record audit event for %s: %v", fileID, err)
	}

	// Fire-and-forget handoff: the caller never waits on scan completion.
	if err := c.jobs.EnqueueScan(ctx, fileID, ownerID); err != nil {
		log.Printf("[Upload] warning: failed to enqueue scan for %s: %v", fileID, err)
	}

	return rec, nil
}

// Download opens a streaming read of the assembled object after verifying
// ownership.
func (c *Coordinator) Download(ctx context.Context, fileID, ownerID string) (*models.FileRecord, io.ReadCloser, error) {
	rec, err := c.store.GetFile(ctx, fileID, ownerID)
	if err != nil {
		return nil, nil, err
	}
	stream, err := c.backend.DownloadFile(ctx, fileID, ownerID)
	if err != nil {
		return nil, nil, err
	}
	return rec, stream, nil
}

// Delete removes the storage object and the record.
func (c *Coordinator) Delete(ctx context.Context, fileID, ownerID string) error {
	if _, err := c.store.GetFile(ctx, fileID, ownerID); err != nil {
		return err
	}
	if _, err := c.backend.DeleteFile(ctx, fileID, ownerID); err != nil {
		return fmt.Errorf("failed to delete storage object: %w", err)
	}
	if err := c.store.DeleteFile(ctx, fileID); err != nil {
		return err
	}
	event := models.AuditEvent{
		ActorID: &ownerID,
		Action:  models.ActionFileDeleted,
		Details: map[string]interface{}{"file_id": fileID},
	}
	if err := c.store.RecordAudit(ctx, event); err != nil {
		log.Printf("[Upload] warning: failed to record audit event for %s: %v", fileID, err)
	}
	return nil
}

// Snapshot copies a completed file's object under a new id, creating a
// version snapshot record. The snapshot inherits the source's scan verdict
// since the bytes are identical.
func (c *Coordinator) Snapshot(ctx context.Context, fileID, ownerID string) (*models.FileRecord, error) {
	src, err := c.store.GetFile(ctx, fileID, ownerID)
	if err != nil {
		return nil, err
	}
	if src.UploadStatus != models.UploadComplete {
		return nil, fmt.Errorf("cannot snapshot file %s: upload not complete", fileID)
	}

	destID := uuid.New().String()
	copied, err := c.backend.CopyFile(ctx, fileID, destID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to copy storage object: %w", err)
	}
	if !copied {
		return nil, backend.ErrNotFound
	}

	now := time.Now().UTC()
	snapshot := &models.FileRecord{
		ID:            destID,
		OwnerID:       ownerID,
		SizeBytes:     src.SizeBytes,
		MimeType:      src.MimeType,
		EncryptedName: src.EncryptedName,
		WrappedDEK:    src.WrappedDEK,
		UploadStatus:  models.UploadComplete,
		ScanStatus:    src.ScanStatus,
		ScanResult:    src.ScanResult,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.store.CreateFile(ctx, snapshot); err != nil {
		if _, derr := c.backend.DeleteFile(ctx, destID, ownerID); derr != nil {
			log.Printf("[Upload] warning: failed to clean up snapshot object %s: %v", destID, derr)
		}
		return nil, err
	}
	return snapshot, nil
}

// lockTable hands out one mutex per in-flight file id so two Complete calls
// racing on the same file serialize instead of assembling concurrently.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*fileLock
}

type fileLock struct {
	mu   sync.Mutex
	refs int
}

func (t *lockTable) acquire(key string) (release func()) {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*fileLock)
	}
	l, ok := t.locks[key]
	if !ok {
		l = &fileLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}
