package models

import (
	"time"
)

// UploadStatus tracks the multi-part upload lifecycle of a file.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadComplete  UploadStatus = "complete"
	UploadFailed    UploadStatus = "failed"
)

// ScanStatus tracks the antivirus verdict for a file. Transitions only move
// forward: pending -> scanning -> one of clean/infected/error/skipped.
type ScanStatus string

const (
	ScanPending  ScanStatus = "pending"
	ScanScanning ScanStatus = "scanning"
	ScanClean    ScanStatus = "clean"
	ScanInfected ScanStatus = "infected"
	ScanError    ScanStatus = "error"
	ScanSkipped  ScanStatus = "skipped"
)

// Terminal reports whether no further scan transition is expected. A record
// in a terminal state is only re-scanned via an explicit re-scan request that
// resets it to pending.
func (s ScanStatus) Terminal() bool {
	switch s {
	case ScanClean, ScanInfected, ScanSkipped:
		return true
	}
	return false
}

// FileRecord is the durable metadata row for one logical file. Storage bytes
// are addressed only through ID/OwnerID, never by raw path.
type FileRecord struct {
	ID            string       `json:"id"`
	OwnerID       string       `json:"owner_id"`
	SizeBytes     int64        `json:"size_bytes"`
	MimeType      string       `json:"mime_type"`
	EncryptedName string       `json:"encrypted_name"`
	WrappedDEK    string       `json:"wrapped_dek"`
	UploadStatus  UploadStatus `json:"upload_status"`
	ScanStatus    ScanStatus   `json:"scan_status"`
	ScanResult    string       `json:"scan_result,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Audit action tags.
const (
	ActionUploadComplete = "file_upload_complete"
	ActionScanInfected   = "file_scan_infected"
	ActionFileDeleted    = "file_deleted"
	ActionSystemCleanup  = "system_cleanup"
)

// AuditEvent is one append-only record of a security-relevant action.
// ActorID is nil for system-initiated actions such as retention cleanup.
type AuditEvent struct {
	ID        string                 `json:"id"`
	ActorID   *string                `json:"actor_id"`
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details"`
	Timestamp time.Time              `json:"timestamp"`
}
