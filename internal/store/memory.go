package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JLAD75/FileGuard/internal/models"
)

// MemoryStore is an in-memory Store used in tests and small single-process
// deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.FileRecord
	events  []models.AuditEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.FileRecord)}
}

func (m *MemoryStore) CreateFile(ctx context.Context, rec *models.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = *rec
	return nil
}

func (m *MemoryStore) GetFile(ctx context.Context, fileID, ownerID string) (*models.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[fileID]
	if !ok || rec.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *MemoryStore) ListFiles(ctx context.Context, ownerID string) ([]models.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []models.FileRecord
	for _, rec := range m.records {
		if rec.OwnerID == ownerID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (m *MemoryStore) UpdateUploadStatus(ctx context.Context, fileID string, status models.UploadStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[fileID]
	if !ok {
		return ErrNotFound
	}
	rec.UploadStatus = status
	rec.UpdatedAt = time.Now().UTC()
	m.records[fileID] = rec
	return nil
}

func (m *MemoryStore) UpdateScanStatus(ctx context.Context, fileID string, status models.ScanStatus, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[fileID]
	if !ok {
		return ErrNotFound
	}
	rec.ScanStatus = status
	rec.ScanResult = result
	rec.UpdatedAt = time.Now().UTC()
	m.records[fileID] = rec
	return nil
}

func (m *MemoryStore) MarkInfected(ctx context.Context, fileID, result string, event models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[fileID]
	if !ok {
		return ErrNotFound
	}
	rec.ScanStatus = models.ScanInfected
	rec.ScanResult = result
	rec.UpdatedAt = time.Now().UTC()
	m.records[fileID] = rec
	m.events = append(m.events, stamped(event))
	return nil
}

func (m *MemoryStore) ListExpired(ctx context.Context, cutoff time.Time) ([]models.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []models.FileRecord
	for _, rec := range m.records {
		if rec.UploadStatus == models.UploadFailed ||
			(rec.UploadStatus == models.UploadPending && rec.CreatedAt.Before(cutoff)) {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (m *MemoryStore) DeleteFile(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[fileID]; !ok {
		return ErrNotFound
	}
	delete(m.records, fileID)
	return nil
}

func (m *MemoryStore) RecordAudit(ctx context.Context, event models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, stamped(event))
	return nil
}

// AuditEvents returns a copy of all recorded events, oldest first.
func (m *MemoryStore) AuditEvents() []models.AuditEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AuditEvent, len(m.events))
	copy(out, m.events)
	return out
}

func stamped(event models.AuditEvent) models.AuditEvent {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}

var _ Store = (*MemoryStore)(nil)
