package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/JLAD75/FileGuard/internal/models"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects, verifies the connection and creates tables.
func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Println("[Store] connected to PostgreSQL")
	return s, nil
}

func (s *PostgresStore) createTables() error {
	query := `
    CREATE TABLE IF NOT EXISTS file_records (
        id UUID PRIMARY KEY,
        owner_id UUID NOT NULL,
        size_bytes BIGINT NOT NULL,
        mime_type VARCHAR(255) NOT NULL,
        encrypted_name TEXT NOT NULL,
        wrapped_dek TEXT NOT NULL,
        upload_status VARCHAR(20) NOT NULL DEFAULT 'pending',
        scan_status VARCHAR(20) NOT NULL DEFAULT 'pending',
        scan_result TEXT,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );

    CREATE INDEX IF NOT EXISTS idx_file_records_owner_id ON file_records(owner_id);
    CREATE INDEX IF NOT EXISTS idx_file_records_upload_status ON file_records(upload_status);
    CREATE INDEX IF NOT EXISTS idx_file_records_scan_status ON file_records(scan_status);

    CREATE TABLE IF NOT EXISTS audit_events (
        id UUID PRIMARY KEY,
        actor_id UUID,
        action VARCHAR(100) NOT NULL,
        details JSONB,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );

    CREATE INDEX IF NOT EXISTS idx_audit_events_action ON audit_events(action);
    `
	_, err := s.db.Exec(query)
	return err
}

func (s *PostgresStore) CreateFile(ctx context.Context, rec *models.FileRecord) error {
	query := `
    INSERT INTO file_records (id, owner_id, size_bytes, mime_type, encrypted_name, wrapped_dek, upload_status, scan_status, created_at, updated_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
    `
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.OwnerID,
		rec.SizeBytes,
		rec.MimeType,
		rec.EncryptedName,
		rec.WrappedDEK,
		rec.UploadStatus,
		rec.ScanStatus,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert file record: %w", err)
	}
	return nil
}

const fileRecordColumns = `id, owner_id, size_bytes, mime_type, encrypted_name, wrapped_dek, upload_status, scan_status, COALESCE(scan_result, ''), created_at, updated_at`

func scanFileRecord(row interface {
	Scan(dest ...interface{}) error
}) (*models.FileRecord, error) {
	var rec models.FileRecord
	err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.SizeBytes,
		&rec.MimeType,
		&rec.EncryptedName,
		&rec.WrappedDEK,
		&rec.UploadStatus,
		&rec.ScanStatus,
		&rec.ScanResult,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) GetFile(ctx context.Context, fileID, ownerID string) (*models.FileRecord, error) {
	query := `SELECT ` + fileRecordColumns + ` FROM file_records WHERE id = $1 AND owner_id = $2`
	rec, err := scanFileRecord(s.db.QueryRowContext(ctx, query, fileID, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load file record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListFiles(ctx context.Context, ownerID string) ([]models.FileRecord, error) {
	query := `SELECT ` + fileRecordColumns + ` FROM file_records WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file records: %w", err)
	}
	defer rows.Close()

	var records []models.FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) UpdateUploadStatus(ctx context.Context, fileID string, status models.UploadStatus) error {
	query := `UPDATE file_records SET upload_status = $1, updated_at = NOW() WHERE id = $2`
	res, err := s.db.ExecContext(ctx, query, status, fileID)
	if err != nil {
		return fmt.Errorf("failed to update upload status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateScanStatus(ctx context.Context, fileID string, status models.ScanStatus, result string) error {
	query := `UPDATE file_records SET scan_status = $1, scan_result = NULLIF($2, ''), updated_at = NOW() WHERE id = $3`
	res, err := s.db.ExecContext(ctx, query, status, result, fileID)
	if err != nil {
		return fmt.Errorf("failed to update scan status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkInfected(ctx context.Context, fileID, result string, event models.AuditEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE file_records SET scan_status = $1, scan_result = $2, updated_at = NOW() WHERE id = $3`
	if _, err := tx.ExecContext(ctx, query, models.ScanInfected, result, fileID); err != nil {
		return fmt.Errorf("failed to mark file infected: %w", err)
	}
	if err := insertAudit(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to record infection audit event: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) ListExpired(ctx context.Context, cutoff time.Time) ([]models.FileRecord, error) {
	query := `SELECT ` + fileRecordColumns + ` FROM file_records
    WHERE upload_status = $1 OR (upload_status = $2 AND created_at < $3)`
	rows, err := s.db.QueryContext(ctx, query, models.UploadFailed, models.UploadPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired records: %w", err)
	}
	defer rows.Close()

	var records []models.FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) DeleteFile(ctx context.Context, fileID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM file_records WHERE id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertAudit(ctx context.Context, e execer, event models.AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}
	id := event.ID
	if id == "" {
		id = uuid.New().String()
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = e.ExecContext(ctx,
		`INSERT INTO audit_events (id, actor_id, action, details, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, event.ActorID, event.Action, details, ts,
	)
	return err
}

func (s *PostgresStore) RecordAudit(ctx context.Context, event models.AuditEvent) error {
	if err := insertAudit(ctx, s.db, event); err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
