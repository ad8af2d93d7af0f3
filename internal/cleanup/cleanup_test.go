package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JLAD75/FileGuard/internal/backend"
	"github.com/JLAD75/FileGuard/internal/models"
	"github.com/JLAD75/FileGuard/internal/store"
)

func seedRecord(t *testing.T, st *store.MemoryStore, id string, status models.UploadStatus, age time.Duration) {
	t.Helper()
	created := time.Now().UTC().Add(-age)
	require.NoError(t, st.CreateFile(context.Background(), &models.FileRecord{
		ID:           id,
		OwnerID:      "alice",
		UploadStatus: status,
		ScanStatus:   models.ScanPending,
		CreatedAt:    created,
		UpdatedAt:    created,
	}))
}

func TestRunDeletesFailedAndStalePending(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	be, err := backend.NewLocalBackend(t.TempDir())
	require.NoError(t, err)

	// A failed upload with an assembled object left behind.
	seedRecord(t, st, "failed-old", models.UploadFailed, 91*24*time.Hour)
	_, err = be.UploadChunk(ctx, "failed-old", 0, []byte("orphan"), "alice")
	require.NoError(t, err)
	_, err = be.FinalizeUpload(ctx, "failed-old", 1, "alice")
	require.NoError(t, err)

	// A pending upload abandoned before any object was assembled.
	seedRecord(t, st, "pending-old", models.UploadPending, 91*24*time.Hour)

	// Fresh pending and complete uploads must survive.
	seedRecord(t, st, "pending-fresh", models.UploadPending, time.Hour)
	seedRecord(t, st, "complete-old", models.UploadComplete, 200*24*time.Hour)

	stats, err := NewJanitor(st, be).Run(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, Stats{Deleted: 2, Failed: 0}, stats)

	_, err = st.GetFile(ctx, "failed-old", "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetFile(ctx, "pending-old", "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.GetFile(ctx, "pending-fresh", "alice")
	assert.NoError(t, err)
	_, err = st.GetFile(ctx, "complete-old", "alice")
	assert.NoError(t, err)

	exists, err := be.FileExists(ctx, "failed-old", "alice")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunRecordsSystemAudit(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	be, err := backend.NewLocalBackend(t.TempDir())
	require.NoError(t, err)

	seedRecord(t, st, "failed-1", models.UploadFailed, time.Hour)

	stats, err := NewJanitor(st, be).Run(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)

	events := st.AuditEvents()
	require.Len(t, events, 1)
	assert.Equal(t, models.ActionSystemCleanup, events[0].Action)
	assert.Nil(t, events[0].ActorID)
	assert.Equal(t, 1, events[0].Details["deleted_files"])
	assert.Equal(t, 0, events[0].Details["failed_deletions"])
	assert.NotEmpty(t, events[0].Details["cutoff_date"])
}

func TestRunEmptySet(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	be, err := backend.NewLocalBackend(t.TempDir())
	require.NoError(t, err)

	stats, err := NewJanitor(st, be).Run(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)

	// An empty run still leaves an audit trail entry.
	events := st.AuditEvents()
	require.Len(t, events, 1)
	assert.Equal(t, models.ActionSystemCleanup, events[0].Action)
}
