package upload

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JLAD75/FileGuard/internal/backend"
	"github.com/JLAD75/FileGuard/internal/models"
	"github.com/JLAD75/FileGuard/internal/store"
)

// fakePublisher records enqueued scan jobs instead of touching NATS.
type fakePublisher struct {
	scans    []string
	cleanups []int
	err      error
}

func (f *fakePublisher) EnqueueScan(ctx context.Context, fileID, ownerID string) error {
	if f.err != nil {
		return f.err
	}
	f.scans = append(f.scans, fileID)
	return nil
}

func (f *fakePublisher) EnqueueCleanup(ctx context.Context, days int) error {
	f.cleanups = append(f.cleanups, days)
	return nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *store.MemoryStore, *fakePublisher) {
	t.Helper()
	be, err := backend.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	st := store.NewMemoryStore()
	jobs := &fakePublisher{}
	return NewCoordinator(st, be, jobs), st, jobs
}

func initFile(t *testing.T, c *Coordinator, ownerID string) *models.FileRecord {
	t.Helper()
	rec, err := c.Init(context.Background(), ownerID, InitRequest{
		SizeBytes:     11,
		MimeType:      "text/plain",
		EncryptedName: "enc-name",
		WrappedDEK:    "wrapped-key",
	})
	require.NoError(t, err)
	return rec
}

func TestInitCreatesPendingRecord(t *testing.T) {
	c, st, _ := newTestCoordinator(t)

	rec := initFile(t, c, "alice")
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, models.UploadPending, rec.UploadStatus)
	assert.Equal(t, models.ScanPending, rec.ScanStatus)

	stored, err := st.GetFile(context.Background(), rec.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "enc-name", stored.EncryptedName)
	assert.Equal(t, "wrapped-key", stored.WrappedDEK)
}

func TestFullUploadFlow(t *testing.T) {
	ctx := context.Background()
	c, st, jobs := newTestCoordinator(t)
	rec := initFile(t, c, "alice")

	// Chunks arrive out of order.
	require.NoError(t, c.ReceiveChunk(ctx, rec.ID, "alice", 1, []byte("world")))
	require.NoError(t, c.ReceiveChunk(ctx, rec.ID, "alice", 0, []byte("hello ")))

	mid, err := st.GetFile(ctx, rec.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.UploadUploading, mid.UploadStatus)

	done, err := c.Complete(ctx, rec.ID, "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, models.UploadComplete, done.UploadStatus)

	got, stream, err := c.Download(ctx, rec.ID, "alice")
	require.NoError(t, err)
	defer stream.Close()
	content, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), content)
	assert.Equal(t, models.UploadComplete, got.UploadStatus)

	// Exactly one scan job and one audit trail entry.
	assert.Equal(t, []string{rec.ID}, jobs.scans)
	events := st.AuditEvents()
	require.Len(t, events, 1)
	assert.Equal(t, models.ActionUploadComplete, events[0].Action)
	require.NotNil(t, events[0].ActorID)
	assert.Equal(t, "alice", *events[0].ActorID)
	assert.Equal(t, rec.ID, events[0].Details["file_id"])
}

func TestCompleteMissingChunkKeepsStatus(t *testing.T) {
	ctx := context.Background()
	c, st, jobs := newTestCoordinator(t)
	rec := initFile(t, c, "alice")

	require.NoError(t, c.ReceiveChunk(ctx, rec.ID, "alice", 0, []byte("zero")))
	require.NoError(t, c.ReceiveChunk(ctx, rec.ID, "alice", 2, []byte("two")))

	_, err := c.Complete(ctx, rec.ID, "alice", 3)
	var missing *backend.MissingChunkError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, 1, missing.Index)

	// The record stays resumable: the client can send chunk 1 and retry.
	got, err := st.GetFile(ctx, rec.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.UploadUploading, got.UploadStatus)
	assert.Empty(t, jobs.scans)

	require.NoError(t, c.ReceiveChunk(ctx, rec.ID, "alice", 1, []byte("one")))
	done, err := c.Complete(ctx, rec.ID, "alice", 3)
	require.NoError(t, err)
	assert.Equal(t, models.UploadComplete, done.UploadStatus)
}

func TestCompleteIdempotent(t *testing.T) {
	ctx := context.Background()
	c, st, jobs := newTestCoordinator(t)
	rec := initFile(t, c, "alice")

	require.NoError(t, c.ReceiveChunk(ctx, rec.ID, "alice", 0, []byte("data")))
	_, err := c.Complete(ctx, rec.ID, "alice", 1)
	require.NoError(t, err)

	// Second Complete is a no-op: no new scan job, no new audit entry.
	done, err := c.Complete(ctx, rec.ID, "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, models.UploadComplete, done.UploadStatus)
	assert.Len(t, jobs.scans, 1)
	assert.Len(t, st.AuditEvents(), 1)
}

func TestOwnershipScoping(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCoordinator(t)
	rec := initFile(t, c, "alice")

	err := c.ReceiveChunk(ctx, rec.ID, "mallory", 0, []byte("data"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = c.Complete(ctx, rec.ID, "mallory", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, _, err = c.Download(ctx, rec.ID, "mallory")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = c.Delete(ctx, rec.ID, "mallory")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// brokenBackend fails every chunk write.
type brokenBackend struct {
	backend.Backend
}

func (brokenBackend) UploadChunk(ctx context.Context, fileID string, chunkIndex int, data []byte, userID string) (string, error) {
	return "", errors.New("disk full")
}

func TestChunkFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := NewCoordinator(st, brokenBackend{}, &fakePublisher{})

	rec := initFile(t, c, "alice")
	err := c.ReceiveChunk(ctx, rec.ID, "alice", 0, []byte("data"))
	require.Error(t, err)

	got, err := st.GetFile(ctx, rec.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.UploadFailed, got.UploadStatus)
}

func TestDeleteRemovesObjectAndRecord(t *testing.T) {
	ctx := context.Background()
	c, st, _ := newTestCoordinator(t)
	rec := initFile(t, c, "alice")

	require.NoError(t, c.ReceiveChunk(ctx, rec.ID, "alice", 0, []byte("data")))
	_, err := c.Complete(ctx, rec.ID, "alice", 1)
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, rec.ID, "alice"))

	_, err = st.GetFile(ctx, rec.ID, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)

	events := st.AuditEvents()
	require.Len(t, events, 2)
	assert.Equal(t, models.ActionFileDeleted, events[1].Action)
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	c, st, _ := newTestCoordinator(t)
	rec := initFile(t, c, "alice")

	require.NoError(t, c.ReceiveChunk(ctx, rec.ID, "alice", 0, []byte("v1 content")))
	_, err := c.Complete(ctx, rec.ID, "alice", 1)
	require.NoError(t, err)
	require.NoError(t, st.UpdateScanStatus(ctx, rec.ID, models.ScanClean, "No threats detected"))

	snap, err := c.Snapshot(ctx, rec.ID, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, rec.ID, snap.ID)
	assert.Equal(t, models.UploadComplete, snap.UploadStatus)
	assert.Equal(t, models.ScanClean, snap.ScanStatus)

	_, stream, err := c.Download(ctx, snap.ID, "alice")
	require.NoError(t, err)
	defer stream.Close()
	content, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1 content"), content)
}

func TestSnapshotRequiresCompleteUpload(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	rec := initFile(t, c, "alice")

	_, err := c.Snapshot(context.Background(), rec.ID, "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload not complete")
}
