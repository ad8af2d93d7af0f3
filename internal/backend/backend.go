// Package backend provides the storage backend abstraction: uniform chunk
// and file operations over one physical medium (local filesystem, S3 or
// MinIO). All backends share the same key addressing scheme, so data written
// by one backend can be served by another pointed at the same medium.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// DownloadChunkSize caps how much a download stream yields per read.
const DownloadChunkSize = 64 * 1024

// ErrNotFound is returned when the addressed object does not exist. It is
// terminal for the call; every other backend failure is treated as retryable.
var ErrNotFound = errors.New("object not found")

// MissingChunkError reports a gap in the chunk working set at finalize time.
// The caller must resend the missing chunk; nothing has been assembled.
type MissingChunkError struct {
	Index int
}

func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("chunk %d not found", e.Index)
}

// Backend is the capability set every storage variant implements. Operations
// are keyed by (fileID, userID[, chunkIndex]); callers never see raw paths.
type Backend interface {
	// UploadChunk persists one chunk. Safe to call concurrently for
	// different indices of the same file; chunks may arrive in any order.
	// A resend of the same index overwrites silently.
	UploadChunk(ctx context.Context, fileID string, chunkIndex int, data []byte, userID string) (string, error)

	// FinalizeUpload reads chunks 0..totalChunks-1 in index order,
	// concatenates them into one object at the canonical file key and
	// removes the chunk working set (best effort). A missing index fails
	// with *MissingChunkError.
	FinalizeUpload(ctx context.Context, fileID string, totalChunks int, userID string) (string, error)

	// DownloadFile opens a streaming read of the assembled object.
	// The stream is restartable from scratch, not resumable mid-stream.
	DownloadFile(ctx context.Context, fileID, userID string) (io.ReadCloser, error)

	// DeleteFile removes the assembled object. Returns false without error
	// when the object was already absent.
	DeleteFile(ctx context.Context, fileID, userID string) (bool, error)

	GetFileSize(ctx context.Context, fileID, userID string) (int64, error)

	FileExists(ctx context.Context, fileID, userID string) (bool, error)

	// CopyFile duplicates the assembled object under a new file id; this
	// underlies version snapshotting. Returns false when the source is
	// absent.
	CopyFile(ctx context.Context, sourceID, destID, userID string) (bool, error)
}

// FileKey is the canonical key of an assembled file. Every backend must use
// this scheme so backends stay interchangeable.
func FileKey(fileID, userID string) string {
	return fmt.Sprintf("users/%s/files/%s", userID, fileID)
}

// ChunkKey is the key of one stored chunk, index zero-padded to 6 digits so
// lexical order matches index order.
func ChunkKey(fileID string, chunkIndex int, userID string) string {
	return fmt.Sprintf("users/%s/chunks/%s/%06d", userID, fileID, chunkIndex)
}

// ChunkPrefix addresses the whole chunk working set of a file.
func ChunkPrefix(fileID, userID string) string {
	return fmt.Sprintf("users/%s/chunks/%s/", userID, fileID)
}
