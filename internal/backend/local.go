package backend

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// LocalBackend stores chunks and files on the local filesystem under a
// configured root. Keys map directly to paths below the root.
type LocalBackend struct {
	root string
}

func NewLocalBackend(root string) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	log.Printf("[Backend] local storage initialized at %s", root)
	return &LocalBackend{root: root}, nil
}

func (l *LocalBackend) filePath(fileID, userID string) string {
	return filepath.Join(l.root, filepath.FromSlash(FileKey(fileID, userID)))
}

func (l *LocalBackend) chunkPath(fileID string, chunkIndex int, userID string) string {
	return filepath.Join(l.root, filepath.FromSlash(ChunkKey(fileID, chunkIndex, userID)))
}

func (l *LocalBackend) UploadChunk(ctx context.Context, fileID string, chunkIndex int, data []byte, userID string) (string, error) {
	path := l.chunkPath(fileID, chunkIndex, userID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create chunk directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write chunk %d: %w", chunkIndex, err)
	}
	return ChunkKey(fileID, chunkIndex, userID), nil
}

func (l *LocalBackend) FinalizeUpload(ctx context.Context, fileID string, totalChunks int, userID string) (string, error) {
	finalPath := l.filePath(fileID, userID)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create file directory: %w", err)
	}

	// Assemble into a temp file first, rename into place once complete, so
	// a crash mid-assembly never leaves a partial object at the file key.
	tempPath := finalPath + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	for i := 0; i < totalChunks; i++ {
		chunk, err := os.Open(l.chunkPath(fileID, i, userID))
		if err != nil {
			out.Close()
			os.Remove(tempPath)
			if os.IsNotExist(err) {
				return "", &MissingChunkError{Index: i}
			}
			return "", fmt.Errorf("failed to open chunk %d: %w", i, err)
		}
		if _, err := io.Copy(out, chunk); err != nil {
			chunk.Close()
			out.Close()
			os.Remove(tempPath)
			return "", fmt.Errorf("failed to append chunk %d: %w", i, err)
		}
		chunk.Close()
	}

	if err := out.Close(); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to flush assembled file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to move assembled file into place: %w", err)
	}

	chunksDir := filepath.Dir(l.chunkPath(fileID, 0, userID))
	if err := os.RemoveAll(chunksDir); err != nil {
		log.Printf("[Backend] warning: failed to clean up chunks for %s: %v", fileID, err)
	}

	return FileKey(fileID, userID), nil
}

func (l *LocalBackend) DownloadFile(ctx context.Context, fileID, userID string) (io.ReadCloser, error) {
	f, err := os.Open(l.filePath(fileID, userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

func (l *LocalBackend) DeleteFile(ctx context.Context, fileID, userID string) (bool, error) {
	err := os.Remove(l.filePath(fileID, userID))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete file: %w", err)
	}
	return true, nil
}

func (l *LocalBackend) GetFileSize(ctx context.Context, fileID, userID string) (int64, error) {
	info, err := os.Stat(l.filePath(fileID, userID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.Size(), nil
}

func (l *LocalBackend) FileExists(ctx context.Context, fileID, userID string) (bool, error) {
	_, err := os.Stat(l.filePath(fileID, userID))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return true, nil
}

func (l *LocalBackend) CopyFile(ctx context.Context, sourceID, destID, userID string) (bool, error) {
	src, err := os.Open(l.filePath(sourceID, userID))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	destPath := l.filePath(destID, userID)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return false, fmt.Errorf("failed to create file directory: %w", err)
	}
	dst, err := os.Create(destPath)
	if err != nil {
		return false, fmt.Errorf("failed to create destination file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(destPath)
		return false, fmt.Errorf("failed to copy file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(destPath)
		return false, fmt.Errorf("failed to flush copied file: %w", err)
	}
	return true, nil
}

var _ Backend = (*LocalBackend)(nil)
