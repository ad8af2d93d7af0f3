package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JLAD75/FileGuard/internal/configuration"
)

// MinIOBackend stores chunks and files as objects in a MinIO bucket.
type MinIOBackend struct {
	client *minio.Client
	bucket string
}

func NewMinIOBackend(cfg configuration.MinIOConfig) (*MinIOBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	b := &MinIOBackend{client: client, bucket: cfg.BucketName}
	if err := b.ensureBucket(context.Background()); err != nil {
		return nil, err
	}
	log.Printf("[Backend] connected to MinIO at %s (bucket %s)", cfg.Endpoint, cfg.BucketName)
	return b, nil
}

func (m *MinIOBackend) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Printf("[Backend] created bucket %s", m.bucket)
	}
	return nil
}

func minioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject"
}

func (m *MinIOBackend) UploadChunk(ctx context.Context, fileID string, chunkIndex int, data []byte, userID string) (string, error) {
	key := ChunkKey(fileID, chunkIndex, userID)
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to upload chunk %d: %w", chunkIndex, err)
	}
	return key, nil
}

func (m *MinIOBackend) FinalizeUpload(ctx context.Context, fileID string, totalChunks int, userID string) (string, error) {
	finalKey := FileKey(fileID, userID)

	var combined bytes.Buffer
	for i := 0; i < totalChunks; i++ {
		key := ChunkKey(fileID, i, userID)
		obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to read chunk %d: %w", i, err)
		}
		_, err = io.Copy(&combined, obj)
		obj.Close()
		if err != nil {
			if minioNotFound(err) {
				return "", &MissingChunkError{Index: i}
			}
			return "", fmt.Errorf("failed to read chunk %d: %w", i, err)
		}
	}

	_, err := m.client.PutObject(ctx, m.bucket, finalKey, bytes.NewReader(combined.Bytes()), int64(combined.Len()), minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to write assembled object: %w", err)
	}

	for i := 0; i < totalChunks; i++ {
		key := ChunkKey(fileID, i, userID)
		if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			log.Printf("[Backend] warning: failed to clean up chunk %s: %v", key, err)
		}
	}

	return finalKey, nil
}

func (m *MinIOBackend) DownloadFile(ctx context.Context, fileID, userID string) (io.ReadCloser, error) {
	key := FileKey(fileID, userID)

	// GetObject defers errors until first read; stat first so an absent
	// object fails the call itself.
	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minioNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return obj, nil
}

func (m *MinIOBackend) DeleteFile(ctx context.Context, fileID, userID string) (bool, error) {
	key := FileKey(fileID, userID)
	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minioNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("failed to delete object: %w", err)
	}
	return true, nil
}

func (m *MinIOBackend) GetFileSize(ctx context.Context, fileID, userID string) (int64, error) {
	info, err := m.client.StatObject(ctx, m.bucket, FileKey(fileID, userID), minio.StatObjectOptions{})
	if err != nil {
		if minioNotFound(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to stat object: %w", err)
	}
	return info.Size, nil
}

func (m *MinIOBackend) FileExists(ctx context.Context, fileID, userID string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, FileKey(fileID, userID), minio.StatObjectOptions{})
	if err != nil {
		if minioNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

func (m *MinIOBackend) CopyFile(ctx context.Context, sourceID, destID, userID string) (bool, error) {
	src := minio.CopySrcOptions{Bucket: m.bucket, Object: FileKey(sourceID, userID)}
	dst := minio.CopyDestOptions{Bucket: m.bucket, Object: FileKey(destID, userID)}
	if _, err := m.client.CopyObject(ctx, dst, src); err != nil {
		if minioNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to copy object: %w", err)
	}
	return true, nil
}

var _ Backend = (*MinIOBackend)(nil)
