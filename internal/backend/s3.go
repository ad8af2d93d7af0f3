package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/JLAD75/FileGuard/internal/configuration"
)

// S3Backend stores chunks and files as objects in an S3 bucket. A custom
// endpoint makes it usable against any S3-compatible service.
type S3Backend struct {
	client *s3.Client
	bucket string
}

func NewS3Backend(cfg configuration.S3Config) (*S3Backend, error) {
	ctx := context.Background()

	var awsCfg aws.Config
	var err error
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey, cfg.SecretKey, "")),
		)
	} else {
		// Fall back to the default chain (environment, IAM role, etc).
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	b := &S3Backend{client: client, bucket: cfg.Bucket}
	if err := b.ensureBucket(ctx); err != nil {
		return nil, err
	}
	log.Printf("[Backend] connected to S3 (bucket %s, region %s)", cfg.Bucket, cfg.Region)
	return b, nil
}

func (s *S3Backend) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	var nf *types.NotFound
	if !errors.As(err, &nf) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	log.Printf("[Backend] created bucket %s", s.bucket)
	return nil
}

func s3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (s *S3Backend) UploadChunk(ctx context.Context, fileID string, chunkIndex int, data []byte, userID string) (string, error) {
	key := ChunkKey(fileID, chunkIndex, userID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload chunk %d: %w", chunkIndex, err)
	}
	return key, nil
}

func (s *S3Backend) FinalizeUpload(ctx context.Context, fileID string, totalChunks int, userID string) (string, error) {
	finalKey := FileKey(fileID, userID)

	var combined bytes.Buffer
	for i := 0; i < totalChunks; i++ {
		key := ChunkKey(fileID, i, userID)
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if s3NotFound(err) {
				return "", &MissingChunkError{Index: i}
			}
			return "", fmt.Errorf("failed to read chunk %d: %w", i, err)
		}
		_, err = io.Copy(&combined, out.Body)
		out.Body.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read chunk %d: %w", i, err)
		}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(finalKey),
		Body:   bytes.NewReader(combined.Bytes()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to write assembled object: %w", err)
	}

	for i := 0; i < totalChunks; i++ {
		key := ChunkKey(fileID, i, userID)
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}); err != nil {
			log.Printf("[Backend] warning: failed to clean up chunk %s: %v", key, err)
		}
	}

	return finalKey, nil
}

func (s *S3Backend) DownloadFile(ctx context.Context, fileID, userID string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(FileKey(fileID, userID)),
	})
	if err != nil {
		if s3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return out.Body, nil
}

func (s *S3Backend) DeleteFile(ctx context.Context, fileID, userID string) (bool, error) {
	key := FileKey(fileID, userID)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if s3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return false, fmt.Errorf("failed to delete object: %w", err)
	}
	return true, nil
}

func (s *S3Backend) GetFileSize(ctx context.Context, fileID, userID string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(FileKey(fileID, userID)),
	})
	if err != nil {
		if s3NotFound(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to stat object: %w", err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (s *S3Backend) FileExists(ctx context.Context, fileID, userID string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(FileKey(fileID, userID)),
	})
	if err != nil {
		if s3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

func (s *S3Backend) CopyFile(ctx context.Context, sourceID, destID, userID string) (bool, error) {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + FileKey(sourceID, userID)),
		Key:        aws.String(FileKey(destID, userID)),
	})
	if err != nil {
		if s3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to copy object: %w", err)
	}
	return true, nil
}

var _ Backend = (*S3Backend)(nil)
