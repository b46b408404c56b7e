// Package s3storage wraps MinIO/S3 interactions for the uploaded audio
// objects: bucket bootstrap, presigned upload URLs for clients and
// presigned download URLs for the transcription worker.
package s3storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dyparkkk-lg/meeting-ai/internal/config"
	"github.com/dyparkkk-lg/meeting-ai/internal/model"
)

// Storage wraps a MinIO client for the meetings bucket.
type Storage struct {
	client     *minio.Client
	bucket     string
	region     string
	presignTTL time.Duration
}

// UploadTarget is handed to API clients so they can PUT the audio bytes
// directly into object storage.
type UploadTarget struct {
	URL       string `json:"uploadUrl"`
	ObjectKey string `json:"objectKey"`
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:     client,
		bucket:     cfg.S3Bucket,
		region:     cfg.S3Region,
		presignTTL: cfg.PresignTTL,
	}, nil
}

// EnsureBucket makes sure the meetings bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// PresignUploadURL issues a time-bounded PUT URL for a new audio object
// under meetings/{meetingID}/.
func (s *Storage) PresignUploadURL(ctx context.Context, meetingID, contentType string) (UploadTarget, error) {
	ext := model.ExtensionForMediaType(contentType)
	objectKey := fmt.Sprintf("meetings/%s/%s.%s", meetingID, uuid.NewString(), ext)
	u, err := s.client.PresignedPutObject(ctx, s.bucket, objectKey, s.presignTTL)
	if err != nil {
		return UploadTarget{}, fmt.Errorf("presign upload for %s: %w", objectKey, err)
	}
	return UploadTarget{URL: u.String(), ObjectKey: objectKey}, nil
}

// GetReadableURL issues a time-bounded GET URL for a stored object. The
// transcription provider fetches the audio bytes through it; the core
// never downloads them itself.
func (s *Storage) GetReadableURL(ctx context.Context, objectKey string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, s.presignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign download for %s: %w", objectKey, err)
	}
	return u.String(), nil
}

// ObjectExists reports whether the given object has been uploaded.
func (s *Storage) ObjectExists(ctx context.Context, objectKey string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return false, nil
		}
		return false, fmt.Errorf("stat object %s: %w", objectKey, err)
	}
	return true, nil
}
