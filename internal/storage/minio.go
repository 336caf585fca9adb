// Package storage archives finalized sessions to an optional MinIO bucket.
// Kept from the teacher's generic internal/storage/minio.go client
// (FPutObject/PutObject wrapper, SafeObjectKey sanitizer), with
// ArchiveSession added as the domain-specific entry point: it is the one
// place that knows a session's recording and transcript live side by side
// under sessions/<uuid>/ in the bucket, so internal/session.Manager.mirror
// doesn't have to reconstruct that layout itself.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioClient struct {
	client  *minio.Client
	bucket  string
	enabled bool
}

func NewMinioFromEnv() (*MinioClient, error) {
	enabled := strings.EqualFold(strings.TrimSpace(os.Getenv("MINIO_ENABLED")), "true")
	if !enabled {
		return &MinioClient{enabled: false}, nil
	}

	endpoint := strings.TrimSpace(os.Getenv("MINIO_ENDPOINT"))
	accessKey := strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))
	secretKey := strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))
	bucket := strings.TrimSpace(os.Getenv("MINIO_BUCKET"))

	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, fmt.Errorf("minio config missing (endpoint, user, password, bucket)")
	}

	useSSL := strings.EqualFold(strings.TrimSpace(os.Getenv("MINIO_USE_SSL")), "true")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	return &MinioClient{
		client:  client,
		bucket:  bucket,
		enabled: true,
	}, nil
}

func (m *MinioClient) Enabled() bool {
	return m != nil && m.enabled
}

func (m *MinioClient) Bucket() string {
	if m == nil {
		return ""
	}
	return m.bucket
}

func (m *MinioClient) UploadFile(ctx context.Context, objectKey, filePath, contentType string) (string, int64, error) {
	if !m.Enabled() {
		return "", 0, fmt.Errorf("minio disabled")
	}
	if contentType == "" {
		contentType = detectContentType(filePath)
	}

	info, err := m.client.FPutObject(ctx, m.bucket, objectKey, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", 0, err
	}
	return info.ETag, info.Size, nil
}

func (m *MinioClient) UploadBytes(ctx context.Context, objectKey string, data []byte, contentType string) (string, int64, error) {
	if !m.Enabled() {
		return "", 0, fmt.Errorf("minio disabled")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	reader := bytes.NewReader(data)
	info, err := m.client.PutObject(ctx, m.bucket, objectKey, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", 0, err
	}
	return info.ETag, info.Size, nil
}

func detectContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}

// ArchiveSession uploads a finalized session's recording and transcript
// into the bucket under sessions/<uuid>/, the one object layout this
// client ever writes. A disabled client is a no-op, so callers don't need
// to branch on whether MINIO_ENABLED was set.
func (m *MinioClient) ArchiveSession(ctx context.Context, uuid, recordingPath string, transcript []byte) error {
	if !m.Enabled() {
		return nil
	}
	recordingKey := SafeObjectKey("sessions", uuid, uuid+".wav")
	if _, _, err := m.UploadFile(ctx, recordingKey, recordingPath, "audio/wav"); err != nil {
		return fmt.Errorf("archive recording: %w", err)
	}
	transcriptKey := SafeObjectKey("sessions", uuid, uuid+".txt")
	if _, _, err := m.UploadBytes(ctx, transcriptKey, transcript, "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("archive transcript: %w", err)
	}
	return nil
}

func SafeObjectKey(parts ...string) string {
	safeParts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		part = strings.ReplaceAll(part, "\\", "/")
		part = strings.Trim(part, "/")
		part = strings.ReplaceAll(part, " ", "_")
		if part != "" {
			safeParts = append(safeParts, part)
		}
	}
	return strings.Join(safeParts, "/")
}
