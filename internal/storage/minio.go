package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
)

// MinioConfig addresses a bucket
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Secure    bool
}

// Minio stores media in a MinIO (or any S3-compatible) bucket
type Minio struct {
	client *minio.Client
	bucket string
}

// NewMinio creates a client with a transport tuned for many parallel uploads
func NewMinio(cfg MinioConfig) (*Minio, error) {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Transport:    tr,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %v", err)
	}

	return &Minio{client: client, bucket: cfg.Bucket}, nil
}

func (m *Minio) Name() string {
	return fmt.Sprintf("minio://%s/%s", m.client.EndpointURL().Host, m.bucket)
}

// EnsureBucket creates the bucket when it does not exist yet
func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "storage.ensure_bucket", "failed to check bucket", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "storage.ensure_bucket", "failed to create bucket", err)
	}
	return nil
}

func (m *Minio) Get(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", m.mapErr("storage.get", key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, "", m.mapErr("storage.get", key, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", m.mapErr("storage.get", key, err)
	}

	contentType := info.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ContentType(key)
	}
	return data, contentType, nil
}

func (m *Minio) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return m.mapErr("storage.put", key, err)
	}
	return nil
}

func (m *Minio) PutFile(ctx context.Context, key, filePath, contentType string, metadata map[string]string) (int64, error) {
	info, err := m.client.FPutObject(ctx, m.bucket, key, filePath, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return 0, m.mapErr("storage.put_file", key, err)
	}
	return info.Size, nil
}

func (m *Minio) mapErr(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return apperrors.New(apperrors.KindNotFound, op, fmt.Sprintf("object %s/%s not found", m.bucket, key))
	}
	return apperrors.Wrap(apperrors.KindStorage, op, fmt.Sprintf("object %s/%s", m.bucket, key), err)
}
