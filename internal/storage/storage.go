// Package storage uploads media to S3 compatible object storage.
package storage

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/goldleaf/storefront/config"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("object storage is not configured")

// ObjectStore persists uploaded objects and resolves their public URLs
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

type S3Store struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// NewS3Store builds a store from config. Returns ErrNotConfigured when endpoint or bucket is missing.
func NewS3Store(cfg config.StorageConfig) (*S3Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "storage: create client")
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
	}
	return &S3Store{client: client, bucket: cfg.Bucket, publicBase: base}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000",
	})
	if err != nil {
		return "", errors.Wrapf(err, "storage: put %s", key)
	}
	zap.L().Debug("storage: object uploaded", zap.String("key", key), zap.Int64("size", size))
	return s.URL(key), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrapf(err, "storage: delete %s", key)
	}
	return nil
}

// PresignedURL temporary download link for private buckets
func (s *S3Store) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", errors.Wrapf(err, "storage: presign %s", key)
	}
	return u.String(), nil
}

func (s *S3Store) URL(key string) string {
	return s.publicBase + "/" + strings.TrimLeft(key, "/")
}

// NewObjectKey returns prefix/yyyy/mm/<uuid><ext> keeping the original extension
func NewObjectKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	now := time.Now()
	return path.Join(prefix, now.Format("2006"), now.Format("01"), uuid.NewString()+ext)
}

var allowedTypes = map[string]string{
	".jpg":  "image",
	".jpeg": "image",
	".png":  "image",
	".webp": "image",
	".gif":  "image",
	".mp4":  "video",
	".webm": "video",
	".mov":  "video",
}

// MediaKind returns image or video for an accepted file name, or "" when the extension is not allowed.
func MediaKind(filename string) string {
	return allowedTypes[strings.ToLower(path.Ext(filename))]
}
