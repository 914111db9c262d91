package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/bartek5186/barsync/internal/backend"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// S3Config - dane połączenia z magazynem zgodnym z S3 (MinIO, AWS, R2...)
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
	URLExpiry time.Duration
}

// S3Client - ObjectStorage na minio-go; służy też jako backend.Uploader
// dla ścieżki ekstrakcji (plik idzie do bucketu, usługa dostaje presigned URL).
type S3Client struct {
	log    zerolog.Logger
	client *minio.Client
	cfg    S3Config
}

func (c S3Config) validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("s3 endpoint must be provided")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("s3 credentials must be provided")
	}
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket must be provided")
	}
	return nil
}

func NewS3Client(log zerolog.Logger, cfg S3Config) (*S3Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	// minio chce host[:port], schemat wynika z UseSSL
	endpoint := cfg.Endpoint
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, cfg.UseSSL = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, cfg.UseSSL = strings.TrimPrefix(endpoint, "http://"), false
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = time.Hour
	}

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &S3Client{log: log, client: mc, cfg: cfg}, nil
}

// Check - czy bucket istnieje (wywoływane przy starcie)
func (c *S3Client) Check(ctx context.Context) error {
	ok, err := c.client.BucketExists(ctx, c.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("s3 bucket %s: %w", c.cfg.Bucket, err)
	}
	if !ok {
		return fmt.Errorf("s3 bucket %s does not exist", c.cfg.Bucket)
	}
	return nil
}

func (c *S3Client) UploadObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.client.PutObject(ctx, c.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func (c *S3Client) PresignGet(ctx context.Context, key string) (string, error) {
	u, err := c.client.PresignedGetObject(ctx, c.cfg.Bucket, key, c.cfg.URLExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (c *S3Client) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range c.client.ListObjects(ctx, c.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", prefix, obj.Err)
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size})
	}
	return out, nil
}

// ObjectKey: <prefix><yyyy/mm/dd>/<uuid><ext>
func (c *S3Client) ObjectKey(name string, now time.Time) string {
	return ObjectKey(c.cfg.Prefix, name, now)
}

func ObjectKey(prefix, name string, now time.Time) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + now.UTC().Format("2006/01/02") + "/" + uuid.NewString() + strings.ToLower(filepath.Ext(name))
}

// Upload realizuje backend.Uploader.
func (c *S3Client) Upload(ctx context.Context, name string, data []byte) (backend.FileRef, error) {
	key := c.ObjectKey(name, time.Now())
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	if err := c.UploadObject(ctx, key, data, ct); err != nil {
		return backend.FileRef{}, err
	}
	u, err := c.PresignGet(ctx, key)
	if err != nil {
		return backend.FileRef{}, err
	}
	c.log.Debug().Str("key", key).Int("bytes", len(data)).Msg("s3: uploaded")
	return backend.FileRef{ID: key, URL: u, Name: name}, nil
}

var (
	_ ObjectStorage    = (*S3Client)(nil)
	_ backend.Uploader = (*S3Client)(nil)
)
