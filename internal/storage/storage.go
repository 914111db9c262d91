package storage

import "context"

// ObjectInfo - metadane obiektu w magazynie
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage - minimalne operacje S3 potrzebne importowi
type ObjectStorage interface {
	UploadObject(ctx context.Context, key string, data []byte, contentType string) error
	PresignGet(ctx context.Context, key string) (string, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
