// Package storage defines the object-storage boundary: image bytes
// go in under a hierarchical key with metadata, and a durable key
// comes back.
package storage

import (
	"context"
	"io"
)

// Metadata keys attached to every stored image.
const (
	MetaWorkerID        = "worker-id"
	MetaSessionID       = "session-id"
	MetaOriginalCode    = "original-code"
	MetaUploadTimestamp = "upload-timestamp"
)

// Writer stores image bytes under a key. The upload pipeline only
// needs this; the intermediary-function transport implements nothing
// more.
type Writer interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, metadata map[string]string) error
}

// Object describes a stored object.
type Object struct {
	Key  string
	Size int64
}

// ObjectStore is the full store surface used by direct transports and
// the structure-migration tool.
type ObjectStore interface {
	Writer
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
