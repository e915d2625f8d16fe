package storage

import "context"

// ObjectStorage captures the single operation the relay needs from a remote
// object store: durably persist bytes under a key with a content type and a
// sanitized metadata map.
type ObjectStorage interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
}
