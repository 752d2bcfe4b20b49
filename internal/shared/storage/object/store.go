package object

import (
	"context"
	"io"
)

// ObjectStore persists uploaded chart images.
type ObjectStore interface {
	Save(ctx context.Context, ownerID, fileName, contentType string, r io.Reader) (storageKey string, sizeBytes int64, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}
