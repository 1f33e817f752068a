// Package storage is the object store the scan reports are shipped to.
package storage

import (
	"context"
	"io"
)

// Identity is the principal the storage client acts as.
type Identity struct {
	Account string
	ARN     string
}

type Client interface {
	CheckIdentity(ctx context.Context) (Identity, error)
	// BucketExists reports false with a nil error when the bucket is absent.
	BucketExists(ctx context.Context, bucket string) (bool, error)
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64) error
}
