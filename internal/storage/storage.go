// Package storage abstracts where job artifacts live. The pipeline only
// ever writes an object once; verification and download paths read it.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored artifact.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Client is the storage strategy injected into the pipeline. A cloud
// object store would implement the same interface.
type Client interface {
	Put(ctx context.Context, key string, r io.Reader) (ObjectInfo, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// ReadAll fetches a whole object into memory.
func ReadAll(ctx context.Context, c Client, key string) ([]byte, error) {
	r, err := c.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
