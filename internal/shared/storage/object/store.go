package object

import (
	"context"
	"errors"
	"io"
)

// ErrInvalidKey is returned for storage keys that escape the store root.
var ErrInvalidKey = errors.New("invalid storage key")

// Object describes a stored blob.
type Object struct {
	Key  string
	Size int64
	// Sniffed is the content type detected from the leading bytes.
	Sniffed string
}

// Store keeps uploaded binaries (resumes) under a per-owner namespace.
type Store interface {
	Put(ctx context.Context, owner, fileName, contentType string, r io.Reader) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
