package outbound

import (
	"context"
	"errors"
	"io"
)

// S3Reader defines the interface for reading objects from S3.
type S3Reader interface {
	// StreamFile returns a reader for the object content.
	// The caller is responsible for closing the reader.
	// If the key ends in .gz, the reader automatically decompresses.
	StreamFile(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// ErrObjectNotFound is wrapped by S3Reader implementations when the bucket or key does not exist.
var ErrObjectNotFound = errors.New("object not found")
