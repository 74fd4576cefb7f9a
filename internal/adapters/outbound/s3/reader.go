// Package s3 reads model artifacts from S3-compatible object storage.
package s3

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

// DefaultMaxObjectBytes caps the size of a single artifact.
const DefaultMaxObjectBytes int64 = 16 << 20

// ErrObjectTooLarge is returned when an object exceeds the configured cap.
var ErrObjectTooLarge = errors.New("object exceeds size limit")

type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Compile-time check that Reader implements outbound.S3Reader
var _ outbound.S3Reader = (*Reader)(nil)

// Reader streams artifacts out of S3.
type Reader struct {
	client   s3API
	maxBytes int64
	logger   *slog.Logger
}

// NewReader creates a Reader from an AWS config. Path-style addressing is
// enabled whenever a custom endpoint is set (LocalStack, MinIO).
func NewReader(cfg aws.Config, logger *slog.Logger) *Reader {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != nil {
			o.UsePathStyle = true
		}
	})
	return newReader(client, DefaultMaxObjectBytes, logger)
}

func newReader(client s3API, maxBytes int64, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxObjectBytes
	}
	return &Reader{
		client:   client,
		maxBytes: maxBytes,
		logger:   logger.With("component", "s3-reader"),
	}
}

// StreamFile opens s3://bucket/key. Objects whose key ends in .gz or that
// carry Content-Encoding gzip are decompressed. Reading more than the size
// cap fails with ErrObjectTooLarge. The caller closes the reader.
func (r *Reader) StreamFile(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return nil, fmt.Errorf("%w: s3://%s/%s", outbound.ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("getting s3://%s/%s: %w", bucket, key, err)
	}

	if size := aws.ToInt64(out.ContentLength); size > r.maxBytes {
		out.Body.Close()
		return nil, fmt.Errorf("%w: s3://%s/%s is %d bytes, limit %d", ErrObjectTooLarge, bucket, key, size, r.maxBytes)
	}
	r.logger.Debug("opened artifact object",
		"bucket", bucket,
		"key", key,
		"etag", aws.ToString(out.ETag),
		"versionId", aws.ToString(out.VersionId))

	body := &artifactBody{Reader: out.Body, closers: []io.Closer{out.Body}}
	if strings.HasSuffix(key, ".gz") || strings.EqualFold(aws.ToString(out.ContentEncoding), "gzip") {
		gz, err := gzip.NewReader(out.Body)
		if err != nil {
			out.Body.Close()
			return nil, fmt.Errorf("decompressing s3://%s/%s: %w", bucket, key, err)
		}
		body.Reader = gz
		body.closers = append(body.closers, gz)
	}
	body.Reader = &cappedReader{r: body.Reader, remaining: r.maxBytes}
	return body, nil
}

// artifactBody closes every layer of the decoding stack, innermost last.
type artifactBody struct {
	io.Reader
	closers []io.Closer
}

func (b *artifactBody) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// cappedReader fails once more than remaining bytes have been read.
// It also bounds decompressed output.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, ErrObjectTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, ErrObjectTooLarge
	}
	return n, err
}
