// Package artifact resolves model artifact locations to their bytes.
// Locations are either local file paths or s3://bucket/key URLs.
// Locations ending in .gz are decompressed.
package artifact

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

const s3Scheme = "s3://"

// Compile-time check that Source implements outbound.ArtifactSource
var _ outbound.ArtifactSource = (*Source)(nil)

// Source implements outbound.ArtifactSource over the local filesystem and S3.
type Source struct {
	s3     outbound.S3Reader
	logger *slog.Logger
}

// NewSource creates a new Source. s3Reader may be nil, in which case
// s3:// locations fail with entity.ErrConfiguration.
func NewSource(s3Reader outbound.S3Reader, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		s3:     s3Reader,
		logger: logger.With("component", "artifact-source"),
	}
}

// Fetch implements outbound.ArtifactSource.
func (s *Source) Fetch(ctx context.Context, location string) ([]byte, error) {
	if strings.HasPrefix(location, s3Scheme) {
		return s.fetchS3(ctx, location)
	}
	return s.fetchFile(location)
}

func (s *Source) fetchS3(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return nil, err
	}
	if s.s3 == nil {
		return nil, fmt.Errorf("%w: no S3 client configured for %s", entity.ErrConfiguration, location)
	}

	rc, err := s.s3.StreamFile(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, outbound.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", entity.ErrArtifactNotFound, location)
		}
		return nil, fmt.Errorf("reading %s: %w", location, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", location, err)
	}
	s.logger.Debug("fetched artifact", "location", location, "bytes", len(data))
	return data, nil
}

func (s *Source) fetchFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", entity.ErrArtifactNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not gzip: %v", entity.ErrInvalidArtifact, path, err)
		}
		defer gz.Close()
		if data, err = io.ReadAll(gz); err != nil {
			return nil, fmt.Errorf("%w: decompressing %s: %v", entity.ErrInvalidArtifact, path, err)
		}
	}

	s.logger.Debug("fetched artifact", "location", path, "bytes", len(data))
	return data, nil
}

// ParseS3Location splits an s3://bucket/key location.
func ParseS3Location(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not an s3 location", entity.ErrConfiguration, location)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q must have the form s3://bucket/key", entity.ErrConfiguration, location)
	}
	return bucket, key, nil
}

// IsS3Location reports whether location uses the s3:// scheme.
func IsS3Location(location string) bool {
	return strings.HasPrefix(location, s3Scheme)
}
