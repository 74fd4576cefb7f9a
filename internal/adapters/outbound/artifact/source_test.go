package artifact

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

type mockS3Reader struct {
	streamFileFn func(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

func (m *mockS3Reader) StreamFile(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return m.streamFileFn(ctx, bucket, key)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestFetch_LocalFile(t *testing.T) {
	path := writeFile(t, "model.yaml", []byte("kind: label_rules"))
	src := NewSource(nil, nil)

	data, err := src.Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != "kind: label_rules" {
		t.Errorf("Fetch() = %q", data)
	}
}

func TestFetch_LocalGzipFile(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write([]byte("kind: weighted_rules"))
	w.Close()
	path := writeFile(t, "model.yaml.gz", buf.Bytes())

	data, err := NewSource(nil, nil).Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != "kind: weighted_rules" {
		t.Errorf("Fetch() = %q", data)
	}
}

func TestFetch_LocalErrors(t *testing.T) {
	src := NewSource(nil, nil)

	_, err := src.Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, entity.ErrArtifactNotFound) {
		t.Errorf("missing file: error = %v, want ErrArtifactNotFound", err)
	}

	path := writeFile(t, "broken.yaml.gz", []byte("plain text"))
	_, err = src.Fetch(context.Background(), path)
	if !errors.Is(err, entity.ErrInvalidArtifact) {
		t.Errorf("corrupt gzip: error = %v, want ErrInvalidArtifact", err)
	}
}

func TestFetch_S3(t *testing.T) {
	var gotBucket, gotKey string
	reader := &mockS3Reader{streamFileFn: func(_ context.Context, bucket, key string) (io.ReadCloser, error) {
		gotBucket, gotKey = bucket, key
		return io.NopCloser(strings.NewReader("kind: weighted_rules")), nil
	}}

	data, err := NewSource(reader, nil).Fetch(context.Background(), "s3://fraud-models/prod/rules.yaml")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != "kind: weighted_rules" {
		t.Errorf("Fetch() = %q", data)
	}
	if gotBucket != "fraud-models" || gotKey != "prod/rules.yaml" {
		t.Errorf("StreamFile(%q, %q)", gotBucket, gotKey)
	}
}

func TestFetch_S3Errors(t *testing.T) {
	notFound := &mockS3Reader{streamFileFn: func(context.Context, string, string) (io.ReadCloser, error) {
		return nil, outbound.ErrObjectNotFound
	}}

	tests := []struct {
		name     string
		reader   outbound.S3Reader
		location string
		wantErr  error
	}{
		{name: "object missing", reader: notFound, location: "s3://b/k.yaml", wantErr: entity.ErrArtifactNotFound},
		{name: "no client", reader: nil, location: "s3://b/k.yaml", wantErr: entity.ErrConfiguration},
		{name: "no key", reader: notFound, location: "s3://bucket", wantErr: entity.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSource(tt.reader, nil).Fetch(context.Background(), tt.location)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseS3Location(t *testing.T) {
	tests := []struct {
		in         string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{in: "s3://bucket/key.yaml", wantBucket: "bucket", wantKey: "key.yaml"},
		{in: "s3://bucket/a/b/c.yaml.gz", wantBucket: "bucket", wantKey: "a/b/c.yaml.gz"},
		{in: "s3://bucket/", wantErr: true},
		{in: "s3:///key", wantErr: true},
		{in: "models/rules.yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			bucket, key, err := ParseS3Location(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseS3Location() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || key != tt.wantKey {
				t.Errorf("ParseS3Location() = %q, %q", bucket, key)
			}
		})
	}
}
