package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

type mockS3API struct {
	getObjectFunc func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

func (m *mockS3API) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getObjectFunc != nil {
		return m.getObjectFunc(ctx, params, optFns...)
	}
	return &s3.GetObjectOutput{}, nil
}

func gzipped(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestNewReader_NilLogger(t *testing.T) {
	reader := NewReader(aws.Config{}, nil)
	if reader == nil {
		t.Fatal("expected non-nil reader")
	}
	if reader.client == nil {
		t.Error("expected non-nil client")
	}
	if reader.logger == nil {
		t.Error("expected default logger when nil is passed")
	}
}

func TestStreamFile(t *testing.T) {
	ctx := context.Background()
	artifact := "kind: weighted_rules\n"

	tests := []struct {
		name        string
		key         string
		body        []byte
		wantContent string
	}{
		{
			name:        "plain artifact",
			key:         "models/fraud_rules.yaml",
			body:        []byte(artifact),
			wantContent: artifact,
		},
		{
			name:        "gzipped artifact",
			key:         "models/fraud_rules.yaml.gz",
			body:        gzipped(t, artifact),
			wantContent: artifact,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotBucket, gotKey string
			mock := &mockS3API{
				getObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
					gotBucket, gotKey = aws.ToString(params.Bucket), aws.ToString(params.Key)
					return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(tt.body))}, nil
				},
			}
			reader := newReader(mock, 0, slog.Default())

			rc, err := reader.StreamFile(ctx, "fraud-models", tt.key)
			if err != nil {
				t.Fatalf("StreamFile() error = %v", err)
			}
			defer rc.Close()

			content, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("failed to read content: %v", err)
			}
			if string(content) != tt.wantContent {
				t.Errorf("StreamFile() content = %q, want %q", string(content), tt.wantContent)
			}
			if gotBucket != "fraud-models" || gotKey != tt.key {
				t.Errorf("GetObject called with %s/%s", gotBucket, gotKey)
			}
		})
	}
}

func TestStreamFile_Errors(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		getErr       error
		body         []byte
		wantNotFound bool
	}{
		{name: "missing key", key: "a.yaml", getErr: &types.NoSuchKey{}, wantNotFound: true},
		{name: "missing bucket", key: "a.yaml", getErr: &types.NoSuchBucket{}, wantNotFound: true},
		{name: "access denied", key: "a.yaml", getErr: errors.New("AccessDenied")},
		{name: "corrupt gzip", key: "a.yaml.gz", body: []byte("not gzip")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockS3API{
				getObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
					if tt.getErr != nil {
						return nil, tt.getErr
					}
					return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(tt.body))}, nil
				},
			}
			reader := newReader(mock, 0, slog.Default())

			_, err := reader.StreamFile(context.Background(), "bucket", tt.key)
			if err == nil {
				t.Fatal("StreamFile() expected error, got nil")
			}
			if got := errors.Is(err, outbound.ErrObjectNotFound); got != tt.wantNotFound {
				t.Errorf("errors.Is(err, ErrObjectNotFound) = %v, want %v (err = %v)", got, tt.wantNotFound, err)
			}
		})
	}
}

func TestStreamFile_ContentEncodingGzip(t *testing.T) {
	mock := &mockS3API{
		getObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return &s3.GetObjectOutput{
				Body:            io.NopCloser(bytes.NewReader(gzipped(t, "version: rules-v2\n"))),
				ContentEncoding: aws.String("gzip"),
			}, nil
		},
	}
	rc, err := newReader(mock, 0, nil).StreamFile(context.Background(), "bucket", "fraud.yaml")
	if err != nil {
		t.Fatalf("StreamFile() error = %v", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(content) != "version: rules-v2\n" {
		t.Errorf("content = %q", content)
	}
}

func TestStreamFile_SizeLimit(t *testing.T) {
	tests := []struct {
		name          string
		key           string
		body          []byte
		contentLength *int64
		wantOpenErr   bool
	}{
		{name: "declared length over limit", key: "a.yaml", body: []byte("0123456789"), contentLength: aws.Int64(10), wantOpenErr: true},
		{name: "undeclared length over limit", key: "a.yaml", body: []byte("0123456789")},
		{name: "decompressed output over limit", key: "a.yaml.gz", body: gzipped(t, strings.Repeat("x", 64))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockS3API{
				getObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
					return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(tt.body)), ContentLength: tt.contentLength}, nil
				},
			}
			rc, err := newReader(mock, 8, nil).StreamFile(context.Background(), "bucket", tt.key)
			if tt.wantOpenErr {
				if !errors.Is(err, ErrObjectTooLarge) {
					t.Fatalf("StreamFile() error = %v, want ErrObjectTooLarge", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("StreamFile() error = %v", err)
			}
			defer rc.Close()
			if _, err := io.ReadAll(rc); !errors.Is(err, ErrObjectTooLarge) {
				t.Errorf("ReadAll() error = %v, want ErrObjectTooLarge", err)
			}
		})
	}
}

func TestStreamFile_WithinLimit(t *testing.T) {
	mock := &mockS3API{
		getObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("12345678"))}, nil
		},
	}
	rc, err := newReader(mock, 8, nil).StreamFile(context.Background(), "bucket", "exact.yaml")
	if err != nil {
		t.Fatalf("StreamFile() error = %v", err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil || string(content) != "12345678" {
		t.Errorf("ReadAll() = %q, %v", content, err)
	}
}

type closeRecorder struct {
	name  string
	order *[]string
}

func (c closeRecorder) Close() error {
	*c.order = append(*c.order, c.name)
	return nil
}

func TestArtifactBody_ClosesInnermostLast(t *testing.T) {
	var order []string
	body := &artifactBody{
		Reader:  strings.NewReader(""),
		closers: []io.Closer{closeRecorder{"body", &order}, closeRecorder{"gzip", &order}},
	}
	if err := body.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if strings.Join(order, ",") != "gzip,body" {
		t.Errorf("close order = %v, want [gzip body]", order)
	}
}
