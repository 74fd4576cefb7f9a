package model_access

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
)

const validArtifact = `
kind: weighted_rules
version: test-v1
threshold: 0.7
rules:
  - {feature: amount, op: gt, value: 500, weight: 0.5}
`

type mockSource struct {
	calls   atomic.Int32
	fetchFn func(ctx context.Context, location string) ([]byte, error)
}

func (m *mockSource) Fetch(ctx context.Context, location string) ([]byte, error) {
	m.calls.Add(1)
	return m.fetchFn(ctx, location)
}

func staticSource(data string) *mockSource {
	return &mockSource{fetchFn: func(context.Context, string) ([]byte, error) {
		return []byte(data), nil
	}}
}

func TestNewProvider_NilSource(t *testing.T) {
	if _, err := NewProvider(Config{Location: "x"}, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestProvider_Model(t *testing.T) {
	src := staticSource(validArtifact)
	p, err := NewProvider(Config{Location: "models/test.yaml"}, src)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if p.Loaded() {
		t.Fatal("Loaded() = true before first use")
	}

	h, err := p.Model(context.Background())
	if err != nil {
		t.Fatalf("Model() error = %v", err)
	}
	if h.Version != "test-v1" {
		t.Errorf("Version = %q, want test-v1", h.Version)
	}

	again, err := p.Model(context.Background())
	if err != nil {
		t.Fatalf("Model() error = %v", err)
	}
	if again != h {
		t.Error("second call returned a different handle")
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("Fetch called %d times, want 1", got)
	}
	if !p.Loaded() {
		t.Error("Loaded() = false after successful load")
	}
}

func TestProvider_ConcurrentFirstUseLoadsOnce(t *testing.T) {
	release := make(chan struct{})
	src := &mockSource{fetchFn: func(context.Context, string) ([]byte, error) {
		<-release
		return []byte(validArtifact), nil
	}}
	p, err := NewProvider(Config{Location: "models/test.yaml"}, src)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	const callers = 32
	var wg sync.WaitGroup
	handles := make(chan any, callers)
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := p.Model(context.Background())
			if err != nil {
				errs <- err
				return
			}
			handles <- h
		}()
	}
	close(release)
	wg.Wait()
	close(handles)
	close(errs)

	for err := range errs {
		t.Errorf("Model() error = %v", err)
	}
	var first any
	for h := range handles {
		if first == nil {
			first = h
		} else if h != first {
			t.Error("callers observed different handles")
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("Fetch called %d times, want 1", got)
	}
}

func TestProvider_Errors(t *testing.T) {
	tests := []struct {
		name     string
		location string
		source   *mockSource
		wantErr  error
	}{
		{
			name:     "location unset",
			location: "",
			source:   staticSource(validArtifact),
			wantErr:  entity.ErrConfiguration,
		},
		{
			name:     "artifact missing",
			location: "models/missing.yaml",
			source: &mockSource{fetchFn: func(_ context.Context, loc string) ([]byte, error) {
				return nil, fmt.Errorf("%w: %s", entity.ErrArtifactNotFound, loc)
			}},
			wantErr: entity.ErrArtifactNotFound,
		},
		{
			name:     "undecodable artifact",
			location: "models/broken.yaml",
			source:   staticSource("kind: [unterminated"),
			wantErr:  entity.ErrInvalidArtifact,
		},
		{
			name:     "unsupported kind",
			location: "models/forest.yaml",
			source:   staticSource("kind: random_forest\nrules: [{feature: amount, op: gt, value: 1, weight: 1}]"),
			wantErr:  entity.ErrInvalidArtifact,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(Config{Location: tt.location}, tt.source)
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}
			_, err = p.Model(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Model() error = %v, want %v", err, tt.wantErr)
			}
			if p.Loaded() {
				t.Error("Loaded() = true after failed load")
			}
		})
	}
}

func TestProvider_FailedLoadIsRetried(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	src := &mockSource{fetchFn: func(context.Context, string) ([]byte, error) {
		if fail.Load() {
			return nil, entity.ErrArtifactNotFound
		}
		return []byte(validArtifact), nil
	}}
	p, _ := NewProvider(Config{Location: "models/test.yaml"}, src)

	if _, err := p.Model(context.Background()); err == nil {
		t.Fatal("expected first load to fail")
	}
	fail.Store(false)
	if _, err := p.Model(context.Background()); err != nil {
		t.Fatalf("Model() after recovery error = %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("Fetch called %d times, want 2", got)
	}
}

func TestProvider_Threshold(t *testing.T) {
	t.Run("artifact threshold", func(t *testing.T) {
		p, _ := NewProvider(Config{Location: "m"}, staticSource(validArtifact))
		if got := p.Threshold(context.Background(), 0.6); got != 0.7 {
			t.Errorf("Threshold() = %v, want 0.7", got)
		}
	})

	t.Run("default when undeclared", func(t *testing.T) {
		p, _ := NewProvider(Config{Location: "m"}, staticSource("kind: label_rules\nrules: [{feature: amount, op: gt, value: 1}]"))
		if got := p.Threshold(context.Background(), 0.6); got != 0.6 {
			t.Errorf("Threshold() = %v, want 0.6", got)
		}
	})

	t.Run("default when load fails", func(t *testing.T) {
		p, _ := NewProvider(Config{}, staticSource(validArtifact))
		if got := p.Threshold(context.Background(), 0.55); got != 0.55 {
			t.Errorf("Threshold() = %v, want 0.55", got)
		}
	})
}

func TestProvider_Check(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	src := &mockSource{fetchFn: func(context.Context, string) ([]byte, error) {
		if fail.Load() {
			return nil, errors.New("no such key")
		}
		return []byte(validArtifact), nil
	}}
	p, err := NewProvider(Config{Location: "s3://models/fraud.yaml"}, src)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	if err := p.Check(context.Background()); err == nil {
		t.Fatal("Check() expected error while the artifact is missing")
	}

	fail.Store(false)
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("Check() error = %v after the artifact appeared", err)
	}
	if !p.Loaded() {
		t.Error("Check() did not keep the loaded model")
	}
}
