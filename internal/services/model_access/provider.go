// Package model_access loads the fraud model artifact once per process and
// hands it to the scoring use cases.
package model_access

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
	"github.com/archon-research/fraud-scoring/internal/pkg/fraudmodel"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

// Config holds configuration for the Provider.
type Config struct {
	// Location of the model artifact: a local path or s3://bucket/key.
	Location string

	Logger *slog.Logger
}

// Provider lazily loads the model artifact on first use.
// Loading happens at most once per successful load; a failed load is retried
// on the next call. After a successful load the handle is read-only.
type Provider struct {
	location string
	source   outbound.ArtifactSource
	logger   *slog.Logger

	handle atomic.Pointer[fraudmodel.Handle]
	mu     sync.Mutex
}

// NewProvider creates a new Provider.
func NewProvider(config Config, source outbound.ArtifactSource) (*Provider, error) {
	if source == nil {
		return nil, fmt.Errorf("artifact source cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		location: config.Location,
		source:   source,
		logger:   logger.With("component", "model-provider"),
	}, nil
}

// Model returns the loaded model, loading it on the first call.
func (p *Provider) Model(ctx context.Context) (*fraudmodel.Handle, error) {
	if h := p.handle.Load(); h != nil {
		return h, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if h := p.handle.Load(); h != nil {
		return h, nil
	}

	h, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	p.handle.Store(h)
	return h, nil
}

// Threshold returns the artifact's decision threshold, or def when the
// artifact does not declare one or cannot be loaded.
func (p *Provider) Threshold(ctx context.Context, def float64) float64 {
	h, err := p.Model(ctx)
	if err != nil || h.Threshold == nil {
		return def
	}
	return *h.Threshold
}

// Check loads the model if necessary and reports why it is unusable.
func (p *Provider) Check(ctx context.Context) error {
	_, err := p.Model(ctx)
	return err
}

// Loaded reports whether the model has been loaded.
func (p *Provider) Loaded() bool {
	return p.handle.Load() != nil
}

func (p *Provider) load(ctx context.Context) (*fraudmodel.Handle, error) {
	if p.location == "" {
		return nil, fmt.Errorf("%w: model location is not set", entity.ErrConfiguration)
	}

	start := time.Now()
	data, err := p.source.Fetch(ctx, p.location)
	if err != nil {
		return nil, fmt.Errorf("fetching model artifact %s: %w", p.location, err)
	}

	h, err := fraudmodel.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("loading model artifact %s: %w", p.location, err)
	}
	if !fraudmodel.HasCapability(h.Model) {
		return nil, fmt.Errorf("%w: model %T can neither estimate probabilities nor predict labels", entity.ErrInvalidArtifact, h.Model)
	}

	p.logger.Info("model loaded",
		"location", p.location,
		"version", h.Version,
		"duration", time.Since(start))
	return h, nil
}
