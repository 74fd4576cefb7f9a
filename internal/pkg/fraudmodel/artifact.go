package fraudmodel

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
)

// Artifact is the serialized form of a rule model.
type Artifact struct {
	Kind      Kind     `yaml:"kind"`
	Version   string   `yaml:"version"`
	Threshold *float64 `yaml:"threshold"`
	Bias      float64  `yaml:"bias"`
	Rules     []Rule   `yaml:"rules"`
}

// Rule is a single feature comparison.
type Rule struct {
	Feature string   `yaml:"feature"`
	Op      Op       `yaml:"op"`
	Value   float64  `yaml:"value"`
	Values  []string `yaml:"values"`
	Weight  float64  `yaml:"weight"`
}

// Decode parses and validates an artifact and builds the model it describes.
// Every error wraps entity.ErrInvalidArtifact.
func Decode(data []byte) (*Handle, error) {
	var a Artifact
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&a); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty artifact", entity.ErrInvalidArtifact)
		}
		return nil, fmt.Errorf("%w: decoding artifact: %v", entity.ErrInvalidArtifact, err)
	}
	return a.Build()
}

// Build validates the artifact and returns a Handle for it.
func (a Artifact) Build() (*Handle, error) {
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidArtifact, err)
	}

	var model any
	switch a.Kind {
	case KindWeightedRules:
		model = &WeightedRules{Bias: a.Bias, Rules: a.Rules}
	case KindLabelRules:
		model = &LabelRules{Rules: a.Rules}
	}

	return &Handle{
		Model:     model,
		Version:   a.Version,
		Threshold: a.Threshold,
	}, nil
}

func (a Artifact) validate() error {
	switch a.Kind {
	case KindWeightedRules, KindLabelRules:
	case "":
		return fmt.Errorf("kind is required")
	default:
		return fmt.Errorf("unsupported kind %q", a.Kind)
	}
	if a.Threshold != nil && (*a.Threshold < 0 || *a.Threshold > 1 || math.IsNaN(*a.Threshold)) {
		return fmt.Errorf("threshold must be within [0,1], got %v", *a.Threshold)
	}
	if math.IsNaN(a.Bias) || math.IsInf(a.Bias, 0) {
		return fmt.Errorf("bias must be finite")
	}
	if len(a.Rules) == 0 {
		return fmt.Errorf("at least one rule is required")
	}
	for i, r := range a.Rules {
		if err := r.validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}
