// Package fraudmodel decodes serialized fraud model artifacts.
//
// An artifact is a YAML (or JSON) document describing a rule model:
//
//	kind: weighted_rules     # or label_rules
//	version: rules-v1        # optional
//	threshold: 0.6           # optional decision threshold
//	bias: 0.0                # weighted_rules only
//	rules:
//	  - {feature: amount, op: gt, value: 500, weight: 0.3}
//	  - {feature: merchant_category, op: in, values: [Travel], weight: 0.1}
//
// weighted_rules models estimate a probability: bias plus the weights of all
// matching rules, clamped to [0,1]. label_rules models only predict a hard
// label: 1 when any rule matches, otherwise 0.
package fraudmodel

import (
	"github.com/archon-research/fraud-scoring/internal/domain/entity"
)

// Kind identifies the model family of an artifact.
type Kind string

// Supported artifact kinds.
const (
	KindWeightedRules Kind = "weighted_rules"
	KindLabelRules    Kind = "label_rules"
)

// ProbabilityEstimator is implemented by models that output a fraud probability.
type ProbabilityEstimator interface {
	PredictProba(features entity.FeatureVector) (float64, error)
}

// LabelPredictor is implemented by models that only output a hard label (0 or 1).
type LabelPredictor interface {
	Predict(features entity.FeatureVector) (int, error)
}

// Handle is a loaded model. Model implements ProbabilityEstimator,
// LabelPredictor or both.
type Handle struct {
	Model any

	// Version is empty when the artifact does not declare one.
	Version string

	// Threshold is nil when the artifact does not declare one.
	Threshold *float64
}

// HasCapability reports whether m can score transactions.
func HasCapability(m any) bool {
	switch m.(type) {
	case ProbabilityEstimator, LabelPredictor:
		return true
	default:
		return false
	}
}
