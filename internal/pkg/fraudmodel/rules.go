package fraudmodel

import (
	"fmt"
	"math"
	"slices"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
)

// Op is a rule comparison operator.
type Op string

// Supported operators. "in" applies to categorical features only; the
// ordering operators apply to numeric features only; "eq" applies to both.
const (
	OpGreaterThan    Op = "gt"
	OpGreaterOrEqual Op = "gte"
	OpLessThan       Op = "lt"
	OpLessOrEqual    Op = "lte"
	OpEqual          Op = "eq"
	OpIn             Op = "in"
)

func (r Rule) validate() error {
	if !entity.IsKnownFeature(r.Feature) {
		return fmt.Errorf("unknown feature %q", r.Feature)
	}
	if math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) {
		return fmt.Errorf("weight must be finite")
	}

	categorical := entity.IsCategoricalFeature(r.Feature)
	switch r.Op {
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		if categorical {
			return fmt.Errorf("operator %q is not defined for categorical feature %q", r.Op, r.Feature)
		}
	case OpEqual:
		if categorical && len(r.Values) != 1 {
			return fmt.Errorf("eq on %q needs exactly one value", r.Feature)
		}
	case OpIn:
		if !categorical {
			return fmt.Errorf("operator in is only defined for categorical features")
		}
		if len(r.Values) == 0 {
			return fmt.Errorf("in needs at least one value")
		}
	default:
		return fmt.Errorf("unsupported operator %q", r.Op)
	}

	if categorical {
		for _, v := range r.Values {
			if _, err := entity.ParseMerchantCategory(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Matches evaluates the rule against a feature vector.
func (r Rule) Matches(features entity.FeatureVector) (bool, error) {
	f, ok := features.Lookup(r.Feature)
	if !ok {
		return false, fmt.Errorf("feature %q missing from input", r.Feature)
	}

	if entity.IsCategoricalFeature(r.Feature) {
		return slices.Contains(r.Values, f.Category), nil
	}

	switch r.Op {
	case OpGreaterThan:
		return f.Number > r.Value, nil
	case OpGreaterOrEqual:
		return f.Number >= r.Value, nil
	case OpLessThan:
		return f.Number < r.Value, nil
	case OpLessOrEqual:
		return f.Number <= r.Value, nil
	case OpEqual:
		return f.Number == r.Value, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", r.Op)
	}
}

// WeightedRules estimates a probability as bias plus the weights of matching rules.
type WeightedRules struct {
	Bias  float64
	Rules []Rule
}

// PredictProba implements ProbabilityEstimator.
func (m *WeightedRules) PredictProba(features entity.FeatureVector) (float64, error) {
	score := m.Bias
	for _, r := range m.Rules {
		matched, err := r.Matches(features)
		if err != nil {
			return 0, err
		}
		if matched {
			score += r.Weight
		}
	}
	return math.Min(math.Max(score, 0), 1), nil
}

// LabelRules predicts fraud (1) when any rule matches.
type LabelRules struct {
	Rules []Rule
}

// Predict implements LabelPredictor.
func (m *LabelRules) Predict(features entity.FeatureVector) (int, error) {
	for _, r := range m.Rules {
		matched, err := r.Matches(features)
		if err != nil {
			return 0, err
		}
		if matched {
			return 1, nil
		}
	}
	return 0, nil
}
