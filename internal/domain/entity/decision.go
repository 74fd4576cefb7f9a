package entity

import "fmt"

// Decision is the categorical verdict derived from a fraud probability.
type Decision string

// Decision values.
const (
	DecisionApprove Decision = "approve"
	DecisionReview  Decision = "review"
	DecisionReject  Decision = "reject"
)

// Default decision thresholds.
const (
	DefaultThreshold       = 0.6
	DefaultReviewThreshold = 0.4
)

// DecisionPolicy maps probabilities to decisions.
// Probabilities at or above Threshold are rejected, those at or above
// ReviewThreshold are sent to review, everything else is approved.
// A ReviewThreshold at or above Threshold leaves no review band.
type DecisionPolicy struct {
	Threshold       float64
	ReviewThreshold float64
}

// DefaultDecisionPolicy returns the policy with the default thresholds.
func DefaultDecisionPolicy() DecisionPolicy {
	return DecisionPolicy{
		Threshold:       DefaultThreshold,
		ReviewThreshold: DefaultReviewThreshold,
	}
}

// Decide is a pure function of the probability and the policy thresholds.
func (p DecisionPolicy) Decide(probability float64) Decision {
	switch {
	case probability >= p.Threshold:
		return DecisionReject
	case probability >= p.ReviewThreshold:
		return DecisionReview
	default:
		return DecisionApprove
	}
}

// Decide applies the three-tier policy with the given thresholds.
func Decide(probability, threshold, reviewThreshold float64) Decision {
	return DecisionPolicy{Threshold: threshold, ReviewThreshold: reviewThreshold}.Decide(probability)
}

// IsFraud reports whether the decision flags the transaction as fraudulent.
func (d Decision) IsFraud() bool {
	return d == DecisionReject
}

// ParseDecision converts a stored decision string back into a Decision.
func ParseDecision(raw string) (Decision, error) {
	switch Decision(raw) {
	case DecisionApprove, DecisionReview, DecisionReject:
		return Decision(raw), nil
	default:
		return "", fmt.Errorf("unknown decision %q", raw)
	}
}
