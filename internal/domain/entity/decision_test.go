package entity

import "testing"

func TestDecide(t *testing.T) {
	tests := []struct {
		name            string
		probability     float64
		threshold       float64
		reviewThreshold float64
		want            Decision
	}{
		{"above threshold rejects", 0.7, 0.5, 0.4, DecisionReject},
		{"below review approves", 0.3, 0.5, 0.4, DecisionApprove},
		{"equal to threshold rejects", 0.6, 0.6, 0.4, DecisionReject},
		{"review band", 0.45, 0.6, 0.4, DecisionReview},
		{"equal to review threshold reviews", 0.4, 0.6, 0.4, DecisionReview},
		{"certain fraud", 1.0, 0.6, 0.4, DecisionReject},
		{"zero probability", 0.0, 0.6, 0.4, DecisionApprove},
		{"collapsed review band is binary", 0.45, 0.4, 0.6, DecisionReject},
		{"collapsed review band approves", 0.35, 0.4, 0.6, DecisionApprove},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.probability, tt.threshold, tt.reviewThreshold)
			if got != tt.want {
				t.Errorf("Decide(%v, %v, %v) = %q, want %q", tt.probability, tt.threshold, tt.reviewThreshold, got, tt.want)
			}
		})
	}
}

func TestDecide_Deterministic(t *testing.T) {
	policy := DefaultDecisionPolicy()
	for i := 0; i <= 100; i++ {
		p := float64(i) / 100
		if policy.Decide(p) != policy.Decide(p) {
			t.Fatalf("Decide(%v) is not deterministic", p)
		}
	}
}

func TestDecision_IsFraud(t *testing.T) {
	if !DecisionReject.IsFraud() {
		t.Error("reject should flag fraud")
	}
	if DecisionReview.IsFraud() || DecisionApprove.IsFraud() {
		t.Error("only reject flags fraud")
	}
}

func TestParseDecision(t *testing.T) {
	for _, d := range []Decision{DecisionApprove, DecisionReview, DecisionReject} {
		if got, err := ParseDecision(string(d)); err != nil || got != d {
			t.Errorf("ParseDecision(%q) = %q, %v", d, got, err)
		}
	}
	if _, err := ParseDecision("1"); err == nil {
		t.Error("expected error for legacy binary label")
	}
}
