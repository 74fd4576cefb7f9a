package scoring

import (
	"context"
	"errors"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
)

// failureReason classifies a scoring error for the failure counter.
func failureReason(err error) string {
	switch {
	case errors.Is(err, entity.ErrConfiguration):
		return "configuration"
	case errors.Is(err, entity.ErrArtifactNotFound):
		return "artifact_not_found"
	case errors.Is(err, entity.ErrInvalidArtifact):
		return "invalid_artifact"
	case errors.Is(err, entity.ErrValidation):
		return "validation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
