package entity

import "errors"

// Error taxonomy shared by the services and adapters. Callers wrap these with
// fmt.Errorf("...: %w", Err...) and match them with errors.Is.
var (
	// ErrConfiguration is returned when a required setting is missing.
	ErrConfiguration = errors.New("configuration error")

	// ErrArtifactNotFound is returned when the model location does not resolve.
	ErrArtifactNotFound = errors.New("model artifact not found")

	// ErrInvalidArtifact is returned when a loaded artifact cannot score transactions.
	ErrInvalidArtifact = errors.New("invalid model artifact")

	// ErrValidation is returned for malformed transaction payloads.
	ErrValidation = errors.New("validation error")

	// ErrScoringFailed is returned when model invocation or persistence fails during scoring.
	ErrScoringFailed = errors.New("scoring failed")
)
