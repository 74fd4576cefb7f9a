package outbound

import "context"

// ArtifactSource fetches serialized model artifacts.
type ArtifactSource interface {
	// Fetch returns the raw artifact bytes stored at location.
	// Implementations wrap entity.ErrArtifactNotFound when location does not resolve.
	Fetch(ctx context.Context, location string) ([]byte, error)
}
