package recall

import "github.com/kailas-cloud/recall/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidParams          = domain.ErrInvalidParams
	ErrThrottleTimeout        = domain.ErrThrottleTimeout
	ErrUnauthorized           = domain.ErrUnauthorized
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrStoreUnavailable       = domain.ErrStoreUnavailable
)
