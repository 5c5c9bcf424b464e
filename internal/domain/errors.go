package domain

import "errors"

var (
	// ErrInvalidParams signals malformed search parameters (bad slug/scope, negative k).
	ErrInvalidParams = errors.New("invalid search parameters")
	// ErrThrottleTimeout signals that a throttle slot could not be acquired within the configured wait.
	ErrThrottleTimeout = errors.New("throttle acquire timeout")
	// ErrUnauthorized signals a rejected authorization hook.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrStoreUnavailable signals a candidate store that could not be opened or queried.
	ErrStoreUnavailable = errors.New("candidate store unavailable")
)
