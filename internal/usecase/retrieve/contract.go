package retrieve

import (
	"context"

	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/domain/candidate"
	"github.com/kailas-cloud/recall/internal/domain/query"
	"github.com/kailas-cloud/recall/internal/manifest"
)

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// CandidateFetcher loads candidates from the per-tenant row store. Ordering
// of returned candidates is not guaranteed stable across calls; tie-breaks in
// ranking rely only on order of arrival within a single fetch.
type CandidateFetcher interface {
	Fetch(ctx context.Context, slug, scope string, limit int, dbPath string) ([]candidate.Candidate, error)
}

// Authorizer is an optional hook invoked after guard acquisition and before
// embedding. A non-nil error is a hard failure surfaced to the caller.
type Authorizer interface {
	Authorize(ctx context.Context, p query.Params) error
}

// ManifestWriter persists evidence manifests. Write failures are logged and
// swallowed, never surfaced.
type ManifestWriter interface {
	Write(rec manifest.Record) error
}
