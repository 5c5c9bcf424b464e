// Package query defines the validated, immutable search parameters.
package query

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/recall/internal/domain"
)

// Candidate limit bounds. Every resolution step clamps into this range.
const (
	MinCandidateLimit     = 100
	MaxCandidateLimit     = 20000
	DefaultCandidateLimit = 4000
)

// Params is a validated search request. Modification goes through WithX
// copies; a Params value never mutates in place.
type Params struct {
	slug           string
	scope          string
	query          string
	k              int
	candidateLimit int
	requestedLimit int
	dbPath         string
}

// New validates and builds search parameters.
// Slug and scope identify the tenant partition and must be non-empty.
// A blank query or k==0 is accepted here: both soft-fail at search time
// rather than erroring at construction.
func New(slug, scope, queryText string, k int) (Params, error) {
	if strings.TrimSpace(slug) == "" {
		return Params{}, fmt.Errorf("%w: slug is required", domain.ErrInvalidParams)
	}
	if strings.TrimSpace(scope) == "" {
		return Params{}, fmt.Errorf("%w: scope is required", domain.ErrInvalidParams)
	}
	if k < 0 {
		return Params{}, fmt.Errorf("%w: k must be >= 0, got %d", domain.ErrInvalidParams, k)
	}

	return Params{
		slug:           slug,
		scope:          scope,
		query:          queryText,
		k:              k,
		candidateLimit: DefaultCandidateLimit,
		requestedLimit: DefaultCandidateLimit,
	}, nil
}

// Validate re-checks the invariants New establishes. Zero-value Params
// (never passed through New) fail here.
func (p Params) Validate() error {
	if p.slug == "" || p.scope == "" {
		return fmt.Errorf("%w: slug and scope are required", domain.ErrInvalidParams)
	}
	if p.k < 0 {
		return fmt.Errorf("%w: k must be >= 0, got %d", domain.ErrInvalidParams, p.k)
	}
	if p.candidateLimit < MinCandidateLimit || p.candidateLimit > MaxCandidateLimit {
		return fmt.Errorf("%w: candidate limit %d outside [%d, %d]",
			domain.ErrInvalidParams, p.candidateLimit, MinCandidateLimit, MaxCandidateLimit)
	}
	return nil
}

// WithCandidateLimit returns a copy with the candidate limit clamped to
// bounds. The pre-clamp value stays readable via RequestedCandidateLimit so
// a clamp that changed the value can be reported downstream.
func (p Params) WithCandidateLimit(limit int) Params {
	p.candidateLimit = ClampCandidateLimit(limit)
	p.requestedLimit = limit
	return p
}

// WithDBPath returns a copy bound to a candidate store handle.
func (p Params) WithDBPath(path string) Params {
	p.dbPath = path
	return p
}

// WithQuery returns a copy with different query text.
func (p Params) WithQuery(text string) Params {
	p.query = text
	return p
}

// Slug returns the tenant identifier.
func (p Params) Slug() string { return p.slug }

// Scope returns the logical partition within the tenant.
func (p Params) Scope() string { return p.scope }

// Query returns the query text.
func (p Params) Query() string { return p.query }

// K returns the requested result count.
func (p Params) K() int { return p.k }

// CandidateLimit returns the number of candidates to load before ranking.
func (p Params) CandidateLimit() int { return p.candidateLimit }

// RequestedCandidateLimit returns the candidate limit as the caller gave it,
// before clamping. Equals DefaultCandidateLimit when none was requested.
func (p Params) RequestedCandidateLimit() int { return p.requestedLimit }

// DBPath returns the opaque candidate store handle.
func (p Params) DBPath() string { return p.dbPath }

// ThrottleKey returns the concurrency scope for this request.
func (p Params) ThrottleKey() string {
	return p.slug + "::" + p.scope
}

// ClampCandidateLimit bounds a limit into [MinCandidateLimit, MaxCandidateLimit].
func ClampCandidateLimit(limit int) int {
	if limit < MinCandidateLimit {
		return MinCandidateLimit
	}
	if limit > MaxCandidateLimit {
		return MaxCandidateLimit
	}
	return limit
}
