package recall

// SearchParams describes a single retrieval request.
type SearchParams struct {
	// Slug identifies the tenant. Required.
	Slug string
	// Scope is the logical partition within the tenant. Required.
	Scope string
	// Query is the free-text query. A blank query returns no results.
	Query string
	// K is the number of results to return. K of zero returns no results.
	K int
	// CandidateLimit overrides the number of candidates loaded before
	// ranking. Zero means resolve automatically.
	CandidateLimit int
	// DBPath points the request at a specific candidate store, overriding
	// the client default.
	DBPath string
}

// SearchResult is a single ranked hit.
type SearchResult struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}
