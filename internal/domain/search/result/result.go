// Package result defines a single ranked search hit.
package result

// Result is a single search hit.
type Result struct {
	id       string
	score    float64
	content  string
	metadata map[string]any
}

// New creates a search result. Score is cosine similarity in [-1, 1].
func New(id string, score float64, content string, metadata map[string]any) Result {
	return Result{id: id, score: score, content: content, metadata: metadata}
}

// ID returns the candidate identifier backing this hit.
func (r *Result) ID() string { return r.id }

// Score returns the relevance score.
func (r *Result) Score() float64 { return r.score }

// Content returns the chunk content.
func (r *Result) Content() string { return r.content }

// Metadata returns the chunk metadata.
func (r *Result) Metadata() map[string]any { return r.metadata }
