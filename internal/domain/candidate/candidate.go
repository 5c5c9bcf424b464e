// Package candidate defines stored content chunks eligible for ranking.
package candidate

// Candidate is a content chunk loaded from the candidate store. The embedding
// payload stays raw as stored; coercion into a numeric vector happens at
// ranking time so a malformed row never aborts a fetch.
type Candidate struct {
	id       string
	content  string
	metadata map[string]any
	raw      []byte
}

// New creates a candidate.
func New(id, content string, metadata map[string]any, rawEmbedding []byte) Candidate {
	return Candidate{id: id, content: content, metadata: metadata, raw: rawEmbedding}
}

// ID returns the chunk identifier.
func (c *Candidate) ID() string { return c.id }

// Content returns the chunk payload.
func (c *Candidate) Content() string { return c.content }

// Metadata returns the chunk metadata mapping.
func (c *Candidate) Metadata() map[string]any { return c.metadata }

// RawEmbedding returns the embedding payload as stored.
func (c *Candidate) RawEmbedding() []byte { return c.raw }
