// Package manifest writes per-search evidence records for downstream audit
// tooling. Writing is best-effort: a failed write is logged by the caller and
// never fails the search.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Record is one evidence manifest, one JSON object per search.
type Record struct {
	Slug            string         `json:"slug"`
	Scope           string         `json:"scope"`
	Outcome         string         `json:"outcome"`
	EvidenceIDs     []string       `json:"evidence_ids"`
	TimingsMs       map[string]int `json:"timings_ms"`
	CandidatesCount int            `json:"candidates_count"`
	EvaluatedCount  int            `json:"evaluated_count"`
	VectorsEmpty    int            `json:"vectors_empty"`
	VectorsBad      int            `json:"vectors_bad"`
	BudgetHit       bool           `json:"budget_hit"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Writer persists records under baseDir/<slug>/<scope>/.
type Writer struct {
	baseDir string
	logger  *zap.Logger
}

// NewWriter creates a manifest writer rooted at baseDir.
func NewWriter(baseDir string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{baseDir: baseDir, logger: logger}
}

// Write stores one record as a standalone JSON file.
func (w *Writer) Write(rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	dir := filepath.Join(w.baseDir, rec.Slug, rec.Scope)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", rec.CreatedAt.Format("20060102T150405"), uuid.NewString())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}

	w.logger.Debug("Evidence manifest written", zap.String("path", path))
	return nil
}
