// Package candidate reads stored text chunks and their embeddings from
// per-tenant SQLite databases.
package candidate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/kailas-cloud/recall/internal/domain"
	domaincand "github.com/kailas-cloud/recall/internal/domain/candidate"
)

const fetchQuery = `SELECT id, content, metadata, embedding
FROM candidates
WHERE slug = ? AND scope = ?
LIMIT ?`

// Repo fetches ranking candidates from SQLite files. Handles are opened
// lazily per database path and kept for the process lifetime.
type Repo struct {
	defaultPath string
	logger      *zap.Logger

	mu      sync.Mutex
	handles map[string]*sql.DB
}

// NewRepo creates a candidate repository. defaultPath is used when a query
// does not carry its own database path.
func NewRepo(defaultPath string, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{
		defaultPath: defaultPath,
		logger:      logger,
		handles:     make(map[string]*sql.DB),
	}
}

// Fetch returns up to limit candidates for the tenant slug and scope.
// Embeddings are returned as the raw stored bytes; decoding happens at
// ranking time so malformed rows degrade a single candidate, not the query.
func (r *Repo) Fetch(
	ctx context.Context, slug, scope string, limit int, dbPath string,
) ([]domaincand.Candidate, error) {
	path := dbPath
	if path == "" {
		path = r.defaultPath
	}
	if path == "" {
		return nil, fmt.Errorf("no database path configured: %w", domain.ErrStoreUnavailable)
	}

	db, err := r.handle(path)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, fetchQuery, slug, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("query candidates %s/%s: %w", slug, scope, err)
	}
	defer rows.Close()

	var out []domaincand.Candidate
	for rows.Next() {
		var (
			id        string
			content   string
			metaRaw   sql.NullString
			embedding []byte
		)
		if err := rows.Scan(&id, &content, &metaRaw, &embedding); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		out = append(out, domaincand.New(id, content, parseMetadata(r.logger, id, metaRaw), embedding))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}

	return out, nil
}

// handle returns a cached connection for path, opening it read-only on
// first use.
func (r *Repo) handle(path string) (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.handles[path]; ok {
		return db, nil
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open candidate store %s: %w", path, domain.ErrStoreUnavailable)
	}

	r.logger.Info("Opened candidate store", zap.String("path", path))
	r.handles[path] = db
	return db, nil
}

// Close closes every cached database handle.
func (r *Repo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for path, db := range r.handles {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close candidate store %s: %w", path, err)
		}
		delete(r.handles, path)
	}
	return firstErr
}

// parseMetadata decodes the metadata JSON column. A broken blob loses the
// metadata, never the candidate.
func parseMetadata(logger *zap.Logger, id string, raw sql.NullString) map[string]any {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw.String), &meta); err != nil {
		logger.Warn("Failed to parse candidate metadata",
			zap.String("id", id), zap.Error(err))
		return nil
	}
	return meta
}
