package recall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recall/internal/db"
	dbRedis "github.com/kailas-cloud/recall/internal/db/redis"
	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/domain/query"
	"github.com/kailas-cloud/recall/internal/manifest"
	candidaterepo "github.com/kailas-cloud/recall/internal/repository/candidate"
	"github.com/kailas-cloud/recall/internal/repository/embcache"
	"github.com/kailas-cloud/recall/internal/throttle"
	retrieveuc "github.com/kailas-cloud/recall/internal/usecase/retrieve"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the recall SDK entry point.
type Client struct {
	store db.Store
	repo  *candidaterepo.Repo
	svc   *retrieveuc.Service
	obs   *observer
}

// New creates a recall Client. When a Redis cache is configured, the
// provided context bounds the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.embedder == nil {
		return nil, errors.New("recall: embedder required (use WithEmbedder)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var store db.Store
	if len(cfg.redisAddrs) > 0 {
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.redisAddrs,
			Password: cfg.redisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("recall: create redis store: %w", err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("recall: cache not ready: %w", err)
		}
		store = s
	}

	return wireClient(store, cfg, obs), nil
}

func wireClient(store db.Store, cfg *clientConfig, obs *observer) *Client {
	nop := zap.NewNop()

	var embedder domain.Embedder = &embedderAdapter{inner: cfg.embedder}
	if store != nil {
		embedder = embcache.New(embedder, store, cfg.cacheTTL, nil, nop)
	}

	repo := candidaterepo.NewRepo(cfg.dbPath, nop)

	registry := throttle.NewRegistry()
	guard := throttle.NewGuard(func() *throttle.Registry { return registry }, nop)

	svcOpts := []retrieveuc.Option{}
	if cfg.manifestDir != "" {
		svcOpts = append(svcOpts, retrieveuc.WithManifestWriter(manifest.NewWriter(cfg.manifestDir, nop)))
	}

	svc := retrieveuc.New(guard, embedder, repo, retrieveuc.Config{
		Throttle: throttle.Settings{
			LatencyBudgetMs:     cfg.latencyBudgetMs,
			Parallelism:         cfg.parallelism,
			SleepMsBetweenCalls: int(cfg.pacingGap.Milliseconds()),
			AcquireTimeoutMs:    int(cfg.acquireTimeout.Milliseconds()),
		},
	}, nop, svcOpts...)

	return &Client{
		store: store,
		repo:  repo,
		svc:   svc,
		obs:   obs,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
	if c.repo != nil {
		_ = c.repo.Close()
	}
}

// Ping checks cache connectivity. A client without a cache always succeeds.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if c.store == nil {
		return nil
	}
	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Search runs one retrieval call. Invalid parameters and throttle timeouts
// return errors; degraded searches return empty results without error.
func (c *Client) Search(ctx context.Context, params SearchParams) (out []SearchResult, err error) {
	start := time.Now()
	defer func() { c.obs.observeSearch(start, len(out), err) }()

	p, err := query.New(params.Slug, params.Scope, params.Query, params.K)
	if err != nil {
		return nil, err
	}
	if params.CandidateLimit > 0 {
		p = p.WithCandidateLimit(params.CandidateLimit)
	}
	if params.DBPath != "" {
		p = p.WithDBPath(params.DBPath)
	}

	results, err := c.svc.Search(ctx, p)
	if err != nil {
		return nil, err
	}

	out = make([]SearchResult, len(results))
	for i := range results {
		out[i] = SearchResult{
			ID:       results[i].ID(),
			Score:    results[i].Score(),
			Content:  results[i].Content(),
			Metadata: results[i].Metadata(),
		}
	}
	return out, nil
}

// embedderAdapter wraps the public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}
