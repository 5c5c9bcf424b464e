// Package retrieve implements the embedding-based retrieval orchestrator:
// throttle entry, query embedding, candidate fetch, cosine ranking, and
// metrics/manifest emission under a shared latency deadline.
package retrieve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recall/internal/domain/query"
	"github.com/kailas-cloud/recall/internal/domain/search/result"
	"github.com/kailas-cloud/recall/internal/manifest"
	"github.com/kailas-cloud/recall/internal/metrics"
	"github.com/kailas-cloud/recall/internal/throttle"
)

// Soft-fail reason codes. Every one converges to an empty result list
// returned without error; the code survives in logs, metrics, and manifests.
const (
	reasonOK                = "ok"
	reasonDeadlinePreflight = "deadline_preflight"
	reasonZeroK             = "zero_k"
	reasonBlankQuery        = "blank_query"
	reasonDeadlineEmbed     = "deadline_before_embed"
	reasonEmbedError        = "embed_error"
	reasonEmptyQueryVector  = "empty_query_vector"
	reasonDeadlineFetch     = "deadline_before_fetch"
	reasonFetchError        = "fetch_error"
	reasonDeadlinePostFetch = "deadline_after_fetch"
	reasonBudgetExhausted   = "budget_exhausted_ranking"
)

// Config holds the retrieval settings the service applies per search.
type Config struct {
	Throttle     throttle.Settings
	AutoByBudget bool
	// ConfigCandidateLimit is the merged config value (throttle override
	// wins over retriever), 0 = nothing configured.
	ConfigCandidateLimit int
}

// Service orchestrates a search call end to end.
type Service struct {
	guard     *throttle.Guard
	embed     Embedder
	fetch     CandidateFetcher
	cfg       Config
	auth      Authorizer
	manifests ManifestWriter
	logger    *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithAuthorizer installs an authorization hook, invoked after guard
// acquisition and before any stage runs.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Service) { s.auth = a }
}

// WithManifestWriter enables best-effort evidence manifest emission.
func WithManifestWriter(w ManifestWriter) Option {
	return func(s *Service) { s.manifests = w }
}

// New creates a retrieval service.
func New(
	guard *throttle.Guard, embed Embedder, fetch CandidateFetcher,
	cfg Config, logger *zap.Logger, opts ...Option,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{guard: guard, embed: embed, fetch: fetch, cfg: cfg, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Search runs one retrieval call. Only parameter validation, authorization,
// and throttle acquisition surface as errors; every other failure mode
// degrades to an empty result list. Retries are the caller's responsibility.
func (s *Service) Search(ctx context.Context, p query.Params) ([]result.Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	key := p.ThrottleKey()
	if s.cfg.Throttle.Key != "" {
		key = s.cfg.Throttle.Key
	}

	release, deadline, err := s.guard.Enter(ctx, key, s.cfg.Throttle)
	if err != nil {
		return nil, err
	}
	defer release()

	if s.auth != nil {
		if err := s.auth.Authorize(ctx, p); err != nil {
			return nil, fmt.Errorf("authorize %s: %w", key, err)
		}
	}

	o := s.run(ctx, p, deadline)
	s.emit(p, o)
	return o.results, nil
}

// searchOutcome tags the internal result of a search: ok with results, or a
// soft-fail reason. The public signature collapses both to a result list.
type searchOutcome struct {
	reason    string
	results   []result.Result
	decision  LimitDecision
	embedDur  time.Duration
	fetchDur  time.Duration
	rankDur   time.Duration
	fetched   int
	evaluated int
	stats     CoerceStats
	budgetHit bool
}

func (o *searchOutcome) softFail(reason string) searchOutcome {
	o.reason = reason
	o.results = nil
	return *o
}

// run walks the PREFLIGHT, EMBED, FETCH, and RANK stages. The deadline is
// re-checked at every stage boundary; in-flight adapter calls are never
// interrupted, but their results are discarded once the deadline passed.
func (s *Service) run(ctx context.Context, p query.Params, deadline time.Time) searchOutcome {
	o := searchOutcome{reason: reasonOK}

	// PREFLIGHT
	if throttle.DeadlineExceeded(deadline) {
		return o.softFail(reasonDeadlinePreflight)
	}
	if p.K() == 0 {
		return o.softFail(reasonZeroK)
	}
	if strings.TrimSpace(p.Query()) == "" {
		return o.softFail(reasonBlankQuery)
	}

	o.decision = resolveCandidateLimit(p, limitConfig{
		autoByBudget:    s.cfg.AutoByBudget,
		latencyBudgetMs: s.cfg.Throttle.LatencyBudgetMs,
		configuredLimit: s.cfg.ConfigCandidateLimit,
	})
	s.logLimitDecision(p, o.decision)

	// EMBED
	if throttle.DeadlineExceeded(deadline) {
		return o.softFail(reasonDeadlineEmbed)
	}
	embedStart := time.Now()
	embRes, err := s.embed.Embed(ctx, p.Query())
	o.embedDur = time.Since(embedStart)
	metrics.SearchStageDuration.WithLabelValues("embed").Observe(o.embedDur.Seconds())
	if err != nil {
		s.logger.Warn("Query embedding failed",
			zap.String("slug", p.Slug()), zap.String("scope", p.Scope()), zap.Error(err))
		return o.softFail(reasonEmbedError)
	}
	if len(embRes.Embedding) == 0 {
		s.logger.Warn("Query embedding empty",
			zap.String("slug", p.Slug()), zap.String("scope", p.Scope()))
		return o.softFail(reasonEmptyQueryVector)
	}

	// FETCH
	if throttle.DeadlineExceeded(deadline) {
		return o.softFail(reasonDeadlineFetch)
	}
	fetchStart := time.Now()
	cands, err := s.fetch.Fetch(ctx, p.Slug(), p.Scope(), o.decision.Limit, p.DBPath())
	o.fetchDur = time.Since(fetchStart)
	metrics.SearchStageDuration.WithLabelValues("fetch").Observe(o.fetchDur.Seconds())
	if err != nil {
		s.logger.Warn("Candidate fetch failed",
			zap.String("slug", p.Slug()), zap.String("scope", p.Scope()),
			zap.Int("limit", o.decision.Limit), zap.Error(err))
		return o.softFail(reasonFetchError)
	}
	o.fetched = len(cands)
	if throttle.DeadlineExceeded(deadline) {
		return o.softFail(reasonDeadlinePostFetch)
	}

	// RANK
	ro := rankCandidates(embRes.Embedding, cands, p.K(), deadline, true)
	o.rankDur = ro.elapsed
	o.evaluated = ro.evaluated
	o.stats = ro.stats
	o.budgetHit = ro.budgetHit
	metrics.SearchStageDuration.WithLabelValues("rank").Observe(o.rankDur.Seconds())
	if ro.budgetHit {
		// Partial rankings are metrics material, never a final answer.
		return o.softFail(reasonBudgetExhausted)
	}

	o.results = ro.results
	return o
}

// emit records metrics and the optional evidence manifest. Always runs, and
// its failures never mask the search result.
func (s *Service) emit(p query.Params, o searchOutcome) {
	metrics.SearchTotal.WithLabelValues(o.reason).Inc()
	metrics.CandidatesEvaluated.Observe(float64(o.evaluated))
	if o.budgetHit {
		metrics.BudgetHitTotal.Inc()
	}

	s.logger.Info("Search completed",
		zap.String("slug", p.Slug()),
		zap.String("scope", p.Scope()),
		zap.String("outcome", o.reason),
		zap.Int("results", len(o.results)),
		zap.Int("candidates", o.fetched),
		zap.Int("evaluated", o.evaluated),
		zap.Bool("budget_hit", o.budgetHit),
		zap.Duration("embed", o.embedDur),
		zap.Duration("fetch", o.fetchDur),
		zap.Duration("rank", o.rankDur),
	)

	if s.manifests == nil {
		return
	}
	evidence := make([]string, len(o.results))
	for i := range o.results {
		evidence[i] = o.results[i].ID()
	}
	rec := manifest.Record{
		Slug:    p.Slug(),
		Scope:   p.Scope(),
		Outcome: o.reason,
		TimingsMs: map[string]int{
			"embed": int(o.embedDur.Milliseconds()),
			"fetch": int(o.fetchDur.Milliseconds()),
			"rank":  int(o.rankDur.Milliseconds()),
		},
		EvidenceIDs:     evidence,
		CandidatesCount: o.fetched,
		EvaluatedCount:  o.evaluated,
		VectorsEmpty:    o.stats.Empty,
		VectorsBad:      o.stats.Malformed,
		BudgetHit:       o.budgetHit,
	}
	if err := s.manifests.Write(rec); err != nil {
		s.logger.Warn("Failed to write evidence manifest",
			zap.String("slug", p.Slug()), zap.String("scope", p.Scope()), zap.Error(err))
	}
}

func (s *Service) logLimitDecision(p query.Params, d LimitDecision) {
	metrics.CandidateLimitResolutions.WithLabelValues(d.Source).Inc()
	s.logger.Debug("Candidate limit resolved",
		zap.String("slug", p.Slug()),
		zap.String("scope", p.Scope()),
		zap.String("source", d.Source),
		zap.Int("limit", d.Limit),
		zap.Int("limit_requested", d.Requested),
	)
	if d.Clamped {
		s.logger.Warn("Candidate limit clamped",
			zap.Int("provided", d.Provided), zap.Int("effective", d.Limit))
	}
}
