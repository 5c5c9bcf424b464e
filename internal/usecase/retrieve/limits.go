package retrieve

import (
	"github.com/kailas-cloud/recall/internal/domain/query"
)

// Limit resolution precedence sources.
const (
	LimitSourceExplicit     = "explicit"
	LimitSourceAutoByBudget = "auto_by_budget"
	LimitSourceConfig       = "config"
	LimitSourceDefault      = "default"
)

// LimitDecision records which precedence rule set the candidate limit, for
// observability. Provided/Clamped distinguish a value the clamp changed.
type LimitDecision struct {
	Source    string
	Limit     int // effective, always within bounds
	Requested int // limit as the caller requested it, before clamping
	Provided  int // raw value before clamping
	Clamped   bool
}

// limitConfig is the configuration slice the resolver consumes.
type limitConfig struct {
	autoByBudget    bool
	latencyBudgetMs int
	configuredLimit int // merged throttle/retriever config value, 0 = none
}

// resolveCandidateLimit picks the number of candidates to load, by
// precedence: explicit per-request value, then auto-by-budget, then
// configured value, then the compile-time default. The result is always
// clamped into the candidate limit bounds.
func resolveCandidateLimit(p query.Params, cfg limitConfig) LimitDecision {
	// The pre-clamp value: an explicit out-of-range request must surface as
	// a clamped decision, not silently arrive already bounded.
	requested := p.RequestedCandidateLimit()

	if requested != query.DefaultCandidateLimit {
		return decide(LimitSourceExplicit, requested, requested)
	}

	if cfg.autoByBudget && cfg.latencyBudgetMs > 0 {
		return decide(LimitSourceAutoByBudget, limitForBudget(cfg.latencyBudgetMs), requested)
	}

	if cfg.configuredLimit > 0 {
		return decide(LimitSourceConfig, cfg.configuredLimit, requested)
	}

	return decide(LimitSourceDefault, query.DefaultCandidateLimit, requested)
}

// limitForBudget maps a latency budget to a candidate limit via a monotonic
// step function: tighter budgets scan fewer candidates.
func limitForBudget(budgetMs int) int {
	switch {
	case budgetMs <= 180:
		return 1000
	case budgetMs <= 280:
		return 2000
	case budgetMs <= 420:
		return 4000
	default:
		return 8000
	}
}

func decide(source string, provided, requested int) LimitDecision {
	effective := query.ClampCandidateLimit(provided)
	return LimitDecision{
		Source:    source,
		Limit:     effective,
		Requested: requested,
		Provided:  provided,
		Clamped:   effective != provided,
	}
}
