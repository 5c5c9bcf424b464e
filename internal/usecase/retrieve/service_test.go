package retrieve

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/domain/candidate"
	"github.com/kailas-cloud/recall/internal/domain/query"
	"github.com/kailas-cloud/recall/internal/manifest"
	"github.com/kailas-cloud/recall/internal/throttle"
)

// --- Mocks ---

type mockEmbedder struct {
	vec    []float32
	err    error
	called bool
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.called = true
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

type mockFetcher struct {
	cands     []candidate.Candidate
	err       error
	called    bool
	lastSlug  string
	lastScope string
	lastLimit int
	lastPath  string
}

func (m *mockFetcher) Fetch(
	_ context.Context, slug, scope string, limit int, dbPath string,
) ([]candidate.Candidate, error) {
	m.called = true
	m.lastSlug, m.lastScope, m.lastLimit, m.lastPath = slug, scope, limit, dbPath
	return m.cands, m.err
}

type mockAuthorizer struct {
	err    error
	called bool
}

func (m *mockAuthorizer) Authorize(_ context.Context, _ query.Params) error {
	m.called = true
	return m.err
}

type mockManifests struct {
	records []manifest.Record
	err     error
}

func (m *mockManifests) Write(rec manifest.Record) error {
	m.records = append(m.records, rec)
	return m.err
}

func rawVec(t *testing.T, v []float32) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func newTestService(embed *mockEmbedder, fetch *mockFetcher, cfg Config, opts ...Option) *Service {
	guard := throttle.NewGuard(func() *throttle.Registry { return throttle.NewRegistry() }, nil)
	return New(guard, embed, fetch, cfg, nil, opts...)
}

func testParams(t *testing.T, queryText string, k int) query.Params {
	t.Helper()
	p, err := query.New("acme", "book", queryText, k)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return p
}

// --- Tests ---

func TestSearch_HappyPath(t *testing.T) {
	// Ten candidates, three with empty vectors.
	cands := make([]candidate.Candidate, 0, 10)
	for i := 0; i < 7; i++ {
		cands = append(cands, candidate.New(
			"c"+string(rune('0'+i)), "chunk", nil, rawVec(t, []float32{1, float32(i)}),
		))
	}
	for i := 7; i < 10; i++ {
		cands = append(cands, candidate.New("c"+string(rune('0'+i)), "chunk", nil, nil))
	}

	embed := &mockEmbedder{vec: []float32{1, 0}}
	fetch := &mockFetcher{cands: cands}
	manifests := &mockManifests{}
	svc := newTestService(embed, fetch, Config{}, WithManifestWriter(manifests))

	p := testParams(t, "pricing", 5)
	results, err := svc.Search(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if fetch.lastSlug != "acme" || fetch.lastScope != "book" {
		t.Fatalf("fetcher got %s/%s", fetch.lastSlug, fetch.lastScope)
	}
	if fetch.lastLimit != query.DefaultCandidateLimit {
		t.Fatalf("expected default limit, got %d", fetch.lastLimit)
	}

	if len(manifests.records) != 1 {
		t.Fatalf("expected one manifest, got %d", len(manifests.records))
	}
	rec := manifests.records[0]
	if rec.Outcome != "ok" || rec.CandidatesCount != 10 || rec.EvaluatedCount != 7 {
		t.Fatalf("unexpected manifest: %+v", rec)
	}
	if rec.VectorsEmpty != 3 {
		t.Fatalf("expected 3 empty vectors, got %d", rec.VectorsEmpty)
	}
	if len(rec.EvidenceIDs) != 5 {
		t.Fatalf("expected 5 evidence ids, got %d", len(rec.EvidenceIDs))
	}
}

func TestSearch_InvalidParamsBeforeGuard(t *testing.T) {
	embed := &mockEmbedder{vec: []float32{1}}
	fetch := &mockFetcher{}
	svc := newTestService(embed, fetch, Config{})

	var zero query.Params
	_, err := svc.Search(context.Background(), zero)
	if !errors.Is(err, domain.ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	if embed.called || fetch.called {
		t.Fatal("adapters must not run for invalid params")
	}
}

func TestSearch_SoftFailBlankQuery(t *testing.T) {
	embed := &mockEmbedder{vec: []float32{1}}
	fetch := &mockFetcher{}
	svc := newTestService(embed, fetch, Config{})

	results, err := svc.Search(context.Background(), testParams(t, "   ", 5))
	if err != nil {
		t.Fatalf("soft-fail must not error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %d", len(results))
	}
	if embed.called || fetch.called {
		t.Fatal("adapters must not run on preflight soft-fail")
	}
}

func TestSearch_SoftFailZeroK(t *testing.T) {
	embed := &mockEmbedder{vec: []float32{1}}
	fetch := &mockFetcher{}
	svc := newTestService(embed, fetch, Config{})

	results, err := svc.Search(context.Background(), testParams(t, "pricing", 0))
	if err != nil {
		t.Fatalf("soft-fail must not error: %v", err)
	}
	if len(results) != 0 || embed.called || fetch.called {
		t.Fatal("k=0 must soft-fail without invoking adapters")
	}
}

func TestSearch_SoftFailEmbedError(t *testing.T) {
	embed := &mockEmbedder{err: errors.New("provider down")}
	fetch := &mockFetcher{}
	svc := newTestService(embed, fetch, Config{})

	results, err := svc.Search(context.Background(), testParams(t, "pricing", 5))
	if err != nil {
		t.Fatalf("embed failure must soft-fail, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %d", len(results))
	}
	if fetch.called {
		t.Fatal("fetch must not run after embed failure")
	}
}

func TestSearch_SoftFailEmptyQueryVector(t *testing.T) {
	embed := &mockEmbedder{vec: []float32{}}
	fetch := &mockFetcher{}
	svc := newTestService(embed, fetch, Config{})

	results, err := svc.Search(context.Background(), testParams(t, "pricing", 5))
	if err != nil || len(results) != 0 {
		t.Fatalf("expected empty soft-fail, got %v / %d results", err, len(results))
	}
	if fetch.called {
		t.Fatal("fetch must not run for an empty query vector")
	}
}

func TestSearch_SoftFailFetchError(t *testing.T) {
	embed := &mockEmbedder{vec: []float32{1, 0}}
	fetch := &mockFetcher{err: errors.New("store gone")}
	svc := newTestService(embed, fetch, Config{})

	results, err := svc.Search(context.Background(), testParams(t, "pricing", 5))
	if err != nil || len(results) != 0 {
		t.Fatalf("expected empty soft-fail, got %v / %d results", err, len(results))
	}
}

func TestRun_DeadlineAlreadyPast(t *testing.T) {
	embed := &mockEmbedder{vec: []float32{1, 0}}
	fetch := &mockFetcher{}
	svc := newTestService(embed, fetch, Config{})

	past := time.Now().Add(-time.Second)
	o := svc.run(context.Background(), testParams(t, "pricing", 5), past)

	if o.reason != reasonDeadlinePreflight {
		t.Fatalf("expected %s, got %s", reasonDeadlinePreflight, o.reason)
	}
	if embed.called || fetch.called {
		t.Fatal("embedder and fetcher must not be invoked past the deadline")
	}
}

func TestRun_BudgetHitDiscardsPartialRanking(t *testing.T) {
	cands := []candidate.Candidate{
		candidate.New("c0", "chunk", nil, rawVec(t, []float32{1, 0})),
	}
	embed := &mockEmbedder{vec: []float32{1, 0}}
	fetch := &mockFetcher{cands: cands}
	// Tiny budget: expires between guard entry and the rank scan.
	svc := newTestService(embed, fetch, Config{
		Throttle: throttle.Settings{LatencyBudgetMs: 1},
	})

	deadline := time.Now().Add(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	o := svc.run(context.Background(), testParams(t, "pricing", 5), deadline)

	if o.reason == reasonOK {
		t.Fatalf("expected a deadline soft-fail, got ok")
	}
	if len(o.results) != 0 {
		t.Fatal("partial rankings must never be returned")
	}
}

func TestSearch_ThrottleTimeoutIsHardError(t *testing.T) {
	reg := throttle.NewRegistry()
	guard := throttle.NewGuard(func() *throttle.Registry { return reg }, nil)
	embed := &mockEmbedder{vec: []float32{1, 0}}
	fetch := &mockFetcher{}
	cfg := Config{Throttle: throttle.Settings{Parallelism: 1, AcquireTimeoutMs: 30}}
	svc := New(guard, embed, fetch, cfg, nil)

	// Saturate the key directly.
	hold, _, err := guard.Enter(context.Background(), "acme::book", cfg.Throttle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer hold()

	_, err = svc.Search(context.Background(), testParams(t, "pricing", 5))
	if !errors.Is(err, domain.ErrThrottleTimeout) {
		t.Fatalf("expected ErrThrottleTimeout, got %v", err)
	}
}

func TestSearch_SlotReleasedAfterSoftFail(t *testing.T) {
	reg := throttle.NewRegistry()
	guard := throttle.NewGuard(func() *throttle.Registry { return reg }, nil)
	embed := &mockEmbedder{err: errors.New("provider down")}
	fetch := &mockFetcher{}
	cfg := Config{Throttle: throttle.Settings{Parallelism: 1, AcquireTimeoutMs: 50}}
	svc := New(guard, embed, fetch, cfg, nil)

	p := testParams(t, "pricing", 5)
	for i := 0; i < 3; i++ {
		if _, err := svc.Search(context.Background(), p); err != nil {
			t.Fatalf("call %d: slot not released: %v", i, err)
		}
	}
}

type panickingFetcher struct{}

func (panickingFetcher) Fetch(context.Context, string, string, int, string) ([]candidate.Candidate, error) {
	panic("corrupt candidate page")
}

func TestSearch_SlotReleasedAfterPanic(t *testing.T) {
	reg := throttle.NewRegistry()
	guard := throttle.NewGuard(func() *throttle.Registry { return reg }, nil)
	embed := &mockEmbedder{vec: []float32{1, 0}}
	cfg := Config{Throttle: throttle.Settings{Parallelism: 1, AcquireTimeoutMs: 50}}
	svc := New(guard, embed, panickingFetcher{}, cfg, nil)

	p := testParams(t, "pricing", 5)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_, _ = svc.Search(context.Background(), p)
	}()

	// The slot must be free again: a second entry on the same key succeeds
	// instead of timing out.
	release, _, err := guard.Enter(context.Background(), p.ThrottleKey(), cfg.Throttle)
	if err != nil {
		t.Fatalf("slot not released after panic: %v", err)
	}
	release()
}

func TestSearch_AuthorizerDenies(t *testing.T) {
	embed := &mockEmbedder{vec: []float32{1, 0}}
	fetch := &mockFetcher{}
	auth := &mockAuthorizer{err: domain.ErrUnauthorized}
	svc := newTestService(embed, fetch, Config{}, WithAuthorizer(auth))

	_, err := svc.Search(context.Background(), testParams(t, "pricing", 5))
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !auth.called {
		t.Fatal("authorizer not invoked")
	}
	if embed.called {
		t.Fatal("embedder must not run after authorization failure")
	}
}

func TestSearch_ManifestFailureDoesNotMaskResult(t *testing.T) {
	cands := []candidate.Candidate{
		candidate.New("c0", "chunk", nil, rawVec(t, []float32{1, 0})),
	}
	embed := &mockEmbedder{vec: []float32{1, 0}}
	fetch := &mockFetcher{cands: cands}
	manifests := &mockManifests{err: errors.New("disk full")}
	svc := newTestService(embed, fetch, Config{}, WithManifestWriter(manifests))

	results, err := svc.Search(context.Background(), testParams(t, "pricing", 5))
	if err != nil {
		t.Fatalf("manifest failure must not surface: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestSearch_ConfiguredLimitReachesFetcher(t *testing.T) {
	embed := &mockEmbedder{vec: []float32{1, 0}}
	fetch := &mockFetcher{}
	svc := newTestService(embed, fetch, Config{ConfigCandidateLimit: 2500})

	p := testParams(t, "pricing", 5).WithDBPath("/data/acme.db")
	if _, err := svc.Search(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetch.lastLimit != 2500 {
		t.Fatalf("expected configured limit 2500, got %d", fetch.lastLimit)
	}
	if fetch.lastPath != "/data/acme.db" {
		t.Fatalf("db path not propagated: %s", fetch.lastPath)
	}
}

func TestSearch_ThrottleKeyOverride(t *testing.T) {
	reg := throttle.NewRegistry()
	guard := throttle.NewGuard(func() *throttle.Registry { return reg }, nil)
	embed := &mockEmbedder{vec: []float32{1, 0}}
	fetch := &mockFetcher{}
	cfg := Config{Throttle: throttle.Settings{Parallelism: 1, AcquireTimeoutMs: 30, Key: "shared"}}
	svc := New(guard, embed, fetch, cfg, nil)

	// Saturating the override key throttles requests for any slug/scope.
	hold, _, err := guard.Enter(context.Background(), "shared", cfg.Throttle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer hold()

	_, err = svc.Search(context.Background(), testParams(t, "pricing", 5))
	if !errors.Is(err, domain.ErrThrottleTimeout) {
		t.Fatalf("expected ErrThrottleTimeout on override key, got %v", err)
	}
}
