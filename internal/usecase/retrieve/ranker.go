package retrieve

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/kailas-cloud/recall/internal/domain/candidate"
	"github.com/kailas-cloud/recall/internal/domain/search/result"
	"github.com/kailas-cloud/recall/internal/throttle"
)

// deadlineCheckEvery bounds the cost of time.Now during a scan.
const deadlineCheckEvery = 64

// CoerceStats counts candidates excluded from ranking because their stored
// embedding could not be coerced to a numeric vector.
type CoerceStats struct {
	Empty     int // missing or zero-length vectors
	Malformed int // payloads that failed to parse
}

// rankOutcome is the internal result of a ranking pass.
type rankOutcome struct {
	results   []result.Result
	evaluated int
	budgetHit bool
	stats     CoerceStats
	elapsed   time.Duration
}

type scoredCandidate struct {
	arrival int
	score   float64
}

// rankCandidates scores candidates against the query vector by cosine
// similarity and returns the top k in (score desc, arrival asc) order.
// Malformed embeddings are skipped and counted, never fatal. With
// abortOnDeadline set, an expired deadline stops the scan and marks
// budgetHit; only candidates evaluated so far are ranked.
func rankCandidates(
	queryVec []float32, cands []candidate.Candidate, k int,
	deadline time.Time, abortOnDeadline bool,
) rankOutcome {
	start := time.Now()
	out := rankOutcome{}

	scored := make([]scoredCandidate, 0, len(cands))
	for i := range cands {
		if abortOnDeadline && i%deadlineCheckEvery == 0 && throttle.DeadlineExceeded(deadline) {
			out.budgetHit = true
			break
		}

		vec, ok := coerceVector(cands[i].RawEmbedding(), &out.stats)
		if !ok {
			continue
		}
		scored = append(scored, scoredCandidate{arrival: i, score: cosineSimilarity(queryVec, vec)})
		out.evaluated++
	}

	// Arrival index breaks score ties deterministically.
	sort.Slice(scored, func(a, b int) bool {
		if scored[a].score != scored[b].score {
			return scored[a].score > scored[b].score
		}
		return scored[a].arrival < scored[b].arrival
	})

	if len(scored) > k {
		scored = scored[:k]
	}

	out.results = make([]result.Result, len(scored))
	for i, s := range scored {
		c := &cands[s.arrival]
		out.results[i] = result.New(c.ID(), s.score, c.Content(), c.Metadata())
	}

	out.elapsed = time.Since(start)
	return out
}

// coerceVector parses a stored embedding payload (JSON float array) into a
// numeric vector. Empty and unparseable payloads are counted and skipped.
func coerceVector(raw []byte, stats *CoerceStats) ([]float32, bool) {
	if len(raw) == 0 {
		stats.Empty++
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		stats.Malformed++
		return nil, false
	}
	if len(vec) == 0 {
		stats.Empty++
		return nil, false
	}
	return vec, true
}

// cosineSimilarity computes dot(a,b) / (|a|*|b|), defined as 0 when either
// norm is zero or dimensions differ.
func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
