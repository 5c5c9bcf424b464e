package retrieve

import (
	"encoding/json"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/kailas-cloud/recall/internal/domain/candidate"
)

func vecJSON(t *testing.T, v []float32) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal vector: %v", err)
	}
	return data
}

func makeCandidates(t *testing.T, vectors ...[]float32) []candidate.Candidate {
	t.Helper()
	cands := make([]candidate.Candidate, len(vectors))
	for i, v := range vectors {
		var raw []byte
		if v != nil {
			raw = vecJSON(t, v)
		}
		cands[i] = candidate.New(
			"c"+strconv.Itoa(i), "content", map[string]any{"idx": i}, raw,
		)
	}
	return cands
}

func TestRank_TopKOrdering(t *testing.T) {
	qv := []float32{1, 0}
	cands := makeCandidates(t,
		[]float32{0, 1},   // similarity 0
		[]float32{1, 0},   // similarity 1
		[]float32{1, 1},   // similarity ~0.707
		[]float32{-1, 0},  // similarity -1
		[]float32{0.5, 0}, // similarity 1 (tie with arrival 1)
	)

	out := rankCandidates(qv, cands, 3, time.Time{}, false)
	if out.evaluated != 5 {
		t.Fatalf("expected 5 evaluated, got %d", out.evaluated)
	}
	if len(out.results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out.results))
	}

	// Equal scores break by arrival order: c1 before c4.
	if out.results[0].ID() != "c1" || out.results[1].ID() != "c4" || out.results[2].ID() != "c2" {
		t.Fatalf("unexpected order: %s %s %s",
			out.results[0].ID(), out.results[1].ID(), out.results[2].ID())
	}
	for i := 1; i < len(out.results); i++ {
		if out.results[i].Score() > out.results[i-1].Score() {
			t.Fatal("results not sorted by descending score")
		}
	}
}

func TestRank_KExceedsCandidates(t *testing.T) {
	qv := []float32{1, 0}
	cands := makeCandidates(t, []float32{1, 0}, []float32{0, 1})

	out := rankCandidates(qv, cands, 10, time.Time{}, false)
	if len(out.results) != 2 {
		t.Fatalf("expected min(k, n)=2 results, got %d", len(out.results))
	}
}

func TestRank_Idempotent(t *testing.T) {
	qv := []float32{0.3, 0.7, 0.1}
	cands := makeCandidates(t,
		[]float32{0.3, 0.7, 0.1},
		[]float32{0.7, 0.3, 0.1},
		[]float32{0.1, 0.1, 0.9},
		[]float32{0.3, 0.7, 0.1},
	)

	a := rankCandidates(qv, cands, 4, time.Time{}, false)
	b := rankCandidates(qv, cands, 4, time.Time{}, false)

	if len(a.results) != len(b.results) {
		t.Fatalf("result counts differ: %d vs %d", len(a.results), len(b.results))
	}
	for i := range a.results {
		if a.results[i].ID() != b.results[i].ID() || a.results[i].Score() != b.results[i].Score() {
			t.Fatalf("run %d differs: %s/%f vs %s/%f", i,
				a.results[i].ID(), a.results[i].Score(),
				b.results[i].ID(), b.results[i].Score())
		}
	}
}

func TestRank_SkipsAndCountsBadVectors(t *testing.T) {
	qv := []float32{1, 0}
	cands := makeCandidates(t,
		[]float32{1, 0},
		nil, // empty payload
		nil,
		[]float32{0, 1},
	)
	// One malformed payload on top.
	cands = append(cands, candidate.New("bad", "content", nil, []byte("not-json")))

	out := rankCandidates(qv, cands, 10, time.Time{}, false)
	if out.stats.Empty != 2 {
		t.Fatalf("expected 2 empty, got %d", out.stats.Empty)
	}
	if out.stats.Malformed != 1 {
		t.Fatalf("expected 1 malformed, got %d", out.stats.Malformed)
	}
	if out.evaluated != 2 {
		t.Fatalf("expected 2 evaluated, got %d", out.evaluated)
	}
	if len(out.results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.results))
	}
}

func TestRank_DeadlineAbort(t *testing.T) {
	qv := []float32{1, 0}
	vectors := make([][]float32, 200)
	for i := range vectors {
		vectors[i] = []float32{1, float32(i)}
	}
	cands := makeCandidates(t, vectors...)

	past := time.Now().Add(-time.Second)
	out := rankCandidates(qv, cands, 5, past, true)

	if !out.budgetHit {
		t.Fatal("expected budget hit with expired deadline")
	}
	if out.evaluated != 0 {
		t.Fatalf("expected scan aborted immediately, evaluated %d", out.evaluated)
	}
	if len(out.results) != 0 {
		t.Fatalf("expected no results, got %d", len(out.results))
	}

	// Without the abort flag, the same deadline is ignored.
	out = rankCandidates(qv, cands, 5, past, false)
	if out.budgetHit || out.evaluated != 200 {
		t.Fatalf("expected full scan without abort flag: hit=%v evaluated=%d",
			out.budgetHit, out.evaluated)
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero norm a", []float32{0, 0}, []float32{1, 1}, 0},
		{"zero norm b", []float32{1, 1}, []float32{0, 0}, 0},
		{"dim mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"both empty", nil, nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := cosineSimilarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("got %f, want %f", got, tc.want)
			}
		})
	}
}
