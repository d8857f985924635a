package policyindex

import "testing"

func TestRRFBoundsPerRetrieverInvariant(t *testing.T) {
	// Each retriever contributes at most 1/(k+1) to any document's fused score.
	rankings := [][]RankedResult{
		{{Name: "doc-a", Rank: 1}},
		{{Name: "doc-a", Rank: 1}},
		{{Name: "doc-a", Rank: 1}},
		{{Name: "doc-a", Rank: 1}},
	}
	fused := fuse(rankings)
	if len(fused) != 1 {
		t.Fatalf("expected 1 fused result, got %d", len(fused))
	}
	maxPerRetriever := 1.0 / float64(rrfK+1)
	if fused[0].Score > 4*maxPerRetriever+1e-9 {
		t.Errorf("fused score %f exceeds 4x per-retriever max %f", fused[0].Score, 4*maxPerRetriever)
	}
}

func TestConfidenceTiers(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.03, "CRITICAL"},
		{0.02, "HIGH"},
		{0.009, "MEDIUM"},
		{0.001, ""},
	}
	for _, c := range cases {
		if got := Confidence(c.score); got != c.want {
			t.Errorf("Confidence(%f) = %q, want %q", c.score, got, c.want)
		}
	}
}

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	if got := cosineSimilarity(v, v); got < 0.999 {
		t.Errorf("expected identical vectors to have similarity ~1, got %f", got)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	v := []float32{0.5, -1.25, 3.75}
	got := decodeVector(encodeVector(v))
	if len(got) != len(v) {
		t.Fatalf("length mismatch: %d vs %d", len(got), len(v))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("index %d: got %f, want %f", i, got[i], v[i])
		}
	}
}
