package pipeline

import (
	"context"
	"math"
	"strings"
	"testing"

	"mailliam_server/core/domain"
)

func TestChainClusterSeedAsymmetry(t *testing.T) {
	// A and B are similar; C is similar to neither. B joins A's chain, and
	// C seeds its own even though it was never compared to B.
	vectors := [][]float32{
		{1, 0},         // A
		{0.95, 0.3122}, // B: cos(A,B) ≈ 0.95
		{0.5, 0.866},   // C: cos(A,C) = 0.5
	}

	chains := chainCluster([]int{0, 1, 2}, vectors, 0.75)
	if len(chains) != 2 {
		t.Fatalf("expected 2 chains, got %d: %v", len(chains), chains)
	}
	if len(chains[0]) != 2 || chains[0][0] != 0 || chains[0][1] != 1 {
		t.Errorf("first chain = %v, want [0 1]", chains[0])
	}
	if len(chains[1]) != 1 || chains[1][0] != 2 {
		t.Errorf("second chain = %v, want [2]", chains[1])
	}
}

func TestChainClusterComparesToSeedOnly(t *testing.T) {
	// B is similar to A (the seed) and C is similar to B but not to A.
	// C must NOT join the chain: membership is decided against the seed.
	vectors := [][]float32{
		{1, 0},        // A
		{0.8, 0.6},    // B: cos(A,B) = 0.8
		{0.29, 0.957}, // C: cos(A,C) ≈ 0.29, cos(B,C) ≈ 0.81
	}

	chains := chainCluster([]int{0, 1, 2}, vectors, 0.75)
	if len(chains) != 2 {
		t.Fatalf("expected 2 chains, got %v", chains)
	}
	if len(chains[0]) != 2 {
		t.Errorf("seed chain = %v, want [0 1]", chains[0])
	}
	if len(chains[1]) != 1 || chains[1][0] != 2 {
		t.Errorf("expected 2 to seed its own chain, got %v", chains[1])
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := cosineSimilarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTopK(t *testing.T) {
	query := []float32{1, 0}
	vectors := [][]float32{
		{0, 1},   // 0.0
		{1, 0},   // 1.0
		{0.7071, 0.7071}, // ~0.707
	}

	got := topK(vectors, query, 2)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("got %v, want [1 2]", got)
	}

	// k larger than the corpus returns everything.
	if got := topK(vectors, query, 10); len(got) != 3 {
		t.Errorf("got %d indices, want 3", len(got))
	}
}

func TestCollapseGroup(t *testing.T) {
	group := []domain.ImportantEmail{
		{ID: "1", Subject: "first", Sender: "a@x.com", Body: "body one"},
		{ID: "2", Subject: "second", Sender: "a@x.com", Body: "body two"},
		{ID: "3", Subject: "third", Sender: "a@x.com", Body: ""},
	}

	merged := CollapseGroup(group)
	if merged.ID != "1" || merged.Subject != "first" {
		t.Errorf("identity must come from the first member, got %+v", merged)
	}
	if merged.Body != "body one\nbody two" {
		t.Errorf("body = %q", merged.Body)
	}

	single := CollapseGroup(group[:1])
	if single.Body != "body one" {
		t.Errorf("singleton must pass through, got %q", single.Body)
	}
}

func TestClusterGroupsCoverAllInputs(t *testing.T) {
	// Two senders; the gateway returns vectors making alice's two emails
	// similar and bob's email dissimilar to everything.
	vecFor := func(text string) []float32 {
		switch {
		case strings.Contains(text, "alice"):
			return []float32{1, 0}
		case strings.Contains(text, "bob"):
			return []float32{0, 1}
		default:
			return []float32{0.7071, 0.7071}
		}
	}
	gw := &fakeGateway{
		embedFn: func(_ context.Context, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i, txt := range texts {
				out[i] = vecFor(txt)
			}
			return out, nil
		},
	}
	c := NewClusterer(gw, DefaultConfig(), testLogger())

	emails := []domain.ImportantEmail{
		{ID: "1", Sender: "alice@x.com", Subject: "re: plan", Body: "alice one"},
		{ID: "2", Sender: "alice@x.com", Subject: "re: plan", Body: "alice two"},
		{ID: "3", Sender: "bob@y.com", Subject: "invoice", Body: "bob one"},
	}

	groups, err := c.Cluster(context.Background(), emails)
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]int)
	for _, g := range groups {
		for _, e := range g {
			seen[e.ID]++
		}
	}
	for _, e := range emails {
		if seen[e.ID] != 1 {
			t.Errorf("id %s appears %d times across groups, want exactly 1", e.ID, seen[e.ID])
		}
	}

	// Alice's two identical-vector emails share a group; bob stands alone.
	var aliceGroup []domain.ImportantEmail
	for _, g := range groups {
		if g[0].Sender == "alice@x.com" {
			aliceGroup = g
		}
	}
	if len(aliceGroup) != 2 {
		t.Errorf("expected alice's emails clustered together, got %d groups: %v", len(groups), groups)
	}
}

func TestClusterDoesNotMixSenders(t *testing.T) {
	// Identical vectors for everyone; sender is the only separator.
	gw := &fakeGateway{
		embedFn: func(_ context.Context, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{1, 0}
			}
			return out, nil
		},
	}
	c := NewClusterer(gw, DefaultConfig(), testLogger())

	emails := []domain.ImportantEmail{
		{ID: "1", Sender: "alice@x.com", Body: "a"},
		{ID: "2", Sender: "bob@y.com", Body: "b"},
	}

	groups, err := c.Cluster(context.Background(), emails)
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range groups {
		if len(g) != 1 {
			t.Errorf("different senders must never share a group: %v", g)
		}
	}
}

func TestClusterSingleEmailSkipsEmbedding(t *testing.T) {
	gw := &fakeGateway{}
	c := NewClusterer(gw, DefaultConfig(), testLogger())

	groups, err := c.Cluster(context.Background(), []domain.ImportantEmail{{ID: "1"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || len(groups[0]) != 1 {
		t.Errorf("got %v", groups)
	}
	if gw.embedded() != 0 {
		t.Errorf("single email must not call the embedder, got %d calls", gw.embedded())
	}
}

func TestClusterTopKOverflowBecomesSingletons(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClusterTopK = 1

	gw := &fakeGateway{
		embedFn: func(_ context.Context, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{1, 0}
			}
			return out, nil
		},
	}
	c := NewClusterer(gw, cfg, testLogger())

	emails := []domain.ImportantEmail{
		{ID: "1", Sender: "a@x.com", Body: "one"},
		{ID: "2", Sender: "a@x.com", Body: "two"},
		{ID: "3", Sender: "a@x.com", Body: "three"},
	}

	groups, err := c.Cluster(context.Background(), emails)
	if err != nil {
		t.Fatal(err)
	}

	// Top-1 retrieval clusters one email; the other two survive as
	// singletons rather than vanishing.
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	if total != 3 {
		t.Errorf("groups cover %d of 3 emails: %v", total, groups)
	}
	if len(groups) != 3 {
		t.Errorf("expected 3 groups (1 retrieved + 2 singletons), got %d", len(groups))
	}
}
