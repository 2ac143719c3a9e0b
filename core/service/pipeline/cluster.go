package pipeline

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"mailliam_server/core/domain"
	"mailliam_server/core/port/out"
)

// clusterQuery is the fixed retrieval query used as a relevance pre-filter
// before grouping. It is not correctness-critical; items it misses are still
// summarized individually.
const clusterQuery = "generate a reply based on recent emails"

// embedTextLimit caps the text handed to the embedding model.
const embedTextLimit = 2000

// Clusterer groups important emails by sender and embedding similarity so a
// whole conversation costs one summarization call instead of N.
type Clusterer struct {
	gateway out.CompletionGateway
	cfg     Config
	log     zerolog.Logger
}

// NewClusterer creates a clusterer bound to the given gateway.
func NewClusterer(gateway out.CompletionGateway, cfg Config, log zerolog.Logger) *Clusterer {
	return &Clusterer{
		gateway: gateway,
		cfg:     cfg.normalized(),
		log:     log.With().Str("component", "clusterer").Logger(),
	}
}

// Cluster embeds every candidate, retrieves the top-K most relevant for the
// fixed query, groups retrieved items by exact sender, and chain-clusters
// each sender group against its seed item. Candidates that fall outside the
// top-K keep flowing as singleton groups. The returned groups are disjoint
// and cover every input.
func (c *Clusterer) Cluster(ctx context.Context, emails []domain.ImportantEmail) ([][]domain.ImportantEmail, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	if len(emails) == 1 {
		return [][]domain.ImportantEmail{{emails[0]}}, nil
	}

	texts := make([]string, len(emails))
	for i, e := range emails {
		texts[i] = prepareEmbedText(e)
	}

	vectors, err := c.gateway.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	queryVecs, err := c.gateway.EmbedBatch(ctx, []string{clusterQuery})
	if err != nil {
		return nil, err
	}
	if len(queryVecs) == 0 {
		return nil, errors.New("empty embedding response for retrieval query")
	}

	retrieved := topK(vectors, queryVecs[0], c.cfg.ClusterTopK)

	// Group retrieved indices by exact sender, preserving retrieval order.
	bySender := make(map[string][]int)
	var senderOrder []string
	for _, idx := range retrieved {
		sender := emails[idx].Sender
		if _, seen := bySender[sender]; !seen {
			senderOrder = append(senderOrder, sender)
		}
		bySender[sender] = append(bySender[sender], idx)
	}

	var groups [][]domain.ImportantEmail
	for _, sender := range senderOrder {
		members := bySender[sender]
		for _, chain := range chainCluster(members, vectors, c.cfg.SimilarityThreshold) {
			group := make([]domain.ImportantEmail, len(chain))
			for i, idx := range chain {
				group[i] = emails[idx]
			}
			groups = append(groups, group)
		}
	}

	// Items the retrieval pre-filter missed are not dropped; they become
	// singleton groups.
	inGroup := make(map[int]bool, len(retrieved))
	for _, idx := range retrieved {
		inGroup[idx] = true
	}
	for i, e := range emails {
		if !inGroup[i] {
			groups = append(groups, []domain.ImportantEmail{e})
		}
	}

	return groups, nil
}

// CollapseGroup reduces a group to one synthetic email whose body is the
// newline-joined concatenation of member bodies. Identity comes from the
// first member.
func CollapseGroup(group []domain.ImportantEmail) domain.ImportantEmail {
	if len(group) == 1 {
		return group[0]
	}

	bodies := make([]string, 0, len(group))
	for _, e := range group {
		if e.Body != "" {
			bodies = append(bodies, e.Body)
		}
	}

	merged := group[0]
	merged.Body = strings.Join(bodies, "\n")
	return merged
}

// chainCluster groups member indices by similarity to each group's seed
// item: the first unassigned item seeds a group and every later unassigned
// item similar enough to that seed joins it. Admitted members are not
// compared to each other; this seed-only asymmetry is deliberate and pinned
// by tests.
func chainCluster(members []int, vectors [][]float32, threshold float64) [][]int {
	assigned := make(map[int]bool, len(members))
	var chains [][]int

	for i, seed := range members {
		if assigned[seed] {
			continue
		}
		chain := []int{seed}
		assigned[seed] = true

		for _, candidate := range members[i+1:] {
			if assigned[candidate] {
				continue
			}
			if cosineSimilarity(vectors[seed], vectors[candidate]) > threshold {
				chain = append(chain, candidate)
				assigned[candidate] = true
			}
		}
		chains = append(chains, chain)
	}

	return chains
}

// topK returns the indices of the k vectors most similar to the query, most
// similar first. Ties keep input order.
func topK(vectors [][]float32, query []float32, k int) []int {
	type scored struct {
		idx   int
		score float64
	}

	ranked := make([]scored, len(vectors))
	for i, v := range vectors {
		ranked[i] = scored{idx: i, score: cosineSimilarity(v, query)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if k > len(ranked) {
		k = len(ranked)
	}

	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = ranked[i].idx
	}
	return out
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-length vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// prepareEmbedText builds the embedding input for one email.
func prepareEmbedText(e domain.ImportantEmail) string {
	text := e.Subject + "\n" + e.Sender + "\n\n" + e.Body
	if len(text) > embedTextLimit {
		return text[:embedTextLimit]
	}
	return text
}
