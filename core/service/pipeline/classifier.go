package pipeline

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"mailliam_server/core/domain"
	"mailliam_server/core/port/out"
)

// classifyTemperature keeps batch verdicts consistent across runs.
const classifyTemperature = 0.3

const classifySystemPrompt = `You are an intelligent email filter assistant. You are given a JSON array of emails, where each email includes the fields "id", "subject", "sender", and "snippet". Identify the emails that are important: emails that require a reply or an action from the user, or that are clearly sent by a real person. Exclude advertisements, marketing messages, job alerts, newsletters, and digests. When an email is ambiguous, include it.

Return ONLY a JSON array containing the ids of the important emails, for example:
["id1", "id2"]

Output only the JSON array with no extra commentary.`

// Classifier turns a sanitized batch stream into a set of important ids.
// Classification is best-effort: a failed batch contributes zero ids and the
// caller never sees an error.
type Classifier struct {
	gateway out.CompletionGateway
	cfg     Config
	log     zerolog.Logger
}

// NewClassifier creates a classifier bound to the given gateway.
func NewClassifier(gateway out.CompletionGateway, cfg Config, log zerolog.Logger) *Classifier {
	return &Classifier{
		gateway: gateway,
		cfg:     cfg.normalized(),
		log:     log.With().Str("component", "classifier").Logger(),
	}
}

// Classify partitions emails into contiguous batches, pre-filters ad
// keywords, asks the gateway for a verdict per batch, and returns the union
// of important ids. Batches are independent and run with bounded
// parallelism. The StageResult records one entry per batch.
func (c *Classifier) Classify(ctx context.Context, emails []domain.SanitizedEmail) (map[string]bool, domain.StageResult[string]) {
	important := make(map[string]bool)
	var result domain.StageResult[string]

	if len(emails) == 0 {
		return important, result
	}

	batches := partition(emails, c.cfg.BatchSize)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, c.cfg.Workers)
	)

	for i, batch := range batches {
		wg.Add(1)
		go func(idx int, batch []domain.SanitizedEmail) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			label := batchLabel(idx)
			ids, err := c.classifyBatch(ctx, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.log.Warn().Err(err).Int("batch", idx).Msg("batch classification failed")
				result.Fail(label, err)
				return
			}
			for id := range ids {
				important[id] = true
			}
			result.Succeeded = append(result.Succeeded, label)
		}(i, batch)
	}
	wg.Wait()

	return important, result
}

// classifyBatch runs one batch through the keyword pre-filter and the
// gateway. Ids the model returns that were not in the submitted batch are
// dropped.
func (c *Classifier) classifyBatch(ctx context.Context, batch []domain.SanitizedEmail) (map[string]bool, error) {
	survivors := c.filterAds(batch)
	if len(survivors) == 0 {
		// Nothing left after the keyword filter; no inference call needed.
		return nil, nil
	}

	payload, err := json.Marshal(survivors)
	if err != nil {
		return nil, err
	}

	resp, err := c.gateway.CompleteWithSystem(ctx, classifySystemPrompt,
		"Here are the emails: "+string(payload), classifyTemperature)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(survivors))
	for _, e := range survivors {
		known[e.ID] = true
	}

	ids := make(map[string]bool)
	for _, id := range parseIDList(resp) {
		if known[id] {
			ids[id] = true
		}
	}
	return ids, nil
}

// filterAds drops items whose subject or snippet contains a configured
// marketing keyword. Purely local, never calls the gateway.
func (c *Classifier) filterAds(batch []domain.SanitizedEmail) []domain.SanitizedEmail {
	out := make([]domain.SanitizedEmail, 0, len(batch))
	for _, e := range batch {
		if c.matchesAdKeyword(e.Subject) || c.matchesAdKeyword(e.Snippet) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (c *Classifier) matchesAdKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range c.cfg.AdKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// parseIDList extracts a flat id list from a model response. The response
// may be fenced, or may wrap the list in an object; anything unparseable
// yields an empty list.
func parseIDList(resp string) []string {
	resp = stripCodeFence(resp)
	if resp == "" {
		return nil
	}

	var ids []string
	if err := json.Unmarshal([]byte(resp), &ids); err == nil {
		return ids
	}

	var wrapped struct {
		IDs []string `json:"ids"`
	}
	if err := json.Unmarshal([]byte(resp), &wrapped); err == nil {
		return wrapped.IDs
	}

	return nil
}

// stripCodeFence removes Markdown code-fence wrapping from a response.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

// MergeImportant unions the model verdict with the provider signal. Both
// sources only assert importance, never the opposite, so no precedence rule
// is needed.
func MergeImportant(modelIDs, providerIDs map[string]bool) map[string]bool {
	merged := make(map[string]bool, len(modelIDs)+len(providerIDs))
	for id := range modelIDs {
		merged[id] = true
	}
	for id := range providerIDs {
		merged[id] = true
	}
	return merged
}

func partition(emails []domain.SanitizedEmail, size int) [][]domain.SanitizedEmail {
	var batches [][]domain.SanitizedEmail
	for start := 0; start < len(emails); start += size {
		end := start + size
		if end > len(emails) {
			end = len(emails)
		}
		batches = append(batches, emails[start:end])
	}
	return batches
}

func batchLabel(idx int) string {
	return "batch-" + strconv.Itoa(idx)
}
