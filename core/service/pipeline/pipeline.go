package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"mailliam_server/core/domain"
	"mailliam_server/core/port/out"
)

// digestTimeFormat renders ReceivedAt for digest entries.
const digestTimeFormat = "2006-01-02 15:04:05"

// Service runs the full digest pipeline against one inference gateway. All
// stages are best-effort: a failed batch or summarization degrades that slice
// of the output instead of failing the whole run.
type Service struct {
	gateway out.CompletionGateway
	cfg     Config
	log     zerolog.Logger

	classifier *Classifier
	summarizer *Summarizer
	clusterer  *Clusterer
	grouper    *DigestGrouper
}

// New wires a pipeline service around a gateway.
func New(gateway out.CompletionGateway, cfg Config, log zerolog.Logger) *Service {
	cfg = cfg.normalized()
	return &Service{
		gateway:    gateway,
		cfg:        cfg,
		log:        log.With().Str("component", "pipeline").Logger(),
		classifier: NewClassifier(gateway, cfg, log),
		summarizer: NewSummarizer(gateway, cfg, log),
		clusterer:  NewClusterer(gateway, cfg, log),
		grouper:    NewDigestGrouper(gateway, log),
	}
}

// ImportantEmails sanitizes, classifies, and merges the model verdict with
// the provider importance signal, then resolves plain-text bodies for the
// survivors. Output preserves input order. A total classification outage
// degrades to the provider signal alone.
func (s *Service) ImportantEmails(ctx context.Context, emails []*domain.RawEmail) []domain.ImportantEmail {
	sanitized := Sanitize(emails, s.cfg)

	modelIDs, result := s.classifier.Classify(ctx, sanitized)
	if result.AllFailed() {
		s.log.Warn().Int("batches", len(result.Failed)).
			Msg("classification unavailable, falling back to provider signal")
	}

	providerIDs := make(map[string]bool)
	for _, e := range emails {
		if e.ProviderImportant {
			providerIDs[e.ID] = true
		}
	}

	merged := MergeImportant(modelIDs, providerIDs)

	important := make([]domain.ImportantEmail, 0, len(merged))
	for _, e := range emails {
		if !merged[e.ID] {
			continue
		}
		important = append(important, domain.ImportantEmail{
			ID:         e.ID,
			Subject:    e.Subject,
			Sender:     e.Sender,
			Snippet:    e.Snippet,
			Body:       s.resolveBody(e),
			ReceivedAt: e.ReceivedAt,
		})
	}

	s.log.Info().Int("in", len(emails)).Int("important", len(important)).
		Int("model", len(modelIDs)).Int("provider", len(providerIDs)).
		Msg("importance merge complete")

	return important
}

// resolveBody prefers the decoded plain-text part over the flat body, then
// falls back to the snippet. The result is truncated for downstream prompts.
func (s *Service) resolveBody(e *domain.RawEmail) string {
	body := e.Body
	if text, ok := ExtractPlainText(e.BodyTree); ok {
		body = text
	}
	if body == "" {
		body = e.Snippet
	}
	return truncateText(body, s.cfg.BodyTruncationLimit)
}

// Digest runs the full pipeline and renders the Markdown digest. Clustering
// failures fall back to per-email groups; summarization failures fall back to
// the email's snippet. Only a digest-rendering failure is returned.
func (s *Service) Digest(ctx context.Context, emails []*domain.RawEmail) (string, error) {
	important := s.ImportantEmails(ctx, emails)
	if len(important) == 0 {
		return s.grouper.Group(ctx, nil)
	}

	groups := s.clusterGroups(ctx, important)
	summaries := s.summarizeGroups(ctx, groups)

	entries := make([]domain.DigestEntry, 0, len(important))
	for _, e := range important {
		info, ok := summaries[e.ID]
		if !ok {
			info = domain.SummaryInfo{Summary: e.Snippet}
		}
		entry := domain.DigestEntry{
			Subject:        e.Subject,
			Sender:         e.Sender,
			Summary:        info.Summary,
			SuggestedReply: info.SuggestedReply,
		}
		if !e.ReceivedAt.IsZero() {
			entry.Time = e.ReceivedAt.Format(digestTimeFormat)
		}
		entries = append(entries, entry)
	}

	return s.grouper.Group(ctx, entries)
}

// clusterGroups groups emails for shared summarization. Disabled or failed
// clustering degrades to one group per email.
func (s *Service) clusterGroups(ctx context.Context, important []domain.ImportantEmail) [][]domain.ImportantEmail {
	if s.cfg.ClusteringEnabled {
		groups, err := s.clusterer.Cluster(ctx, important)
		if err == nil {
			return groups
		}
		s.log.Warn().Err(err).Msg("clustering failed, summarizing individually")
	}

	groups := make([][]domain.ImportantEmail, len(important))
	for i, e := range important {
		groups[i] = []domain.ImportantEmail{e}
	}
	return groups
}

// summarizeGroups summarizes each group once with bounded parallelism and
// fans the result out to every member id. A failed group contributes no
// entries; the caller substitutes snippets.
func (s *Service) summarizeGroups(ctx context.Context, groups [][]domain.ImportantEmail) map[string]domain.SummaryInfo {
	summaries := make(map[string]domain.SummaryInfo, len(groups))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.cfg.Workers)
	)

	for _, group := range groups {
		wg.Add(1)
		go func(group []domain.ImportantEmail) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			merged := CollapseGroup(group)
			outcome, err := s.summarizer.Summarize(ctx, merged.Subject, merged.Sender, merged.Body)
			if err != nil {
				s.log.Warn().Err(err).Str("email_id", merged.ID).Msg("summarization failed")
				return
			}

			mu.Lock()
			defer mu.Unlock()
			for _, e := range group {
				summaries[e.ID] = outcome.Info
			}
		}(group)
	}
	wg.Wait()

	return summaries
}
