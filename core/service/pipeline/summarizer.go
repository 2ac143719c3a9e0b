package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"mailliam_server/core/domain"
	"mailliam_server/core/port/out"
)

const summarizeTemperature = 0.5

const summarizePromptFormat = `Subject: %s
Sender: %s
Body: %s

Provide a concise summary of the email in fewer than 120 words, and a suggested professional reply.
Populate "suggested_reply" only if the message clearly demands a reply (it asks a question or requests an action) and the sender appears to be a person rather than an automated or bulk sender. Otherwise leave "suggested_reply" as an empty string.
Return your result as a valid JSON object with exactly two keys: "summary" and "suggested_reply".`

// replyMarkers are recognized when the model embeds the reply inside the
// summary text instead of honoring the structured-output instruction.
var replyMarkers = []string{"suggested reply:", "reply suggestion:"}

// SummaryOutcome is the tagged result of one summarization call: either the
// model's JSON parsed cleanly (Parsed) or the whole raw response became the
// summary (RawText fallback). Both branches are valid outputs.
type SummaryOutcome struct {
	Info   domain.SummaryInfo
	Raw    string
	Parsed bool
}

// Summarizer produces a summary and conditional reply for one email or one
// collapsed cluster.
type Summarizer struct {
	gateway out.CompletionGateway
	cfg     Config
	log     zerolog.Logger
}

// NewSummarizer creates a summarizer bound to the given gateway.
func NewSummarizer(gateway out.CompletionGateway, cfg Config, log zerolog.Logger) *Summarizer {
	return &Summarizer{
		gateway: gateway,
		cfg:     cfg.normalized(),
		log:     log.With().Str("component", "summarizer").Logger(),
	}
}

// Summarize calls the gateway and parses the structured result, falling back
// to raw-text-as-summary and marker splitting when the backend ignores the
// output contract. Only transport errors are returned.
func (s *Summarizer) Summarize(ctx context.Context, subject, sender, body string) (SummaryOutcome, error) {
	body = truncateText(body, s.cfg.BodyTruncationLimit)
	prompt := fmt.Sprintf(summarizePromptFormat, subject, sender, body)

	resp, err := s.gateway.Complete(ctx, prompt, summarizeTemperature)
	if err != nil {
		return SummaryOutcome{}, err
	}

	outcome := parseSummaryResponse(resp)
	return outcome, nil
}

// parseSummaryResponse converts a raw model response into a SummaryOutcome.
func parseSummaryResponse(resp string) SummaryOutcome {
	outcome := SummaryOutcome{Raw: resp}

	cleaned := stripCodeFence(resp)
	var info domain.SummaryInfo
	if err := json.Unmarshal([]byte(cleaned), &info); err == nil && info.Summary != "" {
		outcome.Info = info
		outcome.Parsed = true
	} else {
		outcome.Info = domain.SummaryInfo{Summary: strings.TrimSpace(resp)}
	}

	// The backend sometimes embeds the reply in the summary text. Split it
	// out when the reply field came back empty.
	if outcome.Info.SuggestedReply == "" {
		if summary, reply, found := splitReplyMarker(outcome.Info.Summary); found {
			outcome.Info.Summary = summary
			outcome.Info.SuggestedReply = reply
		}
	}

	return outcome
}

// splitReplyMarker splits summary text at the first recognized reply marker.
// Matching is case-insensitive; the marker itself is discarded.
func splitReplyMarker(text string) (summary, reply string, found bool) {
	lower := strings.ToLower(text)
	for _, marker := range replyMarkers {
		idx := strings.Index(lower, marker)
		if idx < 0 {
			continue
		}
		summary = strings.TrimSpace(text[:idx])
		reply = strings.TrimSpace(text[idx+len(marker):])
		return summary, reply, true
	}
	return text, "", false
}
