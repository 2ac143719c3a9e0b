package pipeline

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"mailliam_server/core/domain"
	"mailliam_server/core/port/out"
)

const digestTemperature = 0.5

// emptyDigestText is returned when nothing survived the importance merge.
const emptyDigestText = "No important emails found."

const digestSystemPrompt = `You are an assistant that organizes email summaries into a single Markdown digest.
You receive a JSON array of emails, each with "subject", "sender", "summary", "time", and "suggested_reply".
Group the emails into thematic sections such as work, personal, finance, or notifications based on their content.
Format the digest as Markdown:
- Each group gets a heading starting with a fitting emoji, for example "## 📁 Work".
- Under each heading, list the emails as a numbered list. For each email include lines for Subject, Sender, Time, and Summary, and a Suggested Reply line only when "suggested_reply" is non-empty.
Output only the Markdown digest with no extra commentary.`

// DigestGrouper renders the final Markdown digest from summarized entries.
// The model's grouping is presentation only; no entry may be dropped or
// reworded structurally, so the raw response passes through unmodified.
type DigestGrouper struct {
	gateway out.CompletionGateway
	log     zerolog.Logger
}

// NewDigestGrouper creates a grouper bound to the given gateway.
func NewDigestGrouper(gateway out.CompletionGateway, log zerolog.Logger) *DigestGrouper {
	return &DigestGrouper{
		gateway: gateway,
		log:     log.With().Str("component", "digest").Logger(),
	}
}

// Group renders entries into a grouped Markdown digest. An empty entry list
// short-circuits to a fixed message without calling the gateway.
func (g *DigestGrouper) Group(ctx context.Context, entries []domain.DigestEntry) (string, error) {
	if len(entries) == 0 {
		return emptyDigestText, nil
	}

	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", err
	}

	userPrompt := fmt.Sprintf("Here are the important emails in JSON:\n%s\n\nGroup them as instructed.", payload)

	digest, err := g.gateway.CompleteWithSystem(ctx, digestSystemPrompt, userPrompt, digestTemperature)
	if err != nil {
		return "", err
	}

	g.log.Debug().Int("entries", len(entries)).Msg("digest rendered")
	return digest, nil
}
