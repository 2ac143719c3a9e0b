package pipeline

import (
	"github.com/goccy/go-json"

	"mailliam_server/core/domain"
)

// Sanitize caps each field and returns the longest prefix of emails whose
// serialized JSON form fits under the configured byte ceiling. Items are
// dropped from the tail only; an item is never partially included. The
// operation is deterministic and side-effect free.
func Sanitize(emails []*domain.RawEmail, cfg Config) []domain.SanitizedEmail {
	cfg = cfg.normalized()

	out := make([]domain.SanitizedEmail, 0, len(emails))
	total := 2 // enclosing array brackets

	for _, e := range emails {
		item := domain.SanitizedEmail{
			ID:      e.ID,
			Subject: truncateText(e.Subject, cfg.SubjectLimit),
			Sender:  truncateText(e.Sender, cfg.SenderLimit),
			Snippet: truncateText(e.Snippet, cfg.SnippetLimit),
		}

		data, err := json.Marshal(item)
		if err != nil {
			continue
		}

		cost := len(data)
		if len(out) > 0 {
			cost++ // separating comma
		}
		if total+cost > cfg.BatchByteCeiling {
			break
		}

		total += cost
		out = append(out, item)
	}

	return out
}
