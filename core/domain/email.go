// Package domain contains the core entities of the digest pipeline.
package domain

import "time"

// RawEmail is a message as returned by the mail provider. It is immutable
// once produced; pipeline stages annotate copies, never the original.
type RawEmail struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	Snippet    string    `json:"snippet"`
	Body       string    `json:"body,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitempty"`

	// ProviderImportant is the deterministic importance signal from the
	// provider (Gmail IMPORTANT label).
	ProviderImportant bool `json:"provider_important,omitempty"`

	// BodyTree is the decoded MIME part hierarchy, when the provider
	// returned a full payload.
	BodyTree *BodyNode `json:"-"`
}

// BodyNode is one node of the hierarchical message body. A node is either a
// leaf carrying a base64url-encoded payload or a branch with child parts.
type BodyNode struct {
	MIMEType string
	Data     string // base64url payload, leaves only
	Parts    []*BodyNode
}

// SanitizedEmail is the truncated projection of a RawEmail submitted to the
// classifier. Field caps are applied by the sanitizer.
type SanitizedEmail struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
	Snippet string `json:"snippet"`
}

// SummaryInfo is the structured summarization result for one email or one
// cluster of emails. SuggestedReply is empty when the message does not
// warrant a reply; downstream code must tolerate an empty field.
type SummaryInfo struct {
	Summary        string `json:"summary"`
	SuggestedReply string `json:"suggested_reply"`
}

// ImportantEmail is a RawEmail whose id survived the importance merge,
// enriched with a decoded plain-text body and, later, a summary.
type ImportantEmail struct {
	ID         string       `json:"id"`
	Subject    string       `json:"subject"`
	Sender     string       `json:"sender"`
	Snippet    string       `json:"snippet"`
	Body       string       `json:"body"`
	ReceivedAt time.Time    `json:"received_at,omitempty"`
	Summary    *SummaryInfo `json:"summary,omitempty"`
}

// DigestEntry is the minimal projection consumed by the digest grouper.
type DigestEntry struct {
	Subject        string `json:"subject"`
	Sender         string `json:"sender"`
	Summary        string `json:"summary"`
	Time           string `json:"time"`
	SuggestedReply string `json:"suggested_reply"`
}

// StageFailure records one input a pipeline stage could not process.
type StageFailure struct {
	Input  string `json:"input"` // email id or batch label
	Reason string `json:"reason"`
}

// StageResult carries per-stage success/failure accounting so best-effort
// stages degrade uniformly instead of swallowing errors ad hoc.
type StageResult[T any] struct {
	Succeeded []T
	Failed    []StageFailure
}

// Fail appends a failure record.
func (r *StageResult[T]) Fail(input string, err error) {
	reason := "unknown"
	if err != nil {
		reason = err.Error()
	}
	r.Failed = append(r.Failed, StageFailure{Input: input, Reason: reason})
}

// AllFailed reports whether every unit of work failed. An empty stage is not
// considered failed.
func (r *StageResult[T]) AllFailed() bool {
	return len(r.Succeeded) == 0 && len(r.Failed) > 0
}
