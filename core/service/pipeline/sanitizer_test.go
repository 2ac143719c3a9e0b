package pipeline

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"mailliam_server/core/domain"
)

func TestSanitizeTruncatesFields(t *testing.T) {
	cfg := DefaultConfig()
	emails := []*domain.RawEmail{
		{
			ID:      "a",
			Subject: strings.Repeat("s", 150),
			Sender:  strings.Repeat("f", 150),
			Snippet: strings.Repeat("p", 250),
		},
	}

	got := Sanitize(emails, cfg)
	if len(got) != 1 {
		t.Fatalf("expected 1 email, got %d", len(got))
	}

	if len(got[0].Subject) != cfg.SubjectLimit+len(truncationMarker) {
		t.Errorf("subject length = %d, want %d", len(got[0].Subject), cfg.SubjectLimit+len(truncationMarker))
	}
	if !strings.HasSuffix(got[0].Subject, truncationMarker) {
		t.Errorf("truncated subject missing marker: %q", got[0].Subject)
	}
	if len(got[0].Snippet) != cfg.SnippetLimit+len(truncationMarker) {
		t.Errorf("snippet length = %d, want %d", len(got[0].Snippet), cfg.SnippetLimit+len(truncationMarker))
	}
}

func TestSanitizeShortFieldsUntouched(t *testing.T) {
	emails := []*domain.RawEmail{
		{ID: "a", Subject: "hello", Sender: "bob@example.com", Snippet: "quick note"},
	}

	got := Sanitize(emails, DefaultConfig())
	if got[0].Subject != "hello" || got[0].Sender != "bob@example.com" || got[0].Snippet != "quick note" {
		t.Errorf("short fields were modified: %+v", got[0])
	}
}

func TestSanitizeByteCeilingKeepsPrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchByteCeiling = 400

	var emails []*domain.RawEmail
	for i := 0; i < 10; i++ {
		emails = append(emails, &domain.RawEmail{
			ID:      string(rune('a' + i)),
			Subject: strings.Repeat("x", 50),
			Sender:  "sender@example.com",
			Snippet: "snippet",
		})
	}

	got := Sanitize(emails, cfg)
	if len(got) == 0 || len(got) == len(emails) {
		t.Fatalf("expected a strict prefix, got %d of %d", len(got), len(emails))
	}

	// Output must be a prefix of the input, in order.
	for i, e := range got {
		if e.ID != emails[i].ID {
			t.Errorf("position %d: got id %q, want %q", i, e.ID, emails[i].ID)
		}
	}

	// The kept prefix serializes under the ceiling.
	data, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) > cfg.BatchByteCeiling {
		t.Errorf("serialized size %d exceeds ceiling %d", len(data), cfg.BatchByteCeiling)
	}

	// Adding the next item would have exceeded it.
	more := Sanitize(emails[:len(got)+1], DefaultConfig())
	data, err = json.Marshal(more)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) <= cfg.BatchByteCeiling {
		t.Errorf("next item fits in %d bytes, sanitizer stopped too early", len(data))
	}
}

func TestSanitizeOversizedFirstItem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchByteCeiling = 50

	emails := []*domain.RawEmail{
		{ID: "a", Subject: strings.Repeat("x", 100), Sender: "s", Snippet: "p"},
	}

	got := Sanitize(emails, cfg)
	if len(got) != 0 {
		t.Errorf("expected empty output when the first item exceeds the ceiling, got %d", len(got))
	}
}

func TestSanitizeEmptyInput(t *testing.T) {
	got := Sanitize(nil, DefaultConfig())
	if len(got) != 0 {
		t.Errorf("expected empty output, got %d", len(got))
	}
}
