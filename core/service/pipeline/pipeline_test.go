package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"mailliam_server/core/domain"
)

// twelveEmails builds the fixture shared by the end-to-end tests: 12
// messages spanning two classification batches, two marketing messages, and
// four provider-flagged messages (one of them also marketing).
func twelveEmails() []*domain.RawEmail {
	received := time.Date(2026, 8, 28, 9, 15, 0, 0, time.UTC)

	emails := make([]*domain.RawEmail, 0, 12)
	subjects := map[int]string{
		3: "Summer SALE ends tonight",
		7: "Your weekly newsletter",
	}
	for i := 1; i <= 12; i++ {
		subject := "message " + strconv.Itoa(i)
		if s, ok := subjects[i]; ok {
			subject = s
		}
		emails = append(emails, &domain.RawEmail{
			ID:         "m" + strconv.Itoa(i),
			Subject:    subject,
			Sender:     "sender" + strconv.Itoa(i) + "@example.com",
			Snippet:    "snippet " + strconv.Itoa(i),
			ReceivedAt: received,
		})
	}

	for _, id := range []string{"m2", "m5", "m7", "m12"} {
		for _, e := range emails {
			if e.ID == id {
				e.ProviderImportant = true
			}
		}
	}
	return emails
}

// classifyAwareGateway answers classification, summarization, and digest
// calls the way the production backend would.
func classifyAwareGateway() *fakeGateway {
	return &fakeGateway{
		systemFn: func(_ context.Context, system, user string, _ float32) (string, error) {
			if strings.Contains(system, "email filter") {
				// First batch carries m1; second carries m11. The m3 in the
				// first response was filtered out before submission, so it
				// must be rejected as unknown.
				if containsID(user, "m1") {
					return `["m1", "m5", "m3"]`, nil
				}
				return `["m11"]`, nil
			}
			return "## 📁 Work\n1. rendered digest\n", nil
		},
		completeFn: func(_ context.Context, prompt string, _ float32) (string, error) {
			return `{"summary": "summarized", "suggested_reply": ""}`, nil
		},
	}
}

func TestImportantEmailsUnionAndOrder(t *testing.T) {
	svc := New(classifyAwareGateway(), DefaultConfig(), testLogger())

	got := svc.ImportantEmails(context.Background(), twelveEmails())

	// Model says {m1, m5, m11}; provider says {m2, m5, m7, m12}. The union
	// keeps input order, and the provider flag rescues the ad-filtered m7.
	want := []string{"m1", "m2", "m5", "m7", "m11", "m12"}
	if len(got) != len(want) {
		t.Fatalf("got %d important emails, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestImportantEmailsBodyResolution(t *testing.T) {
	plain := base64.URLEncoding.EncodeToString([]byte("decoded plain text"))

	gw := &fakeGateway{
		systemFn: func(_ context.Context, _, _ string, _ float32) (string, error) {
			return `["t1", "t2", "t3"]`, nil
		},
	}
	svc := New(gw, DefaultConfig(), testLogger())

	emails := []*domain.RawEmail{
		{
			ID: "t1", Subject: "tree", Sender: "a@x.com", Snippet: "snip1",
			Body: "flat body ignored",
			BodyTree: &domain.BodyNode{
				MIMEType: "multipart/alternative",
				Parts: []*domain.BodyNode{
					{MIMEType: "text/plain", Data: plain},
				},
			},
		},
		{ID: "t2", Subject: "flat", Sender: "b@x.com", Snippet: "snip2", Body: "flat body"},
		{ID: "t3", Subject: "bare", Sender: "c@x.com", Snippet: "snip3"},
	}

	got := svc.ImportantEmails(context.Background(), emails)
	if len(got) != 3 {
		t.Fatalf("got %d emails", len(got))
	}
	if got[0].Body != "decoded plain text" {
		t.Errorf("tree body = %q", got[0].Body)
	}
	if got[1].Body != "flat body" {
		t.Errorf("flat body = %q", got[1].Body)
	}
	if got[2].Body != "snip3" {
		t.Errorf("snippet fallback = %q", got[2].Body)
	}
}

func TestImportantEmailsClassifierOutageDegradesToProvider(t *testing.T) {
	gw := &fakeGateway{
		systemFn: func(_ context.Context, _, _ string, _ float32) (string, error) {
			return "", errors.New("backend down")
		},
	}
	svc := New(gw, DefaultConfig(), testLogger())

	got := svc.ImportantEmails(context.Background(), twelveEmails())

	want := []string{"m2", "m5", "m7", "m12"}
	if len(got) != len(want) {
		t.Fatalf("got %d emails, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestDigestEndToEnd(t *testing.T) {
	svc := New(classifyAwareGateway(), DefaultConfig(), testLogger())

	digest, err := svc.Digest(context.Background(), twelveEmails())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(digest, "rendered digest") {
		t.Errorf("digest = %q", digest)
	}
}

func TestDigestNoImportantEmails(t *testing.T) {
	gw := &fakeGateway{
		systemFn: func(_ context.Context, system, _ string, _ float32) (string, error) {
			if strings.Contains(system, "email filter") {
				return `[]`, nil
			}
			t.Fatal("digest rendering must not run with zero entries")
			return "", nil
		},
	}
	svc := New(gw, DefaultConfig(), testLogger())

	digest, err := svc.Digest(context.Background(), []*domain.RawEmail{
		{ID: "x", Subject: "hello", Sender: "a@x.com", Snippet: "s"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if digest != emptyDigestText {
		t.Errorf("got %q, want %q", digest, emptyDigestText)
	}
}

func TestDigestSummarizationFailureFallsBackToSnippet(t *testing.T) {
	gw := classifyAwareGateway()
	gw.completeFn = func(_ context.Context, _ string, _ float32) (string, error) {
		return "", errors.New("timeout")
	}

	var seenEntries string
	base := gw.systemFn
	gw.systemFn = func(ctx context.Context, system, user string, temp float32) (string, error) {
		if !strings.Contains(system, "email filter") {
			seenEntries = user
		}
		return base(ctx, system, user, temp)
	}

	cfg := DefaultConfig()
	cfg.ClusteringEnabled = false
	svc := New(gw, cfg, testLogger())

	digest, err := svc.Digest(context.Background(), twelveEmails())
	if err != nil {
		t.Fatal(err)
	}
	if digest == "" {
		t.Fatal("digest must render despite summarization failures")
	}
	// The snippet stands in for the missing summary.
	if !strings.Contains(seenEntries, "snippet 1") {
		t.Errorf("snippet fallback missing from digest entries: %q", seenEntries)
	}
}

func TestDigestClusteringFailureFallsBackToSingletons(t *testing.T) {
	gw := classifyAwareGateway()
	gw.embedFn = func(_ context.Context, _ []string) ([][]float32, error) {
		return nil, errors.New("embedding backend down")
	}
	svc := New(gw, DefaultConfig(), testLogger())

	digest, err := svc.Digest(context.Background(), twelveEmails())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(digest, "rendered digest") {
		t.Errorf("digest = %q", digest)
	}
	// Six important emails, each summarized individually.
	if gw.completed() != 6 {
		t.Errorf("got %d summarization calls, want 6", gw.completed())
	}
}
