package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mailliam_server/core/domain"
)

func TestDigestGroupEmptyEntries(t *testing.T) {
	gw := &fakeGateway{
		systemFn: func(_ context.Context, _, _ string, _ float32) (string, error) {
			t.Fatal("gateway must not be called for an empty digest")
			return "", nil
		},
	}
	g := NewDigestGrouper(gw, testLogger())

	got, err := g.Group(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != emptyDigestText {
		t.Errorf("got %q, want %q", got, emptyDigestText)
	}
}

func TestDigestGroupPassesRawResponseThrough(t *testing.T) {
	rendered := "## 📁 Work\n1. **Subject**: Q3 report\n"
	var seenUser string
	gw := &fakeGateway{
		systemFn: func(_ context.Context, _, user string, _ float32) (string, error) {
			seenUser = user
			return rendered, nil
		},
	}
	g := NewDigestGrouper(gw, testLogger())

	entries := []domain.DigestEntry{
		{Subject: "Q3 report", Sender: "bob@x.com", Summary: "asks for the report", Time: "2026-08-28 09:15:00"},
	}

	got, err := g.Group(context.Background(), entries)
	if err != nil {
		t.Fatal(err)
	}
	if got != rendered {
		t.Errorf("digest must pass through unmodified, got %q", got)
	}
	if !strings.Contains(seenUser, `"subject": "Q3 report"`) {
		t.Errorf("entries missing from prompt: %q", seenUser)
	}
}

func TestDigestGroupError(t *testing.T) {
	gw := &fakeGateway{
		systemFn: func(_ context.Context, _, _ string, _ float32) (string, error) {
			return "", errors.New("backend down")
		},
	}
	g := NewDigestGrouper(gw, testLogger())

	if _, err := g.Group(context.Background(), []domain.DigestEntry{{Subject: "x"}}); err == nil {
		t.Fatal("expected error to surface")
	}
}
