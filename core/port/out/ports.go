// Package out defines the outbound ports of the pipeline core.
package out

import (
	"context"
	"errors"

	"mailliam_server/core/domain"
)

// ErrNotFound is returned by stores when the requested record does not
// exist. It is distinct from transport failures so callers can map it to a
// 404 rather than a 502.
var ErrNotFound = errors.New("not found")

// CompletionGateway is the opaque text-completion backend. Implementations
// must tolerate being asked anything; callers must tolerate getting anything
// back (empty text, fenced JSON, free prose).
type CompletionGateway interface {
	Complete(ctx context.Context, prompt string, temperature float32) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// MailProvider lists and fetches a user's recent messages. Paging is
// followed internally up to max messages.
type MailProvider interface {
	ListRecentMessages(ctx context.Context, max int) ([]*domain.RawEmail, error)
}

// MailProviderFactory builds a provider bound to one user's credentials.
type MailProviderFactory interface {
	ForUser(ctx context.Context, creds *domain.UserCredentials) (MailProvider, error)
}

// CredentialStore persists user credential records keyed by email address.
type CredentialStore interface {
	Get(ctx context.Context, email string) (*domain.UserCredentials, error)
	Save(ctx context.Context, creds *domain.UserCredentials) error
}
