// Package gmail provides the Gmail mail provider adapter.
package gmail

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mailliam_server/core/domain"
	"mailliam_server/core/port/out"
	"mailliam_server/pkg/apperr"
)

// importantLabel is Gmail's deterministic importance marker.
const importantLabel = "IMPORTANT"

// listPageSize caps one Messages.List page.
const listPageSize = 100

// Factory builds per-user Gmail providers sharing one OAuth config and one
// circuit breaker.
type Factory struct {
	config *oauth2.Config
	cb     *gobreaker.CircuitBreaker
}

// FactoryConfig holds the Google OAuth client settings.
type FactoryConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewFactory creates a Gmail provider factory.
func NewFactory(cfg FactoryConfig) *Factory {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmail.GmailReadonlyScope,
		},
		Endpoint: google.Endpoint,
	}

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
	}

	return &Factory{
		config: config,
		cb:     gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// OAuthConfig exposes the shared OAuth config for token exchange.
func (f *Factory) OAuthConfig() *oauth2.Config {
	return f.config
}

// ForUser builds a provider bound to one user's stored tokens. The token
// source refreshes the access token transparently when it expires.
func (f *Factory) ForUser(ctx context.Context, creds *domain.UserCredentials) (out.MailProvider, error) {
	if creds == nil || creds.AccessToken == "" {
		return nil, apperr.Unauthorized("no stored credentials")
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		// Force the token source to consider refreshing stale tokens.
		Expiry: time.Now().Add(-time.Minute),
	}
	if creds.RefreshToken == "" {
		token.Expiry = time.Time{}
	}

	service, err := gmail.NewService(ctx, option.WithTokenSource(
		f.config.TokenSource(ctx, token),
	))
	if err != nil {
		return nil, apperr.OAuthFailed("gmail", err)
	}

	return &Provider{service: service, cb: f.cb}, nil
}

// Provider implements out.MailProvider for one Gmail account.
type Provider struct {
	service *gmail.Service
	cb      *gobreaker.CircuitBreaker
}

// ListRecentMessages pages the inbox up to max message ids, then fetches
// full payloads with bounded concurrency. A failed individual fetch drops
// that message; the listing itself failing is an error.
func (p *Provider) ListRecentMessages(ctx context.Context, max int) ([]*domain.RawEmail, error) {
	ids, err := p.listMessageIDs(ctx, max)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*domain.RawEmail{}, nil
	}

	// Parallel fetch with bounded concurrency to stay under rate limits.
	const maxConcurrency = 5
	type result struct {
		index int
		email *domain.RawEmail
		err   error
	}

	results := make(chan result, len(ids))
	semaphore := make(chan struct{}, maxConcurrency)

	for i, id := range ids {
		go func(idx int, msgID string) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			email, err := p.getMessage(ctx, msgID)
			results <- result{index: idx, email: email, err: err}
		}(i, id)
	}

	ordered := make([]*domain.RawEmail, len(ids))
	for range ids {
		r := <-results
		if r.err == nil && r.email != nil {
			ordered[r.index] = r.email
		}
	}

	emails := make([]*domain.RawEmail, 0, len(ids))
	for _, e := range ordered {
		if e != nil {
			emails = append(emails, e)
		}
	}
	return emails, nil
}

func (p *Provider) listMessageIDs(ctx context.Context, max int) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		req := p.service.Users.Messages.List("me").
			LabelIds("INBOX").
			MaxResults(listPageSize)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		var resp *gmail.ListMessagesResponse
		err := p.execute(ctx, "list messages", func() error {
			var callErr error
			resp, callErr = req.Context(ctx).Do()
			return callErr
		})
		if err != nil {
			return nil, wrapError(err, "failed to list messages")
		}

		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
			if len(ids) >= max {
				return ids, nil
			}
		}

		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (p *Provider) getMessage(ctx context.Context, id string) (*domain.RawEmail, error) {
	var msg *gmail.Message
	err := p.execute(ctx, "get message", func() error {
		var callErr error
		msg, callErr = p.service.Users.Messages.Get("me", id).
			Format("full").
			Context(ctx).
			Do()
		return callErr
	})
	if err != nil {
		return nil, wrapError(err, "failed to get message")
	}
	return parseMessage(msg), nil
}

// execute wraps one API call with the shared circuit breaker. Server-side
// failures (5xx, 429) trip the breaker; client errors pass through without
// counting against it.
func (p *Provider) execute(ctx context.Context, operation string, fn func() error) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					return nil, err
				case 400, 401, 403, 404:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	if nce, ok := err.(*nonCircuitError); ok {
		return nce.err
	}
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

// nonCircuitError wraps errors that must not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

func wrapError(err error, defaultMsg string) error {
	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 401:
			return apperr.Unauthorized("gmail token rejected")
		case 403:
			return apperr.OAuthFailed("gmail", err)
		case 404:
			return apperr.NotFound("message")
		}
	}
	return apperr.ExternalError("gmail", fmt.Errorf("%s: %w", defaultMsg, err))
}

// parseMessage maps one full-format Gmail message onto the domain shape,
// keeping the raw MIME part hierarchy for downstream body extraction.
func parseMessage(msg *gmail.Message) *domain.RawEmail {
	email := &domain.RawEmail{
		ID:         msg.Id,
		Snippet:    msg.Snippet,
		ReceivedAt: time.Unix(msg.InternalDate/1000, 0),
	}

	for _, label := range msg.LabelIds {
		if label == importantLabel {
			email.ProviderImportant = true
		}
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "Subject":
				email.Subject = header.Value
			case "From":
				email.Sender = header.Value
			}
		}
		email.BodyTree = parseBodyTree(msg.Payload)
	}

	return email
}

func parseBodyTree(part *gmail.MessagePart) *domain.BodyNode {
	if part == nil {
		return nil
	}

	node := &domain.BodyNode{MIMEType: part.MimeType}
	if part.Body != nil {
		node.Data = part.Body.Data
	}
	for _, child := range part.Parts {
		if childNode := parseBodyTree(child); childNode != nil {
			node.Parts = append(node.Parts, childNode)
		}
	}
	return node
}

var _ out.MailProvider = (*Provider)(nil)
var _ out.MailProviderFactory = (*Factory)(nil)
