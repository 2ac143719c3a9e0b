// Package mail orchestrates the per-user digest flow: resolve credentials,
// fetch recent messages, run the pipeline, cache the result.
package mail

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"mailliam_server/core/domain"
	"mailliam_server/core/port/out"
	"mailliam_server/core/service/pipeline"
	"mailliam_server/pkg/apperr"
	"mailliam_server/pkg/cache"
)

const digestCachePrefix = "digest:"

// Service ties the credential store, the mail provider factory, and the
// pipeline together. The cache is optional; a nil cache disables digest
// caching without changing behavior.
type Service struct {
	store    out.CredentialStore
	factory  out.MailProviderFactory
	pipeline *pipeline.Service
	cache    *cache.RedisCache
	maxMsgs  int
	cacheTTL time.Duration
	log      zerolog.Logger
}

// Config holds the service knobs.
type Config struct {
	MaxMessages int
	DigestTTL   time.Duration
}

// New creates the mail service.
func New(store out.CredentialStore, factory out.MailProviderFactory, pl *pipeline.Service, c *cache.RedisCache, cfg Config, log zerolog.Logger) *Service {
	maxMsgs := cfg.MaxMessages
	if maxMsgs <= 0 {
		maxMsgs = 50
	}
	ttl := cfg.DigestTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{
		store:    store,
		factory:  factory,
		pipeline: pl,
		cache:    c,
		maxMsgs:  maxMsgs,
		cacheTTL: ttl,
		log:      log.With().Str("component", "mail_service").Logger(),
	}
}

// RegisterUser upserts a user's credentials.
func (s *Service) RegisterUser(ctx context.Context, creds *domain.UserCredentials) error {
	if creds.Email == "" {
		return apperr.MissingField("email")
	}
	if creds.AccessToken == "" {
		return apperr.MissingField("access_token")
	}
	if creds.SummaryTime == "" {
		creds.SummaryTime = domain.DefaultSummaryTime
	}

	if err := s.store.Save(ctx, creds); err != nil {
		return apperr.DatabaseError("save user", err)
	}

	// New tokens may widen what the provider returns.
	s.InvalidateDigest(ctx, creds.Email)

	s.log.Info().Str("email", creds.Email).Msg("user registered")
	return nil
}

// ImportantEmails fetches the user's recent messages and returns the ones
// that survived the importance merge.
func (s *Service) ImportantEmails(ctx context.Context, email string) ([]domain.ImportantEmail, error) {
	raw, err := s.fetchRecent(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.pipeline.ImportantEmails(ctx, raw), nil
}

// Digest returns the rendered Markdown digest for one user, served from
// cache when fresh.
func (s *Service) Digest(ctx context.Context, email string) (string, error) {
	key := digestCachePrefix + email

	if s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			s.log.Debug().Str("email", email).Msg("digest cache hit")
			return cached, nil
		} else if err != nil {
			s.log.Warn().Err(err).Msg("digest cache read failed")
		}
	}

	raw, err := s.fetchRecent(ctx, email)
	if err != nil {
		return "", err
	}

	digest, err := s.pipeline.Digest(ctx, raw)
	if err != nil {
		return "", apperr.ExternalError("inference", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, digest, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Msg("digest cache write failed")
		}
	}

	return digest, nil
}

// InvalidateDigest drops the cached digest for one user, forcing the next
// request to rebuild it.
func (s *Service) InvalidateDigest(ctx context.Context, email string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, digestCachePrefix+email); err != nil {
		s.log.Warn().Err(err).Msg("digest cache invalidation failed")
	}
}

func (s *Service) fetchRecent(ctx context.Context, email string) ([]*domain.RawEmail, error) {
	if email == "" {
		return nil, apperr.MissingField("user")
	}

	creds, err := s.store.Get(ctx, email)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, apperr.DatabaseError("get user", err)
	}

	provider, err := s.factory.ForUser(ctx, creds)
	if err != nil {
		return nil, err
	}

	raw, err := provider.ListRecentMessages(ctx, s.maxMsgs)
	if err != nil {
		return nil, err
	}

	s.log.Debug().Str("email", email).Int("messages", len(raw)).Msg("fetched recent messages")
	return raw, nil
}
