package bootstrap

import (
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mailliam_server/adapter/out/persistence"
	"mailliam_server/adapter/out/provider/gmail"
	"mailliam_server/config"
	"mailliam_server/core/agent/llm"
	"mailliam_server/core/service/mail"
	"mailliam_server/core/service/pipeline"
	"mailliam_server/infra/database"
	"mailliam_server/pkg/cache"
	"mailliam_server/pkg/logger"
)

// Dependencies holds every wired component of the service.
type Dependencies struct {
	Config *config.Config
	DB     *sqlx.DB
	Redis  *redis.Client

	LLMClient    *llm.Client
	GmailFactory *gmail.Factory
	Pipeline     *pipeline.Service
	MailService  *mail.Service
}

// NewDependencies wires the full dependency graph. The returned cleanup
// closes connections in reverse order of creation.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Postgres
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Error("postgres connection failed: %v", err)
		return nil, nil, err
	}
	cleanups = append(cleanups, func() { db.Close() })

	// Redis is optional; without it the digest cache is disabled.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis connection failed, digest caching disabled: %v", err)
			redisClient = nil
		} else {
			cleanups = append(cleanups, func() { redisClient.Close() })
		}
	}

	// Inference gateway
	llmClient := llm.NewClientWithConfig(llm.ClientConfig{
		APIKey:     cfg.OpenAIAPIKey,
		Model:      cfg.LLMModel,
		EmbedModel: cfg.EmbedModel,
		MaxTokens:  cfg.LLMMaxTokens,
		MaxRetries: cfg.LLMMaxRetries,
	})

	// Pipeline
	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	pipelineSvc := pipeline.New(llmClient, pipeline.Config{
		BatchSize:           cfg.BatchSize,
		AdKeywords:          cfg.AdKeywords,
		SubjectLimit:        cfg.SubjectLimit,
		SenderLimit:         cfg.SenderLimit,
		SnippetLimit:        cfg.SnippetLimit,
		BatchByteCeiling:    cfg.BatchByteCeiling,
		BodyTruncationLimit: cfg.BodyTruncationLimit,
		ClusteringEnabled:   cfg.ClusteringEnabled,
		SimilarityThreshold: cfg.SimilarityThreshold,
		ClusterTopK:         cfg.ClusterTopK,
		Workers:             cfg.PipelineWorkers,
	}, zlog)

	// Gmail provider factory
	gmailFactory := gmail.NewFactory(gmail.FactoryConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})

	// Credential store and digest cache
	userStore := persistence.NewUserAdapter(db)
	var digestCache *cache.RedisCache
	if redisClient != nil {
		digestCache = cache.NewRedisCache(redisClient)
	}

	mailSvc := mail.New(userStore, gmailFactory, pipelineSvc, digestCache, mail.Config{
		MaxMessages: cfg.MaxMessages,
		DigestTTL:   time.Duration(cfg.DigestCacheTTLMin) * time.Minute,
	}, zlog)

	return &Dependencies{
		Config:       cfg,
		DB:           db,
		Redis:        redisClient,
		LLMClient:    llmClient,
		GmailFactory: gmailFactory,
		Pipeline:     pipelineSvc,
		MailService:  mailSvc,
	}, cleanup, nil
}
