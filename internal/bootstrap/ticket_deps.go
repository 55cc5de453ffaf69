// Package bootstrap wires configuration, datastores, adapters and
// services into runnable API and worker units.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"ticket_worker/adapter/out/llm"
	"ticket_worker/adapter/out/mongodb"
	"ticket_worker/adapter/out/persistence"
	"ticket_worker/adapter/out/provider"
	"ticket_worker/config"
	"ticket_worker/core/port/out"
	"ticket_worker/core/service/pipeline"
	"ticket_worker/infra/database"
	"ticket_worker/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
)

// Dependencies holds every shared resource of the application.
type Dependencies struct {
	Config *config.Config

	// Datastores
	PgxPool *pgxpool.Pool
	DB      *sqlx.DB
	Redis   *redis.Client
	Mongo   *mongo.Client

	// Output adapters
	Source           out.MessageSource
	FingerprintStore out.FingerprintStore
	Classifier       out.Classifier
	TicketCreator    out.TicketCreator
	Archive          out.DecisionArchive

	// Services
	Engine      *pipeline.Engine
	Coordinator *pipeline.Coordinator
}

// NewDependencies builds the dependency graph. The returned cleanup
// closes every connection it opened.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// PostgreSQL
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		deps.PgxPool = pool
		cleanups = append(cleanups, pool.Close)

		db, err := database.NewSQLX(cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to open sqlx handle: %w", err)
		}
		deps.DB = db
		cleanups = append(cleanups, func() { db.Close() })
	}

	// Redis
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		deps.Redis = rdb
		cleanups = append(cleanups, func() { rdb.Close() })
	}

	// MongoDB (decision archive)
	if cfg.ArchiveEnabled && cfg.MongoDBURL != "" {
		client, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		deps.Mongo = client
		cleanups = append(cleanups, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(ctx)
		})

		archive := mongodb.NewDecisionArchiveAdapter(
			client.Database(cfg.MongoDBName),
			time.Duration(cfg.ArchiveTTLDays)*24*time.Hour,
		)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := archive.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("Failed to ensure decision archive indexes")
		}
		cancel()
		deps.Archive = archive
	}

	// Fingerprint store
	fpStore, err := newFingerprintStore(cfg, deps)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.FingerprintStore = fpStore

	// Ticket creator
	if deps.DB == nil {
		cleanup()
		return nil, nil, fmt.Errorf("DATABASE_URL is required for the ticket store")
	}
	deps.TicketCreator = persistence.NewTicketAdapter(deps.DB)

	// Message source
	source, err := newMessageSource(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Source = source

	// Classifier (optional; the engine falls back to keywords without it)
	if cfg.OpenAIAPIKey != "" {
		deps.Classifier = llm.NewOpenAIClassifier(llm.Config{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			Timeout:     time.Duration(cfg.LLMTimeoutSec) * time.Second,
		})
	} else {
		logger.Warn("OPENAI_API_KEY not set, classification runs on keyword fallback only")
	}

	// Services
	deps.Engine = pipeline.NewEngine(pipeline.EngineDeps{
		FingerprintStore: deps.FingerprintStore,
		Classifier:       deps.Classifier,
		TicketCreator:    deps.TicketCreator,
		Archive:          deps.Archive,
	}, cfg.ConfidenceThreshold)

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	deps.Coordinator = pipeline.NewCoordinator(deps.Source, deps.Engine, cfg.PipelineWorkers, zlog)

	return deps, cleanup, nil
}

func newFingerprintStore(cfg *config.Config, deps *Dependencies) (out.FingerprintStore, error) {
	switch cfg.FingerprintBackend {
	case "redis":
		if deps.Redis == nil {
			return nil, fmt.Errorf("FINGERPRINT_BACKEND=redis requires REDIS_URL")
		}
		ttl := time.Duration(cfg.FingerprintTTLDays) * 24 * time.Hour
		return persistence.NewRedisFingerprintAdapter(deps.Redis, ttl), nil
	case "postgres", "":
		if deps.DB == nil {
			return nil, fmt.Errorf("FINGERPRINT_BACKEND=postgres requires DATABASE_URL")
		}
		return persistence.NewFingerprintAdapter(deps.DB), nil
	default:
		return nil, fmt.Errorf("unknown fingerprint backend: %s", cfg.FingerprintBackend)
	}
}

func newMessageSource(cfg *config.Config) (out.MessageSource, error) {
	ctx := context.Background()

	switch cfg.SourceProvider {
	case "gmail":
		return provider.NewGmailSource(ctx, provider.GmailConfig{
			CredentialsJSON: cfg.GmailCredentialsJSON,
			UserID:          cfg.GmailUserID,
		})
	case "graph", "":
		return provider.NewGraphSource(ctx, provider.GraphConfig{
			TenantID:     cfg.GraphTenantID,
			ClientID:     cfg.GraphClientID,
			ClientSecret: cfg.GraphClientSecret,
			Mailbox:      cfg.GraphMailbox,
			Folder:       cfg.GraphFolder,
		})
	default:
		return nil, fmt.Errorf("unknown source provider: %s", cfg.SourceProvider)
	}
}
