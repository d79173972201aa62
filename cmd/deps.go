package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/hr-interview-bot/internal/ai"
	"github.com/spigell/hr-interview-bot/internal/ai/gemini"
	"github.com/spigell/hr-interview-bot/internal/ai/openai"
	"github.com/spigell/hr-interview-bot/internal/cache"
	"github.com/spigell/hr-interview-bot/internal/interview"
	"github.com/spigell/hr-interview-bot/internal/prompts"
	"github.com/spigell/hr-interview-bot/internal/secrets"
	"github.com/spigell/hr-interview-bot/internal/store"
)

// openStore connects to the database. The caller closes the returned pool.
func openStore(ctx context.Context, cfg DatabaseConfig, logger *zap.Logger) (*store.Store, *pgxpool.Pool, error) {
	dsn, err := secrets.Load(secrets.Source{
		Name:  "database dsn",
		Value: cfg.DSN,
		Env:   "HRBOT_DATABASE_DSN",
		File:  cfg.DSNFile,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w (set database.dsn or database.dsn-file)", err)
	}

	pool, err := store.NewPool(ctx, dsn, cfg.MaxConns)
	if err != nil {
		return nil, nil, err
	}

	retrier := store.NewRetrier(cfg.Retry, logger)
	logger.Debug("store retry policy",
		zap.Int("tries", retrier.Policy().Tries),
		zap.Durations("delays", retrier.Policy().Delays()),
	)

	return store.New(pool, retrier), pool, nil
}

func newModel(ctx context.Context, cfg AIConfig, logger *zap.Logger) (ai.Model, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.Provider)) {
	case "", "openai":
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "openai api key",
			Value: cfg.OpenAI.APIKey,
			Env:   "HRBOT_AI_OPENAI_API_KEY",
			File:  cfg.OpenAI.APIKeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (or set ai.openai.api-key-file)", err)
		}
		return openai.NewClient(openai.Config{
			APIKey:       apiKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			Model:        cfg.OpenAI.Model,
			Timeout:      cfg.OpenAI.Timeout,
			MaxLogLength: cfg.MaxLogLength,
		}, logger)
	case "gemini":
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.Gemini.APIKey,
			Env:   "HRBOT_AI_GEMINI_API_KEY",
			File:  cfg.Gemini.APIKeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (or set ai.gemini.api-key-file)", err)
		}
		return gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.MaxLogLength, logger)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

// newRedis returns nil when no address is configured.
func newRedis(ctx context.Context, cfg CacheConfig, logger *zap.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis is not reachable, vacancy cache will fall back to the database",
			zap.String("addr", cfg.RedisAddr),
			zap.Error(err),
		)
	}
	return rdb
}

// engine holds the interview parts shared by the commands.
type engine struct {
	store      *store.Store
	catalog    *cache.Catalog
	controller *interview.Controller
	evaluator  *interview.Evaluator
	close      func()
}

func newEngine(ctx context.Context, config *Config, logger *zap.Logger) (*engine, error) {
	st, pool, err := openStore(ctx, config.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	model, err := newModel(ctx, config.AI, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building ai model: %w", err)
	}

	rdb := newRedis(ctx, config.Cache, logger)

	composer := prompts.NewComposer(config.Interview.MaxScore)

	return &engine{
		store:   st,
		catalog: cache.NewCatalog(st, rdb, config.Cache.TTL, logger),
		controller: interview.NewController(model, st, composer,
			interview.WithMaxTurns(config.Interview.MaxTurns),
			interview.WithLogger(logger),
		),
		evaluator: interview.NewEvaluator(model, st, composer, logger),
		close: func() {
			if rdb != nil {
				_ = rdb.Close()
			}
			pool.Close()
		},
	}, nil
}

// session builds the interview session for a stored session id.
func (e *engine) session(ctx context.Context, id int64) (interview.Session, error) {
	sess, err := e.store.Session(ctx, id)
	if err != nil {
		return interview.Session{}, fmt.Errorf("load session %d: %w", id, err)
	}

	cand, err := e.store.Candidate(ctx, sess.CandidateID)
	if err != nil {
		return interview.Session{}, fmt.Errorf("load candidate %d: %w", sess.CandidateID, err)
	}

	requirements, err := e.catalog.Requirements(ctx, sess.VacancyID)
	if err != nil {
		return interview.Session{}, fmt.Errorf("load requirements of vacancy %d: %w", sess.VacancyID, err)
	}

	return interview.Session{ID: sess.ID, ChatID: cand.ChatID, Candidate: cand, Requirements: requirements}, nil
}
