// Package cache keeps the vacancy catalog in Redis for a short time so the
// bot does not hit the database on every keyboard render.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/hr-interview-bot/internal/hr"
)

const (
	DefaultTTL = 10 * time.Minute
	keyPrefix  = "hrbot:"
)

// Source is where the catalog is loaded from on a cache miss.
type Source interface {
	OpenVacancies(ctx context.Context) ([]hr.Vacancy, error)
	Vacancy(ctx context.Context, id int64) (hr.Vacancy, error)
	Requirements(ctx context.Context, vacancyID int64) ([]hr.Requirement, error)
}

// Catalog is a read-through cache over Source. A nil Redis client disables
// caching. Redis failures are logged and fall back to the source.
type Catalog struct {
	src    Source
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCatalog(src Source, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Catalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{src: src, rdb: rdb, ttl: ttl, logger: log}
}

func (c *Catalog) OpenVacancies(ctx context.Context) ([]hr.Vacancy, error) {
	var out []hr.Vacancy
	err := c.readThrough(ctx, keyPrefix+"vacancies:open", &out, func(ctx context.Context) (any, error) {
		return c.src.OpenVacancies(ctx)
	})
	return out, err
}

// VacancyByName looks the name up among the open vacancies.
func (c *Catalog) VacancyByName(ctx context.Context, name string) (hr.Vacancy, error) {
	vacancies, err := c.OpenVacancies(ctx)
	if err != nil {
		return hr.Vacancy{}, err
	}
	for _, v := range vacancies {
		if v.Name == name {
			return v, nil
		}
	}
	return hr.Vacancy{}, fmt.Errorf("vacancy %q: %w", name, hr.ErrNotFound)
}

func (c *Catalog) Vacancy(ctx context.Context, id int64) (hr.Vacancy, error) {
	var out hr.Vacancy
	err := c.readThrough(ctx, keyPrefix+"vacancy:"+strconv.FormatInt(id, 10), &out, func(ctx context.Context) (any, error) {
		return c.src.Vacancy(ctx, id)
	})
	return out, err
}

func (c *Catalog) Requirements(ctx context.Context, vacancyID int64) ([]hr.Requirement, error) {
	var out []hr.Requirement
	err := c.readThrough(ctx, keyPrefix+"requirements:"+strconv.FormatInt(vacancyID, 10), &out, func(ctx context.Context) (any, error) {
		return c.src.Requirements(ctx, vacancyID)
	})
	return out, err
}

// readThrough decodes the cached value at key into dst, or loads it and
// stores it for the configured TTL.
func (c *Catalog) readThrough(ctx context.Context, key string, dst any, load func(context.Context) (any, error)) error {
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			if err := json.Unmarshal(raw, dst); err == nil {
				return nil
			}
			c.logger.Warn("dropping undecodable cache entry", zap.String("key", key))
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	value, err := load(ctx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}
