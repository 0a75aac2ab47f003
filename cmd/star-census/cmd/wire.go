package cmd

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/repo-star-census/internal/config"
	"github.com/Sternrassler/repo-star-census/pkg/cache"
	"github.com/Sternrassler/repo-star-census/pkg/checkpoint"
	"github.com/Sternrassler/repo-star-census/pkg/client"
	"github.com/Sternrassler/repo-star-census/pkg/logging"
	"github.com/Sternrassler/repo-star-census/pkg/probe"
)

// deps holds the collaborators shared by the API commands.
type deps struct {
	github *client.Client
	redis  *redis.Client
}

// connect creates the GitHub client and, when redis_addr is set, a Redis
// client that must answer a ping.
func connect(ctx context.Context, c *config.Config) (*deps, error) {
	if err := c.RequireToken(); err != nil {
		return nil, err
	}

	gh, err := client.New(c.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("create github client: %w", err)
	}

	d := &deps{github: gh}
	if c.RedisAddr == "" {
		return d, nil
	}

	d.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	if err := d.redis.Ping(ctx).Err(); err != nil {
		d.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", c.RedisAddr, err)
	}
	log.Debug().Str("addr", c.RedisAddr).Msg("Connected to Redis")

	return d, nil
}

// Close releases the clients.
func (d *deps) Close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	_ = d.github.Close()
}

// store returns the configured checkpoint store.
func (d *deps) store(c *config.Config) (checkpoint.Store, error) {
	switch c.StateBackend {
	case config.BackendRedis:
		if d.redis == nil {
			return nil, fmt.Errorf("state_backend redis requires redis_addr")
		}
		return checkpoint.NewRedisStore(d.redis, checkpoint.DefaultRedisKey), nil
	default:
		return checkpoint.NewFileStore(c.State), nil
	}
}

// findMaxID runs the boundary search from hint.
func (d *deps) findMaxID(ctx context.Context, c *config.Config, hint int64) (int64, error) {
	prober := probe.New(d.github.Exists, c.ProbeConfig(), logging.NewLogger("probe"))
	return prober.FindMaxID(ctx, hint)
}

// estimate returns the population estimate, from the Redis cache when
// one is configured. Failures yield 0.
func (d *deps) estimate(ctx context.Context, c *config.Config) (total int64, cached bool) {
	logger := logging.NewLogger("estimate")

	var err error
	if d.redis != nil && c.EstimateCacheTTL > 0 {
		total, cached, err = cache.NewManager(d.redis).Estimate(ctx,
			cache.EstimateKey(client.PopulationQuery), c.EstimateCacheTTL, d.github.SearchTotal)
	} else {
		total, err = d.github.SearchTotal(ctx)
	}

	if err != nil {
		logger.Warn().Err(err).Msg("Population estimate unavailable")
		return 0, false
	}
	return total, cached
}
