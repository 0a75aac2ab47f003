package checkpoint

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultRedisKey is the hash holding the checkpoint.
const DefaultRedisKey = "star-census:checkpoint"

// Hash fields.
const (
	fieldBucketIndex      = "bucket_index"
	fieldLastSeenID       = "last_seen_id"
	fieldBucketDiscovered = "bucket_discovered"
	fieldSampleWritten    = "sample_written"
)

// RedisStore keeps the state in a Redis hash written with a single HSET,
// so readers never see a half-updated state.
type RedisStore struct {
	redis  *redis.Client
	key    string
	logger zerolog.Logger
}

// NewRedisStore creates a store under key (DefaultRedisKey if empty).
func NewRedisStore(redisClient *redis.Client, key string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{
		redis:  redisClient,
		key:    key,
		logger: log.With().Str("component", "checkpoint").Str("key", key).Logger(),
	}
}

// Load reads the state. A missing or malformed hash yields the zero State;
// a Redis failure is returned.
func (r *RedisStore) Load(ctx context.Context) (State, error) {
	fields, err := r.redis.HGetAll(ctx, r.key).Result()
	if err != nil {
		return State{}, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return State{}, nil
	}

	state, ok := decodeHash(fields)
	if !ok {
		resetsTotal.WithLabelValues("malformed").Inc()
		r.logger.Warn().Interface("fields", fields).Msg("Checkpoint malformed - starting over")
		return State{}, nil
	}

	return state, nil
}

func decodeHash(fields map[string]string) (State, bool) {
	bucket, err := strconv.Atoi(fields[fieldBucketIndex])
	if err != nil {
		return State{}, false
	}
	id, err := strconv.ParseInt(fields[fieldLastSeenID], 10, 64)
	if err != nil {
		return State{}, false
	}

	state := State{BucketIndex: bucket, LastSeenID: id}
	if v, ok := fields[fieldBucketDiscovered]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return State{}, false
		}
		state.BucketDiscovered = n
	}
	if v, ok := fields[fieldSampleWritten]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return State{}, false
		}
		state.SampleWritten = n
	}

	return state, state.valid()
}

// Save replaces the state.
func (r *RedisStore) Save(ctx context.Context, state State) error {
	if !state.valid() {
		return fmt.Errorf("invalid checkpoint state %+v", state)
	}

	err := r.redis.HSet(ctx, r.key,
		fieldBucketIndex, state.BucketIndex,
		fieldLastSeenID, state.LastSeenID,
		fieldBucketDiscovered, state.BucketDiscovered,
		fieldSampleWritten, state.SampleWritten,
	).Err()
	if err != nil {
		savesTotal.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("redis hset: %w", err)
	}
	savesTotal.WithLabelValues("redis", "ok").Inc()

	return nil
}

// Clear deletes the hash.
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
