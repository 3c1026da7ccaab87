// Package cache keeps the reaction aggregate in Redis, separately from the
// record store. The record store stays the source of truth; a missing key is
// reported as reaction.ErrCounterMiss and rebuilt by a recount.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/go-redis/redis/v7"

	"github.com/roach88/engage/internal/reaction"
)

// DefaultKeyPrefix namespaces every key written by the counter.
const DefaultKeyPrefix = "engage:"

// Config holds Redis connection settings.
type Config struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// applyDelta adds the delta to the total and each kind bucket, clamping
// every value at zero. Returns {total, clamped, kind1, n1, kind2, n2, ...},
// or {-1} when the post has no cached total.
var applyDelta = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {-1}
end
local clamped = 0
local total = redis.call('INCRBY', KEYS[1], ARGV[1])
if total < 0 then
  redis.call('SET', KEYS[1], 0)
  total = 0
  clamped = 1
end
for i = 2, #ARGV, 2 do
  local n = redis.call('HINCRBY', KEYS[2], ARGV[i], ARGV[i + 1])
  if n <= 0 then
    redis.call('HDEL', KEYS[2], ARGV[i])
    if n < 0 then
      clamped = 1
    end
  end
end
local out = {total, clamped}
local kinds = redis.call('HGETALL', KEYS[2])
for i = 1, #kinds do
  out[#out + 1] = kinds[i]
end
return out
`)

// Counter is a Redis-backed aggregate counter.
type Counter struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// Option configures a Counter.
type Option func(*Counter)

// WithLogger sets the logger used for clamp warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Counter) {
		if l != nil {
			c.logger = l
		}
	}
}

// New connects to Redis and verifies the connection.
func New(cfg Config, opts ...Option) (*Counter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping().Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewWithClient(client, cfg.KeyPrefix, opts...), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string, opts ...Option) *Counter {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	c := &Counter{
		client: client,
		prefix: prefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close closes the client.
func (c *Counter) Close() error {
	return c.client.Close()
}

func (c *Counter) totalKey(postID string) string {
	return c.prefix + "post:" + postID + ":reactions"
}

func (c *Counter) kindsKey(postID string) string {
	return c.prefix + "post:" + postID + ":kinds"
}

// Count returns the cached aggregate. Returns reaction.ErrCounterMiss when
// nothing is cached for the post.
func (c *Counter) Count(ctx context.Context, postID string) (reaction.Tally, error) {
	client := c.client.WithContext(ctx)

	var total *redis.StringCmd
	var kinds *redis.StringStringMapCmd
	_, err := client.Pipelined(func(pipe redis.Pipeliner) error {
		total = pipe.Get(c.totalKey(postID))
		kinds = pipe.HGetAll(c.kindsKey(postID))
		return nil
	})
	if err == redis.Nil {
		return reaction.Tally{}, reaction.ErrCounterMiss
	}
	if err != nil {
		return reaction.Tally{}, unavailable(postID, "count", err)
	}

	n, err := total.Int64()
	if err != nil {
		return reaction.Tally{}, fmt.Errorf("parse cached total: %w", err)
	}
	t := reaction.Tally{Total: n, Kinds: make(map[reaction.Kind]int64)}
	for k, v := range kinds.Val() {
		count, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return reaction.Tally{}, fmt.Errorf("parse cached kind %q: %w", k, err)
		}
		if count > 0 {
			t.Kinds[reaction.Kind(k)] = count
		}
	}
	return t, nil
}

// ApplyDelta adds d to the cached aggregate in one atomic script.
// Returns reaction.ErrCounterMiss when nothing is cached for the post.
func (c *Counter) ApplyDelta(ctx context.Context, postID string, d reaction.Delta) (reaction.Tally, error) {
	args := []interface{}{d.Total}
	kinds := make([]string, 0, len(d.Kinds))
	for k := range d.Kinds {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		args = append(args, k, d.Kinds[reaction.Kind(k)])
	}

	res, err := applyDelta.Run(c.client.WithContext(ctx),
		[]string{c.totalKey(postID), c.kindsKey(postID)}, args...).Result()
	if err != nil {
		return reaction.Tally{}, unavailable(postID, "apply delta", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) == 0 {
		return reaction.Tally{}, fmt.Errorf("apply delta: unexpected script reply %T", res)
	}
	total, _ := vals[0].(int64)
	if total < 0 {
		return reaction.Tally{}, reaction.ErrCounterMiss
	}
	if clamped, _ := vals[1].(int64); clamped == 1 {
		c.logger.Error("negative reaction count clamped",
			"post", postID,
			"delta", d.Total,
		)
	}

	t := reaction.Tally{Total: total, Kinds: make(map[reaction.Kind]int64)}
	for i := 2; i+1 < len(vals); i += 2 {
		k, _ := vals[i].(string)
		v, _ := vals[i+1].(string)
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return reaction.Tally{}, fmt.Errorf("parse cached kind %q: %w", k, err)
		}
		if n > 0 {
			t.Kinds[reaction.Kind(k)] = n
		}
	}
	return t, nil
}

// Reset overwrites the cached aggregate with t.
func (c *Counter) Reset(ctx context.Context, postID string, t reaction.Tally) error {
	client := c.client.WithContext(ctx)
	_, err := client.TxPipelined(func(pipe redis.Pipeliner) error {
		pipe.Set(c.totalKey(postID), t.Total, 0)
		pipe.Del(c.kindsKey(postID))
		fields := make([]interface{}, 0, 2*len(t.Kinds))
		for k, n := range t.Kinds {
			if n > 0 {
				fields = append(fields, string(k), n)
			}
		}
		if len(fields) > 0 {
			pipe.HSet(c.kindsKey(postID), fields...)
		}
		return nil
	})
	if err != nil {
		return unavailable(postID, "reset", err)
	}
	return nil
}

// Invalidate drops the cached aggregate so the next read rebuilds it.
func (c *Counter) Invalidate(ctx context.Context, postID string) error {
	err := c.client.WithContext(ctx).Del(c.totalKey(postID), c.kindsKey(postID)).Err()
	if err != nil {
		return unavailable(postID, "invalidate", err)
	}
	return nil
}

func unavailable(postID, op string, err error) error {
	return reaction.NewStoreUnavailable(postID, "redis "+op, err)
}
