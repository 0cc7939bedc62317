package attribution

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/itsneelabh/gomind-agenttrace/core"
)

// DefaultRedisNamespace prefixes every key written by RedisIndex
const DefaultRedisNamespace = "gomind:attribution"

// RedisIndex shares the span index between processes. Each agent owns one
// hash keyed by span id whose values are JSON encoded entries; the hash
// expires TTL after the agent's last recorded span.
type RedisIndex struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    core.Logger
}

// RedisIndexOptions configures a RedisIndex
type RedisIndexOptions struct {
	RedisURL  string
	Namespace string
	TTL       time.Duration
	Logger    core.Logger
}

// NewRedisIndex connects to Redis and verifies the connection
func NewRedisIndex(ctx context.Context, opts RedisIndexOptions) (*RedisIndex, error) {
	if opts.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", core.ErrInvalidConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", core.ErrInvalidConfiguration)
	}

	client := redis.NewClient(redisOpt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, &core.FrameworkError{
			Op:   "attribution.NewRedisIndex",
			Kind: "connection",
			Err:  fmt.Errorf("%w: %v", core.ErrConnectionFailed, err),
		}
	}

	return NewRedisIndexWithClient(client, opts), nil
}

// NewRedisIndexWithClient wraps an existing client (useful for testing)
func NewRedisIndexWithClient(client *redis.Client, opts RedisIndexOptions) *RedisIndex {
	if opts.Namespace == "" {
		opts.Namespace = DefaultRedisNamespace
	}
	if opts.Logger == nil {
		opts.Logger = &core.NoOpLogger{}
	}
	if cal, ok := opts.Logger.(core.ComponentAwareLogger); ok {
		opts.Logger = cal.WithComponent("framework/attribution")
	}

	opts.Logger.Debug("Redis attribution index ready", map[string]interface{}{
		"namespace": opts.Namespace,
		"ttl":       opts.TTL.String(),
	})

	return &RedisIndex{
		client:    client,
		namespace: opts.Namespace,
		ttl:       opts.TTL,
		logger:    opts.Logger,
	}
}

// maxFinishAttempts bounds WATCH retries when concurrent writers share a key
const maxFinishAttempts = 5

func (r *RedisIndex) key(agentID string) string {
	return fmt.Sprintf("%s:agent:%s", r.namespace, agentID)
}

// Observe records a span under its agent key and refreshes the key's TTL
func (r *RedisIndex) Observe(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	key := r.key(entry.AgentID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, entry.SpanID, data)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record span %s for agent %s: %w", entry.SpanID, entry.AgentID, err)
	}
	return nil
}

// Finish marks a recorded span as ended. The rewrite runs under WATCH and
// re-applies the key's TTL, so a key that expired in between is never
// recreated without one. Unknown spans are ignored.
func (r *RedisIndex) Finish(ctx context.Context, agentID, spanID string) error {
	key := r.key(agentID)
	finish := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, spanID).Result()
		if err != nil {
			return err
		}

		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		entry.Finished = true

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, spanID, data)
			if r.ttl > 0 {
				pipe.Expire(ctx, key, r.ttl)
			}
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxFinishAttempts; attempt++ {
		err = r.client.Watch(ctx, finish, key)
		if err != redis.TxFailedErr {
			break
		}
		// another writer touched the key; reload and retry
	}

	switch err {
	case nil, redis.Nil:
		return nil
	default:
		return fmt.Errorf("failed to finish span %s for agent %s: %w", spanID, agentID, err)
	}
}

// Candidates returns the agent's live spans ordered by start time.
// Entries that fail to decode are logged and skipped.
func (r *RedisIndex) Candidates(ctx context.Context, agentID string) ([]Entry, error) {
	values, err := r.client.HGetAll(ctx, r.key(agentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list spans for agent %s: %w", agentID, err)
	}

	out := make([]Entry, 0, len(values))
	for spanID, raw := range values {
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			r.logger.Warn("Skipping undecodable attribution entry", map[string]interface{}{
				"agent_id": agentID,
				"span_id":  spanID,
				"error":    err.Error(),
			})
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].SpanID < out[j].SpanID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

// Close releases the Redis connection
func (r *RedisIndex) Close() error {
	return r.client.Close()
}
