package attribution

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/gomind-agenttrace/core"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisIndex_RoundTrip(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	idx := NewRedisIndexWithClient(client, RedisIndexOptions{TTL: time.Hour})

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, idx.Observe(ctx, Entry{
		AgentID: "planning-agent", ConversationID: "c1", TraceID: "t1", SpanID: "s1", StartedAt: started,
	}))
	require.NoError(t, idx.Observe(ctx, Entry{
		AgentID: "planning-agent", ConversationID: "c1", TraceID: "t1", SpanID: "s2", StartedAt: started.Add(time.Second),
	}))

	got, err := idx.Candidates(ctx, "planning-agent")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].SpanID)
	assert.True(t, got[0].StartedAt.Equal(started))

	require.NoError(t, idx.Finish(ctx, "planning-agent", "s2"))
	got, err = idx.Candidates(ctx, "planning-agent")
	require.NoError(t, err)
	assert.False(t, got[0].Finished)
	assert.True(t, got[1].Finished)

	assert.NoError(t, idx.Finish(ctx, "planning-agent", "unknown"))
}

func TestRedisIndex_KeyLayoutAndTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	idx := NewRedisIndexWithClient(client, RedisIndexOptions{TTL: time.Minute})

	require.NoError(t, idx.Observe(ctx, Entry{AgentID: "a", SpanID: "s1", StartedAt: time.Now()}))

	key := DefaultRedisNamespace + ":agent:a"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(2 * time.Minute)
	got, err := idx.Candidates(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisIndex_FinishKeepsTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	idx := NewRedisIndexWithClient(client, RedisIndexOptions{TTL: time.Hour})
	key := DefaultRedisNamespace + ":agent:a"

	require.NoError(t, idx.Observe(ctx, Entry{AgentID: "a", SpanID: "s1", StartedAt: time.Now()}))
	mr.SetTTL(key, time.Second)

	require.NoError(t, idx.Finish(ctx, "a", "s1"))
	assert.Equal(t, time.Hour, mr.TTL(key))

	got, err := idx.Candidates(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Finished)
}

func TestRedisIndex_FinishAfterExpiryDoesNotRecreateKey(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	idx := NewRedisIndexWithClient(client, RedisIndexOptions{TTL: time.Minute})
	key := DefaultRedisNamespace + ":agent:a"

	require.NoError(t, idx.Observe(ctx, Entry{AgentID: "a", SpanID: "s1", StartedAt: time.Now()}))
	mr.FastForward(2 * time.Minute)
	require.False(t, mr.Exists(key))

	require.NoError(t, idx.Finish(ctx, "a", "s1"))
	assert.False(t, mr.Exists(key))
}

func TestRedisIndex_FinishCorruptEntry(t *testing.T) {
	mr, client := setupTestRedis(t)
	idx := NewRedisIndexWithClient(client, RedisIndexOptions{TTL: time.Minute})
	mr.HSet(DefaultRedisNamespace+":agent:a", "bad", "{not json")

	err := idx.Finish(context.Background(), "a", "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to finish span bad for agent a")
}

func TestRedisIndex_SkipsCorruptEntries(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	idx := NewRedisIndexWithClient(client, RedisIndexOptions{Namespace: "test"})

	require.NoError(t, idx.Observe(ctx, Entry{AgentID: "a", SpanID: "ok"}))
	mr.HSet("test:agent:a", "bad", "{not json")

	got, err := idx.Candidates(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].SpanID)
}

func TestRedisIndex_SharedBetweenResolvers(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	// two processes sharing one Redis
	writer := NewRedisIndexWithClient(client, RedisIndexOptions{})
	reader := NewResolver(NewRedisIndexWithClient(client, RedisIndexOptions{}), nil)

	require.NoError(t, writer.Observe(ctx, Entry{AgentID: "planner", ConversationID: "c", TraceID: "t", SpanID: "s", StartedAt: time.Now()}))

	res, err := reader.Resolve(ctx, "planner", "c")
	require.NoError(t, err)
	assert.True(t, res.Resolved)
	assert.Equal(t, "s", res.Entry.SpanID)
}

func TestRedisIndex_UnavailableServer(t *testing.T) {
	mr, client := setupTestRedis(t)
	idx := NewRedisIndexWithClient(client, RedisIndexOptions{})
	mr.Close()

	_, err := idx.Candidates(context.Background(), "a")
	assert.Error(t, err)

	res, err := NewResolver(idx, nil).Resolve(context.Background(), "a", "")
	assert.Error(t, err)
	assert.False(t, res.Resolved)
}

func TestNewRedisIndex(t *testing.T) {
	mr, _ := setupTestRedis(t)

	idx, err := NewRedisIndex(context.Background(), RedisIndexOptions{RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer idx.Close()

	_, err = NewRedisIndex(context.Background(), RedisIndexOptions{})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = NewRedisIndex(context.Background(), RedisIndexOptions{RedisURL: "://bad"})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}
