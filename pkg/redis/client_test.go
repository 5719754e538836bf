package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicelink/servicelink-backend/pkg/config"
)

func TestFixedWindowAllowCountsWithinWindow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	client := &Client{store: fake}

	for i, want := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, "lead-unlock:provider-1", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, allowed, "hit %d", i+1)
		assert.Equal(t, int64(i+1), count)
	}
	assert.Equal(t, map[string]int64{"sl:rl:lead-unlock:provider-1": time.Minute.Milliseconds()}, fake.ttl)
}

func TestIncrWithTTLArmsExpiryOnce(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	client := &Client{store: fake}

	_, err := client.IncrWithTTL(ctx, "k", time.Second)
	require.NoError(t, err)
	fake.ttl["k"] = 0 // would be re-armed if the script expired every hit
	n, err := client.IncrWithTTL(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Zero(t, fake.ttl["k"])
}

func TestWebhookClaimRejectsReplay(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeRedis()}
	key := client.WebhookKey("paystack", "BK-ref-1")

	first, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, client.Set(ctx, key, "done", time.Hour))
	v, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "done", v)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestCompareAndDeleteOnlyRemovesOwnToken(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	client := &Client{store: fake}
	key := client.LockKey("cron-worker:dev")
	fake.data[key] = "token-a"

	deleted, err := client.CompareAndDelete(ctx, key, "token-b")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, "token-a", fake.data[key])

	deleted, err = client.CompareAndDelete(ctx, key, "token-a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NotContains(t, fake.data, key)
}

func TestUnconnectedClient(t *testing.T) {
	client := &Client{}
	assert.Error(t, client.Ping(context.Background()))
	_, err := client.IncrWithTTL(context.Background(), "k", time.Second)
	assert.Error(t, err)
	assert.NoError(t, client.Close())
}

func TestKeyFamilies(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "sl:idem:user|POST|/api/v1/bookings:abc", client.IdempotencyKey("user|POST|/api/v1/bookings", "abc"))
	assert.Equal(t, "sl:rl:messages", client.RateLimitKey("messages"))
	assert.Equal(t, "sl:webhook:paystack:ref", client.WebhookKey("paystack", " ref "))
	assert.Equal(t, "sl:lock", client.LockKey(""))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:secret@cache:6380/2", DB: 5, PoolSize: 7, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, opts.DB)
}

// fakeRedis runs the two client scripts by hash so tests need no server.
type fakeRedis struct {
	data  map[string]string
	count map[string]int64
	ttl   map[string]int64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, count: map[string]int64{}, ttl: map[string]int64{}}
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	switch sha {
	case counterScript.Hash():
		f.count[keys[0]]++
		n := f.count[keys[0]]
		if ms, _ := args[0].(int64); n == 1 && ms > 0 {
			f.ttl[keys[0]] = ms
		}
		return redis.NewCmdResult(n, nil)
	case releaseScript.Hash():
		if f.data[keys[0]] == args[0] {
			delete(f.data, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unknown script %s", sha))
}

func (f *fakeRedis) Eval(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, fmt.Errorf("eval not expected"))
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}
