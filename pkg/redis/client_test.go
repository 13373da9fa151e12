package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tokenizr-backend/pkg/config"
)

func TestMarkerLifecycle(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeCmdable()}
	key := client.IdempotencyKey("submit", "abc")

	ok, err := client.SetNX(ctx, key, "pending", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.SetNX(ctx, key, "pending", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "second writer must lose")

	require.NoError(t, client.Set(ctx, key, "done", time.Minute))
	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "done", got)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, redis.Nil)
}

func TestCompareAndDeleteOnlyRemovesMatchingValue(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCmdable()
	client := &Client{store: fake}
	fake.data["lease"] = "owner-a"

	removed, err := client.CompareAndDelete(ctx, "lease", "owner-b")
	require.NoError(t, err)
	require.False(t, removed)
	require.Equal(t, "owner-a", fake.data["lease"])

	removed, err = client.CompareAndDelete(ctx, "lease", "owner-a")
	require.NoError(t, err)
	require.True(t, removed)
	require.NotContains(t, fake.data, "lease")
	require.Equal(t, 2, fake.evals, "unknown sha falls back to the script body")
}

func TestCompareAndDeleteWrapsErrors(t *testing.T) {
	fake := newFakeCmdable()
	fake.evalErr = errors.New("READONLY")
	client := &Client{store: fake}

	_, err := client.CompareAndDelete(context.Background(), "lease", "x")
	require.ErrorContains(t, err, "compare and delete lease")
}

func TestPublishSurfacesErrors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCmdable()
	client := &Client{store: fake}

	channel := client.LiveChannel("notifications", "user-1")
	require.NoError(t, client.Publish(ctx, channel, `{"id":"n1"}`))
	require.Equal(t, []string{"tk:live:notifications:user-1"}, fake.channels)

	fake.publishErr = errors.New("connection reset")
	require.Error(t, client.Publish(ctx, channel, "x"))
}

func TestZeroClientReturnsNotInitialized(t *testing.T) {
	ctx := context.Background()
	var nilClient *Client
	for _, c := range []*Client{{}, nilClient} {
		require.ErrorIs(t, c.Publish(ctx, "c", "x"), ErrNotInitialized)
		require.ErrorIs(t, c.Ping(ctx), ErrNotInitialized)
		_, err := c.Subscribe(ctx, "c")
		require.ErrorIs(t, err, ErrNotInitialized)
		_, err = c.CompareAndDelete(ctx, "k", "v")
		require.ErrorIs(t, err, ErrNotInitialized)
		require.NoError(t, c.Close())
	}
}

func TestKeys(t *testing.T) {
	client := &Client{}
	require.Equal(t, "tk:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	require.Equal(t, "tk:live:notifications", client.LiveChannel("notifications", " "))
	require.Equal(t, "tk:maintenance:lock:prod", client.LockKey("prod"))

	custom := &Client{keys: Keys{Namespace: "staging"}}
	require.Equal(t, "staging:idempotency:a:b", custom.IdempotencyKey("a", "b"))
	require.Equal(t, "tk", Keys{}.Build())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(testRedisConfig("", " "))
	require.Error(t, err)

	opts, err := optionsFromConfig(testRedisConfig("", "localhost:6379"))
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, 7, opts.PoolSize)
	require.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(testRedisConfig("redis://:pw@cache:6380/3", "ignored:1"))
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, 3, opts.DB, "url db wins over config")
	require.Equal(t, "pw", opts.Password)

	_, err = optionsFromConfig(testRedisConfig("http://nope", ""))
	require.ErrorContains(t, err, "parsing redis url")
}

type noScriptError struct{}

func (noScriptError) Error() string { return "NOSCRIPT No matching script" }
func (noScriptError) RedisError()   {}

type fakeCmdable struct {
	data       map[string]string
	channels   []string
	publishErr error
	evalErr    error
	evals      int
}

func newFakeCmdable() *fakeCmdable {
	return &fakeCmdable{data: map[string]string{}}
}

func (f *fakeCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeCmdable) Publish(_ context.Context, channel string, _ any) *redis.IntCmd {
	if f.publishErr != nil {
		return redis.NewIntResult(0, f.publishErr)
	}
	f.channels = append(f.channels, channel)
	return redis.NewIntResult(1, nil)
}

// EvalSha never knows the script so every call falls back to Eval.
func (f *fakeCmdable) EvalSha(context.Context, string, []string, ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, noScriptError{})
}

func (f *fakeCmdable) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.evals++
	if f.evalErr != nil {
		return redis.NewCmdResult(nil, f.evalErr)
	}
	if f.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func testRedisConfig(url, addr string) config.RedisConfig {
	return config.RedisConfig{
		URL:          url,
		Address:      addr,
		PoolSize:     7,
		MinIdleConns: 1,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}
