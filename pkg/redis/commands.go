package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// compareAndDeleteSrc removes KEYS[1] only while it still holds ARGV[1].
const compareAndDeleteSrc = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

var compareAndDelete = redis.NewScript(compareAndDeleteSrc)

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.store == nil {
		return ErrNotInitialized
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// Get returns redis.Nil when the key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.store == nil {
		return "", ErrNotInitialized
	}
	return c.store.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c == nil || c.store == nil {
		return false, ErrNotInitialized
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c == nil || c.store == nil {
		return ErrNotInitialized
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Del(ctx, keys...).Err()
}

// CompareAndDelete deletes key if its value equals expected, in one round trip.
// It reports whether the key was removed.
func (c *Client) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	if c == nil || c.store == nil {
		return false, ErrNotInitialized
	}
	keys := []string{key}
	res := c.store.EvalSha(ctx, compareAndDelete.Hash(), keys, expected)
	if redis.HasErrorPrefix(res.Err(), "NOSCRIPT") {
		res = c.store.Eval(ctx, compareAndDeleteSrc, keys, expected)
	}
	n, err := res.Int64()
	if err != nil {
		return false, fmt.Errorf("compare and delete %s: %w", key, err)
	}
	return n > 0, nil
}

// Publish is fire-and-forget; nobody listening is not an error.
func (c *Client) Publish(ctx context.Context, channel string, payload any) error {
	if c == nil || c.store == nil {
		return ErrNotInitialized
	}
	return c.store.Publish(ctx, channel, payload).Err()
}

// Subscribe returns once the server has confirmed the subscription.
func (c *Client) Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	if c == nil || c.raw == nil {
		return nil, ErrNotInitialized
	}
	sub := c.raw.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", strings.Join(channels, ","), err)
	}
	return sub, nil
}
