package notifications

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const liveScope = "notifications"

// LivePublisher fans a payload out to whatever clients of userID are connected.
// Delivery is fire-and-forget.
type LivePublisher interface {
	Publish(ctx context.Context, userID uuid.UUID, payload []byte) error
}

// LiveSubscriber opens a per-user stream of live payloads.
type LiveSubscriber interface {
	Subscribe(ctx context.Context, userID uuid.UUID) (LiveStream, error)
}

// LiveStream yields payloads until Close is called or the subscription drops.
type LiveStream interface {
	Messages() <-chan []byte
	Close() error
}

type liveBroker interface {
	Publish(ctx context.Context, channel string, payload any) error
	Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error)
	LiveChannel(scope, id string) string
}

// RedisLive implements the live channel on Redis pub/sub, one channel per user.
type RedisLive struct {
	broker liveBroker
}

// NewRedisLive builds a live channel backed by the provided Redis client.
func NewRedisLive(broker liveBroker) (*RedisLive, error) {
	if broker == nil {
		return nil, fmt.Errorf("redis broker required")
	}
	return &RedisLive{broker: broker}, nil
}

func (l *RedisLive) channel(userID uuid.UUID) string {
	return l.broker.LiveChannel(liveScope, userID.String())
}

func (l *RedisLive) Publish(ctx context.Context, userID uuid.UUID, payload []byte) error {
	if userID == uuid.Nil {
		return fmt.Errorf("user id required")
	}
	return l.broker.Publish(ctx, l.channel(userID), payload)
}

func (l *RedisLive) Subscribe(ctx context.Context, userID uuid.UUID) (LiveStream, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id required")
	}
	sub, err := l.broker.Subscribe(ctx, l.channel(userID))
	if err != nil {
		return nil, err
	}
	stream := &redisStream{sub: sub, out: make(chan []byte, 16), done: make(chan struct{})}
	go stream.pump()
	return stream, nil
}

type redisStream struct {
	sub       *redis.PubSub
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (s *redisStream) pump() {
	defer close(s.out)
	for msg := range s.sub.Channel() {
		select {
		case s.out <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *redisStream) Messages() <-chan []byte {
	return s.out
}

func (s *redisStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.sub.Close()
	})
	return s.closeErr
}
