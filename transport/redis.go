package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/streambridge/types"
	"github.com/BaSui01/streambridge/wire"
)

// RedisChannelConfig 描述 Redis pub/sub 通道的主题布局
type RedisChannelConfig struct {
	// Prefix 主题前缀，例如 "streambridge"
	Prefix string
	// Session 标识一对 host/consumer，两端必须一致
	Session string
	// Role 决定本端订阅与发布的主题
	Role Role
}

// Topics returns the (send, receive) topic names for the configured role.
func (c RedisChannelConfig) Topics() (string, string) {
	prefix := c.Prefix
	if prefix == "" {
		prefix = "streambridge"
	}
	toConsumer := fmt.Sprintf("%s:%s:to-consumer", prefix, c.Session)
	toHost := fmt.Sprintf("%s:%s:to-host", prefix, c.Session)
	if c.Role == RoleHost {
		return toConsumer, toHost
	}
	return toHost, toConsumer
}

// RedisChannel 基于 Redis pub/sub 的消息通道。
// pub/sub 不持久化：对端订阅之前发布的消息会丢失，所以 NewRedisChannel
// 在订阅确认后才返回。
type RedisChannel struct {
	client    redis.UniversalClient
	pubsub    *redis.PubSub
	msgs      <-chan *redis.Message
	sendTopic string
	logger    *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewRedisChannel subscribes to the receive topic and waits for the
// subscription to be confirmed. The client is owned by the caller.
func NewRedisChannel(ctx context.Context, client redis.UniversalClient, cfg RedisChannelConfig, logger *zap.Logger) (*RedisChannel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Role.Valid() {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("invalid role %q", cfg.Role))
	}
	if cfg.Session == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "redis channel requires a session")
	}
	sendTopic, recvTopic := cfg.Topics()

	pubsub := client.Subscribe(ctx, recvTopic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, types.NewError(types.ErrTransportFailure, "redis subscribe").
			WithCause(err).WithRetryable(true)
	}

	return &RedisChannel{
		client:    client,
		pubsub:    pubsub,
		msgs:      pubsub.Channel(),
		sendTopic: sendTopic,
		logger: logger.With(
			zap.String("component", "redis_channel"),
			zap.String("send_topic", sendTopic),
			zap.String("recv_topic", recvTopic),
		),
		done: make(chan struct{}),
	}, nil
}

// Send 发布到对端主题
func (c *RedisChannel) Send(ctx context.Context, msg *wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := c.client.Publish(ctx, c.sendTopic, data).Err(); err != nil {
		return types.NewError(types.ErrTransportFailure, "redis publish").
			WithStreamID(msg.RequestID).WithCause(err).WithRetryable(true)
	}
	return nil
}

// Receive 等待订阅主题上的下一条消息
func (c *RedisChannel) Receive(ctx context.Context) (*wire.Message, error) {
	select {
	case m, ok := <-c.msgs:
		if !ok {
			return nil, ErrClosed
		}
		return wire.Decode([]byte(m.Payload))
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close 取消订阅，不关闭 client
func (c *RedisChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.pubsub.Close()
		if err != nil {
			c.logger.Debug("redis pubsub close", zap.Error(err))
		}
	})
	return err
}
