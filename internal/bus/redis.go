package bus

import (
	"context"
	"fmt"

	"github.com/amoylab/tokengate/internal/common/config"
	"github.com/amoylab/tokengate/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher pushes every envelope onto its own list, keyed by prefix
// and message id, where workers pick it up.
type RedisPublisher struct {
	logger *zap.Logger
	client redis.UniversalClient
	prefix string
}

var _ Publisher = (*RedisPublisher)(nil)

func NewRedisPublisher(logger *zap.Logger, client redis.UniversalClient, cfg config.RedisBusConfig) *RedisPublisher {
	return &RedisPublisher{
		logger: logger.Named("bus.redis.publisher"),
		client: client,
		prefix: cfg.MessageKeyPrefix,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, env *Envelope) (int, error) {
	data, err := env.Marshal()
	if err != nil {
		return 0, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	key := p.prefix + env.MessageID
	if err := p.client.RPush(ctx, key, data).Err(); err != nil {
		return 0, fmt.Errorf("failed to push message to Redis: %w", err)
	}
	p.logger.Debug("message pushed",
		zap.String("key", key),
		zap.String("user_id", env.UserID))
	return StatusAccepted, nil
}

// Close is a no-op, the client is shared
func (p *RedisPublisher) Close() error {
	return nil
}

// RedisSubscriber listens on a channel pattern such as user:*:responses.
// The wildcard part of the channel is reported as the event's UserID.
type RedisSubscriber struct {
	logger  *zap.Logger
	pattern string
	pubsub  *redis.PubSub
	ch      <-chan *redis.Message
}

var _ Subscriber = (*RedisSubscriber)(nil)

// NewRedisSubscriber subscribes and waits for the server to confirm
func NewRedisSubscriber(ctx context.Context, logger *zap.Logger, client redis.UniversalClient, cfg config.RedisBusConfig) (*RedisSubscriber, error) {
	pubsub := client.PSubscribe(ctx, cfg.ResponsePattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.ResponsePattern, err)
	}

	logger = logger.Named("bus.redis.subscriber")
	logger.Info("subscribed to response channels", zap.String("pattern", cfg.ResponsePattern))
	return &RedisSubscriber{
		logger:  logger,
		pattern: cfg.ResponsePattern,
		pubsub:  pubsub,
		ch:      pubsub.Channel(),
	}, nil
}

func (s *RedisSubscriber) Next(ctx context.Context) (*Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-s.ch:
		if !ok {
			return nil, ErrSubscriptionClosed
		}
		userID, _ := utils.CaptureWildcard(s.pattern, msg.Channel)
		return &Event{
			Source:  msg.Channel,
			UserID:  userID,
			Payload: []byte(msg.Payload),
		}, nil
	}
}

func (s *RedisSubscriber) Close() error {
	return s.pubsub.Close()
}
