package bus

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/amoylab/tokengate/internal/common/cnst"
	"github.com/amoylab/tokengate/internal/common/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the shared clients a transport may need
type Deps struct {
	Redis      redis.UniversalClient
	Memory     *MemoryBus
	HTTPClient *http.Client
}

// NewPublisher creates the publisher selected by cfg.Publisher
func NewPublisher(logger *zap.Logger, cfg config.BusConfig, deps Deps) (Publisher, error) {
	logger.Info("Initializing bus publisher", zap.String("type", string(cfg.Publisher)))
	switch cfg.Publisher {
	case cnst.BusTypeMemory:
		if deps.Memory == nil {
			return nil, errors.New("memory publisher requires a memory bus")
		}
		return deps.Memory, nil
	case cnst.BusTypeRedis:
		if deps.Redis == nil {
			return nil, errors.New("redis publisher requires a redis client")
		}
		return NewRedisPublisher(logger, deps.Redis, cfg.Redis), nil
	case cnst.BusTypeNATS:
		nc, err := ConnectNATS(logger, cfg.NATS)
		if err != nil {
			return nil, err
		}
		return NewNATSPublisher(logger, nc, cfg.NATS), nil
	case cnst.BusTypeKafka:
		return NewKafkaPublisher(logger, cfg.Kafka)
	case cnst.BusTypeHTTP:
		return NewHTTPPublisher(logger, deps.HTTPClient, cfg.HTTP), nil
	default:
		return nil, fmt.Errorf("unsupported bus publisher: %s", cfg.Publisher)
	}
}

// NewSubscriber creates the subscriber selected by cfg.Subscriber
func NewSubscriber(ctx context.Context, logger *zap.Logger, cfg config.BusConfig, deps Deps) (Subscriber, error) {
	logger.Info("Initializing bus subscriber", zap.String("type", string(cfg.Subscriber)))
	switch cfg.Subscriber {
	case cnst.BusTypeMemory:
		if deps.Memory == nil {
			return nil, errors.New("memory subscriber requires a memory bus")
		}
		return deps.Memory, nil
	case cnst.BusTypeRedis:
		if deps.Redis == nil {
			return nil, errors.New("redis subscriber requires a redis client")
		}
		return NewRedisSubscriber(ctx, logger, deps.Redis, cfg.Redis)
	case cnst.BusTypeNATS:
		nc, err := ConnectNATS(logger, cfg.NATS)
		if err != nil {
			return nil, err
		}
		sub, err := NewNATSSubscriber(logger, nc, cfg.NATS)
		if err != nil {
			nc.Close()
			return nil, err
		}
		return sub, nil
	case cnst.BusTypeKafka:
		return NewKafkaSubscriber(logger, cfg.Kafka)
	case cnst.BusTypeHTTP:
		return nil, cnst.ErrPublishOnly
	default:
		return nil, fmt.Errorf("unsupported bus subscriber: %s", cfg.Subscriber)
	}
}
