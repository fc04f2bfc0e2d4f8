package storage

import (
	"context"
	"fmt"

	"github.com/amoylab/tokengate/internal/common/cnst"
	"github.com/amoylab/tokengate/internal/common/config"
	"github.com/amoylab/tokengate/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds the shared redis client used by the balance cache and
// the redis bus. Addresses may be separated by ';' or ','.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(universalOptions(cfg))

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func universalOptions(cfg config.RedisConfig) *redis.UniversalOptions {
	opts := &redis.UniversalOptions{
		Addrs:    utils.SplitByMultipleDelimiters(cfg.Addr, ";", ","),
		Username: cfg.Username,
		Password: cfg.Password,
	}
	switch cfg.ClusterType {
	case cnst.RedisClusterTypeSentinel:
		opts.MasterName = cfg.MasterName
		opts.DB = cfg.DB
	case cnst.RedisClusterTypeCluster:
		// a single seed address still needs the cluster client; no db in cluster mode
		opts.IsClusterMode = true
	default:
		opts.DB = cfg.DB
	}
	return opts
}
