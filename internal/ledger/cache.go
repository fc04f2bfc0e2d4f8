package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amoylab/tokengate/internal/common/cnst"
	"github.com/amoylab/tokengate/internal/common/config"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Record is a balance observed at a point in time
type Record struct {
	Address    string          `json:"address"`
	Balance    decimal.Decimal `json:"balance"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Cache stores balance records. Get returns (nil, nil) on a miss and never
// returns a record older than the cache TTL.
type Cache interface {
	Get(ctx context.Context, address string) (*Record, error)
	Set(ctx context.Context, rec *Record) error
}

// NewCache creates the cache configured by cfg. client may be nil for the memory type.
func NewCache(logger *zap.Logger, cfg config.BalanceCacheConfig, client redis.UniversalClient, now func() time.Time) (Cache, error) {
	logger.Info("Initializing balance cache", zap.String("type", string(cfg.Type)), zap.Duration("ttl", cfg.TTL))
	switch cfg.Type {
	case cnst.CacheTypeMemory, "":
		return NewMemoryCache(cfg.TTL, now), nil
	case cnst.CacheTypeRedis:
		if client == nil {
			return nil, errors.New("redis balance cache requires a redis client")
		}
		return NewRedisCache(client, cfg.Prefix, cfg.TTL, now), nil
	default:
		return nil, fmt.Errorf("unsupported balance cache type: %s", cfg.Type)
	}
}

// MemoryCache keeps records in process. Stale records are dropped when read.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]Record
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     now,
		records: make(map[string]Record),
	}
}

func (c *MemoryCache) Get(_ context.Context, address string) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[address]
	if !ok {
		return nil, nil
	}
	if c.now().Sub(rec.ObservedAt) >= c.ttl {
		delete(c.records, address)
		return nil, nil
	}
	return &rec, nil
}

func (c *MemoryCache) Set(_ context.Context, rec *Record) error {
	c.mu.Lock()
	c.records[rec.Address] = *rec
	c.mu.Unlock()
	return nil
}

// Len returns the number of records held, stale or not
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// RedisCache shares balance records between gateway processes. Keys expire
// with the TTL; the observed time is still checked on read.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration, now func() time.Time) *RedisCache {
	if now == nil {
		now = time.Now
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    now,
	}
}

func (c *RedisCache) Get(ctx context.Context, address string) (*Record, error) {
	data, err := c.client.Get(ctx, c.prefix+address).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get balance from Redis: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal balance record: %w", err)
	}
	if c.now().Sub(rec.ObservedAt) >= c.ttl {
		return nil, nil
	}
	return &rec, nil
}

func (c *RedisCache) Set(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal balance record: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+rec.Address, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store balance in Redis: %w", err)
	}
	return nil
}
