package cnst

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppConstants(t *testing.T) {
	assert.Equal(t, "tokengate", AppName)
	assert.Equal(t, "tokengate", CommandName)
	assert.Equal(t, "tokengate.yaml", GatewayYaml)
}

func TestRedisClusterTypeConstants(t *testing.T) {
	assert.Equal(t, "sentinel", RedisClusterTypeSentinel)
	assert.Equal(t, "cluster", RedisClusterTypeCluster)
	assert.Equal(t, "single", RedisClusterTypeSingle)
}

func TestBusAndModeConstants(t *testing.T) {
	assert.Equal(t, BusType("redis"), BusTypeRedis)
	assert.Equal(t, BusType("http"), BusTypeHTTP)
	assert.Equal(t, AddressMode("resolved"), AddressModeResolved)
	assert.Equal(t, AddressMode("handshake"), AddressModeHandshake)
	assert.Equal(t, CacheType("redis"), CacheTypeRedis)
}
