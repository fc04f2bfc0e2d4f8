package cnst

const (
	GatewayYaml = "tokengate.yaml"
)

const (
	RedisClusterTypeSentinel = "sentinel"
	RedisClusterTypeCluster  = "cluster"
	RedisClusterTypeSingle   = "single"
)

// BusType names a message bus transport.
type BusType string

const (
	BusTypeMemory BusType = "memory"
	BusTypeRedis  BusType = "redis"
	BusTypeNATS   BusType = "nats"
	BusTypeKafka  BusType = "kafka"
	// BusTypeHTTP forwards input straight to a REST backend. Publish only.
	BusTypeHTTP BusType = "http"
)

// AddressMode selects where the admission pipeline takes the wallet address from.
type AddressMode string

const (
	// AddressModeResolved looks the address up at the identity provider.
	AddressModeResolved AddressMode = "resolved"
	// AddressModeHandshake trusts the address declared in the client handshake.
	AddressModeHandshake AddressMode = "handshake"
)

// CacheType names a balance cache store.
type CacheType string

const (
	CacheTypeMemory CacheType = "memory"
	CacheTypeRedis  CacheType = "redis"
)
