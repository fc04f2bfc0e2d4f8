package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/amoylab/tokengate/internal/common/cnst"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message  string
	Problems []error
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	sb.WriteString("\n\n")
	for _, p := range e.Problems {
		sb.WriteString("--> ")
		sb.WriteString(p.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Unwrap exposes the individual problems to errors.Is
func (e *ValidationError) Unwrap() []error {
	return e.Problems
}

// Validate checks that everything required at startup is present and consistent
func Validate(cfg *GatewayConfig) error {
	var problems []error

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	for _, origin := range cfg.Server.AllowedOrigins {
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Errorf("server.allowed_origins: invalid origin %q", origin))
		}
	}

	privy := cfg.Identity.Privy
	if privy.AppID == "" || privy.AppSecret == "" {
		problems = append(problems, cnst.ErrMissingPrivyCredentials)
	}
	if privy.VerificationKey == "" {
		problems = append(problems, cnst.ErrMissingVerificationKey)
	}
	switch cfg.Identity.AddressMode {
	case cnst.AddressModeResolved, cnst.AddressModeHandshake:
	default:
		problems = append(problems, fmt.Errorf("identity.address_mode: unsupported mode %q", cfg.Identity.AddressMode))
	}

	if cfg.Admission.EligibilityEnabled() {
		if cfg.Ledger.Mint == "" {
			problems = append(problems, cnst.ErrMissingMint)
		}
		if cfg.Ledger.RPCURL == "" {
			problems = append(problems, cnst.ErrMissingRPCURL)
		}
		minimum := cfg.MinimumBalance()
		if minimum.IsNegative() {
			problems = append(problems, errors.New("admission.eligibility.minimum_balance must not be negative"))
		}
		if !minimum.Equal(minimum.Truncate(0)) {
			problems = append(problems, errors.New("admission.eligibility.minimum_balance must be an integer amount of base units"))
		}
	}
	if cfg.Ledger.TokenDecimals() < 0 {
		problems = append(problems, errors.New("ledger.decimals must not be negative"))
	}

	switch cfg.Admission.Cache.Type {
	case cnst.CacheTypeMemory:
	case cnst.CacheTypeRedis:
		problems = append(problems, requireRedis(cfg, "admission.cache")...)
	default:
		problems = append(problems, fmt.Errorf("admission.cache.type: unsupported type %q", cfg.Admission.Cache.Type))
	}

	problems = append(problems, validateBus(cfg, "bus.publisher", cfg.Bus.Publisher)...)
	if cfg.Bus.Subscriber == cnst.BusTypeHTTP {
		problems = append(problems, fmt.Errorf("bus.subscriber: %w", cnst.ErrPublishOnly))
	} else {
		problems = append(problems, validateBus(cfg, "bus.subscriber", cfg.Bus.Subscriber)...)
	}
	if cfg.Bus.Subscriber == cnst.BusTypeRedis && strings.Count(cfg.Bus.Redis.ResponsePattern, "*") > 1 {
		problems = append(problems, errors.New("bus.redis.response_pattern may contain at most one '*'"))
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{
		Message:  "invalid gateway configuration",
		Problems: problems,
	}
}

func validateBus(cfg *GatewayConfig, field string, t cnst.BusType) []error {
	switch t {
	case cnst.BusTypeMemory:
		return nil
	case cnst.BusTypeRedis:
		return requireRedis(cfg, field)
	case cnst.BusTypeNATS:
		if len(cfg.Bus.NATS.Servers) == 0 {
			return []error{fmt.Errorf("%s: bus.nats.servers is required", field)}
		}
	case cnst.BusTypeKafka:
		if len(cfg.Bus.Kafka.Brokers) == 0 {
			return []error{fmt.Errorf("%s: bus.kafka.brokers is required", field)}
		}
	case cnst.BusTypeHTTP:
		if cfg.Bus.HTTP.URL == "" {
			return []error{fmt.Errorf("%s: bus.http.url is required", field)}
		}
	default:
		return []error{fmt.Errorf("%s: unsupported bus type %q", field, t)}
	}
	return nil
}

func requireRedis(cfg *GatewayConfig, field string) []error {
	if cfg.Redis.Addr == "" {
		return []error{fmt.Errorf("%s: redis.addr is required", field)}
	}
	switch cfg.Redis.ClusterType {
	case cnst.RedisClusterTypeSingle, cnst.RedisClusterTypeCluster:
	case cnst.RedisClusterTypeSentinel:
		if cfg.Redis.MasterName == "" {
			return []error{fmt.Errorf("%s: redis.master_name is required for sentinel", field)}
		}
	default:
		return []error{fmt.Errorf("%s: unsupported redis.cluster_type %q", field, cfg.Redis.ClusterType)}
	}
	return nil
}
