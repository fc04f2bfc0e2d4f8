package config

import (
	"os"
	"regexp"
	"time"

	"github.com/amoylab/tokengate/internal/common/cnst"
	"github.com/amoylab/tokengate/pkg/helper"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultTokenDecimals int32 = 6
	defaultMinimumTokens int64 = 100000
)

type (
	// GatewayConfig is the root configuration of the gateway process
	GatewayConfig struct {
		Server    ServerConfig    `yaml:"server"`
		Logger    LoggerConfig    `yaml:"logger"`
		Tracing   TracingConfig   `yaml:"tracing"`
		Metrics   MetricsConfig   `yaml:"metrics"`
		Identity  IdentityConfig  `yaml:"identity"`
		Ledger    LedgerConfig    `yaml:"ledger"`
		Admission AdmissionConfig `yaml:"admission"`
		Redis     RedisConfig     `yaml:"redis"`
		Bus       BusConfig       `yaml:"bus"`
	}

	// ServerConfig represents the HTTP/WebSocket listener configuration
	ServerConfig struct {
		Port           int           `yaml:"port"`
		PID            string        `yaml:"pid"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		SendQueueSize  int           `yaml:"send_queue_size"` // per connection outbound frames
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		WelcomeMessage string        `yaml:"welcome_message"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps, e.g., "UTC", default is local
		TimeFormat string `yaml:"time_format"` // time format for log timestamps, default is "2006-01-02 15:04:05"

		// Sampling caps repeated entries per second, useful for per-frame debug logs
		Sampling *LogSamplingConfig `yaml:"sampling"`
	}

	LogSamplingConfig struct {
		Initial    int `yaml:"initial"`
		Thereafter int `yaml:"thereafter"`
	}

	// TracingConfig represents OpenTelemetry tracing configuration
	TracingConfig struct {
		Enabled     bool              `yaml:"enabled"`
		ServiceName string            `yaml:"service_name"`
		Endpoint    string            `yaml:"endpoint"`     // e.g. localhost:4317 or localhost:4318
		Protocol    string            `yaml:"protocol"`     // grpc or http
		Insecure    bool              `yaml:"insecure"`     // allow insecure connection
		SamplerRate float64           `yaml:"sampler_rate"` // 0.0~1.0
		Environment string            `yaml:"environment"`  // env tag: dev/staging/prod
		Headers     map[string]string `yaml:"headers"`
	}

	// MetricsConfig represents the prometheus configuration
	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Path      string    `yaml:"path"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// IdentityConfig selects and configures the identity provider
	IdentityConfig struct {
		AddressMode cnst.AddressMode `yaml:"address_mode"`
		Privy       PrivyConfig      `yaml:"privy"`
	}

	PrivyConfig struct {
		AppID     string `yaml:"app_id"`
		AppSecret string `yaml:"app_secret"`
		// VerificationKey is the PEM encoded ES256 public key of the app
		VerificationKey string        `yaml:"verification_key"`
		BaseURL         string        `yaml:"base_url"`
		Issuer          string        `yaml:"issuer"`
		Timeout         time.Duration `yaml:"timeout"`
	}

	// LedgerConfig configures the Solana JSON-RPC balance source
	LedgerConfig struct {
		RPCURL     string        `yaml:"rpc_url"`
		Mint       string        `yaml:"mint"`
		Decimals   *int32        `yaml:"decimals"`
		Commitment string        `yaml:"commitment"`
		Timeout    time.Duration `yaml:"timeout"`
	}

	AdmissionConfig struct {
		Eligibility EligibilityConfig  `yaml:"eligibility"`
		Cache       BalanceCacheConfig `yaml:"cache"`
	}

	EligibilityConfig struct {
		Enabled *bool `yaml:"enabled"`
		// MinimumBalance is expressed in base units of the mint, nil means
		// 100000 whole tokens
		MinimumBalance *decimal.Decimal `yaml:"minimum_balance"`
	}

	BalanceCacheConfig struct {
		Type   cnst.CacheType `yaml:"type"` // memory or redis
		TTL    time.Duration  `yaml:"ttl"`
		Prefix string         `yaml:"prefix"`
	}

	// RedisConfig is the shared redis connection used by the cache and the bus
	RedisConfig struct {
		ClusterType string `yaml:"cluster_type"`
		Addr        string `yaml:"addr"`
		MasterName  string `yaml:"master_name"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		DB          int    `yaml:"db"`
	}

	BusConfig struct {
		Publisher  cnst.BusType    `yaml:"publisher"`
		Subscriber cnst.BusType    `yaml:"subscriber"`
		Memory     MemoryBusConfig `yaml:"memory"`
		Redis      RedisBusConfig  `yaml:"redis"`
		NATS       NATSBusConfig   `yaml:"nats"`
		Kafka      KafkaBusConfig  `yaml:"kafka"`
		HTTP       HTTPBusConfig   `yaml:"http"`
	}

	// MemoryBusConfig configures the in-process bus used for development
	MemoryBusConfig struct {
		Buffer int  `yaml:"buffer"`
		Echo   bool `yaml:"echo"` // answer every input with "Received: <input>"
	}

	RedisBusConfig struct {
		MessageKeyPrefix string `yaml:"message_key_prefix"` // list key prefix, one list per message id
		ResponsePattern  string `yaml:"response_pattern"`   // pattern channel, '*' is the user id
	}

	NATSBusConfig struct {
		Servers         []string      `yaml:"servers"`
		Name            string        `yaml:"name"`
		Username        string        `yaml:"username"`
		Password        string        `yaml:"password"`
		InputSubject    string        `yaml:"input_subject"`
		ResponseSubject string        `yaml:"response_subject"` // may contain one '*' token for the user id
		ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	}

	KafkaBusConfig struct {
		Brokers       []string `yaml:"brokers"`
		ClientID      string   `yaml:"client_id"`
		Version       string   `yaml:"version"`
		InputTopic    string   `yaml:"input_topic"`
		ResponseTopic string   `yaml:"response_topic"`
	}

	HTTPBusConfig struct {
		URL     string            `yaml:"url"`
		Timeout time.Duration     `yaml:"timeout"`
		Headers map[string]string `yaml:"headers"`
	}
)

// EligibilityEnabled reports whether the balance stage of admission runs
func (c *AdmissionConfig) EligibilityEnabled() bool {
	return c.Eligibility.Enabled == nil || *c.Eligibility.Enabled
}

// TokenDecimals is the number of decimal places of the mint
func (c *LedgerConfig) TokenDecimals() int32 {
	if c.Decimals == nil {
		return defaultTokenDecimals
	}
	return *c.Decimals
}

// MinimumBalance is the admission threshold in base units of the mint
func (c *GatewayConfig) MinimumBalance() decimal.Decimal {
	if m := c.Admission.Eligibility.MinimumBalance; m != nil {
		return *m
	}
	return decimal.New(defaultMinimumTokens, c.Ledger.TokenDecimals())
}

// LoadConfig loads configuration from a YAML file with environment variable support
func LoadConfig(filename string) (*GatewayConfig, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	// Resolve environment variables
	data = resolveEnv(data)
	var cfg GatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}

	SetDefaults(&cfg)
	return &cfg, cfgPath, nil
}

// SetDefaults fills zero values with the gateway defaults. Decimals and the
// minimum balance are only filled when absent, zero is a valid setting.
func SetDefaults(cfg *GatewayConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5235
	}
	if cfg.Server.SendQueueSize <= 0 {
		cfg.Server.SendQueueSize = 100
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.PingInterval <= 0 {
		cfg.Server.PingInterval = 30 * time.Second
	}
	if cfg.Server.WelcomeMessage == "" {
		cfg.Server.WelcomeMessage = "Connected to gateway"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = cnst.AppName
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cnst.AppName
	}

	if cfg.Identity.AddressMode == "" {
		cfg.Identity.AddressMode = cnst.AddressModeResolved
	}
	if cfg.Identity.Privy.BaseURL == "" {
		cfg.Identity.Privy.BaseURL = "https://auth.privy.io"
	}
	if cfg.Identity.Privy.Issuer == "" {
		cfg.Identity.Privy.Issuer = "privy.io"
	}
	if cfg.Identity.Privy.Timeout <= 0 {
		cfg.Identity.Privy.Timeout = 10 * time.Second
	}

	if cfg.Ledger.RPCURL == "" {
		cfg.Ledger.RPCURL = "https://api.mainnet-beta.solana.com"
	}
	if cfg.Ledger.Decimals == nil {
		decimals := defaultTokenDecimals
		cfg.Ledger.Decimals = &decimals
	}
	if cfg.Ledger.Commitment == "" {
		cfg.Ledger.Commitment = "confirmed"
	}
	if cfg.Ledger.Timeout <= 0 {
		cfg.Ledger.Timeout = 10 * time.Second
	}

	if cfg.Admission.Eligibility.MinimumBalance == nil {
		minimum := cfg.MinimumBalance()
		cfg.Admission.Eligibility.MinimumBalance = &minimum
	}
	if cfg.Admission.Cache.Type == "" {
		cfg.Admission.Cache.Type = cnst.CacheTypeMemory
	}
	if cfg.Admission.Cache.TTL <= 0 {
		cfg.Admission.Cache.TTL = 30 * time.Second
	}
	if cfg.Admission.Cache.Prefix == "" {
		cfg.Admission.Cache.Prefix = "balance:"
	}

	if cfg.Redis.ClusterType == "" {
		cfg.Redis.ClusterType = cnst.RedisClusterTypeSingle
	}

	if cfg.Bus.Publisher == "" {
		cfg.Bus.Publisher = cnst.BusTypeMemory
	}
	if cfg.Bus.Subscriber == "" {
		cfg.Bus.Subscriber = cnst.BusTypeMemory
	}
	if cfg.Bus.Memory.Buffer <= 0 {
		cfg.Bus.Memory.Buffer = 256
	}
	if cfg.Bus.Redis.MessageKeyPrefix == "" {
		cfg.Bus.Redis.MessageKeyPrefix = "chat:message:"
	}
	if cfg.Bus.Redis.ResponsePattern == "" {
		cfg.Bus.Redis.ResponsePattern = "user:*:responses"
	}
	if cfg.Bus.NATS.InputSubject == "" {
		cfg.Bus.NATS.InputSubject = "chat.message"
	}
	if cfg.Bus.NATS.ResponseSubject == "" {
		cfg.Bus.NATS.ResponseSubject = "user.*.responses"
	}
	if cfg.Bus.NATS.Name == "" {
		cfg.Bus.NATS.Name = cnst.AppName
	}
	if cfg.Bus.Kafka.ClientID == "" {
		cfg.Bus.Kafka.ClientID = cnst.AppName
	}
	if cfg.Bus.Kafka.InputTopic == "" {
		cfg.Bus.Kafka.InputTopic = "chat.message"
	}
	if cfg.Bus.Kafka.ResponseTopic == "" {
		cfg.Bus.Kafka.ResponseTopic = "chat.response"
	}
	if cfg.Bus.HTTP.Timeout <= 0 {
		cfg.Bus.HTTP.Timeout = 10 * time.Second
	}
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
