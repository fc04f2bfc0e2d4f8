package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amoylab/tokengate/internal/common/cnst"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEnv(t *testing.T) {
	t.Setenv("X_A", "va")
	in := []byte("a: ${X_A:da}\nb: ${X_B:db}")
	out := resolveEnv(in)
	assert.Contains(t, string(out), "a: va")
	assert.Contains(t, string(out), "b: db")
}

func TestLoadConfig_Gateway(t *testing.T) {
	tmp := t.TempDir()
	old, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(old) })
	_ = os.Chdir(tmp)
	t.Setenv("X_PRIVY_SECRET", "shh")

	yaml := `
server:
  port: 6000
  allowed_origins:
    - http://localhost:5173
identity:
  address_mode: handshake
  privy:
    app_id: app
    app_secret: ${X_PRIVY_SECRET}
    verification_key: key
ledger:
  mint: So11111111111111111111111111111111111111112
  decimals: 9
admission:
  eligibility:
    enabled: false
    minimum_balance: 2500
  cache:
    ttl: 45s
bus:
  publisher: redis
  subscriber: nats
`
	file := filepath.Join(tmp, cnst.GatewayYaml)
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0o644))

	cfg, path, err := LoadConfig(cnst.GatewayYaml)
	require.NoError(t, err)
	realFile, _ := filepath.EvalSymlinks(file)
	realPath, _ := filepath.EvalSymlinks(path)
	assert.Equal(t, realFile, realPath)

	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, cnst.AddressModeHandshake, cfg.Identity.AddressMode)
	assert.Equal(t, "shh", cfg.Identity.Privy.AppSecret)
	assert.Equal(t, int32(9), cfg.Ledger.TokenDecimals())
	assert.False(t, cfg.Admission.EligibilityEnabled())
	assert.True(t, decimal.NewFromInt(2500).Equal(cfg.MinimumBalance()))
	assert.Equal(t, 45*time.Second, cfg.Admission.Cache.TTL)
	assert.Equal(t, cnst.BusTypeRedis, cfg.Bus.Publisher)
	assert.Equal(t, cnst.BusTypeNATS, cfg.Bus.Subscriber)
	// defaults
	assert.Equal(t, "chat:message:", cfg.Bus.Redis.MessageKeyPrefix)
	assert.Equal(t, "user:*:responses", cfg.Bus.Redis.ResponsePattern)
	assert.Equal(t, 100, cfg.Server.SendQueueSize)
}

func TestLoadConfig_ZeroDecimalsAndMinimum(t *testing.T) {
	file := filepath.Join(t.TempDir(), "zero.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
ledger:
  mint: So11111111111111111111111111111111111111112
  decimals: 0
admission:
  eligibility:
    minimum_balance: "0"
`), 0o644))

	cfg, _, err := LoadConfig(file)
	require.NoError(t, err)
	require.NotNil(t, cfg.Ledger.Decimals)
	assert.Equal(t, int32(0), *cfg.Ledger.Decimals)
	assert.Equal(t, int32(0), cfg.Ledger.TokenDecimals())
	require.NotNil(t, cfg.Admission.Eligibility.MinimumBalance)
	assert.True(t, cfg.MinimumBalance().IsZero(), "got %s", cfg.MinimumBalance())
}

func TestLoadConfig_ZeroDecimalsDefaultMinimum(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nodecimals.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
ledger:
  decimals: 0
`), 0o644))

	cfg, _, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, "100000", cfg.MinimumBalance().String())
}

func TestMinimumBalance_Unset(t *testing.T) {
	cfg := &GatewayConfig{}
	assert.Equal(t, int32(6), cfg.Ledger.TokenDecimals())
	assert.Equal(t, "100000000000", cfg.MinimumBalance().String())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSetDefaults(t *testing.T) {
	cfg := &GatewayConfig{}
	SetDefaults(cfg)
	assert.Equal(t, 5235, cfg.Server.Port)
	assert.Equal(t, cnst.AddressModeResolved, cfg.Identity.AddressMode)
	assert.True(t, cfg.Admission.EligibilityEnabled())
	assert.Equal(t, 30*time.Second, cfg.Admission.Cache.TTL)
	require.NotNil(t, cfg.Ledger.Decimals)
	assert.Equal(t, int32(6), *cfg.Ledger.Decimals)
	// 100,000 tokens at 6 decimals
	require.NotNil(t, cfg.Admission.Eligibility.MinimumBalance)
	assert.Equal(t, "100000000000", cfg.Admission.Eligibility.MinimumBalance.String())
	assert.Equal(t, cnst.BusTypeMemory, cfg.Bus.Publisher)
	assert.Equal(t, "confirmed", cfg.Ledger.Commitment)
}

func validConfig() *GatewayConfig {
	cfg := &GatewayConfig{}
	cfg.Identity.Privy = PrivyConfig{AppID: "app", AppSecret: "secret", VerificationKey: "key"}
	cfg.Ledger.Mint = "So11111111111111111111111111111111111111112"
	SetDefaults(cfg)
	return cfg
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg := &GatewayConfig{}
	SetDefaults(cfg)
	err := Validate(cfg)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.ErrorIs(t, err, cnst.ErrMissingPrivyCredentials)
	assert.ErrorIs(t, err, cnst.ErrMissingVerificationKey)
	assert.ErrorIs(t, err, cnst.ErrMissingMint)
	assert.Contains(t, err.Error(), "invalid gateway configuration")
}

func TestValidate_EligibilityDisabledSkipsLedger(t *testing.T) {
	cfg := validConfig()
	disabled := false
	cfg.Admission.Eligibility.Enabled = &disabled
	cfg.Ledger.Mint = ""
	assert.NoError(t, Validate(cfg))
}

func TestValidate_BusAndCache(t *testing.T) {
	cfg := validConfig()
	cfg.Bus.Publisher = cnst.BusTypeKafka
	cfg.Bus.Subscriber = cnst.BusTypeHTTP
	cfg.Admission.Cache.Type = cnst.CacheTypeRedis
	cfg.Server.AllowedOrigins = []string{"not a url"}

	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, cnst.ErrPublishOnly)
	assert.Contains(t, err.Error(), "bus.kafka.brokers is required")
	assert.Contains(t, err.Error(), "redis.addr is required")
	assert.Contains(t, err.Error(), "invalid origin")

	cfg = validConfig()
	fractional := decimal.RequireFromString("1.5")
	cfg.Admission.Eligibility.MinimumBalance = &fractional
	assert.Error(t, Validate(cfg))

	cfg = validConfig()
	negative := int32(-1)
	cfg.Ledger.Decimals = &negative
	assert.Error(t, Validate(cfg))

	cfg = validConfig()
	cfg.Identity.AddressMode = "guess"
	assert.Error(t, Validate(cfg))
}
