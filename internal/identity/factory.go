package identity

import (
	"github.com/amoylab/tokengate/internal/common/config"
	"github.com/amoylab/tokengate/pkg/trace"

	"go.uber.org/zap"
)

// NewProvider creates the identity provider described by cfg
func NewProvider(logger *zap.Logger, cfg config.IdentityConfig) (Provider, error) {
	return NewPrivyProvider(logger, cfg.Privy, trace.HTTPClient(cfg.Privy.Timeout))
}
