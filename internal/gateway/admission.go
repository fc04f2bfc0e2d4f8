package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/amoylab/tokengate/internal/common/cnst"
	"github.com/amoylab/tokengate/internal/common/config"
	"github.com/amoylab/tokengate/internal/common/errorx"
	"github.com/amoylab/tokengate/internal/identity"
	"github.com/amoylab/tokengate/internal/ledger"
	"github.com/amoylab/tokengate/pkg/metrics"
	"github.com/amoylab/tokengate/pkg/trace"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// BalanceOracle answers balance lookups for the eligibility stage
type BalanceOracle interface {
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// Credentials are what a client presents when connecting
type Credentials struct {
	Token string
	// DeclaredAddress is only honoured in handshake address mode
	DeclaredAddress string
}

// Policy holds the admission rules
type Policy struct {
	AddressMode cnst.AddressMode
	Eligibility bool
	// Minimum is in base units of the mint
	Minimum  decimal.Decimal
	Decimals int32
}

// PolicyFromConfig extracts the admission rules from the gateway config
func PolicyFromConfig(cfg *config.GatewayConfig) Policy {
	return Policy{
		AddressMode: cfg.Identity.AddressMode,
		Eligibility: cfg.Admission.EligibilityEnabled(),
		Minimum:     cfg.MinimumBalance(),
		Decimals:    cfg.Ledger.TokenDecimals(),
	}
}

// Admitter runs the admission pipeline: token, identity and wallet, then
// balance. Each stage short-circuits on failure.
type Admitter struct {
	logger   *zap.Logger
	provider identity.Provider
	oracle   BalanceOracle
	policy   Policy
	metrics  *metrics.Metrics
	tracer   *trace.Builder
}

func NewAdmitter(logger *zap.Logger, provider identity.Provider, oracle BalanceOracle, policy Policy, m *metrics.Metrics) *Admitter {
	return &Admitter{
		logger:   logger.Named("gateway.admission"),
		provider: provider,
		oracle:   oracle,
		policy:   policy,
		metrics:  m,
		tracer:   trace.Tracer("tokengate/admission"),
	}
}

// Admit returns a new Session or a *errorx.GatewayError safe to show the
// client. When ctx is cancelled mid-way the context error is returned as is
// and nothing should be sent to the peer.
func (a *Admitter) Admit(ctx context.Context, creds Credentials) (*Session, error) {
	start := time.Now()
	scope := a.tracer.Start(ctx, "admission")
	defer scope.End()

	sess, err := a.admit(scope.Ctx, creds)
	if err == nil {
		scope.WithAttrs(attribute.String("identity", sess.Identity))
		a.metrics.AdmissionDone("admitted", start)
		a.logger.Info("connection admitted",
			zap.String("conn_id", sess.ConnID),
			zap.String("identity", sess.Identity),
			zap.String("address", sess.Address),
			zap.String("balance", sess.Balance.String()))
		return sess, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		a.metrics.AdmissionDone("abandoned", start)
		a.logger.Debug("admission abandoned", zap.Error(err))
		return nil, ctxErr
	}

	scope.Fail(err)
	switch code := errorx.CodeOf(err); code {
	case errorx.CodeMissingToken, errorx.CodeMissingWalletAddress, errorx.CodeInsufficientBalance:
		a.metrics.AdmissionDone(string(code), start)
		a.logger.Info("connection rejected", zap.String("reason", string(code)), zap.Error(err))
		return nil, err
	default:
		a.metrics.AdmissionDone(string(errorx.CodeAuthenticationFailed), start)
		a.logger.Error("authentication failed", zap.Error(err))
		return nil, errorx.ErrAuthenticationFailed.WithCause(err)
	}
}

func (a *Admitter) admit(ctx context.Context, creds Credentials) (*Session, error) {
	if creds.Token == "" {
		return nil, errorx.ErrMissingToken
	}

	id, address, err := a.resolve(ctx, creds)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ConnID:   uuid.NewString(),
		Identity: id,
		Address:  address,
	}
	if !a.policy.Eligibility {
		return sess, nil
	}

	scope := a.tracer.Start(ctx, "admission.eligibility")
	defer scope.End()
	balance, err := a.oracle.GetBalance(scope.Ctx, address)
	if err != nil {
		scope.Fail(err)
		return nil, err
	}
	if balance.LessThan(a.policy.Minimum) {
		return nil, errorx.ErrInsufficientBalance.WithMessage(
			"Insufficient token balance. Minimum required: %s tokens",
			ledger.FormatUnits(a.policy.Minimum, a.policy.Decimals))
	}
	sess.Balance = balance
	sess.BalanceChecked = true
	return sess, nil
}

// resolve verifies the token and finds the wallet address for the configured mode
func (a *Admitter) resolve(ctx context.Context, creds Credentials) (string, string, error) {
	scope := a.tracer.Start(ctx, "admission.identity")
	defer scope.End()

	id, err := a.provider.Verify(scope.Ctx, creds.Token)
	if err != nil {
		scope.Fail(err)
		return "", "", err
	}

	var address string
	switch a.policy.AddressMode {
	case cnst.AddressModeHandshake:
		address = creds.DeclaredAddress
	default:
		address, err = a.provider.Lookup(scope.Ctx, id)
		if errors.Is(err, identity.ErrNoWallet) {
			return "", "", errorx.ErrMissingWalletAddress.WithCause(err)
		}
		if err != nil {
			scope.Fail(err)
			return "", "", err
		}
	}
	if address == "" {
		return "", "", errorx.ErrMissingWalletAddress
	}
	return id, address, nil
}
