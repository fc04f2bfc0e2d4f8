package ledger

import (
	"context"
	"time"

	"github.com/amoylab/tokengate/internal/common/errorx"
	"github.com/amoylab/tokengate/pkg/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Oracle answers balance questions for one mint, hitting the ledger at most
// once per address per cache TTL.
type Oracle struct {
	logger  *zap.Logger
	querier Querier
	cache   Cache
	mint    string
	metrics *metrics.Metrics
	now     func() time.Time
	group   singleflight.Group
}

func NewOracle(logger *zap.Logger, querier Querier, cache Cache, mint string, m *metrics.Metrics) *Oracle {
	return &Oracle{
		logger:  logger.Named("ledger.oracle"),
		querier: querier,
		cache:   cache,
		mint:    mint,
		metrics: m,
		now:     time.Now,
	}
}

// WithClock replaces the time source stamped on fresh records
func (o *Oracle) WithClock(now func() time.Time) *Oracle {
	o.now = now
	return o
}

// GetBalance returns the summed base-unit balance of address. Failures are
// reported as errorx.ErrBalanceQueryFailed; no stale or zero value is
// substituted.
func (o *Oracle) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	rec, err := o.cache.Get(ctx, address)
	if err != nil {
		o.logger.Warn("balance cache read failed, querying ledger",
			zap.String("address", address),
			zap.Error(err))
	}
	if rec != nil {
		o.metrics.BalanceLookup("cache")
		return rec.Balance, nil
	}

	// The shared query outlives any single caller; each caller still honours
	// its own context while waiting.
	ch := o.group.DoChan(address, func() (any, error) {
		return o.query(context.WithoutCancel(ctx), address)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return decimal.Decimal{}, ctx.Err()
	case res = <-ch:
	}
	if err := res.Err; err != nil {
		o.metrics.BalanceLookup("error")
		o.logger.Error("failed to query token balance",
			zap.String("address", address),
			zap.Error(err))
		return decimal.Decimal{}, errorx.ErrBalanceQueryFailed.WithCause(err)
	}
	if res.Shared {
		o.logger.Debug("balance query shared", zap.String("address", address))
	}
	return res.Val.(decimal.Decimal), nil
}

func (o *Oracle) query(ctx context.Context, address string) (decimal.Decimal, error) {
	amounts, err := o.querier.AccountsByOwner(ctx, address, o.mint)
	if err != nil {
		return decimal.Decimal{}, err
	}
	o.metrics.BalanceLookup("ledger")

	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}

	rec := &Record{Address: address, Balance: total, ObservedAt: o.now()}
	if err := o.cache.Set(ctx, rec); err != nil {
		o.logger.Warn("failed to cache balance",
			zap.String("address", address),
			zap.Error(err))
	}
	o.logger.Debug("token balance queried",
		zap.String("address", address),
		zap.Int("accounts", len(amounts)),
		zap.String("balance", total.String()))
	return total, nil
}

// FormatUnits renders a base-unit amount in whole tokens with two decimals
func FormatUnits(amount decimal.Decimal, decimals int32) string {
	return amount.Shift(-decimals).StringFixed(2)
}
