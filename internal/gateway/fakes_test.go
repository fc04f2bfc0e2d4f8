package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/amoylab/tokengate/internal/identity"

	"github.com/shopspring/decimal"
)

type fakeProvider struct {
	verifyCalls atomic.Int32
	lookupCalls atomic.Int32
	users       map[string]string // token -> identity
	wallets     map[string]string // identity -> address
	lookupErr   error
	block       chan struct{}
}

func (p *fakeProvider) Verify(ctx context.Context, token string) (string, error) {
	p.verifyCalls.Add(1)
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	id, ok := p.users[token]
	if !ok {
		return "", identity.ErrInvalidToken
	}
	return id, nil
}

func (p *fakeProvider) Lookup(_ context.Context, id string) (string, error) {
	p.lookupCalls.Add(1)
	if p.lookupErr != nil {
		return "", p.lookupErr
	}
	addr, ok := p.wallets[id]
	if !ok {
		return "", identity.ErrNoWallet
	}
	return addr, nil
}

type fakeOracle struct {
	calls    atomic.Int32
	balances map[string]decimal.Decimal
	err      error
}

func (o *fakeOracle) GetBalance(_ context.Context, address string) (decimal.Decimal, error) {
	o.calls.Add(1)
	if o.err != nil {
		return decimal.Decimal{}, o.err
	}
	return o.balances[address], nil
}

type delivered struct {
	connID string
	frame  Frame
}

type fakeDeliverer struct {
	mu     sync.Mutex
	got    []delivered
	failOn map[string]bool
}

func (d *fakeDeliverer) Deliver(connID string, frame Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failOn[connID] {
		return errors.New("queue full")
	}
	d.got = append(d.got, delivered{connID: connID, frame: frame})
	return nil
}

func (d *fakeDeliverer) snapshot() []delivered {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]delivered, len(d.got))
	copy(out, d.got)
	return out
}
