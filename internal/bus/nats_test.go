package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/amoylab/tokengate/internal/common/config"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestConnectNATS_NoServers(t *testing.T) {
	_, err := ConnectNATS(zap.NewNop(), config.NATSBusConfig{})
	assert.Error(t, err)
}

func TestNATSOptions(t *testing.T) {
	opts := nats.GetDefaultOptions()
	for _, o := range natsOptions(zap.NewNop(), config.NATSBusConfig{Name: "tokengate", Username: "u", Password: "p"}) {
		assert.NoError(t, o(&opts))
	}
	assert.Equal(t, "tokengate", opts.Name)
	assert.Equal(t, -1, opts.MaxReconnect)
	assert.Equal(t, "u", opts.User)
	assert.Equal(t, "p", opts.Password)
	assert.NotNil(t, opts.ReconnectedCB)
}

func TestNATSNextError(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, natsNextError(ctx, nats.ErrConnectionClosed), ErrSubscriptionClosed)
	assert.ErrorIs(t, natsNextError(ctx, nats.ErrBadSubscription), ErrSubscriptionClosed)

	other := errors.New("slow consumer")
	assert.Equal(t, other, natsNextError(ctx, other))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, natsNextError(cancelled, nats.ErrConnectionClosed), context.Canceled)
}
