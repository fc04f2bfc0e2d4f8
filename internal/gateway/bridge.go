package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amoylab/tokengate/internal/bus"
	"github.com/amoylab/tokengate/internal/common/errorx"
	"github.com/amoylab/tokengate/pkg/metrics"
	"github.com/amoylab/tokengate/pkg/utils"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// retryDelay spaces out Next calls after a transient subscriber error
const retryDelay = 100 * time.Millisecond

// Deliverer sends a frame to one live connection
type Deliverer interface {
	Deliver(connID string, frame Frame) error
}

// Outbound is a decoded worker response
type Outbound struct {
	Identity  string
	MessageID string
	Content   string
}

// ParseOutbound decodes a worker response. The payload is a JSON object with
// userId, messageId and message; userId may instead come from the transport.
// Without a message the message id itself is delivered.
func ParseOutbound(ev *bus.Event) (*Outbound, error) {
	if ev == nil || !gjson.ValidBytes(ev.Payload) {
		return nil, errorx.ErrMalformedEvent.WithCause(errors.New("payload is not valid json"))
	}
	doc := gjson.ParseBytes(ev.Payload)
	if !doc.IsObject() {
		return nil, errorx.ErrMalformedEvent.WithCause(errors.New("payload is not a json object"))
	}

	declared := doc.Get("userId").String()
	if declared != "" && ev.UserID != "" && declared != ev.UserID {
		return nil, errorx.ErrMalformedEvent.WithCause(
			fmt.Errorf("userId %q does not match channel %q", declared, ev.Source))
	}
	messageID := doc.Get("messageId").String()
	out := &Outbound{
		Identity:  utils.FirstNonEmpty(declared, ev.UserID),
		MessageID: messageID,
		Content:   utils.FirstNonEmpty(doc.Get("message").String(), messageID),
	}
	if out.Identity == "" {
		return nil, errorx.ErrMalformedEvent.WithCause(errors.New("no user id"))
	}
	if out.Content == "" {
		return nil, errorx.ErrMalformedEvent.WithCause(errors.New("neither message nor messageId"))
	}
	return out, nil
}

// Bridge consumes worker responses and fans each one out to every live
// connection of the addressed identity.
type Bridge struct {
	logger    *zap.Logger
	sub       bus.Subscriber
	registry  *Registry
	deliverer Deliverer
	metrics   *metrics.Metrics
}

func NewBridge(logger *zap.Logger, sub bus.Subscriber, registry *Registry, deliverer Deliverer, m *metrics.Metrics) *Bridge {
	return &Bridge{
		logger:    logger.Named("gateway.bridge"),
		sub:       sub,
		registry:  registry,
		deliverer: deliverer,
		metrics:   m,
	}
}

// Run consumes until ctx is done (returns nil) or the subscription ends
// (returns an error wrapping bus.ErrSubscriptionClosed).
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("fan-out bridge started")
	for {
		ev, err := b.sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.Info("fan-out bridge stopped")
				return nil
			}
			if errors.Is(err, bus.ErrSubscriptionClosed) {
				b.logger.Error("response subscription closed", zap.Error(err))
				return err
			}
			b.logger.Warn("failed to receive response event", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}
		b.Dispatch(ev)
	}
}

// Dispatch delivers one event. It never fails: bad events and failed
// deliveries are logged and counted.
func (b *Bridge) Dispatch(ev *bus.Event) {
	out, err := ParseOutbound(ev)
	if err != nil {
		b.metrics.Delivery("malformed")
		b.logger.Warn("dropping malformed response event", zap.Error(err))
		return
	}

	targets := b.registry.Resolve(out.Identity)
	if len(targets) == 0 {
		b.metrics.Delivery("dropped")
		b.logger.Debug("no live connection for response",
			zap.String("identity", out.Identity),
			zap.String("message_id", out.MessageID))
		return
	}

	frame := Response{Content: out.Content}
	for _, connID := range targets {
		if err := b.deliverer.Deliver(connID, frame); err != nil {
			b.metrics.Delivery("failed")
			b.logger.Warn("failed to deliver response",
				zap.String("conn_id", connID),
				zap.String("identity", out.Identity),
				zap.Error(err))
			continue
		}
		b.metrics.Delivery("delivered")
	}
}
