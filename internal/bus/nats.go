package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amoylab/tokengate/internal/common/config"
	"github.com/amoylab/tokengate/pkg/utils"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const natsFlushTimeout = 5 * time.Second

// ConnectNATS dials the configured servers, reconnecting forever
func ConnectNATS(logger *zap.Logger, cfg config.NATSBusConfig) (*nats.Conn, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), natsOptions(logger, cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

func natsOptions(logger *zap.Logger, cfg config.NATSBusConfig) []nats.Option {
	wait := cfg.ReconnectWait
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	return opts
}

// NATSPublisher publishes envelopes on a single subject
type NATSPublisher struct {
	logger  *zap.Logger
	nc      *nats.Conn
	subject string
}

var _ Publisher = (*NATSPublisher)(nil)

func NewNATSPublisher(logger *zap.Logger, nc *nats.Conn, cfg config.NATSBusConfig) *NATSPublisher {
	return &NATSPublisher{
		logger:  logger.Named("bus.nats.publisher"),
		nc:      nc,
		subject: cfg.InputSubject,
	}
}

// Publish returns once the server has acknowledged the flush
func (p *NATSPublisher) Publish(ctx context.Context, env *Envelope) (int, error) {
	data, err := env.Marshal()
	if err != nil {
		return 0, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return 0, fmt.Errorf("failed to publish to NATS: %w", err)
	}

	timeout := natsFlushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := p.nc.FlushTimeout(timeout); err != nil {
		return 0, fmt.Errorf("failed to flush NATS publish: %w", err)
	}
	return StatusAccepted, nil
}

func (p *NATSPublisher) Close() error {
	p.nc.Close()
	return nil
}

// NATSSubscriber reads responses from a subject that may contain one '*'
// token standing for the user id.
type NATSSubscriber struct {
	logger  *zap.Logger
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
}

var _ Subscriber = (*NATSSubscriber)(nil)

func NewNATSSubscriber(logger *zap.Logger, nc *nats.Conn, cfg config.NATSBusConfig) (*NATSSubscriber, error) {
	sub, err := nc.SubscribeSync(cfg.ResponseSubject)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.ResponseSubject, err)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)

	logger = logger.Named("bus.nats.subscriber")
	logger.Info("subscribed to response subject", zap.String("subject", cfg.ResponseSubject))
	return &NATSSubscriber{
		logger:  logger,
		nc:      nc,
		subject: cfg.ResponseSubject,
		sub:     sub,
	}, nil
}

func (s *NATSSubscriber) Next(ctx context.Context) (*Event, error) {
	msg, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, natsNextError(ctx, err)
	}
	userID, _ := utils.CaptureWildcard(s.subject, msg.Subject)
	return &Event{
		Source:  msg.Subject,
		UserID:  userID,
		Payload: msg.Data,
	}, nil
}

func natsNextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	switch {
	case errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrBadSubscription):
		return fmt.Errorf("%w: %v", ErrSubscriptionClosed, err)
	default:
		return err
	}
}

func (s *NATSSubscriber) Close() error {
	err := s.sub.Unsubscribe()
	s.nc.Close()
	if errors.Is(err, nats.ErrConnectionClosed) {
		return nil
	}
	return err
}
