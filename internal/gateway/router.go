package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/amoylab/tokengate/internal/bus"
	"github.com/amoylab/tokengate/internal/common/errorx"
	"github.com/amoylab/tokengate/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Receipt is the synchronous outcome of routing one input
type Receipt struct {
	Status    int
	MessageID string
}

// Router publishes user input to the worker tier without waiting for the
// worker's answer.
type Router struct {
	logger    *zap.Logger
	publisher bus.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewRouter(logger *zap.Logger, publisher bus.Publisher, m *metrics.Metrics) *Router {
	return &Router{
		logger:    logger.Named("gateway.router"),
		publisher: publisher,
		metrics:   m,
		now:       time.Now,
	}
}

// HandleInput wraps content in an envelope and publishes it. On publish
// failure the receipt carries http.StatusBadGateway alongside the error.
func (r *Router) HandleInput(ctx context.Context, sess *Session, content string) (Receipt, error) {
	if sess == nil || sess.Identity == "" {
		return Receipt{}, errorx.ErrUnauthenticated
	}

	id, err := uuid.NewUUID()
	if err != nil {
		return Receipt{Status: http.StatusBadGateway}, errorx.ErrPublishFailed.WithCause(err)
	}
	env := &bus.Envelope{
		UserID:    sess.Identity,
		MessageID: id.String(),
		Message:   content,
		Sender:    bus.SenderUser,
		Timestamp: r.now().UTC(),
	}

	status, err := r.publisher.Publish(ctx, env)
	if err != nil {
		r.metrics.Published("failed")
		r.logger.Error("failed to publish input",
			zap.String("conn_id", sess.ConnID),
			zap.String("identity", sess.Identity),
			zap.String("message_id", env.MessageID),
			zap.Error(err))
		return Receipt{Status: http.StatusBadGateway, MessageID: env.MessageID}, errorx.ErrPublishFailed.WithCause(err)
	}

	r.metrics.Published(strconv.Itoa(status))
	r.logger.Debug("input published",
		zap.String("identity", sess.Identity),
		zap.String("message_id", env.MessageID),
		zap.Int("status", status))
	return Receipt{Status: status, MessageID: env.MessageID}, nil
}
