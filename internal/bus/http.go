package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/amoylab/tokengate/internal/common/config"

	"go.uber.org/zap"
)

// HTTPPublisher forwards input straight to a REST backend. The backend's
// status code is passed back to the client as the acknowledgement.
type HTTPPublisher struct {
	logger  *zap.Logger
	client  *http.Client
	url     string
	headers map[string]string
}

var _ Publisher = (*HTTPPublisher)(nil)

func NewHTTPPublisher(logger *zap.Logger, client *http.Client, cfg config.HTTPBusConfig) *HTTPPublisher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPPublisher{
		logger:  logger.Named("bus.http.publisher"),
		client:  client,
		url:     cfg.URL,
		headers: cfg.Headers,
	}
}

type httpInput struct {
	UserID    string `json:"userId"`
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
}

func (p *HTTPPublisher) Publish(ctx context.Context, env *Envelope) (int, error) {
	body, err := json.Marshal(httpInput{
		UserID:    env.UserID,
		MessageID: env.MessageID,
		Message:   env.Message,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to forward input: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		p.logger.Warn("backend rejected input",
			zap.String("message_id", env.MessageID),
			zap.Int("status", resp.StatusCode))
	}
	return resp.StatusCode, nil
}

func (p *HTTPPublisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
