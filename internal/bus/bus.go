package bus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrSubscriptionClosed means the response stream ended and will not
	// produce further events. Consumers treat it as fatal.
	ErrSubscriptionClosed = errors.New("bus subscription closed")
	ErrBusClosed          = errors.New("bus closed")
)

// SenderUser marks envelopes produced from end-user input
const SenderUser = "user"

// StatusAccepted is reported by transports that only confirm receipt
const StatusAccepted = http.StatusAccepted

// Envelope is one piece of user input handed to the worker tier
type Envelope struct {
	UserID    string    `json:"userId"`
	MessageID string    `json:"messageId"`
	Message   string    `json:"message"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Marshal encodes the envelope as the JSON document workers consume
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Event is a raw worker response as it came off the transport. Decoding the
// payload is left to the consumer so a bad payload never stops the stream.
type Event struct {
	// Source is the channel, subject or topic the event arrived on
	Source string
	// UserID is the identity encoded by the transport itself, such as the
	// wildcard part of a per-user channel. Empty when the transport has none.
	UserID  string
	Payload []byte
}

// Publisher hands envelopes to the worker tier. The returned status is the
// synchronous acknowledgement: the backend status code for HTTP, or
// StatusAccepted once a bus confirmed the publish.
type Publisher interface {
	Publish(ctx context.Context, env *Envelope) (int, error)
	Close() error
}

// Subscriber yields worker responses one at a time. Next blocks until an
// event arrives, ctx is done, or the subscription ends with
// ErrSubscriptionClosed.
type Subscriber interface {
	Next(ctx context.Context) (*Event, error)
	Close() error
}
