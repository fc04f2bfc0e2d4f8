package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/amoylab/tokengate/internal/common/config"
)

// MemoryBus is an in-process bus. Published envelopes are queued on Inputs,
// or answered straight away when echo is enabled; responses enter through
// Inject.
type MemoryBus struct {
	inputs    chan *Envelope
	responses chan *Event
	echo      bool

	closeOnce sync.Once
	closed    chan struct{}
}

var (
	_ Publisher  = (*MemoryBus)(nil)
	_ Subscriber = (*MemoryBus)(nil)
)

func NewMemoryBus(cfg config.MemoryBusConfig) *MemoryBus {
	size := cfg.Buffer
	if size <= 0 {
		size = 256
	}
	return &MemoryBus{
		inputs:    make(chan *Envelope, size),
		responses: make(chan *Event, size),
		echo:      cfg.Echo,
		closed:    make(chan struct{}),
	}
}

// Inputs exposes published envelopes to an in-process worker
func (b *MemoryBus) Inputs() <-chan *Envelope {
	return b.inputs
}

func (b *MemoryBus) Publish(ctx context.Context, env *Envelope) (int, error) {
	select {
	case <-b.closed:
		return 0, ErrBusClosed
	default:
	}

	if b.echo {
		payload, err := json.Marshal(map[string]string{
			"userId":    env.UserID,
			"messageId": env.MessageID,
			"message":   "Received: " + env.Message,
		})
		if err != nil {
			return 0, err
		}
		if err := b.Inject(ctx, &Event{Source: "memory", UserID: env.UserID, Payload: payload}); err != nil {
			return 0, err
		}
		return StatusAccepted, nil
	}

	select {
	case b.inputs <- env:
		return StatusAccepted, nil
	case <-b.closed:
		return 0, ErrBusClosed
	default:
		return 0, errors.New("memory bus input buffer is full")
	}
}

// Inject queues a response event as if a worker had produced it
func (b *MemoryBus) Inject(ctx context.Context, ev *Event) error {
	select {
	case b.responses <- ev:
		return nil
	case <-b.closed:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBus) Next(ctx context.Context) (*Event, error) {
	select {
	case ev := <-b.responses:
		return ev, nil
	case <-b.closed:
		return nil, ErrSubscriptionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *MemoryBus) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}
