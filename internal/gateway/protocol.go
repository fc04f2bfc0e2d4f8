package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/amoylab/tokengate/internal/common/errorx"
)

// EventName is the wire name of a frame. The names are part of the client
// contract and must not change.
type EventName string

const (
	EventInput    EventName = "input"
	EventResponse EventName = "response"
	EventBalance  EventName = "balance"
	EventAck      EventName = "ack"
	EventError    EventName = "error"
)

// Frame is one message on the client socket. The set of frames is closed.
type Frame interface {
	Event() EventName
	payload() any
}

// Input is text typed by the user
type Input struct{ Content string }

// Response is worker output, or gateway text such as the welcome line
type Response struct{ Content string }

// Balance reports the balance snapshot taken at admission, in whole tokens
type Balance struct{ Amount string }

// Ack acknowledges an input with the publish status
type Ack struct{ Status int }

// Error carries a client-safe rejection reason
type Error struct{ Message string }

func (Input) Event() EventName    { return EventInput }
func (Response) Event() EventName { return EventResponse }
func (Balance) Event() EventName  { return EventBalance }
func (Ack) Event() EventName      { return EventAck }
func (Error) Event() EventName    { return EventError }

func (f Input) payload() any    { return f.Content }
func (f Response) payload() any { return f.Content }
func (f Balance) payload() any  { return f.Amount }
func (f Ack) payload() any      { return f.Status }
func (f Error) payload() any    { return f.Message }

type wireFrame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode renders f as a JSON text frame
func Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(f.payload())
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireFrame{Event: f.Event(), Data: data})
}

// Decode parses a JSON text frame into its variant
func Decode(raw []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errorx.ErrMalformedEvent.WithCause(err)
	}
	if len(w.Data) == 0 || bytes.Equal(w.Data, []byte("null")) {
		return nil, errorx.ErrMalformedEvent.WithCause(fmt.Errorf("event %q has no data", w.Event))
	}

	switch w.Event {
	case EventInput, EventResponse, EventBalance, EventError:
		var s string
		if err := json.Unmarshal(w.Data, &s); err != nil {
			return nil, errorx.ErrMalformedEvent.WithCause(fmt.Errorf("event %q: %w", w.Event, err))
		}
		switch w.Event {
		case EventInput:
			if s == "" {
				return nil, errorx.ErrMalformedEvent.WithCause(fmt.Errorf("event %q has empty content", w.Event))
			}
			return Input{Content: s}, nil
		case EventResponse:
			return Response{Content: s}, nil
		case EventBalance:
			return Balance{Amount: s}, nil
		default:
			return Error{Message: s}, nil
		}
	case EventAck:
		var status int
		if err := json.Unmarshal(w.Data, &status); err != nil {
			return nil, errorx.ErrMalformedEvent.WithCause(fmt.Errorf("event %q: %w", w.Event, err))
		}
		return Ack{Status: status}, nil
	default:
		return nil, errorx.ErrMalformedEvent.WithCause(fmt.Errorf("unknown event %q", w.Event))
	}
}
