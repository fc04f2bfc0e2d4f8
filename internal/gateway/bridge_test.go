package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/amoylab/tokengate/internal/bus"
	"github.com/amoylab/tokengate/internal/common/config"
	"github.com/amoylab/tokengate/internal/common/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseOutbound(t *testing.T) {
	tests := []struct {
		name    string
		ev      *bus.Event
		want    *Outbound
		wantErr bool
	}{
		{
			name: "full payload",
			ev:   &bus.Event{Payload: []byte(`{"userId":"alice","messageId":"m1","message":"hi"}`)},
			want: &Outbound{Identity: "alice", MessageID: "m1", Content: "hi"},
		},
		{
			name: "identity from channel",
			ev:   &bus.Event{Source: "user:alice:responses", UserID: "alice", Payload: []byte(`{"message":"hi"}`)},
			want: &Outbound{Identity: "alice", Content: "hi"},
		},
		{
			name: "message id only",
			ev:   &bus.Event{UserID: "alice", Payload: []byte(`{"messageId":"m1"}`)},
			want: &Outbound{Identity: "alice", MessageID: "m1", Content: "m1"},
		},
		{name: "nil", ev: nil, wantErr: true},
		{name: "not json", ev: &bus.Event{UserID: "alice", Payload: []byte(`hi`)}, wantErr: true},
		{name: "not object", ev: &bus.Event{UserID: "alice", Payload: []byte(`"hi"`)}, wantErr: true},
		{name: "no identity", ev: &bus.Event{Payload: []byte(`{"message":"hi"}`)}, wantErr: true},
		{name: "no content", ev: &bus.Event{UserID: "alice", Payload: []byte(`{}`)}, wantErr: true},
		{
			name:    "identity mismatch",
			ev:      &bus.Event{UserID: "alice", Payload: []byte(`{"userId":"bob","message":"hi"}`)},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOutbound(tt.ev)
			if tt.wantErr {
				assert.ErrorIs(t, err, errorx.ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBridge_FanOutToEveryConnection(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("alice", "c1")
	reg.Register("alice", "c2")
	reg.Register("bob", "c3")
	d := &fakeDeliverer{}
	b := NewBridge(zap.NewNop(), nil, reg, d, nil)

	b.Dispatch(&bus.Event{UserID: "alice", Payload: []byte(`{"message":"hi"}`)})

	got := d.snapshot()
	require.Len(t, got, 2)
	seen := map[string]int{}
	for _, g := range got {
		seen[g.connID]++
		assert.Equal(t, Response{Content: "hi"}, g.frame)
	}
	assert.Equal(t, map[string]int{"c1": 1, "c2": 1}, seen)
}

func TestBridge_DropsWithoutConnection(t *testing.T) {
	reg := NewRegistry(nil)
	d := &fakeDeliverer{}
	b := NewBridge(zap.NewNop(), nil, reg, d, nil)

	b.Dispatch(&bus.Event{UserID: "alice", Payload: []byte(`{"message":"hi"}`)})
	assert.Empty(t, d.snapshot())
}

func TestBridge_FailedDeliveryDoesNotAffectOthers(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("alice", "c1")
	reg.Register("alice", "c2")
	d := &fakeDeliverer{failOn: map[string]bool{"c1": true}}
	b := NewBridge(zap.NewNop(), nil, reg, d, nil)

	b.Dispatch(&bus.Event{UserID: "alice", Payload: []byte(`{"message":"hi"}`)})
	got := d.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "c2", got[0].connID)
}

func TestBridge_RunSkipsMalformedEvents(t *testing.T) {
	mem := bus.NewMemoryBus(config.MemoryBusConfig{})
	reg := NewRegistry(nil)
	reg.Register("alice", "c1")
	d := &fakeDeliverer{}
	b := NewBridge(zap.NewNop(), mem, reg, d, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.NoError(t, mem.Inject(ctx, &bus.Event{UserID: "alice", Payload: []byte(`{{{`)}))
	require.NoError(t, mem.Inject(ctx, &bus.Event{UserID: "alice", Payload: []byte(`{"message":"first"}`)}))
	require.NoError(t, mem.Inject(ctx, &bus.Event{UserID: "alice", Payload: []byte(`{"message":"second"}`)}))

	require.Eventually(t, func() bool { return len(d.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	got := d.snapshot()
	assert.Equal(t, Response{Content: "first"}, got[0].frame)
	assert.Equal(t, Response{Content: "second"}, got[1].frame)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestBridge_RunReturnsWhenSubscriptionCloses(t *testing.T) {
	mem := bus.NewMemoryBus(config.MemoryBusConfig{})
	b := NewBridge(zap.NewNop(), mem, NewRegistry(nil), &fakeDeliverer{}, nil)

	require.NoError(t, mem.Close())
	err := b.Run(context.Background())
	assert.ErrorIs(t, err, bus.ErrSubscriptionClosed)
}
