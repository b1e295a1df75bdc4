package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pawfinder/apiserver/internal/mq"
	"github.com/pawfinder/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureBackend records publishes and replays queued messages to the
// first subscriber.
type captureBackend struct {
	published chan context.Context
	inbound   []mq.Message
}

func newCaptureBackend() *captureBackend {
	return &captureBackend{published: make(chan context.Context, 1)}
}

func (b *captureBackend) Publish(ctx context.Context, _ string, _ []byte, _ map[string]string) (string, error) {
	b.published <- ctx
	return "1", nil
}

func (b *captureBackend) Subscribe(ctx context.Context, _ string, handler mq.Handler) error {
	for _, msg := range b.inbound {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (b *captureBackend) Close() error { return nil }

func TestBrokerPublishHasDeadline(t *testing.T) {
	backend := newCaptureBackend()
	notifier := NewNotifier(NewHub(), mq.New(backend), nil)

	notifier.CommentAdded(7, types.Comment{PetID: 7, Text: "hi"})

	select {
	case ctx := <-backend.published:
		_, ok := ctx.Deadline()
		assert.True(t, ok, "publish context must carry a deadline")
	case <-time.After(2 * time.Second):
		t.Fatal("publish never reached the broker")
	}
}

func TestBridgeSkipsOwnOrigin(t *testing.T) {
	backend := newCaptureBackend()
	hub := NewHub()
	notifier := NewNotifier(hub, mq.New(backend), nil)

	remote, err := json.Marshal(Event{Name: EventCheerUpdate, PetID: 7, Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)
	backend.inbound = []mq.Message{
		{ID: "own", Data: remote, Attributes: map[string]string{attrOrigin: notifier.origin}},
		{ID: "remote", Data: remote, Attributes: map[string]string{attrOrigin: "other-instance"}},
	}

	ch, cancel := hub.Subscribe(7)
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = notifier.Run(ctx)
		close(done)
	}()

	select {
	case ev := <-ch:
		assert.Equal(t, EventCheerUpdate, ev.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("bridged event never reached the hub")
	}

	// The self-published copy must not arrive.
	select {
	case <-ch:
		t.Fatal("own-origin message was re-broadcast")
	case <-time.After(50 * time.Millisecond):
	}

	stop()
	<-done
}
