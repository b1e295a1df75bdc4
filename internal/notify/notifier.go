package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pawfinder/apiserver/internal/mq"
	"github.com/pawfinder/apiserver/types"
	"go.uber.org/zap"
)

// brokerChannel is the shared broker channel carrying all pet events.
// The pet id travels in the payload and message attributes.
const brokerChannel = "pet-events"

const (
	attrOrigin = "origin"
	attrPetID  = "pet_id"
)

// publishTimeout caps how long a fire-and-forget publish may hold a
// goroutine when the broker stalls.
const publishTimeout = 5 * time.Second

// Notifier broadcasts pet events to local hub subscribers and, when a
// broker is configured, bridges them to other server instances.
//
// Delivery is fire-and-forget: failures are logged and never surfaced
// to the mutating caller.
type Notifier struct {
	hub    *Hub
	broker *mq.MQ
	origin string
	logger *zap.Logger
}

// NewNotifier constructs a Notifier. broker may be nil for in-process
// fan-out only.
func NewNotifier(hub *Hub, broker *mq.MQ, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		hub:    hub,
		broker: broker,
		origin: uuid.NewString(),
		logger: logger,
	}
}

// Hub exposes the local hub for subscription endpoints.
func (n *Notifier) Hub() *Hub {
	return n.hub
}

// CommentAdded broadcasts a new-comment event to the pet's channel.
func (n *Notifier) CommentAdded(petID int, comment types.Comment) {
	n.emit(EventNewComment, petID, CommentPayload{PetID: petID, Comment: comment})
}

// CheerChanged broadcasts a cheer-update event to the pet's channel.
func (n *Notifier) CheerChanged(petID int, count int, cheered bool) {
	n.emit(EventCheerUpdate, petID, CheerPayload{PetID: petID, CheersCount: count, Cheered: cheered})
}

func (n *Notifier) emit(name string, petID int, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("failed to encode event payload",
			zap.String("event", name), zap.Int("pet_id", petID), zap.Error(err))
		return
	}
	ev := Event{Name: name, PetID: petID, Payload: raw}

	n.hub.Broadcast(ev)

	if n.broker == nil {
		return
	}
	go func() {
		data, err := json.Marshal(ev)
		if err != nil {
			n.logger.Error("failed to encode event", zap.String("event", name), zap.Error(err))
			return
		}
		attrs := map[string]string{
			attrOrigin: n.origin,
			attrPetID:  strconv.Itoa(petID),
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if _, err := n.broker.Publish(ctx, brokerChannel, data, attrs); err != nil {
			n.logger.Warn("failed to publish event to broker",
				zap.String("event", name), zap.Int("pet_id", petID), zap.Error(err))
		}
	}()
}

// Run consumes bridged events from the broker and re-broadcasts them to
// the local hub, skipping messages this instance published itself. It
// blocks until ctx is cancelled. A nil broker returns immediately.
func (n *Notifier) Run(ctx context.Context) error {
	if n.broker == nil {
		return nil
	}
	return n.broker.Subscribe(ctx, brokerChannel, func(ctx context.Context, msg mq.Message) error {
		if msg.Attributes[attrOrigin] == n.origin {
			return nil
		}
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			n.logger.Warn("dropping malformed bridged event", zap.Error(err))
			return nil
		}
		n.hub.Broadcast(ev)
		return nil
	})
}
