package ws

import (
	"context"

	"github.com/zaqqye/simlab_backend/internal/eventbus"
)

type Hubs struct {
	Events *EventHub
}

// NewHubs starts the hubs and feeds them from bus until ctx is done.
func NewHubs(ctx context.Context, bus *eventbus.Bus) *Hubs {
	h := &Hubs{Events: NewEventHub()}
	go h.Events.Run(ctx)
	h.Events.Forward(ctx, bus)
	return h
}
