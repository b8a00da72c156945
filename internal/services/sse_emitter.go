package services

import (
	"context"

	"github.com/chorusapp/chorus-backend/internal/platform/logger"
	"github.com/chorusapp/chorus-backend/internal/realtime"
	"github.com/chorusapp/chorus-backend/internal/realtime/bus"
)

// SSEEmitter abstracts where progress events go: the in-process hub in a
// single-replica deployment, or the redis bus when replicas share a stream.
type SSEEmitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

type hubEmitter struct {
	hub *realtime.SSEHub
}

func NewHubEmitter(hub *realtime.SSEHub) SSEEmitter {
	return &hubEmitter{hub: hub}
}

func (e *hubEmitter) Emit(_ context.Context, msg realtime.SSEMessage) {
	e.hub.Broadcast(msg)
}

type busEmitter struct {
	bus bus.Bus
	log *logger.Logger
}

func NewBusEmitter(b bus.Bus, log *logger.Logger) SSEEmitter {
	return &busEmitter{bus: b, log: log.With("component", "BusEmitter")}
}

func (e *busEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if err := e.bus.Publish(ctx, msg); err != nil {
		// Progress events are best-effort; the durable run state is the
		// source of truth on reconnect.
		e.log.Warn("Failed to publish SSE message", "channel", msg.Channel, "error", err)
	}
}
