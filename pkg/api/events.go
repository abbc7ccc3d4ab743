// Event bridge wires the message bus into the WebSocket hub for
// real-time dashboard updates. The bridge is the last-mile broadcaster:
// it is the only place sequence numbers are assigned, so viewers can
// detect gaps regardless of message type or source.
package api

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/grvsrs/playclaw/pkg/bus"
	"github.com/grvsrs/playclaw/pkg/logger"
)

// Broadcaster is the bridge's outward side; the WSHub implements it.
type Broadcaster interface {
	Broadcast(data []byte)
}

// EventBridge subscribes to the bus and forwards every message to the
// WebSocket hub as its JSON envelope (GIF bytes ride base64 inside).
type EventBridge struct {
	bus *bus.MessageBus
	hub Broadcaster
	seq atomic.Int64
}

// NewEventBridge creates a bridge between bus and hub.
func NewEventBridge(mb *bus.MessageBus, hub Broadcaster) *EventBridge {
	return &EventBridge{bus: mb, hub: hub}
}

// Attach registers the bridge on the bus. The handler only marshals and
// enqueues, so it is registered as concurrent-safe and adds no worker.
func (eb *EventBridge) Attach() error {
	if err := eb.bus.Subscribe("dashboard-bridge", eb.handle, true); err != nil {
		return fmt.Errorf("attach event bridge: %w", err)
	}
	logger.InfoC("events", "Event bridge attached, forwarding bus messages to WebSocket")
	return nil
}

// Detach removes the bridge from the bus.
func (eb *EventBridge) Detach() {
	eb.bus.Unsubscribe("dashboard-bridge")
}

func (eb *EventBridge) handle(msg bus.Message) error {
	stamped := msg.WithSequence(eb.seq.Add(1))
	data, err := json.Marshal(stamped)
	if err != nil {
		return fmt.Errorf("marshal envelope for %s: %w", msg.ID, err)
	}
	eb.hub.Broadcast(data)
	return nil
}
