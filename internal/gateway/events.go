package gateway

import (
	"time"

	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/status"
	"go.uber.org/zap"
)

// EventHandler decodes gateway frames, drives the state machine, and
// publishes typed events on the bus. It does NOT touch conversation state:
// the sync engine subscribes to the bus independently.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(b *bus.Bus, machine *status.Machine, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		bus:     b,
		machine: machine,
		logger:  logger,
	}
}

// HandleEnvelope implements Handler.
func (h *EventHandler) HandleEnvelope(env Envelope) {
	switch env.Event {
	case EventNewMessage:
		var p MessagePayload
		if !h.decode(env, &p) {
			return
		}
		h.bus.Publish(bus.Event{Kind: bus.PeerNewMessage, Timestamp: time.Now(), Payload: p})
	case EventMessageEdited:
		var p EditedPayload
		if !h.decode(env, &p) {
			return
		}
		h.bus.Publish(bus.Event{Kind: bus.PeerMessageEdited, Timestamp: time.Now(), Payload: p})
	case EventMessageDeleted:
		var p DeletedPayload
		if !h.decode(env, &p) {
			return
		}
		h.bus.Publish(bus.Event{Kind: bus.PeerMessageDeleted, Timestamp: time.Now(), Payload: p})
	case EventQRCode:
		var qr string
		if !h.decode(env, &qr) {
			return
		}
		h.logger.Info("gateway requires pairing")
		h.follow(status.Pairing)
		h.bus.Publish(bus.Event{Kind: bus.PeerQRCode, Timestamp: time.Now(), Payload: qr})
	case EventReady:
		h.logger.Info("gateway WhatsApp session ready")
		h.follow(status.Ready)
		h.bus.Publish(bus.Event{Kind: bus.PeerReady, Timestamp: time.Now()})
	case EventDisconnected:
		h.logger.Warn("gateway WhatsApp session disconnected")
		h.follow(status.Degraded)
		h.bus.Publish(bus.Event{Kind: bus.PeerDisconnected, Timestamp: time.Now()})
	default:
		h.logger.Debug("ignoring gateway event", zap.String("event", env.Event))
	}
}

// HandleLink implements Handler.
func (h *EventHandler) HandleLink(evt LinkEvent) {
	switch evt.State {
	case LinkConnected:
		h.follow(status.Ready)
		h.bus.Publish(bus.Event{Kind: bus.LinkConnected, Timestamp: time.Now()})
	case LinkDisconnected:
		h.follow(status.Reconnecting)
		h.bus.Publish(bus.Event{Kind: bus.LinkDisconnected, Timestamp: time.Now(), Payload: evt})
	case LinkReconnecting:
		h.follow(status.Reconnecting)
		h.bus.Publish(bus.Event{Kind: bus.LinkReconnecting, Timestamp: time.Now(), Payload: evt})
	}
}

// SyncPeerStatus applies the result of a status probe made right after connecting.
func (h *EventHandler) SyncPeerStatus(ps *PeerStatus) {
	if ps == nil {
		return
	}
	// Pairing is left alone: only the gateway's own signals end it.
	switch cur := h.machine.Current(); {
	case ps.IsConnected && cur == status.Degraded:
		h.follow(status.Ready)
	case !ps.IsConnected && cur == status.Ready:
		h.follow(status.Degraded)
	}
}

func (h *EventHandler) decode(env Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		h.logger.Warn("dropping undecodable gateway event", zap.String("event", env.Event), zap.Error(err))
		return false
	}
	return true
}

func (h *EventHandler) follow(to status.State) {
	if err := h.machine.Follow(to); err != nil {
		h.logger.Debug("state change skipped", zap.String("to", string(to)), zap.Error(err))
	}
}
