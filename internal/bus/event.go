package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Namespaces used for subscriptions.
const (
	NSPeer     = "peer."
	NSLink     = "link."
	NSConv     = "conv."
	NSRoster   = "roster."
	NSOutbound = "outbound."
	NSStatus   = "status."
	NSPairing  = "pairing."
)

// Inbound gateway traffic, published by the gateway handler.
const (
	PeerNewMessage     = "peer.new_message"
	PeerMessageEdited  = "peer.message_edited"
	PeerMessageDeleted = "peer.message_deleted"
	PeerQRCode         = "peer.qr_code"
	PeerReady          = "peer.ready"
	PeerDisconnected   = "peer.disconnected"
)

// Channel connectivity.
const (
	LinkConnected    = "link.connected"
	LinkDisconnected = "link.disconnected"
	LinkReconnecting = "link.reconnecting"
)

// Engine output, consumed by the API stream and the journal.
const (
	ConvOpened         = "conv.opened"
	ConvLoaded         = "conv.loaded"
	ConvBackfillFailed = "conv.backfill_failed"
	ConvChanged        = "conv.changed"
	RosterChanged      = "roster.changed"
	OutboundResult     = "outbound.result"
	StatusChanged      = "status.changed"
	PairingUpdated     = "pairing.updated"
)
