package sync

import (
	"time"

	"github.com/matheus3301/wppsync/internal/model"
	"github.com/matheus3301/wppsync/internal/status"
)

// Change kinds carried by ConvChange, besides convstore outcomes.
const (
	ChangeSent    = "sent"
	ChangeEdited  = "edited"
	ChangeDeleted = "deleted"
)

// View is a snapshot of one conversation.
type View struct {
	Contact  model.Contact
	Messages []model.Message
	Loaded   bool
	// LoadErr is set when history could not be fetched. The conversation is
	// still usable; it only lacks history.
	LoadErr error
}

// RosterView is a snapshot of the roster.
type RosterView struct {
	Contacts []model.Contact
	Page     int
	HasMore  bool
}

// StatusView summarizes the engine.
type StatusView struct {
	State             status.State
	Since             time.Time
	Connected         bool
	Paired            bool
	OpenConversations int
	Contacts          int
	DroppedEvents     uint64
}

// PairingView is the pairing signal last seen from the gateway.
type PairingView struct {
	QR     string
	Paired bool
}

// ConvChange is the payload of conv.changed.
type ConvChange struct {
	ContactID string
	MessageID string
	Change    string
}

// ConvLoad is the payload of conv.loaded and conv.backfill_failed.
type ConvLoad struct {
	ContactID string
	Added     int
	Err       error
}

// RosterChange is the payload of roster.changed. ContactID is empty when a
// page was seeded.
type RosterChange struct {
	ContactID string
	Contacts  int
}
