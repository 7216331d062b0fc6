package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalSender is the sender id carried by every message the local user wrote.
const LocalSender = "me"

// ProvisionalPrefix marks ids generated locally before the peer confirms a message.
const ProvisionalPrefix = "local-"

// Status tracks delivery of locally sent messages.
type Status string

const (
	Pending   Status = "PENDING"
	Delivered Status = "DELIVERED"
	Seen      Status = "SEEN"
)

// Message is one entry of a conversation.
type Message struct {
	ID             string
	ConversationID string
	Content        string
	MediaRef       string
	IsAudio        bool
	SenderID       string
	CreatedAt      time.Time
	Status         Status
}

// NewProvisionalID returns a fresh id in the provisional namespace.
func NewProvisionalID() string {
	return ProvisionalPrefix + uuid.NewString()
}

// IsProvisional reports whether id was generated locally.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// Provisional reports whether the message is still awaiting confirmation.
func (m Message) Provisional() bool {
	return IsProvisional(m.ID)
}

// FromLocal reports whether the local user sent the message.
func (m Message) FromLocal() bool {
	return m.SenderID == LocalSender
}

// IsMedia reports whether the message carries a media reference instead of text.
func (m Message) IsMedia() bool {
	return m.MediaRef != ""
}
