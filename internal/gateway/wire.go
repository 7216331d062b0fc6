package gateway

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names used on the persistent channel.
const (
	EventNewMessage     = "newMessage"
	EventMessageEdited  = "messageEdited"
	EventMessageDeleted = "messageDeleted"
	EventQRCode         = "qrCode"
	EventReady          = "whatsappReady"
	EventDisconnected   = "whatsappDisconnected"

	EventSendMessage   = "sendMessage"
	EventEditMessage   = "editMessage"
	EventDeleteMessage = "deleteMessage"
)

// Envelope is one frame on the channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload under the given event name.
func NewEnvelope(event string, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", event, err)
	}
	env.Data = data
	return env, nil
}

// Decode unmarshals the envelope data into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("decode %s: empty payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Event, err)
	}
	return nil
}

// MessagePayload is a message as the gateway reports it, live or from history.
type MessagePayload struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	To        string    `json:"to"`
	Content   string    `json:"content,omitempty"`
	MediaRef  string    `json:"mediaRef,omitempty"`
	IsAudio   bool      `json:"isAudio,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// EditedPayload announces new content for an existing message.
type EditedPayload struct {
	MessageID string    `json:"messageId"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// DeletedPayload announces the removal of a message.
type DeletedPayload struct {
	MessageID string `json:"messageId"`
	To        string `json:"to"`
}

// SendCommand asks the gateway to deliver a text message.
type SendCommand struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

// EditCommand asks the gateway to edit a delivered message.
type EditCommand struct {
	MessageID  string `json:"messageId"`
	To         string `json:"to"`
	NewContent string `json:"newContent"`
}

// DeleteCommand asks the gateway to revoke a delivered message.
type DeleteCommand struct {
	MessageID string `json:"messageId"`
	To        string `json:"to"`
}

// ContactPayload is one roster record.
type ContactPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
	Photo  string `json:"photo,omitempty"`
}

// ContactsPage is one page of the roster fetch.
type ContactsPage struct {
	Contacts []ContactPayload `json:"contacts"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	HasMore  bool             `json:"hasMore"`
}

// HistoryPage is one page of a conversation's history.
type HistoryPage struct {
	Messages []MessagePayload `json:"messages"`
	HasMore  bool             `json:"hasMore"`
}

// PeerStatus reports whether the gateway's own WhatsApp link is up.
type PeerStatus struct {
	IsConnected bool `json:"isConnected"`
}

type updateBody struct {
	Content string `json:"content"`
}
