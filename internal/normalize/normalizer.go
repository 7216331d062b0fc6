// Package normalize turns raw gateway payloads into conversation-scoped
// domain values: it decides which conversation an event belongs to and
// whether the local user sent it.
package normalize

import (
	"errors"
	"time"

	"github.com/matheus3301/wppsync/internal/gateway"
	"github.com/matheus3301/wppsync/internal/model"
)

// ErrMalformed is returned for payloads missing the fields routing needs.
var ErrMalformed = errors.New("malformed gateway payload")

// Directory resolves an internal id or a raw address to a contact.
type Directory interface {
	Lookup(key string) (model.Contact, bool)
}

// Event is an inbound message routed to its conversation.
type Event struct {
	ConversationID string
	Message        model.Message
	// Local is true when the local user wrote the message from another device
	// or when it is the peer's echo of a send.
	Local bool
}

// Edit is an inbound edit. ConversationID is empty when it cannot be resolved.
type Edit struct {
	ConversationID string
	MessageID      string
	Content        string
	At             time.Time
}

// Delete is an inbound deletion. ConversationID is empty when it cannot be resolved.
type Delete struct {
	ConversationID string
	MessageID      string
}

// Normalizer routes gateway payloads using the local identity and a contact directory.
type Normalizer struct {
	identity Identity
	dir      Directory
	now      func() time.Time
}

// New creates a normalizer. dir may be nil, in which case raw keys are used
// as conversation ids.
func New(identity Identity, dir Directory) *Normalizer {
	return &Normalizer{identity: identity, dir: dir, now: time.Now}
}

// Identity returns the configured local identity.
func (n *Normalizer) Identity() Identity {
	return n.identity
}

// NewMessage routes a newMessage payload.
func (n *Normalizer) NewMessage(p gateway.MessagePayload) (Event, error) {
	if p.ID == "" {
		return Event{}, ErrMalformed
	}
	local := n.identity.IsLocal(p.SenderID)
	key := p.SenderID
	if local {
		key = p.To
	}
	if key == "" {
		return Event{}, ErrMalformed
	}
	conv := n.resolve(key)
	return Event{
		ConversationID: conv,
		Message:        n.message(conv, p, local),
		Local:          local,
	}, nil
}

// Edited routes a messageEdited payload.
func (n *Normalizer) Edited(p gateway.EditedPayload) (Edit, error) {
	if p.MessageID == "" {
		return Edit{}, ErrMalformed
	}
	at := p.CreatedAt
	if at.IsZero() {
		at = n.now()
	}
	return Edit{
		ConversationID: n.resolveOptional(p.To),
		MessageID:      p.MessageID,
		Content:        p.Content,
		At:             at,
	}, nil
}

// Deleted routes a messageDeleted payload.
func (n *Normalizer) Deleted(p gateway.DeletedPayload) (Delete, error) {
	if p.MessageID == "" {
		return Delete{}, ErrMalformed
	}
	return Delete{
		ConversationID: n.resolveOptional(p.To),
		MessageID:      p.MessageID,
	}, nil
}

// History converts a page of history for a known conversation. Entries
// without an id are skipped.
func (n *Normalizer) History(contactID string, page []gateway.MessagePayload) []model.Message {
	out := make([]model.Message, 0, len(page))
	for _, p := range page {
		if p.ID == "" {
			continue
		}
		out = append(out, n.message(contactID, p, n.identity.IsLocal(p.SenderID)))
	}
	return out
}

func (n *Normalizer) message(conv string, p gateway.MessagePayload, local bool) model.Message {
	m := model.Message{
		ID:             p.ID,
		ConversationID: conv,
		Content:        p.Content,
		MediaRef:       p.MediaRef,
		IsAudio:        p.IsAudio,
		SenderID:       p.SenderID,
		CreatedAt:      p.CreatedAt,
		Status:         model.Seen,
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = n.now()
	}
	if m.IsMedia() {
		m.Content = ""
	}
	if local {
		m.SenderID = model.LocalSender
		m.Status = model.Delivered
	}
	return m
}

func (n *Normalizer) resolve(key string) string {
	if n.dir != nil {
		if c, ok := n.dir.Lookup(key); ok {
			return c.ID
		}
	}
	return key
}

// resolveOptional resolves key through the directory only; an unknown key
// yields "" so the caller can fall back to searching by message id.
func (n *Normalizer) resolveOptional(key string) string {
	if key == "" || n.dir == nil {
		return ""
	}
	if c, ok := n.dir.Lookup(key); ok {
		return c.ID
	}
	return ""
}
