package convstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/wppsync/internal/model"
)

// ErrNotProvisional is returned when a provisional insert carries a peer id.
var ErrNotProvisional = errors.New("message id is not provisional")

// Outcome describes what InsertConfirmed did with a message.
type Outcome int

const (
	// Inserted means the message was new and placed in timestamp order.
	Inserted Outcome = iota
	// Promoted means a provisional entry took over the confirmed identity.
	Promoted
	// Duplicate means the id was already present and nothing changed.
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Promoted:
		return "promoted"
	case Duplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Conversation is the ordered message sequence of one contact.
// It is not safe for concurrent use; a single owner must serialize calls.
type Conversation struct {
	ContactID string
	msgs      []model.Message
	loaded    bool
}

// New creates an empty, not yet loaded conversation.
func New(contactID string) *Conversation {
	return &Conversation{ContactID: contactID}
}

// Loaded reports whether history has been merged (or given up on).
func (c *Conversation) Loaded() bool {
	return c.loaded
}

// MarkLoaded flags the conversation as loaded without adding history.
// Used when the history fetch fails so it is not retried automatically.
func (c *Conversation) MarkLoaded() {
	c.loaded = true
}

// historySkew bounds how much earlier than a provisional entry a history
// copy may be stamped and still be taken as its confirmation.
const historySkew = time.Minute

// Backfill merges fetched history. Ids already present are kept as they are.
// A history copy of a message still provisional here collapses it, like a
// live echo would, so the later echo is absorbed as a duplicate.
func (c *Conversation) Backfill(msgs []model.Message) int {
	added := 0
	for _, m := range msgs {
		if c.indexOf(m.ID) >= 0 {
			continue
		}
		m.ConversationID = c.ContactID
		if !c.promote(m, historySkew) {
			c.insertOrdered(m)
		}
		added++
	}
	c.loaded = true
	return added
}

// InsertConfirmed applies a peer-confirmed message. Duplicate ids are ignored.
// A provisional entry from the local user with the same text is replaced in
// place, oldest first, so the optimistic copy and its echo stay one row.
func (c *Conversation) InsertConfirmed(m model.Message) Outcome {
	if c.indexOf(m.ID) >= 0 {
		return Duplicate
	}
	m.ConversationID = c.ContactID
	if c.promote(m, -1) {
		return Promoted
	}
	c.insertOrdered(m)
	return Inserted
}

// promote gives the oldest matching provisional entry m's id and timestamp,
// keeping its position. With skew >= 0, entries created more than skew
// after m are not matched.
func (c *Conversation) promote(m model.Message, skew time.Duration) bool {
	if !m.FromLocal() || m.IsMedia() {
		return false
	}
	i := c.oldestProvisional(m.Content)
	if i < 0 {
		return false
	}
	p := &c.msgs[i]
	if skew >= 0 && p.CreatedAt.Sub(m.CreatedAt) > skew {
		return false
	}
	p.ID = m.ID
	p.CreatedAt = m.CreatedAt
	p.Status = model.Delivered
	return true
}

// InsertProvisional adds a locally originated message awaiting confirmation.
func (c *Conversation) InsertProvisional(m model.Message) error {
	if !model.IsProvisional(m.ID) {
		return fmt.Errorf("%w: %q", ErrNotProvisional, m.ID)
	}
	m.ConversationID = c.ContactID
	c.insertOrdered(m)
	return nil
}

// ApplyEdit replaces content and timestamp of a message in place.
// Unknown ids are dropped and false is returned.
func (c *Conversation) ApplyEdit(id, content string, at time.Time) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.msgs[i].Content = content
	c.msgs[i].CreatedAt = at
	return true
}

// ApplyDelete removes a message. Deleting an absent id returns false.
func (c *Conversation) ApplyDelete(id string) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.msgs = append(c.msgs[:i], c.msgs[i+1:]...)
	return true
}

// SetStatus updates the delivery status of a message.
func (c *Conversation) SetStatus(id string, s model.Status) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.msgs[i].Status = s
	return true
}

// Get returns the message with the given id.
func (c *Conversation) Get(id string) (model.Message, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return model.Message{}, false
	}
	return c.msgs[i], true
}

// Has reports whether id is present.
func (c *Conversation) Has(id string) bool {
	return c.indexOf(id) >= 0
}

// Messages returns a copy of the ordered sequence.
func (c *Conversation) Messages() []model.Message {
	out := make([]model.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Provisional returns the entries still waiting for a confirmation.
func (c *Conversation) Provisional() []model.Message {
	var out []model.Message
	for _, m := range c.msgs {
		if m.Provisional() {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.msgs)
}

func (c *Conversation) indexOf(id string) int {
	for i := range c.msgs {
		if c.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// oldestProvisional finds the earliest local provisional entry with content.
func (c *Conversation) oldestProvisional(content string) int {
	best := -1
	for i := range c.msgs {
		m := &c.msgs[i]
		if !m.Provisional() || !m.FromLocal() || m.IsMedia() || m.Content != content {
			continue
		}
		if best < 0 || m.CreatedAt.Before(c.msgs[best].CreatedAt) {
			best = i
		}
	}
	return best
}

// insertOrdered places m after every message with an equal or earlier
// timestamp, so ties keep insertion order.
func (c *Conversation) insertOrdered(m model.Message) {
	i := len(c.msgs)
	for i > 0 && c.msgs[i-1].CreatedAt.After(m.CreatedAt) {
		i--
	}
	c.msgs = append(c.msgs, model.Message{})
	copy(c.msgs[i+1:], c.msgs[i:])
	c.msgs[i] = m
}
