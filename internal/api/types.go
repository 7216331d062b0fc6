package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/model"
	"github.com/matheus3301/wppsync/internal/normalize"
	"github.com/matheus3301/wppsync/internal/outbox"
	"github.com/matheus3301/wppsync/internal/status"
	"github.com/matheus3301/wppsync/internal/store"
	intsync "github.com/matheus3301/wppsync/internal/sync"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Empty is the request of methods that take no arguments.
type Empty struct{}

// ConversationRequest names a conversation by contact id or address.
type ConversationRequest struct {
	Contact string `json:"contact"`
}

// SendRequest is the SendText request.
type SendRequest struct {
	Contact string `json:"contact"`
	Text    string `json:"text"`
}

// EditRequest is the EditMessage request.
type EditRequest struct {
	Contact string `json:"contact"`
	ID      string `json:"id"`
	Text    string `json:"text"`
}

// DeleteRequest is the DeleteMessage request.
type DeleteRequest struct {
	Contact string `json:"contact"`
	ID      string `json:"id"`
}

// ListActionsRequest is the ListActions request.
type ListActionsRequest struct {
	FailedOnly bool `json:"failed_only,omitempty"`
	Limit      int  `json:"limit,omitempty"`
}

type Status struct {
	Session           string    `json:"session"`
	State             string    `json:"state"`
	Since             time.Time `json:"since"`
	Connected         bool      `json:"connected"`
	Paired            bool      `json:"paired"`
	OpenConversations int       `json:"open_conversations"`
	Contacts          int       `json:"contacts"`
	DroppedEvents     uint64    `json:"dropped_events"`
	UptimeMs          int64     `json:"uptime_ms"`
}

type Contact struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	Number        string     `json:"number,omitempty"`
	DisplayNumber string     `json:"display_number,omitempty"`
	Avatar        string     `json:"avatar,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// Label returns the best human-readable name for the contact.
func (c Contact) Label() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.DisplayNumber != "":
		return c.DisplayNumber
	default:
		return c.ID
	}
}

type Roster struct {
	Contacts []Contact `json:"contacts"`
	Page     int       `json:"page"`
	HasMore  bool      `json:"has_more"`
}

type Message struct {
	ID          string    `json:"id"`
	Content     string    `json:"content,omitempty"`
	Media       string    `json:"media,omitempty"`
	Audio       bool      `json:"audio,omitempty"`
	Sender      string    `json:"sender"`
	CreatedAt   time.Time `json:"created_at"`
	Status      string    `json:"status"`
	Local       bool      `json:"local"`
	Provisional bool      `json:"provisional,omitempty"`
}

type Conversation struct {
	Contact   Contact   `json:"contact"`
	Messages  []Message `json:"messages"`
	Loaded    bool      `json:"loaded"`
	LoadError string    `json:"load_error,omitempty"`
}

type Pairing struct {
	QR     string `json:"qr,omitempty"`
	Paired bool   `json:"paired"`
}

// ActionResult is an outbound action, either just reported by the engine
// or read back from the journal.
type ActionResult struct {
	ID             string    `json:"id"`
	Action         string    `json:"action"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	Content        string    `json:"content,omitempty"`
	Emitted        bool      `json:"emitted"`
	Durability     string    `json:"durability"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ActionList struct {
	Actions []ActionResult `json:"actions"`
}

// Event is one engine bus event, flattened. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind         string        `json:"kind"`
	At           time.Time     `json:"at"`
	Conversation string        `json:"conversation,omitempty"`
	Message      string        `json:"message,omitempty"`
	Change       string        `json:"change,omitempty"`
	Added        int           `json:"added,omitempty"`
	Contacts     int           `json:"contacts,omitempty"`
	From         string        `json:"from,omitempty"`
	To           string        `json:"to,omitempty"`
	QR           string        `json:"qr,omitempty"`
	Paired       bool          `json:"paired,omitempty"`
	Error        string        `json:"error,omitempty"`
	Result       *ActionResult `json:"result,omitempty"`
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return out, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = new(structpb.Struct)
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

func contactOut(c model.Contact) Contact {
	out := Contact{
		ID:     c.ID,
		Name:   c.DisplayName,
		Number: c.Number,
		Avatar: c.AvatarRef,
	}
	if c.Number != "" {
		out.DisplayNumber = normalize.FormatPhone(c.Number)
	}
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		out.LastMessageAt = &at
	}
	return out
}

func messageOut(m model.Message) Message {
	return Message{
		ID:          m.ID,
		Content:     m.Content,
		Media:       m.MediaRef,
		Audio:       m.IsAudio,
		Sender:      m.SenderID,
		CreatedAt:   m.CreatedAt,
		Status:      string(m.Status),
		Local:       m.FromLocal(),
		Provisional: m.Provisional(),
	}
}

func conversationOut(v intsync.View) Conversation {
	out := Conversation{
		Contact:  contactOut(v.Contact),
		Messages: make([]Message, 0, len(v.Messages)),
		Loaded:   v.Loaded,
	}
	for _, m := range v.Messages {
		out.Messages = append(out.Messages, messageOut(m))
	}
	if v.LoadErr != nil {
		out.LoadError = v.LoadErr.Error()
	}
	return out
}

func resultOut(r outbox.Result) ActionResult {
	return ActionResult{
		ID:             r.ID,
		Action:         string(r.Action),
		ConversationID: r.ConversationID,
		MessageID:      r.MessageID,
		Content:        r.Content,
		Emitted:        r.Emitted,
		Durability:     string(r.Durability),
		Error:          r.ErrorText(),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func actionOut(a store.Action) ActionResult {
	return ActionResult{
		ID:             a.ID,
		Action:         a.Kind,
		ConversationID: a.ConversationID,
		MessageID:      a.MessageID,
		Content:        a.Content,
		Emitted:        a.Emitted,
		Durability:     a.Durability,
		Error:          a.Error,
		CreatedAt:      time.UnixMilli(a.CreatedAt).UTC(),
		UpdatedAt:      time.UnixMilli(a.UpdatedAt).UTC(),
	}
}

// eventOut flattens a bus event. Unknown payloads keep only kind and time.
func eventOut(evt bus.Event) Event {
	out := Event{Kind: evt.Kind, At: evt.Timestamp}
	switch p := evt.Payload.(type) {
	case intsync.ConvChange:
		out.Conversation = p.ContactID
		out.Message = p.MessageID
		out.Change = p.Change
	case intsync.ConvLoad:
		out.Conversation = p.ContactID
		out.Added = p.Added
		if p.Err != nil {
			out.Error = p.Err.Error()
		}
	case intsync.RosterChange:
		out.Conversation = p.ContactID
		out.Contacts = p.Contacts
	case intsync.PairingView:
		out.QR = p.QR
		out.Paired = p.Paired
	case status.StatusChange:
		out.From = string(p.From)
		out.To = string(p.To)
	case outbox.Result:
		r := resultOut(p)
		out.Conversation = p.ConversationID
		out.Message = p.MessageID
		out.Error = r.Error
		out.Result = &r
	}
	return out
}
