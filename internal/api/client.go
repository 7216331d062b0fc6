package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client talks to a session daemon over its unix socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for the daemon listening on socketPath. The
// connection is established lazily on the first call.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return err
	}
	return fromStruct(out, resp)
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	return &out, c.invoke(ctx, "GetStatus", Empty{}, &out)
}

func (c *Client) Contacts(ctx context.Context) (*Roster, error) {
	var out Roster
	return &out, c.invoke(ctx, "ListContacts", Empty{}, &out)
}

// LoadMoreContacts fetches the next roster page and returns the roster.
func (c *Client) LoadMoreContacts(ctx context.Context) (*Roster, error) {
	var out Roster
	return &out, c.invoke(ctx, "LoadMoreContacts", Empty{}, &out)
}

// Open opens a conversation, waiting for its first history backfill.
func (c *Client) Open(ctx context.Context, contact string) (*Conversation, error) {
	var out Conversation
	return &out, c.invoke(ctx, "OpenConversation", ConversationRequest{Contact: contact}, &out)
}

func (c *Client) Messages(ctx context.Context, contact string) (*Conversation, error) {
	var out Conversation
	return &out, c.invoke(ctx, "ListMessages", ConversationRequest{Contact: contact}, &out)
}

func (c *Client) Resync(ctx context.Context, contact string) (*Conversation, error) {
	var out Conversation
	return &out, c.invoke(ctx, "Resync", ConversationRequest{Contact: contact}, &out)
}

// Send returns the provisional message inserted for text.
func (c *Client) Send(ctx context.Context, contact, text string) (*Message, error) {
	var out Message
	return &out, c.invoke(ctx, "SendText", SendRequest{Contact: contact, Text: text}, &out)
}

func (c *Client) Edit(ctx context.Context, contact, id, text string) (*ActionResult, error) {
	var out ActionResult
	return &out, c.invoke(ctx, "EditMessage", EditRequest{Contact: contact, ID: id, Text: text}, &out)
}

func (c *Client) Delete(ctx context.Context, contact, id string) (*ActionResult, error) {
	var out ActionResult
	return &out, c.invoke(ctx, "DeleteMessage", DeleteRequest{Contact: contact, ID: id}, &out)
}

func (c *Client) Pairing(ctx context.Context) (*Pairing, error) {
	var out Pairing
	return &out, c.invoke(ctx, "GetPairing", Empty{}, &out)
}

func (c *Client) Actions(ctx context.Context, failedOnly bool, limit int) (*ActionList, error) {
	var out ActionList
	return &out, c.invoke(ctx, "ListActions", ListActionsRequest{FailedOnly: failedOnly, Limit: limit}, &out)
}

// EventStream receives events from WatchEvents.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event.
func (s *EventStream) Recv() (*Event, error) {
	in := new(structpb.Struct)
	if err := s.stream.RecvMsg(in); err != nil {
		return nil, err
	}
	var evt Event
	if err := fromStruct(in, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// Watch opens an event stream. Cancel ctx to close it.
func (c *Client) Watch(ctx context.Context, namespaces ...string) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, &watchEventsDesc, "/"+ServiceName+"/WatchEvents")
	if err != nil {
		return nil, err
	}
	in, err := toStruct(WatchRequest{Namespaces: namespaces})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}
