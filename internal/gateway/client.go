package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/status"
	"go.uber.org/zap"
)

// Options configures a gateway client.
type Options struct {
	BaseURL            string
	SocketPath         string
	Token              string
	RequestTimeout     time.Duration
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
}

// SocketURL derives the websocket address from the HTTP base URL.
func (o Options) SocketURL() string {
	u := strings.TrimRight(o.BaseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	path := o.SocketPath
	if path == "" {
		path = "/ws"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return u + path
}

// Client bundles the persistent channel with the HTTP calls.
type Client struct {
	*API
	channel *Channel
	events  *EventHandler
	logger  *zap.Logger

	mu  sync.Mutex
	ctx context.Context
}

// NewClient creates a client publishing inbound traffic on b.
func NewClient(opts Options, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Client {
	c := &Client{
		API:    NewAPI(opts.BaseURL, opts.Token, opts.RequestTimeout),
		events: NewEventHandler(b, machine, logger),
		logger: logger,
		ctx:    context.Background(),
	}
	c.channel = NewChannel(ChannelOptions{
		URL:       opts.SocketURL(),
		Token:     opts.Token,
		BaseDelay: opts.ReconnectBaseDelay,
		MaxDelay:  opts.ReconnectMaxDelay,
	}, c, logger)
	return c
}

// Start opens the channel in the background.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.channel.Start(ctx)
}

// Stop closes the channel.
func (c *Client) Stop() {
	c.channel.Stop()
}

// Connected reports whether the channel is up.
func (c *Client) Connected() bool {
	return c.channel.Connected()
}

// Emit queues an outbound event on the channel.
func (c *Client) Emit(event string, payload any) error {
	return c.channel.Emit(event, payload)
}

// HandleEnvelope implements Handler.
func (c *Client) HandleEnvelope(env Envelope) {
	c.events.HandleEnvelope(env)
}

// HandleLink implements Handler. A fresh connection triggers a status probe
// so the state reflects the gateway's WhatsApp session, not only the socket.
func (c *Client) HandleLink(evt LinkEvent) {
	c.events.HandleLink(evt)
	if evt.State == LinkConnected {
		go c.probe()
	}
}

func (c *Client) probe() {
	c.mu.Lock()
	parent := c.ctx
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, 5*time.Second)
	defer cancel()
	ps, err := c.PeerStatus(ctx)
	if err != nil {
		c.logger.Warn("gateway status probe failed", zap.Error(err))
		return
	}
	c.events.SyncPeerStatus(ps)
}
