package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned by Emit while the channel is down.
	ErrNotConnected = errors.New("gateway channel not connected")
	// ErrQueueFull is returned by Emit when the writer is backed up.
	ErrQueueFull = errors.New("gateway send queue full")
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 1 << 20
)

// LinkState is the state of the persistent channel.
type LinkState string

const (
	LinkConnected    LinkState = "connected"
	LinkDisconnected LinkState = "disconnected"
	LinkReconnecting LinkState = "reconnecting"
)

// LinkEvent reports a change of the channel's connectivity.
type LinkEvent struct {
	State   LinkState
	Attempt int
	Delay   time.Duration
	Err     error
}

// Handler receives everything the channel reads and every link change.
// Calls come from the channel's own goroutine, one at a time.
type Handler interface {
	HandleEnvelope(env Envelope)
	HandleLink(evt LinkEvent)
}

// ChannelOptions configures the websocket channel.
type ChannelOptions struct {
	URL       string
	Token     string
	BaseDelay time.Duration
	MaxDelay  time.Duration
	QueueSize int
}

// Channel keeps a websocket to the gateway open, reconnecting with backoff.
type Channel struct {
	opts    ChannelOptions
	handler Handler
	logger  *zap.Logger
	dialer  *websocket.Dialer

	connected atomic.Bool
	out       chan []byte

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannel creates a channel. Start must be called to connect.
func NewChannel(opts ChannelOptions, handler Handler, logger *zap.Logger) *Channel {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &Channel{
		opts:    opts,
		handler: handler,
		logger:  logger,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		out: make(chan []byte, opts.QueueSize),
	}
}

// Start connects in the background and keeps reconnecting until Stop.
func (c *Channel) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop closes the connection and waits for the background loop to exit.
func (c *Channel) Stop() {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done
}

// Connected reports whether frames can currently be emitted.
func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// Emit queues an outbound event without waiting for the write.
func (c *Channel) Emit(event string, payload any) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	select {
	case c.out <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	bo := newRetryDelay(c.opts.BaseDelay, c.opts.MaxDelay)

	for {
		conn, err := c.dial(ctx)
		if err == nil {
			bo.markConnected(time.Now())
			c.serve(ctx, conn)
		} else if ctx.Err() == nil {
			c.logger.Warn("gateway dial failed", zap.String("url", c.opts.URL), zap.Error(err))
		}

		if ctx.Err() != nil {
			return
		}

		delay := bo.next(time.Now())
		c.handler.HandleLink(LinkEvent{State: LinkReconnecting, Attempt: bo.attempt, Delay: delay})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// serve runs one connection until it fails or ctx ends.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.connected.Store(true)
	c.logger.Info("gateway channel connected", zap.String("url", c.opts.URL))
	c.handler.HandleLink(LinkEvent{State: LinkConnected})

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(conn, stop)
	}()

	err := c.readLoop(conn)

	c.connected.Store(false)
	close(stop)
	_ = conn.Close()
	<-writerDone

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	if dropped := c.drain(); dropped > 0 {
		c.logger.Warn("dropped unsent frames", zap.Int("count", dropped))
	}
	if ctx.Err() != nil {
		err = nil
	}
	c.logger.Warn("gateway channel disconnected", zap.Error(err))
	c.handler.HandleLink(LinkEvent{State: LinkDisconnected, Err: err})
}

func (c *Channel) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.logger.Debug("ignoring malformed frame", zap.Int("bytes", len(data)))
			continue
		}
		c.handler.HandleEnvelope(env)
	}
}

func (c *Channel) writeLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("gateway write failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		case <-stop:
			return
		}
	}
}

// drain discards frames queued for a connection that is gone.
func (c *Channel) drain() int {
	n := 0
	for {
		select {
		case <-c.out:
			n++
		default:
			return n
		}
	}
}
