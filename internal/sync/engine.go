package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/convstore"
	"github.com/matheus3301/wppsync/internal/gateway"
	"github.com/matheus3301/wppsync/internal/normalize"
	"github.com/matheus3301/wppsync/internal/outbox"
	"github.com/matheus3301/wppsync/internal/roster"
	"github.com/matheus3301/wppsync/internal/status"
	"go.uber.org/zap"
)

var (
	// ErrUnknownContact is returned when a key matches no contact and does
	// not look like an address.
	ErrUnknownContact = errors.New("unknown contact")
	// ErrNotOpen is returned for operations on a conversation that was never opened.
	ErrNotOpen = errors.New("conversation not open")
	// ErrStopped is returned once the engine loop has exited.
	ErrStopped = errors.New("engine stopped")
)

// Gateway is what the engine needs from the remote peer.
type Gateway interface {
	Connected() bool
	FetchHistory(ctx context.Context, contactID string, page, limit int) (*gateway.HistoryPage, error)
	FetchContacts(ctx context.Context, page, limit int) (*gateway.ContactsPage, error)
}

// Options tunes paging and reconnect behavior.
type Options struct {
	HistoryPageSize   int
	HistoryMaxPages   int
	RosterPageSize    int
	ResyncOnReconnect bool
}

func (o *Options) defaults() {
	if o.HistoryPageSize <= 0 {
		o.HistoryPageSize = 50
	}
	if o.HistoryMaxPages <= 0 {
		o.HistoryMaxPages = 4
	}
	if o.RosterPageSize <= 0 {
		o.RosterPageSize = 50
	}
}

// Engine owns every conversation and the roster. All of its state is
// touched by a single goroutine; public methods submit work to it.
type Engine struct {
	gw       Gateway
	pipeline *outbox.Pipeline
	roster   *roster.Index
	norm     *normalize.Normalizer
	machine  *status.Machine
	bus      *bus.Bus
	opts     Options
	logger   *zap.Logger

	cmds    chan func()
	stopped chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	// Loop-owned state below.
	sessions      map[string]*session
	rosterPage    int
	rosterMore    bool
	rosterLoad    *pending
	qr            string
	paired        bool
	seenConnected bool
}

// NewEngine creates an engine. The normalizer should resolve through idx.
func NewEngine(gw Gateway, pipeline *outbox.Pipeline, idx *roster.Index, norm *normalize.Normalizer,
	machine *status.Machine, b *bus.Bus, opts Options, logger *zap.Logger) *Engine {
	opts.defaults()
	return &Engine{
		gw:         gw,
		pipeline:   pipeline,
		roster:     idx,
		norm:       norm,
		machine:    machine,
		bus:        b,
		opts:       opts,
		logger:     logger,
		cmds:       make(chan func()),
		stopped:    make(chan struct{}),
		sessions:   make(map[string]*session),
		rosterMore: true,
	}
}

// Start subscribes to peer and link events and runs the loop.
func (e *Engine) Start(ctx context.Context) {
	peer, unsubPeer := e.bus.Subscribe(bus.NSPeer, 1024)
	link, unsubLink := e.bus.Subscribe(bus.NSLink, 64)
	e.ctx, e.cancel = context.WithCancel(ctx)

	go func() {
		defer close(e.stopped)
		defer unsubPeer()
		defer unsubLink()
		for {
			select {
			case fn := <-e.cmds:
				fn()
			case evt := <-peer:
				e.handleEvent(evt)
			case evt := <-link:
				e.handleEvent(evt)
			case <-e.ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the loop and waits for durability calls in flight.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.stopped
	e.pipeline.Wait()
}

// do runs fn on the loop and waits for it.
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case e.cmds <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
}

// post hands a result computed off-loop back to the loop. It gives up when
// the engine stops.
func (e *Engine) post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.ctx.Done():
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.PeerNewMessage:
		if p, ok := evt.Payload.(gateway.MessagePayload); ok {
			e.onNewMessage(p)
		}
	case bus.PeerMessageEdited:
		if p, ok := evt.Payload.(gateway.EditedPayload); ok {
			e.onEdited(p)
		}
	case bus.PeerMessageDeleted:
		if p, ok := evt.Payload.(gateway.DeletedPayload); ok {
			e.onDeleted(p)
		}
	case bus.PeerQRCode:
		if qr, ok := evt.Payload.(string); ok {
			e.qr = qr
			e.paired = false
			e.bus.Emit(bus.PairingUpdated, PairingView{QR: qr})
		}
	case bus.PeerReady:
		e.qr = ""
		e.paired = true
		e.bus.Emit(bus.PairingUpdated, PairingView{Paired: true})
		if e.roster.Len() == 0 {
			e.loadRosterPage()
		}
	case bus.PeerDisconnected:
		e.paired = false
		e.bus.Emit(bus.PairingUpdated, PairingView{})
	case bus.LinkConnected:
		e.onConnected()
	case bus.LinkDisconnected:
		e.logger.Info("gateway link lost", zap.Int("open_conversations", len(e.sessions)))
	case bus.LinkReconnecting:
		if le, ok := evt.Payload.(gateway.LinkEvent); ok {
			e.logger.Debug("gateway reconnect scheduled", zap.Int("attempt", le.Attempt), zap.Duration("delay", le.Delay))
		}
	}
}

func (e *Engine) onConnected() {
	reconnect := e.seenConnected
	e.seenConnected = true
	if e.roster.Len() == 0 {
		e.loadRosterPage()
	}
	if reconnect && e.opts.ResyncOnReconnect {
		e.logger.Info("resyncing open conversations", zap.Int("count", len(e.sessions)))
		for _, s := range e.sessions {
			e.startBackfill(s)
		}
	}
}

func (e *Engine) onNewMessage(p gateway.MessagePayload) {
	ev, err := e.norm.NewMessage(p)
	if err != nil {
		e.logger.Debug("dropping new message", zap.String("id", p.ID), zap.Error(err))
		return
	}
	if e.roster.Touch(ev.ConversationID, ev.Message.CreatedAt) {
		e.bus.Emit(bus.RosterChanged, RosterChange{ContactID: ev.ConversationID})
	}

	s, ok := e.lookupSession(ev.ConversationID)
	if !ok {
		return
	}
	out := s.conv.InsertConfirmed(ev.Message)
	if out == convstore.Duplicate {
		e.logger.Debug("duplicate message absorbed", zap.String("id", ev.Message.ID))
		return
	}
	e.changed(s.conv.ContactID, ev.Message.ID, out.String())
}

func (e *Engine) onEdited(p gateway.EditedPayload) {
	ed, err := e.norm.Edited(p)
	if err != nil {
		e.logger.Debug("dropping edit", zap.Error(err))
		return
	}
	s := e.owner(ed.ConversationID, ed.MessageID)
	if s == nil || !s.conv.ApplyEdit(ed.MessageID, ed.Content, ed.At) {
		e.logger.Debug("edit for unknown message dropped", zap.String("id", ed.MessageID))
		return
	}
	e.changed(s.conv.ContactID, ed.MessageID, ChangeEdited)
}

func (e *Engine) onDeleted(p gateway.DeletedPayload) {
	del, err := e.norm.Deleted(p)
	if err != nil {
		e.logger.Debug("dropping delete", zap.Error(err))
		return
	}
	s := e.owner(del.ConversationID, del.MessageID)
	if s == nil || !s.conv.ApplyDelete(del.MessageID) {
		e.logger.Debug("delete for unknown message dropped", zap.String("id", del.MessageID))
		return
	}
	e.changed(s.conv.ContactID, del.MessageID, ChangeDeleted)
}

// owner finds the open conversation holding msgID, preferring convID.
func (e *Engine) owner(convID, msgID string) *session {
	if s, ok := e.lookupSession(convID); ok && s.conv.Has(msgID) {
		return s
	}
	for _, s := range e.sessions {
		if s.conv.Has(msgID) {
			return s
		}
	}
	return nil
}

func (e *Engine) changed(convID, msgID, change string) {
	e.bus.Emit(bus.ConvChanged, ConvChange{ContactID: convID, MessageID: msgID, Change: change})
}

// Status returns the engine's connectivity and bookkeeping.
func (e *Engine) Status(ctx context.Context) (StatusView, error) {
	var v StatusView
	err := e.do(ctx, func() {
		v = StatusView{
			State:             e.machine.Current(),
			Since:             e.machine.Since(),
			Connected:         e.gw.Connected(),
			Paired:            e.paired,
			OpenConversations: len(e.sessions),
			Contacts:          e.roster.Len(),
			DroppedEvents:     e.bus.Dropped(),
		}
	})
	return v, err
}

// Pairing returns the latest pairing QR, if the gateway asked for one.
func (e *Engine) Pairing(ctx context.Context) (PairingView, error) {
	var v PairingView
	err := e.do(ctx, func() {
		v = PairingView{QR: e.qr, Paired: e.paired}
	})
	return v, err
}

func wrapKey(key string, err error) error {
	return fmt.Errorf("%s: %w", key, err)
}
