package sync

import (
	"context"
	"fmt"

	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/convstore"
	"github.com/matheus3301/wppsync/internal/gateway"
	"github.com/matheus3301/wppsync/internal/model"
	"github.com/matheus3301/wppsync/internal/normalize"
	"github.com/matheus3301/wppsync/internal/outbox"
	"go.uber.org/zap"
)

// session is one open conversation and its backfill bookkeeping.
type session struct {
	contact model.Contact
	// standIn is set while contact is a placeholder built from an address.
	standIn bool
	conv    *convstore.Conversation
	load    *pending
	loadErr error
}

// pending is an off-loop fetch whose outcome callers can wait for.
type pending struct {
	done chan struct{}
	err  error
}

func newPending() *pending {
	return &pending{done: make(chan struct{})}
}

func (p *pending) finish(err error) {
	p.err = err
	close(p.done)
}

// wait blocks until the fetch finished. The error is only read after done
// is closed, which orders it after the write on the loop.
func (p *pending) wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// to is the address used when emitting actions for this conversation.
func (s *session) to() string {
	if s.contact.Number != "" {
		return s.contact.Number
	}
	return s.contact.ID
}

func (s *session) view() View {
	return View{
		Contact:  s.contact,
		Messages: s.conv.Messages(),
		Loaded:   s.conv.Loaded(),
		LoadErr:  s.loadErr,
	}
}

// Open opens a conversation, starting its history backfill the first time,
// and waits for the backfill to settle. A failed backfill is reported in
// View.LoadErr rather than as an error.
func (e *Engine) Open(ctx context.Context, key string) (View, error) {
	var load *pending
	var err error
	if derr := e.do(ctx, func() {
		var s *session
		s, err = e.open(key)
		if err == nil {
			load = s.load
		}
	}); derr != nil {
		return View{}, derr
	}
	if err != nil {
		return View{}, err
	}
	if load != nil {
		if werr := load.wait(ctx); werr != nil && ctx.Err() != nil {
			return View{}, werr
		}
	}
	return e.Messages(ctx, key)
}

// Messages returns the current snapshot of an open conversation.
func (e *Engine) Messages(ctx context.Context, key string) (View, error) {
	var v View
	var err error
	if derr := e.do(ctx, func() {
		var s *session
		if s, err = e.session(key); err == nil {
			v = s.view()
		}
	}); derr != nil {
		return View{}, derr
	}
	return v, err
}

// Send sends text to an open conversation. It returns the provisional
// message as inserted.
func (e *Engine) Send(ctx context.Context, key, content string) (model.Message, error) {
	var msg model.Message
	var err error
	if derr := e.do(ctx, func() {
		var s *session
		if s, err = e.session(key); err != nil {
			return
		}
		if msg, err = e.pipeline.Send(s.conv, s.to(), content); err == nil {
			e.changed(s.conv.ContactID, msg.ID, ChangeSent)
		}
	}); derr != nil {
		return model.Message{}, derr
	}
	return msg, err
}

// Edit edits a confirmed message of an open conversation.
func (e *Engine) Edit(ctx context.Context, key, id, content string) (outbox.Result, error) {
	var res outbox.Result
	var err error
	if derr := e.do(ctx, func() {
		var s *session
		if s, err = e.session(key); err != nil {
			return
		}
		if res, err = e.pipeline.Edit(s.conv, s.to(), id, content); err == nil {
			e.changed(s.conv.ContactID, id, ChangeEdited)
		}
	}); derr != nil {
		return outbox.Result{}, derr
	}
	return res, err
}

// Delete deletes a confirmed message of an open conversation.
func (e *Engine) Delete(ctx context.Context, key, id string) (outbox.Result, error) {
	var res outbox.Result
	var err error
	if derr := e.do(ctx, func() {
		var s *session
		if s, err = e.session(key); err != nil {
			return
		}
		if res, err = e.pipeline.Delete(s.conv, s.to(), id); err == nil {
			e.changed(s.conv.ContactID, id, ChangeDeleted)
		}
	}); derr != nil {
		return outbox.Result{}, derr
	}
	return res, err
}

// Resync merges the conversation's history again, filling gaps left by a
// disconnect, and waits for it.
func (e *Engine) Resync(ctx context.Context, key string) (View, error) {
	var load *pending
	var err error
	if derr := e.do(ctx, func() {
		var s *session
		if s, err = e.session(key); err == nil {
			load = e.startBackfill(s)
		}
	}); derr != nil {
		return View{}, derr
	}
	if err != nil {
		return View{}, err
	}
	if werr := load.wait(ctx); werr != nil && ctx.Err() != nil {
		return View{}, werr
	}
	return e.Messages(ctx, key)
}

// open runs on the loop.
func (e *Engine) open(key string) (*session, error) {
	contact, standIn, err := e.resolve(key)
	if err != nil {
		return nil, err
	}
	if s, ok := e.sessions[contact.ID]; ok {
		return s, nil
	}
	s := &session{contact: contact, standIn: standIn, conv: convstore.New(contact.ID)}
	e.sessions[contact.ID] = s
	e.bus.Emit(bus.ConvOpened, ConvChange{ContactID: contact.ID})
	e.startBackfill(s)
	return s, nil
}

// session runs on the loop.
func (e *Engine) session(key string) (*session, error) {
	if s, ok := e.lookupSession(key); ok {
		return s, nil
	}
	return nil, wrapKey(key, ErrNotOpen)
}

// lookupSession finds the open conversation for a contact id, or for any
// address form of a roster contact or stand-in.
func (e *Engine) lookupSession(key string) (*session, bool) {
	if s, ok := e.sessions[key]; ok {
		return s, true
	}
	if c, ok := e.roster.Lookup(key); ok {
		if s, ok := e.sessions[c.ID]; ok {
			return s, true
		}
	}
	if addr := normalize.Address(key); addr != "" {
		if s, ok := e.sessions[addr]; ok && s.standIn {
			return s, true
		}
	}
	return nil, false
}

// resolve maps a key to a roster contact. Addresses of contacts not fetched
// yet get a stand-in keyed by the bare digits, so every form of the address
// reaches the same conversation.
func (e *Engine) resolve(key string) (model.Contact, bool, error) {
	if c, ok := e.roster.Lookup(key); ok {
		return c, false, nil
	}
	addr := normalize.Address(key)
	if addr == "" {
		return model.Contact{}, false, wrapKey(key, ErrUnknownContact)
	}
	return model.Contact{ID: addr, Number: key}, true, nil
}

// startBackfill fetches history off-loop and merges it on the loop. A
// backfill already in flight is reused.
func (e *Engine) startBackfill(s *session) *pending {
	if s.load != nil {
		select {
		case <-s.load.done:
		default:
			return s.load
		}
	}
	load := newPending()
	s.load = load
	contactID := s.conv.ContactID

	go func() {
		page, err := e.fetchHistory(contactID)
		e.post(func() { e.finishBackfill(s, load, page, err) })
	}()
	return load
}

func (e *Engine) fetchHistory(contactID string) ([]gateway.MessagePayload, error) {
	var all []gateway.MessagePayload
	for page := 1; page <= e.opts.HistoryMaxPages; page++ {
		hp, err := e.gw.FetchHistory(e.ctx, contactID, page, e.opts.HistoryPageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch history page %d: %w", page, err)
		}
		all = append(all, hp.Messages...)
		if !hp.HasMore {
			break
		}
	}
	return all, nil
}

func (e *Engine) finishBackfill(s *session, load *pending, payloads []gateway.MessagePayload, err error) {
	id := s.conv.ContactID
	if err != nil {
		if !s.conv.Loaded() {
			s.conv.MarkLoaded()
		}
		s.loadErr = err
		e.logger.Warn("history backfill failed", zap.String("contact", id), zap.Error(err))
		e.bus.Emit(bus.ConvBackfillFailed, ConvLoad{ContactID: id, Err: err})
		load.finish(err)
		return
	}
	added := s.conv.Backfill(e.norm.History(id, payloads))
	s.loadErr = nil
	e.logger.Debug("history merged", zap.String("contact", id), zap.Int("added", added))
	e.bus.Emit(bus.ConvLoaded, ConvLoad{ContactID: id, Added: added})
	load.finish(nil)
}
