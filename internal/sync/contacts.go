package sync

import (
	"context"
	"errors"

	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/gateway"
	"github.com/matheus3301/wppsync/internal/model"
	"go.uber.org/zap"
)

// ErrNoMoreContacts is returned by LoadMoreContacts once the roster is complete.
var ErrNoMoreContacts = errors.New("no more contacts")

// Roster returns the roster ordered by recent activity.
func (e *Engine) Roster(ctx context.Context) (RosterView, error) {
	var v RosterView
	err := e.do(ctx, func() {
		v = RosterView{
			Contacts: e.roster.Contacts(),
			Page:     e.rosterPage,
			HasMore:  e.rosterMore,
		}
	})
	return v, err
}

// LoadMoreContacts fetches the next roster page and waits for it.
func (e *Engine) LoadMoreContacts(ctx context.Context) error {
	var load *pending
	var err error
	if derr := e.do(ctx, func() {
		if !e.rosterMore {
			err = ErrNoMoreContacts
			return
		}
		load = e.loadRosterPage()
	}); derr != nil {
		return derr
	}
	if err != nil {
		return err
	}
	return load.wait(ctx)
}

// loadRosterPage fetches the page after the last one seeded. A fetch already
// in flight is reused.
func (e *Engine) loadRosterPage() *pending {
	if e.rosterLoad != nil {
		select {
		case <-e.rosterLoad.done:
		default:
			return e.rosterLoad
		}
	}
	load := newPending()
	e.rosterLoad = load
	page := e.rosterPage + 1
	limit := e.opts.RosterPageSize

	go func() {
		cp, err := e.gw.FetchContacts(e.ctx, page, limit)
		e.post(func() { e.finishRosterPage(load, page, cp, err) })
	}()
	return load
}

func (e *Engine) finishRosterPage(load *pending, page int, cp *gateway.ContactsPage, err error) {
	if err != nil {
		e.logger.Warn("roster fetch failed", zap.Int("page", page), zap.Error(err))
		load.finish(err)
		return
	}
	contacts := make([]model.Contact, 0, len(cp.Contacts))
	for _, c := range cp.Contacts {
		if c.ID == "" {
			continue
		}
		contacts = append(contacts, model.Contact{
			ID:          c.ID,
			DisplayName: c.Name,
			Number:      c.Number,
			AvatarRef:   c.Photo,
		})
	}
	e.roster.Seed(contacts)
	e.adoptStandIns()
	e.rosterPage = page
	e.rosterMore = cp.HasMore
	e.logger.Debug("roster page seeded", zap.Int("page", page), zap.Int("contacts", len(contacts)))
	e.bus.Emit(bus.RosterChanged, RosterChange{Contacts: e.roster.Len()})
	load.finish(nil)
}

// adoptStandIns moves conversations opened by raw address under the roster
// contact that address now resolves to, so routed events find them.
func (e *Engine) adoptStandIns() {
	for key, s := range e.sessions {
		if !s.standIn {
			continue
		}
		c, ok := e.roster.Lookup(key)
		if !ok || c.ID == key {
			continue
		}
		if _, taken := e.sessions[c.ID]; taken {
			continue
		}
		delete(e.sessions, key)
		s.contact = c
		s.standIn = false
		s.conv.ContactID = c.ID
		e.sessions[c.ID] = s
		e.logger.Debug("conversation adopted by roster contact", zap.String("address", key), zap.String("contact", c.ID))
	}
}
