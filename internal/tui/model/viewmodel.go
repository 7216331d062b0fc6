package model

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/matheus3301/wppsync/internal/api"
)

// ErrNoConversation is returned by actions that need an open conversation.
var ErrNoConversation = errors.New("no conversation open")

// Source is the daemon API as seen by the TUI.
type Source interface {
	Status(ctx context.Context) (*api.Status, error)
	Contacts(ctx context.Context) (*api.Roster, error)
	LoadMoreContacts(ctx context.Context) (*api.Roster, error)
	Open(ctx context.Context, contact string) (*api.Conversation, error)
	Messages(ctx context.Context, contact string) (*api.Conversation, error)
	Resync(ctx context.Context, contact string) (*api.Conversation, error)
	Send(ctx context.Context, contact, text string) (*api.Message, error)
	Edit(ctx context.Context, contact, id, text string) (*api.ActionResult, error)
	Delete(ctx context.Context, contact, id string) (*api.ActionResult, error)
	Pairing(ctx context.Context) (*api.Pairing, error)
}

// Refresh is a set of view areas an event invalidates.
type Refresh uint8

const (
	RefreshStatus Refresh = 1 << iota
	RefreshRoster
	RefreshThread
	RefreshPairing
)

// Has reports whether r includes area.
func (r Refresh) Has(area Refresh) bool {
	return r&area != 0
}

// ViewModel caches daemon state for the views. Loads may run on any
// goroutine; getters return snapshots.
type ViewModel struct {
	mu sync.RWMutex

	src     Source
	status  *api.Status
	roster  *api.Roster
	conv    *api.Conversation
	active  string
	pairing *api.Pairing
}

// NewViewModel creates a view model reading from src.
func NewViewModel(src Source) *ViewModel {
	return &ViewModel{src: src}
}

// Affects maps a daemon event to the areas that need reloading.
func (vm *ViewModel) Affects(evt *api.Event) Refresh {
	switch {
	case strings.HasPrefix(evt.Kind, "conv."):
		if evt.Conversation != "" && evt.Conversation == vm.Active() {
			return RefreshThread
		}
	case strings.HasPrefix(evt.Kind, "roster."):
		return RefreshRoster
	case strings.HasPrefix(evt.Kind, "status."):
		return RefreshStatus
	case strings.HasPrefix(evt.Kind, "pairing."):
		return RefreshPairing | RefreshStatus
	}
	return 0
}

func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.src.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.mu.Unlock()
	return nil
}

func (vm *ViewModel) LoadRoster(ctx context.Context) error {
	return vm.setRoster(vm.src.Contacts(ctx))
}

// LoadMoreContacts fetches the next roster page.
func (vm *ViewModel) LoadMoreContacts(ctx context.Context) error {
	return vm.setRoster(vm.src.LoadMoreContacts(ctx))
}

func (vm *ViewModel) setRoster(r *api.Roster, err error) error {
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.roster = r
	vm.mu.Unlock()
	return nil
}

func (vm *ViewModel) LoadPairing(ctx context.Context) error {
	p, err := vm.src.Pairing(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.pairing = p
	vm.mu.Unlock()
	return nil
}

// Open opens contact and makes it the active conversation.
func (vm *ViewModel) Open(ctx context.Context, contact string) error {
	conv, err := vm.src.Open(ctx, contact)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conv = conv
	vm.active = conv.Contact.ID
	vm.mu.Unlock()
	return nil
}

// ReloadThread refreshes the active conversation.
func (vm *ViewModel) ReloadThread(ctx context.Context) error {
	return vm.withActive(ctx, vm.src.Messages)
}

// Resync merges the active conversation's history again.
func (vm *ViewModel) Resync(ctx context.Context) error {
	return vm.withActive(ctx, vm.src.Resync)
}

func (vm *ViewModel) withActive(ctx context.Context, fn func(context.Context, string) (*api.Conversation, error)) error {
	active := vm.Active()
	if active == "" {
		return nil
	}
	conv, err := fn(ctx, active)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.active == active {
		vm.conv = conv
	}
	vm.mu.Unlock()
	return nil
}

// Send sends text to the active conversation.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	active := vm.Active()
	if active == "" {
		return ErrNoConversation
	}
	if _, err := vm.src.Send(ctx, active, text); err != nil {
		return err
	}
	return vm.ReloadThread(ctx)
}

// Edit edits message id of the active conversation.
func (vm *ViewModel) Edit(ctx context.Context, id, text string) (*api.ActionResult, error) {
	active := vm.Active()
	if active == "" {
		return nil, ErrNoConversation
	}
	res, err := vm.src.Edit(ctx, active, id, text)
	if err != nil {
		return nil, err
	}
	return res, vm.ReloadThread(ctx)
}

// Delete deletes message id of the active conversation.
func (vm *ViewModel) Delete(ctx context.Context, id string) (*api.ActionResult, error) {
	active := vm.Active()
	if active == "" {
		return nil, ErrNoConversation
	}
	res, err := vm.src.Delete(ctx, active, id)
	if err != nil {
		return nil, err
	}
	return res, vm.ReloadThread(ctx)
}

// Close forgets the active conversation.
func (vm *ViewModel) Close() {
	vm.mu.Lock()
	vm.active = ""
	vm.conv = nil
	vm.mu.Unlock()
}

func (vm *ViewModel) Active() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

func (vm *ViewModel) Status() *api.Status {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

func (vm *ViewModel) Roster() *api.Roster {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.roster
}

func (vm *ViewModel) Conversation() *api.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conv
}

func (vm *ViewModel) Pairing() *api.Pairing {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.pairing
}

// NeedsPairing reports whether the gateway is waiting for a QR scan.
func (vm *ViewModel) NeedsPairing() bool {
	p := vm.Pairing()
	return p != nil && !p.Paired && p.QR != ""
}
