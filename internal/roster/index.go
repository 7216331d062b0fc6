package roster

import (
	"sort"
	"time"

	"github.com/matheus3301/wppsync/internal/model"
	"github.com/matheus3301/wppsync/internal/normalize"
)

// Index keeps the roster ordered by most recent activity.
// Not safe for concurrent use; the engine loop owns it.
type Index struct {
	contacts []model.Contact
	// pending holds activity seen before the contact's page was fetched.
	pending map[string]time.Time
}

// New creates an empty index.
func New() *Index {
	return &Index{pending: make(map[string]time.Time)}
}

// Seed appends a fetched page. Contacts already known refresh their display
// fields in place; activity observed before the fetch is applied.
func (x *Index) Seed(page []model.Contact) {
	touched := false
	for _, c := range page {
		c.LastMessageAt = nil
		if i := x.indexOf(c.ID); i >= 0 {
			cur := &x.contacts[i]
			cur.DisplayName = c.DisplayName
			cur.Number = c.Number
			cur.AvatarRef = c.AvatarRef
			continue
		}
		if ts, ok := x.takePending(c); ok {
			c.LastMessageAt = &ts
			touched = true
		}
		x.contacts = append(x.contacts, c)
	}
	if touched {
		x.sort()
	}
}

// Touch records activity for a contact and resorts the roster.
// Timestamps never move backwards. Returns false when the contact is not in
// the roster yet; the activity is kept until its page arrives.
func (x *Index) Touch(contactID string, at time.Time) bool {
	i := x.indexOf(contactID)
	if i < 0 {
		if prev, ok := x.pending[contactID]; !ok || at.After(prev) {
			x.pending[contactID] = at
		}
		return false
	}
	c := &x.contacts[i]
	if c.LastMessageAt != nil && !at.After(*c.LastMessageAt) {
		return true
	}
	ts := at
	c.LastMessageAt = &ts
	x.sort()
	return true
}

// Contacts returns a copy of the ordered roster.
func (x *Index) Contacts() []model.Contact {
	out := make([]model.Contact, len(x.contacts))
	copy(out, x.contacts)
	return out
}

// Len returns the number of contacts.
func (x *Index) Len() int {
	return len(x.contacts)
}

// Lookup finds a contact by internal id or by address in any common form.
func (x *Index) Lookup(key string) (model.Contact, bool) {
	if key == "" {
		return model.Contact{}, false
	}
	if i := x.indexOf(key); i >= 0 {
		return x.contacts[i], true
	}
	addr := normalize.Address(key)
	if addr == "" {
		return model.Contact{}, false
	}
	for _, c := range x.contacts {
		if normalize.Address(c.Number) == addr {
			return c, true
		}
	}
	return model.Contact{}, false
}

// takePending removes and returns the latest activity recorded for c,
// whether it was routed by id or by any address form of c's number.
func (x *Index) takePending(c model.Contact) (time.Time, bool) {
	var latest time.Time
	found := false
	addr := normalize.Address(c.Number)
	for key, at := range x.pending {
		if key != c.ID && (addr == "" || normalize.Address(key) != addr) {
			continue
		}
		if !found || at.After(latest) {
			latest = at
		}
		found = true
		delete(x.pending, key)
	}
	return latest, found
}

func (x *Index) indexOf(id string) int {
	for i := range x.contacts {
		if x.contacts[i].ID == id {
			return i
		}
	}
	return -1
}

// sort orders by LastMessageAt descending. Contacts without activity sink
// below the rest and keep their relative (fetch) order.
func (x *Index) sort() {
	sort.SliceStable(x.contacts, func(i, j int) bool {
		a, b := x.contacts[i].LastMessageAt, x.contacts[j].LastMessageAt
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})
}
